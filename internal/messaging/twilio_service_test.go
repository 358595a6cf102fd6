package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/twiliowhatsapp"
)

func TestTwilioServiceSendAndDeliver(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	ctx := context.Background()

	err := svc.Send(ctx, models.Outbound{
		ChatID:  "whatsapp:+79990000001",
		Text:    "Оцените рецепт:",
		Buttons: []models.Button{{Label: "⭐", Token: "rating_1"}, {Label: "⭐⭐", Token: "rating_2"}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent := mock.Messages(); len(sent) != 1 || sent[0].To != "79990000001" {
		t.Fatalf("unexpected sends: %+v", sent)
	}

	if err := svc.Deliver("whatsapp:+79990000001", "2", "SM1", testTime); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	evt := <-svc.Events()
	if evt.Kind != models.EventButton || evt.Payload != "rating_2" || evt.MessageID != "SM1" || evt.UserID != "79990000001" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	if err := svc.Deliver("whatsapp:+79990000001", "", "SM2", testTime); !errors.Is(err, models.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if err := svc.Deliver("whatsapp:", "hi", "SM3", testTime); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestTwilioServiceSendFailure(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	mock.Fail = true
	svc := NewTwilioService(mock)
	err := svc.Send(context.Background(), models.Outbound{ChatID: "79990000001", Text: "hi"})
	if !errors.Is(err, twiliowhatsapp.ErrMockFailure) {
		t.Fatalf("expected wrapped mock failure, got %v", err)
	}
	if errors.Is(err, ErrInvalidRecipient) {
		t.Fatal("transport failure must not look like an invalid recipient")
	}
}

package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/whatsapp"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

var testTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestWhatsAppService_ImplementsService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
}

func TestWhatsAppServiceSend(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	ctx := context.Background()

	err := svc.Send(ctx, models.Outbound{
		ChatID:  "+7 999 000-00-01",
		Text:    "Как настроение?",
		Buttons: []models.Button{{Label: "😊", Token: "mood_happy"}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := mock.Messages()
	if len(sent) != 1 || sent[0].To != "79990000001" || sent[0].Body != "Как настроение?\n\n1. 😊" {
		t.Fatalf("unexpected sends: %+v", sent)
	}

	if err := svc.Send(ctx, models.Outbound{ChatID: "x", Text: "hi"}); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func textMessage(sender, id, text string, fromMe bool) *events.Message {
	evt := &events.Message{Message: &waE2E.Message{Conversation: &text}}
	evt.Info.Sender = types.NewJID(sender, types.DefaultUserServer)
	evt.Info.IsFromMe = fromMe
	evt.Info.ID = types.MessageID(id)
	evt.Info.PushName = "Anna"
	evt.Info.Timestamp = testTime
	return evt
}

func TestWhatsAppServiceIncoming(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Send(context.Background(), models.Outbound{
		ChatID:  "79990000001",
		Text:    "menu",
		Buttons: []models.Button{{Label: "О нас", Token: "about"}},
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	svc.handleEvent(textMessage("79990000001", "own", "1", true))
	svc.handleEvent(textMessage("79990000001", "ABC", "1", false))
	svc.handleEvent(&events.Message{})

	select {
	case evt := <-svc.Events():
		want := models.Event{
			UserID:      "79990000001",
			DisplayName: "Anna",
			Kind:        models.EventButton,
			Payload:     "about",
			MessageID:   "ABC",
			Time:        testTime,
		}
		if evt != want {
			t.Fatalf("event = %+v, want %+v", evt, want)
		}
	default:
		t.Fatal("expected an event")
	}
	select {
	case evt := <-svc.Events():
		t.Fatalf("unexpected extra event %+v", evt)
	default:
	}
}

func TestWhatsAppServiceStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := <-svc.Events(); ok {
		t.Error("expected events channel closed")
	}
	if err := svc.Send(context.Background(), models.Outbound{ChatID: "79990000001", Text: "hi"}); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

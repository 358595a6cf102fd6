package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/store"
	"github.com/BTreeMap/pyoots/internal/twiliowhatsapp"
	"github.com/BTreeMap/pyoots/internal/whatsapp"
)

type echoHandler struct {
	seen []models.Event
}

func (h *echoHandler) Handle(ctx context.Context, evt models.Event) []models.Outbound {
	h.seen = append(h.seen, evt)
	return []models.Outbound{
		{Text: "echo: " + evt.Payload},
		{ChatID: "bad", Text: "unreachable"},
	}
}

func TestDispatcherDispatch(t *testing.T) {
	ctx := context.Background()
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	h := &echoHandler{}
	d := NewDispatcher(svc, h, store.NewInMemoryStore())

	evt := models.Event{UserID: "79990000001", Kind: models.EventText, Payload: "hi", MessageID: "m1", Time: testTime}
	if sent := d.Dispatch(ctx, evt); sent != 1 {
		t.Fatalf("expected 1 reply delivered, got %d", sent)
	}
	if sent := d.Dispatch(ctx, evt); sent != 0 {
		t.Fatalf("expected redelivery skipped, got %d", sent)
	}
	if len(h.seen) != 1 {
		t.Fatalf("handler called %d times, want 1", len(h.seen))
	}
	msgs := mock.Messages()
	if len(msgs) != 1 || msgs[0].To != "79990000001" || msgs[0].Body != "echo: hi" {
		t.Fatalf("unexpected sends: %+v", msgs)
	}

	// Events without a platform id are never deduplicated.
	noID := models.Event{UserID: "79990000001", Kind: models.EventText, Payload: "again"}
	d.Dispatch(ctx, noID)
	d.Dispatch(ctx, noID)
	if len(h.seen) != 3 {
		t.Fatalf("handler called %d times, want 3", len(h.seen))
	}
}

func TestDispatcherRun(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	h := &echoHandler{}
	d := NewDispatcher(svc, h, nil)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	if err := svc.emit(models.Event{UserID: "u1", Kind: models.EventCommand, Payload: "/start"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	svc.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the events channel closed")
	}
	if len(h.seen) != 1 || h.seen[0].Payload != "/start" {
		t.Fatalf("unexpected handled events: %+v", h.seen)
	}
}

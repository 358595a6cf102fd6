package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/store"
	"github.com/BTreeMap/pyoots/internal/whatsapp"
)

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+7 (999) 123-45-67", "79991234567", false},
		{"79991234567", "79991234567", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := canonicalizePhone(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRecipient) {
				t.Errorf("canonicalizePhone(%q) error = %v, want ErrInvalidRecipient", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("canonicalizePhone(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestEventQueueStopped(t *testing.T) {
	q := newEventQueue("test")
	if err := q.emit(models.Event{UserID: "u1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	q.close()
	q.close()
	if err := q.emit(models.Event{UserID: "u1"}); !errors.Is(err, ErrServiceStopped) {
		t.Fatalf("expected ErrServiceStopped, got %v", err)
	}
	if evt, ok := <-q.Events(); !ok || evt.UserID != "u1" {
		t.Fatalf("expected buffered event before close, got %+v ok=%v", evt, ok)
	}
	if _, ok := <-q.Events(); ok {
		t.Fatal("expected closed channel")
	}
}

func TestDeactivatingSender(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	for _, id := range []string{"79990000001", "bad"} {
		if _, err := st.UpsertUser(ctx, id, "", testTime); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	sender := NewDeactivatingSender(svc, st)

	if err := sender.Send(ctx, models.Outbound{ChatID: "79990000001", Text: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := sender.Send(ctx, models.Outbound{ChatID: "bad", Text: "hi"}); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}

	active, err := st.ActiveUsers(ctx)
	if err != nil {
		t.Fatalf("ActiveUsers: %v", err)
	}
	if len(active) != 1 || active[0].ID != "79990000001" {
		t.Fatalf("expected only the reachable user active, got %+v", active)
	}
}

package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/store"
)

type failingInteractions struct{}

func (failingInteractions) AddInteraction(ctx context.Context, in *models.Interaction) error {
	return errors.New("disk full")
}

func TestRecord_AttachesToSession(t *testing.T) {
	s := store.NewInMemoryStore()
	log := NewInteractionLog(NewTracker(s), s)
	ctx := context.Background()

	sess := log.Record(ctx, Entry{UserID: "u1", Action: models.ActionCommand, Payload: "/start", Success: true, At: base})
	if sess == nil {
		t.Fatal("Record returned no session")
	}
	log.Record(ctx, Entry{UserID: "u1", Action: models.ActionButtonClick, Payload: "lunch", Success: true,
		Latency: 120 * time.Millisecond, At: base.Add(time.Minute)})
	log.Record(ctx, Entry{UserID: "u1", Action: models.ActionButtonClick, Payload: "dish_0", Success: true,
		At: base.Add(10 * time.Minute)})

	list, _ := s.ListInteractions(ctx, "u1")
	if len(list) != 3 {
		t.Fatalf("expected 3 interactions, got %d", len(list))
	}
	if list[0].SessionID != list[1].SessionID {
		t.Error("first two actions belong to the same session")
	}
	if list[2].SessionID == list[1].SessionID {
		t.Error("action after ten idle minutes belongs to a new session")
	}
	if list[1].LatencyMS == nil || *list[1].LatencyMS != 120 {
		t.Errorf("latency not stored: %+v", list[1].LatencyMS)
	}
	for i, in := range list {
		if in.SessionID == 0 {
			t.Errorf("interaction %d is orphaned", i)
		}
	}
}

func TestRecord_TruncatesPayload(t *testing.T) {
	s := store.NewInMemoryStore()
	log := NewInteractionLog(NewTracker(s), s)
	ctx := context.Background()

	long := strings.Repeat("щ", MaxPayloadRunes+50)
	log.Record(ctx, Entry{UserID: "u1", Action: models.ActionMessage, Payload: long, At: base})

	list, _ := s.ListInteractions(ctx, "u1")
	if n := utf8.RuneCountInString(list[0].Payload); n != MaxPayloadRunes {
		t.Errorf("payload has %d runes, want %d", n, MaxPayloadRunes)
	}
}

func TestRecord_StorageFailureIsSwallowed(t *testing.T) {
	s := store.NewInMemoryStore()
	log := NewInteractionLog(NewTracker(s), failingInteractions{})
	sess := log.Record(context.Background(), Entry{UserID: "u1", Action: models.ActionMessage, Payload: "hi", At: base})
	if sess == nil {
		t.Error("session should still be resolved when the insert fails")
	}
}

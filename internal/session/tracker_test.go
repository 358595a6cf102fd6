package session

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/store"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestTouch_FourMinutesApartIsOneSession(t *testing.T) {
	s := store.NewInMemoryStore()
	tr := NewTracker(s)
	ctx := context.Background()

	first, err := tr.Touch(ctx, "u1", base)
	if err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if first.Source != models.SessionSourceStart {
		t.Errorf("first session source = %q, want start", first.Source)
	}
	second, err := tr.Touch(ctx, "u1", base.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same session, got %d and %d", first.ID, second.ID)
	}
	sessions, _ := s.ListSessions(ctx, "u1")
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if !sessions[0].LastActivityAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("last activity = %v", sessions[0].LastActivityAt)
	}
}

func TestTouch_SixMinutesApartIsTwoSessions(t *testing.T) {
	s := store.NewInMemoryStore()
	tr := NewTracker(s)
	ctx := context.Background()

	tr.Touch(ctx, "u1", base)
	tr.Touch(ctx, "u1", base.Add(90*time.Second))
	second, err := tr.Touch(ctx, "u1", base.Add(90*time.Second+6*time.Minute))
	if err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if second.Source != models.SessionSourceContinuation {
		t.Errorf("second session source = %q, want continuation", second.Source)
	}

	sessions, _ := s.ListSessions(ctx, "u1")
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	first := sessions[0]
	if !first.Completed {
		t.Fatal("first session should be completed")
	}
	if first.EndedAt == nil || !first.EndedAt.Equal(base.Add(90*time.Second)) {
		t.Errorf("first session must end at its last activity, got %v", first.EndedAt)
	}
	if first.DurationSeconds != 90 {
		t.Errorf("duration = %d, want 90", first.DurationSeconds)
	}
	if sessions[1].Completed {
		t.Error("second session should still be open")
	}
}

func TestTouch_AfterCancelOpensContinuation(t *testing.T) {
	s := store.NewInMemoryStore()
	tr := NewTracker(s)
	ctx := context.Background()

	first, _ := tr.Touch(ctx, "u1", base)
	tr.Touch(ctx, "u1", base.Add(30*time.Second))
	if err := tr.Cancel(ctx, "u1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	closed, _ := s.GetSession(ctx, first.ID)
	if !closed.Completed || closed.DurationSeconds != 30 {
		t.Errorf("cancel must close immediately, got %+v", closed)
	}

	next, err := tr.Touch(ctx, "u1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if next.ID == first.ID || next.Source != models.SessionSourceContinuation {
		t.Errorf("expected new continuation session, got %+v", next)
	}
}

func TestCancel_WithoutSessionIsNoop(t *testing.T) {
	tr := NewTracker(store.NewInMemoryStore())
	if err := tr.Cancel(context.Background(), "nobody"); err != nil {
		t.Errorf("Cancel failed: %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	s := store.NewInMemoryStore()
	tr := NewTracker(s)
	ctx := context.Background()

	sess, _ := tr.Touch(ctx, "u1", base)
	tr.Touch(ctx, "u1", base.Add(2*time.Minute))
	if err := tr.Close(ctx, sess.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tr.Close(ctx, sess.ID); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	got, _ := s.GetSession(ctx, sess.ID)
	if got.DurationSeconds != 120 || !got.EndedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("unexpected closed session %+v", got)
	}
}

func TestWithTimeout(t *testing.T) {
	s := store.NewInMemoryStore()
	tr := NewTracker(s, WithTimeout(time.Minute))
	ctx := context.Background()
	a, _ := tr.Touch(ctx, "u1", base)
	b, _ := tr.Touch(ctx, "u1", base.Add(2*time.Minute))
	if a.ID == b.ID {
		t.Error("a one-minute timeout should split actions two minutes apart")
	}
}

func TestTouch_Monotonic(t *testing.T) {
	s := store.NewInMemoryStore()
	tr := NewTracker(s)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	now := base
	for i := 0; i < 200; i++ {
		now = now.Add(time.Duration(rng.IntN(12*60)) * time.Second)
		if _, err := tr.Touch(ctx, "u1", now); err != nil {
			t.Fatalf("Touch failed: %v", err)
		}
	}

	sessions, _ := s.ListSessions(ctx, "u1")
	for i, sess := range sessions {
		if sess.LastActivityAt.Before(sess.StartedAt) {
			t.Fatalf("session %d ends before it starts", i)
		}
		if i == 0 {
			continue
		}
		prev := sessions[i-1]
		if !prev.Completed || prev.EndedAt == nil {
			t.Fatalf("session %d left open behind a newer one", i-1)
		}
		gap := sess.StartedAt.Sub(*prev.EndedAt)
		if gap <= DefaultInactivityTimeout {
			t.Fatalf("gap between sessions %d and %d is %v, want more than the timeout", i-1, i, gap)
		}
	}
	open := 0
	for _, sess := range sessions {
		if !sess.Completed {
			open++
		}
	}
	if open != 1 {
		t.Errorf("expected exactly one open session, got %d", open)
	}
}

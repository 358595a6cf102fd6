package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/store"
)

func TestCheckIn_ScheduleIsIdempotentPerDay(t *testing.T) {
	s := store.NewInMemoryStore()
	ctx := context.Background()
	seedUsers(t, s, "u1", "u2")
	msk := time.FixedZone("MSK", 3*60*60)

	c := NewCheckIn(s, newRecordingSender(), msk)
	c.now = func() time.Time { return base }

	if _, err := c.Schedule(ctx); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	runner := store.NewJobRunner(s, time.Second)
	runner.RegisterHandler(JobKindDailyCheckin, c.HandleJob)
	if n := runner.RunDue(ctx); n != 2 {
		t.Fatalf("expected 2 check-ins delivered, got %d", n)
	}

	// A restart later the same day re-runs the cron tick.
	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	c.Schedule(ctx)
	if n := runner.RunDue(ctx); n != 0 {
		t.Errorf("same-day reschedule delivered %d more check-ins", n)
	}

	// The next day is a new occurrence.
	c.now = func() time.Time { return base.Add(24 * time.Hour) }
	c.Schedule(ctx)
	if n := runner.RunDue(ctx); n != 2 {
		t.Errorf("next day delivered %d check-ins, want 2", n)
	}
}

func TestCheckIn_HandleJobSendsMoodButtons(t *testing.T) {
	s := store.NewInMemoryStore()
	ctx := context.Background()
	s.UpsertUser(ctx, "u1", "Анна", base)

	sender := newRecordingSender()
	c := NewCheckIn(s, sender, time.UTC)
	if err := c.HandleJob(ctx, `{"user_id":"u1"}`); err != nil {
		t.Fatalf("HandleJob failed: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	want := []string{"mood_sad", "mood_neutral", "mood_happy"}
	if len(msg.Buttons) != len(want) {
		t.Fatalf("unexpected buttons %+v", msg.Buttons)
	}
	for i, tok := range want {
		if msg.Buttons[i].Token != tok {
			t.Errorf("button %d token = %q, want %q", i, msg.Buttons[i].Token, tok)
		}
	}
	if msg.Text == "" || msg.ChatID != "u1" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestCheckIn_HandleJobFailureIsReturned(t *testing.T) {
	c := NewCheckIn(store.NewInMemoryStore(), newRecordingSender("u1"), time.UTC)
	if err := c.HandleJob(context.Background(), `{"user_id":"u1"}`); err == nil {
		t.Error("expected send failure to surface so the runner retries")
	}
	if err := c.HandleJob(context.Background(), `not json`); err == nil {
		t.Error("expected payload error")
	}
}

func TestCheckIn_RecordMood(t *testing.T) {
	s := store.NewInMemoryStore()
	ctx := context.Background()
	c := NewCheckIn(s, newRecordingSender(), time.UTC)
	c.now = func() time.Time { return base }

	for _, m := range models.Moods {
		reply, err := c.RecordMood(ctx, "u1", m)
		if err != nil {
			t.Fatalf("RecordMood(%s) failed: %v", m, err)
		}
		if reply != MoodReply(m) || reply == "" {
			t.Errorf("unexpected reply for %s: %q", m, reply)
		}
	}
	if _, err := c.RecordMood(ctx, "u1", "furious"); !errors.Is(err, models.ErrInvalidMood) {
		t.Errorf("expected ErrInvalidMood, got %v", err)
	}
	st, _ := s.MoodStats(ctx, base.Add(-time.Hour))
	if st.Counts[models.MoodHappy] != 1 || st.ActiveUsers != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

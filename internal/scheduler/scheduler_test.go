package scheduler

import (
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("minutely", "* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("minutely", "* * * * *", func() {}); err == nil {
		t.Error("Expected error for duplicate job name")
	}
}

func TestSchedulerAddJob_Invalid(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("bad", "61 * * * *", func() {}); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

func TestSchedulerLocation(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	s := NewScheduler(WithLocation(loc))
	defer s.Stop()
	if err := s.AddJob("checkin", "0 1 * * *", func() {}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	next, ok := s.Next("checkin")
	if !ok {
		t.Fatal("Next returned not found")
	}
	local := next.In(loc)
	if local.Hour() != 1 || local.Minute() != 0 {
		t.Errorf("next run %v is not 01:00 MSK", local)
	}
}

func TestSchedulerDescriptor(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("broadcast", "@every 1m", func() {}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	next, _ := s.Next("broadcast")
	if d := time.Until(next); d <= 0 || d > time.Minute+time.Second {
		t.Errorf("unexpected next run in %v", d)
	}
	if _, ok := s.Next("missing"); ok {
		t.Error("Next should report unknown jobs")
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	fired := make(chan struct{}, 1)
	if err := s.AddJob("fast", "@every 1s", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
}

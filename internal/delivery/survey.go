package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

const (
	// DefaultReminderCooldown is the minimum time between two reminders to one user.
	DefaultReminderCooldown = 24 * time.Hour
	// DefaultReminderDelay spaces out consecutive reminder sends.
	DefaultReminderDelay = 500 * time.Millisecond
	// ReminderCooldownSlack absorbs cron firing jitter between two daily flushes.
	ReminderCooldownSlack = time.Minute

	reminderText = "Привет! 👋\n\n" +
		"Хочу напомнить, что ты еще не заполнил(а) анкету. " +
		"Это поможет мне давать более точные рекомендации и советы.\n\n" +
		"Пожалуйста, найди несколько минут, чтобы пройти опрос:\n%s"
)

// SurveyRepo is the storage the reminder needs.
type SurveyRepo interface {
	SurveyReminderCandidates(ctx context.Context, cutoff time.Time) ([]models.User, error)
	MarkSurveyReminded(ctx context.Context, userID string, at time.Time) error
}

// SurveyOpts holds reminder configuration.
type SurveyOpts struct {
	Cooldown time.Duration
	Delay    time.Duration
}

// SurveyOption configures a SurveyReminder.
type SurveyOption func(*SurveyOpts)

// WithCooldown overrides the reminder cooldown.
func WithCooldown(d time.Duration) SurveyOption {
	return func(o *SurveyOpts) { o.Cooldown = d }
}

// WithDelay overrides the pause between sends.
func WithDelay(d time.Duration) SurveyOption {
	return func(o *SurveyOpts) { o.Delay = d }
}

// SurveyReminder nudges users who have not completed the survey.
type SurveyReminder struct {
	repo      SurveyRepo
	sender    Sender
	surveyURL string
	cooldown  time.Duration
	delay     time.Duration
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewSurveyReminder creates a SurveyReminder linking to surveyURL.
func NewSurveyReminder(repo SurveyRepo, sender Sender, surveyURL string, opts ...SurveyOption) *SurveyReminder {
	cfg := SurveyOpts{Cooldown: DefaultReminderCooldown, Delay: DefaultReminderDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SurveyReminder{
		repo:      repo,
		sender:    sender,
		surveyURL: surveyURL,
		cooldown:  cfg.Cooldown,
		delay:     cfg.Delay,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Flush reminds every eligible user once. A user is marked reminded only after a
// successful send, so a failed send is retried on the next run. Every reminder of
// one flush is stamped with the flush start time.
func (s *SurveyReminder) Flush(ctx context.Context) (Report, error) {
	var rep Report
	now := s.now()
	users, err := s.repo.SurveyReminderCandidates(ctx, s.cutoff(now))
	if err != nil {
		return rep, fmt.Errorf("failed to load survey reminder candidates: %w", err)
	}
	slog.Info("SurveyReminder.Flush: candidates loaded", "count", len(users))

	for i, u := range users {
		if i > 0 && s.delay > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return rep, err
			}
		}
		rep.Attempted++
		link, err := SurveyLink(s.surveyURL, u.ID)
		if err != nil {
			rep.Failed++
			slog.Error("SurveyReminder.Flush: bad survey URL", "error", err)
			continue
		}
		if err := s.sender.Send(ctx, models.Outbound{ChatID: u.ID, Text: fmt.Sprintf(reminderText, link), Notice: true}); err != nil {
			rep.Failed++
			slog.Warn("SurveyReminder.Flush: send failed", "user_id", u.ID, "error", err)
			continue
		}
		if err := s.repo.MarkSurveyReminded(ctx, u.ID, now); err != nil {
			slog.Error("SurveyReminder.Flush: failed to record reminder", "user_id", u.ID, "error", err)
		}
	}
	return rep, nil
}

// cutoff is the latest reminder time that makes a user eligible again at now.
func (s *SurveyReminder) cutoff(now time.Time) time.Time {
	window := s.cooldown
	if window > ReminderCooldownSlack {
		window -= ReminderCooldownSlack
	}
	return now.Add(-window)
}

// SurveyLink returns the survey URL carrying the user's id.
func SurveyLink(base, userID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid survey URL %q: %w", base, err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

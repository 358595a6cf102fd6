// Package session groups a user's actions into sessions and keeps the interaction log.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

// DefaultInactivityTimeout closes a session after this much silence.
const DefaultInactivityTimeout = 5 * time.Minute

// Repo is the storage the tracker needs.
type Repo interface {
	LatestSession(ctx context.Context, userID string) (*models.Session, error)
	CreateSession(ctx context.Context, s *models.Session) error
	TouchSession(ctx context.Context, id int64, at time.Time) error
	CompleteSession(ctx context.Context, id int64, endedAt time.Time, durationSeconds int64) (bool, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
}

// Opts holds tracker configuration.
type Opts struct {
	Timeout time.Duration
}

// Option configures a Tracker.
type Option func(*Opts)

// WithTimeout overrides the inactivity timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// Tracker decides session boundaries. Touch must be called exactly once per inbound
// action, before the action is logged.
type Tracker struct {
	repo    Repo
	timeout time.Duration
}

// NewTracker creates a Tracker.
func NewTracker(repo Repo, opts ...Option) *Tracker {
	cfg := Opts{Timeout: DefaultInactivityTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Tracker{repo: repo, timeout: cfg.Timeout}
}

// Touch returns the session the action at now belongs to, opening a new one when the
// user has none open or the open one went idle for longer than the timeout.
func (t *Tracker) Touch(ctx context.Context, userID string, now time.Time) (*models.Session, error) {
	latest, err := t.repo.LatestSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest session: %w", err)
	}

	if latest != nil && !latest.Completed && now.Sub(latest.LastActivityAt) <= t.timeout {
		// Out-of-order timestamps never move activity backwards.
		if now.After(latest.LastActivityAt) {
			if err := t.repo.TouchSession(ctx, latest.ID, now); err != nil {
				return nil, fmt.Errorf("failed to touch session %d: %w", latest.ID, err)
			}
			latest.LastActivityAt = now
		}
		return latest, nil
	}

	source := models.SessionSourceStart
	if latest != nil {
		source = models.SessionSourceContinuation
		if !latest.Completed {
			if err := t.complete(ctx, latest); err != nil {
				return nil, err
			}
		}
	}

	start := now
	if latest != nil && latest.LastActivityAt.After(start) {
		start = latest.LastActivityAt
	}
	sess := &models.Session{
		UserID:         userID,
		StartedAt:      start,
		LastActivityAt: start,
		Source:         source,
	}
	if err := t.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	slog.Debug("Tracker.Touch: opened session", "user_id", userID, "session_id", sess.ID, "source", source)
	return sess, nil
}

// Close ends a session at its last activity. Closing a closed session is a no-op.
func (t *Tracker) Close(ctx context.Context, sessionID int64) error {
	sess, err := t.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}
	if sess.Completed {
		return nil
	}
	return t.complete(ctx, sess)
}

// Cancel closes the user's open session immediately, if there is one.
func (t *Tracker) Cancel(ctx context.Context, userID string) error {
	latest, err := t.repo.LatestSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load latest session: %w", err)
	}
	if latest == nil || latest.Completed {
		return nil
	}
	return t.complete(ctx, latest)
}

func (t *Tracker) complete(ctx context.Context, sess *models.Session) error {
	end := sess.LastActivityAt
	duration := int64(end.Sub(sess.StartedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}
	changed, err := t.repo.CompleteSession(ctx, sess.ID, end, duration)
	if err != nil {
		return fmt.Errorf("failed to close session %d: %w", sess.ID, err)
	}
	if changed {
		slog.Debug("Tracker.complete: closed session", "user_id", sess.UserID, "session_id", sess.ID, "duration_seconds", duration)
	}
	return nil
}

// Package store provides storage backends for the assistant.
//
// Three backends implement Store: an in-memory store for tests and DSN-less runs,
// SQLite (the default) and PostgreSQL. Both SQL backends share one implementation and
// differ only in placeholder syntax, migrations and job claiming.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// UserRepo persists chat users.
type UserRepo interface {
	// UpsertUser creates the user on first contact; later calls refresh the display
	// name (when non-empty), increment the interaction counter and reactivate the user.
	UpsertUser(ctx context.Context, id, displayName string, now time.Time) (*models.User, error)
	// GetUser returns models.ErrUserNotFound when the user does not exist.
	GetUser(ctx context.Context, id string) (*models.User, error)
	ActiveUsers(ctx context.Context) ([]models.User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
	UserStats(ctx context.Context, now time.Time) (models.UserStats, error)
}

// SessionRepo persists sessions. Boundary decisions belong to the session tracker.
type SessionRepo interface {
	// LatestSession returns the user's session with the newest start time, or nil.
	LatestSession(ctx context.Context, userID string) (*models.Session, error)
	CreateSession(ctx context.Context, s *models.Session) error
	TouchSession(ctx context.Context, id int64, at time.Time) error
	// CompleteSession closes an open session and reports whether it changed anything.
	CompleteSession(ctx context.Context, id int64, endedAt time.Time, durationSeconds int64) (bool, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
}

// InteractionRepo is the append-only interaction log.
type InteractionRepo interface {
	AddInteraction(ctx context.Context, in *models.Interaction) error
	ListInteractions(ctx context.Context, userID string) ([]models.Interaction, error)
}

// RatingRepo persists recipe ratings. Ratings are never deduplicated.
type RatingRepo interface {
	AddRating(ctx context.Context, r *models.Rating) error
	ListRatings(ctx context.Context, userID string) ([]models.Rating, error)
	RecipeStats(ctx context.Context) ([]models.RecipeStat, error)
}

// BroadcastRepo persists admin broadcasts.
type BroadcastRepo interface {
	CreateBroadcast(ctx context.Context, b *models.BroadcastMessage) error
	// DueBroadcasts returns unsent broadcasts scheduled at or before now.
	DueBroadcasts(ctx context.Context, now time.Time) ([]models.BroadcastMessage, error)
	// MarkBroadcastSent flips sent=false to true once; repeated calls are no-ops.
	MarkBroadcastSent(ctx context.Context, id int64, at time.Time) error
	GetBroadcast(ctx context.Context, id int64) (*models.BroadcastMessage, error)
}

// SurveyRepo tracks survey completion and reminders.
type SurveyRepo interface {
	// SurveyReminderCandidates returns active users with no survey row, or with an
	// uncompleted survey last reminded before cutoff (or never).
	SurveyReminderCandidates(ctx context.Context, cutoff time.Time) ([]models.User, error)
	MarkSurveyReminded(ctx context.Context, userID string, at time.Time) error
	// CompleteSurvey marks the survey completed; a completed survey is never reset.
	CompleteSurvey(ctx context.Context, userID string, at time.Time) error
	// GetSurveyStatus returns nil when the user has no survey row.
	GetSurveyStatus(ctx context.Context, userID string) (*models.SurveyStatus, error)
}

// MoodRepo persists daily check-in answers.
type MoodRepo interface {
	AddMoodCheck(ctx context.Context, m *models.MoodCheck) error
	MoodStats(ctx context.Context, since time.Time) (models.MoodStats, error)
}

// Store is the full persistence surface used by the assistant.
type Store interface {
	UserRepo
	SessionRepo
	InteractionRepo
	RatingRepo
	BroadcastRepo
	SurveyRepo
	MoodRepo
	JobRepo
	DedupRepo
	Close() error
}

// New opens the backend selected by the DSN: none means in-memory, a postgres
// connection string means PostgreSQL, anything else is a SQLite file path.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("store.New: no DSN configured, using in-memory store; data will not survive restarts")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(cfg.DSN) {
	case "postgres":
		s, err := NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := NewSQLiteStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	}
}

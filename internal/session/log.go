package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

// MaxPayloadRunes bounds the stored payload of an interaction.
const MaxPayloadRunes = 500

// InteractionRepo appends interaction records.
type InteractionRepo interface {
	AddInteraction(ctx context.Context, in *models.Interaction) error
}

// Entry describes one action to record.
type Entry struct {
	UserID  string
	Action  models.ActionType
	Payload string
	Success bool
	Latency time.Duration
	At      time.Time
}

// InteractionLog records user actions, each attached to the session open at the time.
type InteractionLog struct {
	tracker *Tracker
	repo    InteractionRepo
}

// NewInteractionLog creates an InteractionLog.
func NewInteractionLog(tracker *Tracker, repo InteractionRepo) *InteractionLog {
	return &InteractionLog{tracker: tracker, repo: repo}
}

// Record touches the user's session and appends the interaction. It is best-effort:
// failures are logged and never returned to the caller. The session is returned when
// it could be resolved.
func (l *InteractionLog) Record(ctx context.Context, e Entry) *models.Session {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	sess, err := l.tracker.Touch(ctx, e.UserID, at)
	if err != nil {
		slog.Error("InteractionLog.Record: session touch failed", "user_id", e.UserID, "action", e.Action, "error", err)
		return nil
	}

	in := &models.Interaction{
		UserID:    e.UserID,
		SessionID: sess.ID,
		Action:    e.Action,
		Payload:   truncate(e.Payload, MaxPayloadRunes),
		Success:   e.Success,
		CreatedAt: at,
	}
	if e.Latency > 0 {
		ms := e.Latency.Milliseconds()
		in.LatencyMS = &ms
	}
	if err := l.repo.AddInteraction(ctx, in); err != nil {
		slog.Error("InteractionLog.Record: insert failed", "user_id", e.UserID, "session_id", sess.ID, "action", e.Action, "error", err)
	}
	return sess
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

// BroadcastRepo is the storage the broadcaster needs.
type BroadcastRepo interface {
	DueBroadcasts(ctx context.Context, now time.Time) ([]models.BroadcastMessage, error)
	MarkBroadcastSent(ctx context.Context, id int64, at time.Time) error
	ActiveUsers(ctx context.Context) ([]models.User, error)
}

// Broadcaster flushes due admin broadcasts to every active user.
//
// A broadcast is marked sent after one pass over its recipients regardless of
// individual failures: delivery is at most once per batch, not per recipient.
type Broadcaster struct {
	repo   BroadcastRepo
	sender Sender
	now    func() time.Time
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(repo BroadcastRepo, sender Sender) *Broadcaster {
	return &Broadcaster{repo: repo, sender: sender, now: time.Now}
}

// Flush sends every due broadcast and marks each sent.
func (b *Broadcaster) Flush(ctx context.Context) (Report, error) {
	var total Report
	due, err := b.repo.DueBroadcasts(ctx, b.now())
	if err != nil {
		return total, fmt.Errorf("failed to load due broadcasts: %w", err)
	}
	if len(due) == 0 {
		return total, nil
	}

	for _, msg := range due {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		// Fresh snapshot per broadcast.
		recipients, err := b.repo.ActiveUsers(ctx)
		if err != nil {
			return total, fmt.Errorf("failed to load active users: %w", err)
		}
		rep := SendBroadcast(ctx, b.sender, msg, recipients)
		total.Add(rep)

		if err := b.repo.MarkBroadcastSent(ctx, msg.ID, b.now()); err != nil {
			slog.Error("Broadcaster.Flush: failed to mark broadcast sent", "broadcast_id", msg.ID, "error", err)
			continue
		}
		slog.Info("Broadcaster.Flush: broadcast sent", "broadcast_id", msg.ID,
			"recipients", rep.Attempted, "failed", rep.Failed)
	}
	return total, nil
}

// SendBroadcast delivers msg to each recipient. A failed send is logged and does not
// stop the remaining recipients.
func SendBroadcast(ctx context.Context, sender Sender, msg models.BroadcastMessage, recipients []models.User) Report {
	var rep Report
	for _, u := range recipients {
		rep.Attempted++
		if err := sender.Send(ctx, models.Outbound{ChatID: u.ID, Text: msg.Text, Notice: true}); err != nil {
			rep.Failed++
			slog.Warn("SendBroadcast: send failed", "broadcast_id", msg.ID, "user_id", u.ID, "error", err)
		}
	}
	return rep
}

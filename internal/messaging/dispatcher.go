package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/store"
)

// Handler turns one inbound event into the replies to send.
type Handler interface {
	Handle(ctx context.Context, evt models.Event) []models.Outbound
}

// Dispatcher is the single inbound event loop: it reads a service's events one at a
// time, drops redelivered platform messages, runs the handler and sends its replies.
type Dispatcher struct {
	svc     Service
	handler Handler
	dedup   store.DedupRepo
}

// NewDispatcher creates a Dispatcher. dedup may be nil.
func NewDispatcher(svc Service, handler Handler, dedup store.DedupRepo) *Dispatcher {
	return &Dispatcher{svc: svc, handler: handler, dedup: dedup}
}

// Run processes events until the channel closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher.Run: processing inbound events")
	defer slog.Info("Dispatcher.Run: stopped")
	for {
		select {
		case evt, ok := <-d.svc.Events():
			if !ok {
				return
			}
			d.Dispatch(ctx, evt)
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch handles one event and returns the number of replies delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, evt models.Event) int {
	if !d.firstDelivery(ctx, evt) {
		slog.Debug("Dispatcher.Dispatch: duplicate message skipped", "user_id", evt.UserID, "message_id", evt.MessageID)
		return 0
	}

	replies := d.handler.Handle(ctx, evt)
	sent := 0
	for _, out := range replies {
		if out.ChatID == "" {
			out.ChatID = evt.UserID
		}
		if err := d.svc.Send(ctx, out); err != nil {
			slog.Warn("Dispatcher.Dispatch: reply failed", "user_id", out.ChatID, "error", err)
			continue
		}
		sent++
	}

	if d.dedup != nil && evt.MessageID != "" {
		if err := d.dedup.MarkProcessed(ctx, evt.MessageID); err != nil {
			slog.Error("Dispatcher.Dispatch: failed to mark message processed", "message_id", evt.MessageID, "error", err)
		}
	}
	return sent
}

// firstDelivery records the platform message id. Storage errors let the event through.
func (d *Dispatcher) firstDelivery(ctx context.Context, evt models.Event) bool {
	if d.dedup == nil || evt.MessageID == "" {
		return true
	}
	fresh, err := d.dedup.RecordInbound(ctx, evt.MessageID, evt.UserID)
	if err != nil {
		slog.Error("Dispatcher.firstDelivery: dedup record failed", "message_id", evt.MessageID, "error", err)
		return true
	}
	return fresh
}

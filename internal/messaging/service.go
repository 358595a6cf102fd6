// Package messaging adapts chat transports to the transport-neutral events and
// outbound messages the bot works with.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer of the inbound event channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an inbound event waits for buffer space.
	DefaultChannelTimeout = 1 * time.Second
	// MinPhoneDigits is the shortest accepted phone number.
	MinPhoneDigits = 6
)

var (
	// ErrServiceStopped is returned by a service after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrInvalidRecipient marks a recipient that can never be delivered to.
	ErrInvalidRecipient = errors.New("invalid recipient")

	phoneNumberRegex = regexp.MustCompile(`\D`)
)

// Service defines a pluggable chat transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient returns the canonical recipient id or an error
	// wrapping ErrInvalidRecipient.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// Send renders and delivers one outbound message.
	Send(ctx context.Context, msg models.Outbound) error

	// Start begins receiving inbound messages.
	Start(ctx context.Context) error

	// Stop releases the transport and closes Events.
	Stop() error

	// Events returns inbound user actions in arrival order.
	Events() <-chan models.Event
}

// canonicalizePhone strips every non-digit and checks the remaining length.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", ErrInvalidRecipient, recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("%w: %q is too short (minimum %d digits)", ErrInvalidRecipient, canonical, MinPhoneDigits)
	}
	if canonical != recipient {
		slog.Debug("messaging.canonicalizePhone: recipient canonicalized", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// eventQueue is the inbound channel shared by the transports. emit holds the read
// lock while sending so close never races a pending send.
type eventQueue struct {
	name    string
	events  chan models.Event
	mu      sync.RWMutex
	stopped bool
}

func newEventQueue(name string) *eventQueue {
	return &eventQueue{name: name, events: make(chan models.Event, DefaultChannelBufferSize)}
}

// emit queues evt, dropping it when the buffer stays full past DefaultChannelTimeout.
func (q *eventQueue) emit(evt models.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrServiceStopped
	}
	select {
	case q.events <- evt:
		slog.Debug(q.name+".emit: event queued", "user_id", evt.UserID, "kind", evt.Kind)
		return nil
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(q.name+".emit: events channel blocked, dropping message", "user_id", evt.UserID, "timeout", DefaultChannelTimeout)
		return fmt.Errorf("events channel full")
	}
}

func (q *eventQueue) isStopped() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.stopped
}

// close marks the queue stopped and closes the channel once.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	close(q.events)
}

// Events returns the inbound channel.
func (q *eventQueue) Events() <-chan models.Event {
	return q.events
}

// UserDeactivator marks users unreachable.
type UserDeactivator interface {
	SetUserActive(ctx context.Context, id string, active bool) error
}

// DeactivatingSender wraps a Service and deactivates users whose recipient id is
// permanently invalid, so scheduled deliveries stop selecting them.
type DeactivatingSender struct {
	svc   Service
	users UserDeactivator
}

// NewDeactivatingSender creates a DeactivatingSender.
func NewDeactivatingSender(svc Service, users UserDeactivator) *DeactivatingSender {
	return &DeactivatingSender{svc: svc, users: users}
}

// Send delivers msg through the wrapped service.
func (d *DeactivatingSender) Send(ctx context.Context, msg models.Outbound) error {
	err := d.svc.Send(ctx, msg)
	if err != nil && errors.Is(err, ErrInvalidRecipient) {
		if derr := d.users.SetUserActive(ctx, msg.ChatID, false); derr != nil {
			slog.Error("DeactivatingSender.Send: failed to deactivate user", "user_id", msg.ChatID, "error", derr)
		} else {
			slog.Warn("DeactivatingSender.Send: user deactivated", "user_id", msg.ChatID, "error", err)
		}
	}
	return err
}

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio REST API. Inbound messages
// arrive through the HTTP webhook, which calls Deliver.
type TwilioService struct {
	*eventQueue
	client   twiliowhatsapp.TwilioWhatsAppSender
	keyboard *Keyboard
}

// NewTwilioService wraps client.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{
		eventQueue: newEventQueue("TwilioService"),
		client:     client,
		keyboard:   NewKeyboard(),
	}
}

// ValidateAndCanonicalizeRecipient accepts plain or whatsapp:-prefixed numbers.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(twiliowhatsapp.StripAddress(recipient))
}

// Start is a no-op; the webhook drives inbound traffic.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the events channel.
func (s *TwilioService) Stop() error {
	s.close()
	return nil
}

// Send renders msg with a numbered keyboard and sends it through Twilio.
func (s *TwilioService) Send(ctx context.Context, msg models.Outbound) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	to, err := s.ValidateAndCanonicalizeRecipient(msg.ChatID)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, to, s.keyboard.Render(msg)); err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}
	return nil
}

// Deliver turns one webhook message into an Event.
func (s *TwilioService) Deliver(from, body, messageSID string, at time.Time) error {
	userID, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		return err
	}
	if body == "" {
		return models.ErrEmptyMessage
	}
	evt := s.keyboard.Event(userID, "", messageSID, body, at)
	if err := s.emit(evt); err != nil {
		return err
	}
	slog.Debug("TwilioService.Deliver: inbound message queued", "user_id", userID, "kind", evt.Kind)
	return nil
}

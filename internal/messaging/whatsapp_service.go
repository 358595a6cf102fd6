package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service on top of the whatsmeow client.
type WhatsAppService struct {
	*eventQueue
	client   whatsapp.WhatsAppSender
	source   whatsapp.EventSource
	keyboard *Keyboard
}

// NewWhatsAppService wraps client. Inbound messages are only received when client
// can also deliver events (the real whatsapp.Client does, the mock does not).
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	s := &WhatsAppService{
		eventQueue: newEventQueue("WhatsAppService"),
		client:     client,
		keyboard:   NewKeyboard(),
	}
	if src, ok := client.(whatsapp.EventSource); ok {
		s.source = src
	} else {
		slog.Debug("WhatsAppService created without event source (likely mock)")
	}
	return s
}

// ValidateAndCanonicalizeRecipient reduces a phone number to its digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.source == nil {
		slog.Debug("WhatsAppService.Start: no event source, inbound disabled")
		return nil
	}
	s.source.AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService.Start: event handler registered")
	return nil
}

// Stop closes the events channel.
func (s *WhatsAppService) Stop() error {
	s.close()
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

// Send renders msg with a numbered keyboard and sends it as one text message.
func (s *WhatsAppService) Send(ctx context.Context, msg models.Outbound) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	to, err := s.ValidateAndCanonicalizeRecipient(msg.ChatID)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, to, s.keyboard.Render(msg)); err != nil {
		return fmt.Errorf("whatsapp send failed: %w", err)
	}
	slog.Debug("WhatsAppService.Send: message sent", "to", to, "buttons", len(msg.Buttons))
	return nil
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Connected:
		slog.Info("WhatsAppService: connected")
	case *events.Disconnected:
		slog.Warn("WhatsAppService: disconnected")
	}
}

// handleIncomingMessage converts a text message from another user into an Event.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.User)
		return
	}

	at := evt.Info.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	e := s.keyboard.Event(evt.Info.Sender.User, evt.Info.PushName, string(evt.Info.ID), text, at)
	if err := s.emit(e); err != nil {
		slog.Warn("WhatsAppService.handleIncomingMessage: event dropped", "user_id", e.UserID, "error", err)
	}
}

package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

// Keyboard emulates buttons on text-only transports. Outbound buttons are rendered as
// a numbered list and remembered per chat, so a reply with a number or an exact label
// resolves back to the button token.
type Keyboard struct {
	mu    sync.Mutex
	shown map[string][]models.Button
}

// NewKeyboard creates an empty Keyboard.
func NewKeyboard() *Keyboard {
	return &Keyboard{shown: make(map[string][]models.Button)}
}

// Render returns the message text with its buttons appended as a numbered list. A
// reply without buttons expects free text and clears the chat's keyboard; a notice
// without buttons leaves it in place.
func (k *Keyboard) Render(msg models.Outbound) string {
	if len(msg.Buttons) == 0 {
		if !msg.Notice {
			k.mu.Lock()
			delete(k.shown, msg.ChatID)
			k.mu.Unlock()
		}
		return msg.Text
	}
	k.mu.Lock()
	k.shown[msg.ChatID] = append([]models.Button(nil), msg.Buttons...)
	k.mu.Unlock()

	var b strings.Builder
	b.WriteString(msg.Text)
	b.WriteString("\n")
	for i, btn := range msg.Buttons {
		fmt.Fprintf(&b, "\n%d. %s", i+1, btn.Label)
	}
	return b.String()
}

// Event classifies a text reply from chatID into a command, a button press or free text.
func (k *Keyboard) Event(chatID, displayName, messageID, text string, at time.Time) models.Event {
	evt := models.Event{
		UserID:      chatID,
		DisplayName: displayName,
		MessageID:   messageID,
		Time:        at,
	}
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		evt.Kind = models.EventCommand
		evt.Payload = strings.ToLower(strings.Fields(text)[0])
		return evt
	}
	if token, ok := k.resolve(chatID, text); ok {
		evt.Kind = models.EventButton
		evt.Payload = token
		return evt
	}
	evt.Kind = models.EventText
	evt.Payload = text
	return evt
}

func (k *Keyboard) resolve(chatID, text string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	buttons := k.shown[chatID]
	if len(buttons) == 0 || text == "" {
		return "", false
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(text, ".")); err == nil {
		if n >= 1 && n <= len(buttons) {
			return buttons[n-1].Token, true
		}
		return "", false
	}
	for _, btn := range buttons {
		if strings.EqualFold(btn.Label, text) {
			return btn.Token, true
		}
	}
	return "", false
}

package bot

import (
	"sync"
	"time"

	"github.com/BTreeMap/pyoots/internal/navigation"
)

// Mode is what the bot expects from a user's next free-text message.
type Mode int

const (
	// ModeMenu routes free text to the question answerer.
	ModeMenu Mode = iota
	// ModeAwaitingQuestion follows the "ask a question" button.
	ModeAwaitingQuestion
	// ModeAwaitingProduct follows the "check a product" button.
	ModeAwaitingProduct
	// ModeComposeBroadcastText waits for an admin's broadcast text.
	ModeComposeBroadcastText
	// ModeComposeBroadcastTime waits for the broadcast delivery time.
	ModeComposeBroadcastTime
)

func (m Mode) String() string {
	switch m {
	case ModeMenu:
		return "menu"
	case ModeAwaitingQuestion:
		return "awaiting_question"
	case ModeAwaitingProduct:
		return "awaiting_product"
	case ModeComposeBroadcastText:
		return "compose_broadcast_text"
	case ModeComposeBroadcastTime:
		return "compose_broadcast_time"
	default:
		return "unknown"
	}
}

// Conversation is one user's in-process chat state.
type Conversation struct {
	Mode  Mode
	Nav   navigation.Context
	draft string
}

func (c *Conversation) reset() {
	*c = Conversation{}
}

func (c *Conversation) composing() bool {
	return c.Mode == ModeComposeBroadcastText || c.Mode == ModeComposeBroadcastTime
}

// conversations holds every user's Conversation. An entry is dropped on /cancel or
// once it has been idle for longer than the bot's conversation TTL.
type conversations struct {
	mu       sync.Mutex
	byKey    map[string]*Conversation
	lastSeen map[string]time.Time
}

func newConversations() *conversations {
	return &conversations{
		byKey:    make(map[string]*Conversation),
		lastSeen: make(map[string]time.Time),
	}
}

// get returns the user's conversation, creating it if needed, and marks it seen at now.
func (c *conversations) get(userID string, now time.Time) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.byKey[userID]
	if !ok {
		conv = &Conversation{}
		c.byKey[userID] = conv
	}
	c.lastSeen[userID] = now
	return conv
}

// peek returns a copy of the user's conversation without creating one.
func (c *conversations) peek(userID string) Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.byKey[userID]; ok {
		return *conv
	}
	return Conversation{}
}

func (c *conversations) drop(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byKey, userID)
	delete(c.lastSeen, userID)
}

// evictBefore drops every conversation last seen before cutoff and returns how many went.
func (c *conversations) evictBefore(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, seen := range c.lastSeen {
		if seen.Before(cutoff) {
			delete(c.byKey, id)
			delete(c.lastSeen, id)
			n++
		}
	}
	return n
}

func (c *conversations) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byKey)
}

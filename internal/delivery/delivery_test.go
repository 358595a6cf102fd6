package delivery

import (
	"context"
	"errors"
	"sync"

	"github.com/BTreeMap/pyoots/internal/models"
)

// recordingSender records every send and fails for the configured chats.
type recordingSender struct {
	mu     sync.Mutex
	sent   []models.Outbound
	failOn map[string]bool
}

func newRecordingSender(failOn ...string) *recordingSender {
	s := &recordingSender{failOn: make(map[string]bool)}
	for _, id := range failOn {
		s.failOn[id] = true
	}
	return s
}

func (s *recordingSender) Send(ctx context.Context, msg models.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[msg.ChatID] {
		return errors.New("blocked by user")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.ChatID)
	}
	return out
}

// Package transcript keeps the append-only message log of conversations.
// The log feeds the generator's recent-history context and the
// conversation summary; slot values never come from it.
package transcript

import (
	"context"
	"sync"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// Memory is an in-process transcript. Contents are lost on exit.
type Memory struct {
	mu   sync.RWMutex
	logs map[string][]core.Message
}

// NewMemory creates an empty in-process transcript.
func NewMemory() *Memory {
	return &Memory{logs: map[string][]core.Message{}}
}

func key(userID, conversationID string) string {
	return userID + "\x00" + conversationID
}

// Append implements memory.Transcript.
func (m *Memory) Append(ctx context.Context, userID, conversationID string, msgs ...core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(userID, conversationID)
	m.logs[k] = append(m.logs[k], msgs...)
	return nil
}

// Load implements memory.Transcript.
func (m *Memory) Load(ctx context.Context, userID, conversationID string) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.logs[key(userID, conversationID)]
	out := make([]core.Message, len(log))
	copy(out, log)
	return out, nil
}

// Count implements memory.Transcript.
func (m *Memory) Count(ctx context.Context, userID, conversationID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs[key(userID, conversationID)]), nil
}

var _ memory.Transcript = (*Memory)(nil)

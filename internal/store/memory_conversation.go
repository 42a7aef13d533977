package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryConversationStore is the reference in-memory ConversationStore
// implementation. Messages are kept in append order per agent; turn
// numbers, when populated, are monotonic within an agent (enforced by
// callers, not this store).
type MemoryConversationStore struct {
	mu            sync.RWMutex
	byAgent       map[string][]*Message
}

var _ ConversationStore = (*MemoryConversationStore)(nil)

// NewMemoryConversationStore creates an empty in-memory conversation store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{byAgent: make(map[string][]*Message)}
}

func (s *MemoryConversationStore) Append(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.byAgent[msg.AgentID] = append(s.byAgent[msg.AgentID], msg.Clone())
	return nil
}

func (s *MemoryConversationStore) GetConversation(ctx context.Context, agentID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneMessages(s.byAgent[agentID]), nil
}

func (s *MemoryConversationStore) GetLastN(ctx context.Context, agentID string, n int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.byAgent[agentID]
	if n <= 0 || n >= len(msgs) {
		return cloneMessages(msgs), nil
	}
	return cloneMessages(msgs[len(msgs)-n:]), nil
}

func (s *MemoryConversationStore) GetByTurnRange(ctx context.Context, agentID string, startTurn, endTurn int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Message, 0)
	for _, m := range s.byAgent[agentID] {
		if !m.HasTurn {
			continue
		}
		if m.Turn >= startTurn && m.Turn <= endTurn {
			result = append(result, m.Clone())
		}
	}
	return result, nil
}

func (s *MemoryConversationStore) GetMessageCount(ctx context.Context, agentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byAgent[agentID]), nil
}

func (s *MemoryConversationStore) DeleteConversation(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byAgent, agentID)
	return nil
}

func cloneMessages(msgs []*Message) []*Message {
	result := make([]*Message, len(msgs))
	for i, m := range msgs {
		result[i] = m.Clone()
	}
	return result
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/routa-dev/routa/internal/routaerr"
)

// MemoryAgentStore is the reference in-memory AgentStore implementation.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

var _ AgentStore = (*MemoryAgentStore)(nil)

// NewMemoryAgentStore creates an empty in-memory agent store.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{agents: make(map[string]*Agent)}
}

func (s *MemoryAgentStore) Save(ctx context.Context, agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	s.agents[agent.ID] = agent.Clone()
	return nil
}

func (s *MemoryAgentStore) Get(ctx context.Context, id string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, routaerr.NotFound("agent", id)
	}
	return agent.Clone(), nil
}

func (s *MemoryAgentStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Agent, 0)
	for _, a := range s.agents {
		if a.WorkspaceID == workspaceID {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (s *MemoryAgentStore) ListByParent(ctx context.Context, parentID string) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Agent, 0)
	for _, a := range s.agents {
		if a.ParentID == parentID {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (s *MemoryAgentStore) ListByRole(ctx context.Context, workspaceID string, role AgentRole) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Agent, 0)
	for _, a := range s.agents {
		if a.WorkspaceID == workspaceID && a.Role == role {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (s *MemoryAgentStore) ListByStatus(ctx context.Context, workspaceID string, status AgentStatus) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Agent, 0)
	for _, a := range s.agents {
		if a.WorkspaceID == workspaceID && a.Status == status {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

func (s *MemoryAgentStore) UpdateStatus(ctx context.Context, id string, status AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok {
		return routaerr.NotFound("agent", id)
	}
	agent.Status = status
	agent.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryAgentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[id]; !ok {
		return routaerr.NotFound("agent", id)
	}
	delete(s.agents, id)
	return nil
}

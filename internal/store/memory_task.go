package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/routa-dev/routa/internal/routaerr"
)

// MemoryTaskStore is the reference in-memory TaskStore implementation.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*Task)}
}

func (s *MemoryTaskStore) Save(ctx context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if task.ID == "" {
		task.ID = uuid.New().String()
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryTaskStore) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, routaerr.NotFound("task", id)
	}
	return task.Clone(), nil
}

func (s *MemoryTaskStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Task, 0)
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID {
			result = append(result, t.Clone())
		}
	}
	return result, nil
}

func (s *MemoryTaskStore) ListByStatus(ctx context.Context, workspaceID string, status TaskStatus) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Task, 0)
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID && t.Status == status {
			result = append(result, t.Clone())
		}
	}
	return result, nil
}

func (s *MemoryTaskStore) ListByAssignee(ctx context.Context, agentID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Task, 0)
	for _, t := range s.tasks {
		if t.AssignedTo == agentID {
			result = append(result, t.Clone())
		}
	}
	return result, nil
}

// FindReadyTasks returns every task in the workspace whose own status is
// ready (PENDING/NEEDS_FIX) and whose dependencies are all COMPLETED.
// Caller holds no lock across this call, so the dependency lookup is
// performed against the same locked snapshot.
func (s *MemoryTaskStore) FindReadyTasks(ctx context.Context, workspaceID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Task, 0)
	for _, t := range s.tasks {
		if t.WorkspaceID != workspaceID || !t.IsReady() {
			continue
		}
		if s.allDepsCompletedLocked(t.Dependencies) {
			result = append(result, t.Clone())
		}
	}
	return result, nil
}

func (s *MemoryTaskStore) allDepsCompletedLocked(deps []string) bool {
	for _, depID := range deps {
		dep, ok := s.tasks[depID]
		if !ok || dep.Status != TaskStatusCompleted {
			return false
		}
	}
	return true
}

func (s *MemoryTaskStore) UpdateStatus(ctx context.Context, id string, status TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return routaerr.NotFound("task", id)
	}
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryTaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return routaerr.NotFound("task", id)
	}
	delete(s.tasks, id)
	return nil
}

package store

import "context"

// AgentStore persists Agent entities. Implementations must be safe for
// concurrent use and must return deep copies from every read so callers
// cannot mutate stored state through a returned reference.
type AgentStore interface {
	Save(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Agent, error)
	ListByParent(ctx context.Context, parentID string) ([]*Agent, error)
	ListByRole(ctx context.Context, workspaceID string, role AgentRole) ([]*Agent, error)
	ListByStatus(ctx context.Context, workspaceID string, status AgentStatus) ([]*Agent, error)
	UpdateStatus(ctx context.Context, id string, status AgentStatus) error
	Delete(ctx context.Context, id string) error
}

// TaskStore persists Task entities, including the readiness query the
// scheduler depends on.
type TaskStore interface {
	Save(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Task, error)
	ListByStatus(ctx context.Context, workspaceID string, status TaskStatus) ([]*Task, error)
	ListByAssignee(ctx context.Context, agentID string) ([]*Task, error)
	// FindReadyTasks returns every task in the workspace whose status is
	// PENDING or NEEDS_FIX and whose dependencies are all COMPLETED.
	FindReadyTasks(ctx context.Context, workspaceID string) ([]*Task, error)
	UpdateStatus(ctx context.Context, id string, status TaskStatus) error
	Delete(ctx context.Context, id string) error
}

// ConversationStore persists per-agent message history, append-ordered.
type ConversationStore interface {
	Append(ctx context.Context, msg *Message) error
	GetConversation(ctx context.Context, agentID string) ([]*Message, error)
	GetLastN(ctx context.Context, agentID string, n int) ([]*Message, error)
	GetByTurnRange(ctx context.Context, agentID string, startTurn, endTurn int) ([]*Message, error)
	GetMessageCount(ctx context.Context, agentID string) (int, error)
	DeleteConversation(ctx context.Context, agentID string) error
}

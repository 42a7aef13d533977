// Package store defines the data-store contracts for agents, tasks, and
// conversations, and ships an in-memory reference implementation.
// File-system- or database-backed stores are external collaborators; only
// the contracts here are load-bearing for the engine.
package store

import "time"

// AgentRole is one of the three cooperating roles.
type AgentRole string

const (
	RoleRouta   AgentRole = "ROUTA"
	RoleCrafter AgentRole = "CRAFTER"
	RoleGate    AgentRole = "GATE"
)

// ModelTier selects the weight class of model backing an agent.
type ModelTier string

const (
	ModelTierSmart ModelTier = "SMART"
	ModelTierFast  ModelTier = "FAST"
)

// AgentStatus is the agent lifecycle state. Transitions form a DAG:
// PENDING->ACTIVE->COMPLETED, any->ERROR, COMPLETED->ACTIVE (re-wake).
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "PENDING"
	AgentStatusIdle      AgentStatus = "IDLE"
	AgentStatusActive    AgentStatus = "ACTIVE"
	AgentStatusCompleted AgentStatus = "COMPLETED"
	AgentStatusError     AgentStatus = "ERROR"
)

// Agent is a participant in orchestration.
type Agent struct {
	ID          string
	Name        string
	Role        AgentRole
	WorkspaceID string
	ParentID    string // empty for ROUTA
	ModelTier   ModelTier
	Status      AgentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy so callers never mutate stored state through a
// returned reference.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// TaskStatus is the task lifecycle state.
type TaskStatus string

const (
	TaskStatusPending        TaskStatus = "PENDING"
	TaskStatusInProgress     TaskStatus = "IN_PROGRESS"
	TaskStatusReviewRequired TaskStatus = "REVIEW_REQUIRED"
	TaskStatusCompleted      TaskStatus = "COMPLETED"
	TaskStatusNeedsFix       TaskStatus = "NEEDS_FIX"
)

// Task is a unit of work produced by the task parser and driven through the
// pipeline.
type Task struct {
	ID                   string
	Title                string
	Objective            string
	Scope                []string
	AcceptanceCriteria   []string
	VerificationCommands []string
	Dependencies         []string
	Status               TaskStatus
	WorkspaceID          string
	AssignedTo           string // empty when unassigned
	CompletionSummary    string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Clone returns a deep copy of the task, including its slices.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Scope = append([]string(nil), t.Scope...)
	cp.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	cp.VerificationCommands = append([]string(nil), t.VerificationCommands...)
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	return &cp
}

// IsReady reports whether the task's own status allows it to be picked up.
// Dependency satisfaction is evaluated by the store (it needs to look up
// sibling tasks), not by this method.
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusNeedsFix
}

// MessageRole distinguishes conversation turns.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "USER"
	MessageRoleAssistant MessageRole = "ASSISTANT"
	MessageRoleTool      MessageRole = "TOOL"
)

// Message is one turn in an agent's conversation.
type Message struct {
	ID        string
	AgentID   string
	Role      MessageRole
	Content   string
	Turn      int // meaningful only when HasTurn is set
	HasTurn   bool
	ToolName  string
	Timestamp time.Time
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

// Package coordinator owns per-workspace coordination state and builds the
// context a provider turn actually sees: the role system prompt, recent
// conversation, and a task summary. It is the single writer of phase
// transitions; other components call into it rather than mutating stores
// directly.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/routaerr"
	"github.com/routa-dev/routa/internal/store"
	"github.com/routa-dev/routa/internal/sysprompt"
)

// Phase is the coordination state machine's current phase.
type Phase string

const (
	PhasePlanning     Phase = "PLANNING"
	PhaseReady        Phase = "READY"
	PhaseExecuting    Phase = "EXECUTING"
	PhaseWaveComplete Phase = "WAVE_COMPLETE"
	PhaseVerifying    Phase = "VERIFYING"
	PhaseCompleted    Phase = "COMPLETED"
	PhaseError        Phase = "ERROR"
	// The remaining phases are transient progress signals emitted along a
	// pipeline run; they are never stored on the coordination state, only
	// delivered through OnPhaseChange.
	PhaseInitializing          Phase = "INITIALIZING"
	PhasePlanReady             Phase = "PLAN_READY"
	PhaseTasksRegistered       Phase = "TASKS_REGISTERED"
	PhaseVerificationCompleted Phase = "VERIFICATION_COMPLETED"
	PhaseNeedsFix              Phase = "NEEDS_FIX"
	PhaseMaxWavesReached       Phase = "MAX_WAVES_REACHED"
)

// Persisted reports whether p belongs to CoordinationState's phase set, as
// opposed to being a callback-only progress signal.
func (p Phase) Persisted() bool {
	switch p {
	case PhasePlanning, PhaseReady, PhaseExecuting, PhaseWaveComplete, PhaseVerifying, PhaseCompleted, PhaseError:
		return true
	}
	return false
}

// State is the per-workspace coordination record.
type State struct {
	WorkspaceID string
	Phase       Phase
	RoutaAgentID string
	GateAgentID  string
	WaveNumber  int
}

// Coordinator owns CoordinationState and builds the context a provider turn
// is given. It does not itself drive the pipeline, that is the
// orchestrator's job, but the pipeline calls back into it at each phase
// transition.
type Coordinator struct {
	agents        store.AgentStore
	tasks         store.TaskStore
	conversations store.ConversationStore
	router        provider.Provider
	bus           *eventbus.Bus

	mu     sync.Mutex
	states map[string]*State // workspaceID -> state
}

// New constructs a Coordinator.
func New(agents store.AgentStore, tasks store.TaskStore, conversations store.ConversationStore, router provider.Provider, bus *eventbus.Bus) *Coordinator {
	return &Coordinator{
		agents:        agents,
		tasks:         tasks,
		conversations: conversations,
		router:        router,
		bus:           bus,
		states:        make(map[string]*State),
	}
}

// Initialize creates or resets the CoordinationState for a workspace and
// ensures its single ROUTA agent exists (named routa-main, status ACTIVE),
// returning the agent record. A ROUTA left over from an earlier session in
// the same workspace is re-activated rather than duplicated, preserving the
// one-ROUTA-per-workspace invariant.
func (c *Coordinator) Initialize(ctx context.Context, workspaceID string) (*store.Agent, error) {
	var routa *store.Agent
	existing, err := c.agents.ListByRole(ctx, workspaceID, store.RoleRouta)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		routa = existing[0]
		if err := c.agents.UpdateStatus(ctx, routa.ID, store.AgentStatusActive); err != nil {
			return nil, err
		}
		routa.Status = store.AgentStatusActive
	} else {
		routa = &store.Agent{
			ID:          uuid.New().String(),
			Name:        "routa-main",
			Role:        store.RoleRouta,
			WorkspaceID: workspaceID,
			ModelTier:   store.ModelTierSmart,
			Status:      store.AgentStatusActive,
		}
		if err := c.agents.Save(ctx, routa); err != nil {
			return nil, err
		}
		c.bus.Emit(eventbus.Event{Type: eventbus.EventAgentCreated, AgentID: routa.ID, WorkspaceID: workspaceID,
			Data: map[string]any{"role": string(store.RoleRouta)}})
	}

	c.mu.Lock()
	c.states[workspaceID] = &State{WorkspaceID: workspaceID, Phase: PhasePlanning, RoutaAgentID: routa.ID}
	c.mu.Unlock()

	return routa, nil
}

// State returns a copy of the workspace's current coordination state.
func (c *Coordinator) State(workspaceID string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[workspaceID]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// Transition moves a workspace to a new phase. It emits no event: emitting
// AGENT_STATUS_CHANGED is left to callers that know which agent's status
// actually changed; this only updates the coordination phase.
func (c *Coordinator) Transition(workspaceID string, phase Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[workspaceID]
	if !ok {
		return routaerr.NotFound("coordination state", workspaceID)
	}
	s.Phase = phase
	return nil
}

// SetGateAgent records which agent is acting as GATE for the workspace.
func (c *Coordinator) SetGateAgent(workspaceID, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[workspaceID]; ok {
		s.GateAgentID = agentID
	}
}

// IncrementWave advances the wave counter, returning the new value.
func (c *Coordinator) IncrementWave(workspaceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[workspaceID]
	if !ok {
		return 0
	}
	s.WaveNumber++
	return s.WaveNumber
}

// Reset clears a workspace's coordination state entirely, used between
// independent orchestration runs against the same workspace.
func (c *Coordinator) Reset(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, workspaceID)
}

// AgentContext is what a provider turn actually receives: the role system
// prompt, recent conversation, and a task summary line.
type AgentContext struct {
	SystemPrompt string
	RecentTurns  []*store.Message
	TaskSummary  string
}

// BuildAgentContext assembles what the given agent's next turn should see:
// its role prompt (ROUTA/CRAFTER/GATE from internal/sysprompt), its last 20
// conversation turns, and a one-line task summary for its workspace.
func (c *Coordinator) BuildAgentContext(ctx context.Context, agentID string) (*AgentContext, error) {
	agent, err := c.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}

	var prompt string
	switch agent.Role {
	case store.RoleRouta:
		prompt = sysprompt.Routa
	case store.RoleCrafter:
		prompt = sysprompt.Crafter
	case store.RoleGate:
		prompt = sysprompt.Gate
	default:
		return nil, routaerr.Validation("unknown agent role: %s", agent.Role)
	}

	turns, err := c.conversations.GetLastN(ctx, agentID, 20)
	if err != nil {
		return nil, err
	}

	summary, err := c.TaskSummary(ctx, agent.WorkspaceID)
	if err != nil {
		return nil, err
	}

	return &AgentContext{
		SystemPrompt: sysprompt.Wrap(prompt),
		RecentTurns:  turns,
		TaskSummary:  summary,
	}, nil
}

// TaskSummary renders a one-line-per-task summary of the workspace's task
// board, used in AgentContext.
func (c *Coordinator) TaskSummary(ctx context.Context, workspaceID string) (string, error) {
	tasks, err := c.tasks.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "no tasks registered", nil
	}
	summary := ""
	for _, t := range tasks {
		summary += fmt.Sprintf("[%s] %s (assigned: %s)\n", t.Status, t.Title, orNone(t.AssignedTo))
	}
	return summary, nil
}

// TaskSummaryEntry is one row of GetTaskSummary's result.
type TaskSummaryEntry struct {
	Title   string
	Status  store.TaskStatus
	Summary string
}

// GetTaskSummary returns the workspace's tasks as {title, status, summary}
// rows, distinct from TaskSummary's prompt-ready string rendering used by
// BuildAgentContext.
func (c *Coordinator) GetTaskSummary(ctx context.Context, workspaceID string) ([]TaskSummaryEntry, error) {
	tasks, err := c.tasks.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]TaskSummaryEntry, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSummaryEntry{Title: t.Title, Status: t.Status, Summary: t.CompletionSummary})
	}
	return out, nil
}

// StartVerification returns the workspace's REVIEW_REQUIRED task ids and, if
// any exist, spawns a GATE agent parented to ROUTA and records it as the
// workspace's gate agent. Returns ("", nil) when nothing is under
// review. The pipeline's GateVerification stage does not call it; that
// stage creates its GATE agent itself, so this is an entry point for
// callers that want the Coordinator to own the decision.
func (c *Coordinator) StartVerification(ctx context.Context, workspaceID string) (string, error) {
	underReview, err := c.tasks.ListByStatus(ctx, workspaceID, store.TaskStatusReviewRequired)
	if err != nil {
		return "", err
	}
	if len(underReview) == 0 {
		return "", nil
	}

	c.mu.Lock()
	state, ok := c.states[workspaceID]
	var routaID string
	if ok {
		routaID = state.RoutaAgentID
	}
	c.mu.Unlock()
	if !ok {
		return "", routaerr.NotFound("coordination state", workspaceID)
	}

	gate := &store.Agent{
		ID:          uuid.New().String(),
		Name:        "gate",
		Role:        store.RoleGate,
		WorkspaceID: workspaceID,
		ParentID:    routaID,
		ModelTier:   store.ModelTierSmart,
		Status:      store.AgentStatusPending,
	}
	if err := c.agents.Save(ctx, gate); err != nil {
		return "", err
	}
	c.SetGateAgent(workspaceID, gate.ID)
	c.bus.Emit(eventbus.Event{Type: eventbus.EventAgentCreated, AgentID: gate.ID, WorkspaceID: workspaceID,
		Data: map[string]any{"role": string(store.RoleGate)}})
	return gate.ID, nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

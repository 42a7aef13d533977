// Package agenttools implements the coordination tool surface: the 15
// operations agents call during a turn. The MCP server re-exports this
// exact surface bit-for-bit, so every tool here returns the same
// {success, data|error} shape regardless of caller.
package agenttools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/routa-dev/routa/internal/common/stringutil"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/pathsafe"
	"github.com/routa-dev/routa/internal/routaerr"
	"github.com/routa-dev/routa/internal/store"
)

// Result is the uniform tool-call envelope re-exported verbatim by the MCP
// surface.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(data any) Result       { return Result{Success: true, Data: data} }
func fail(err error) Result    { return Result{Success: false, Error: err.Error()} }
func failMsg(msg string) Result { return Result{Success: false, Error: msg} }

// Spawner is the narrow interface into agent lifecycle that create_agent and
// wake_or_create_task_agent need. The CLI shell's storeSpawner implements it;
// agenttools does not itself know how to start a provider subprocess.
type Spawner interface {
	SpawnAgent(ctx context.Context, workspaceID, parentID, name string, role store.AgentRole, tier store.ModelTier) (*store.Agent, error)
	WakeAgent(ctx context.Context, agentID string) error
}

// Toolset binds the Agent Tools to concrete stores, the event bus, a
// spawner, and the filesystem root each agent's file tools are scoped to.
type Toolset struct {
	Agents        store.AgentStore
	Tasks         store.TaskStore
	Conversations store.ConversationStore
	Bus           *eventbus.Bus
	Spawn         Spawner
	WorkspaceRoot string
}

// New constructs a Toolset.
func New(agents store.AgentStore, tasks store.TaskStore, conversations store.ConversationStore, bus *eventbus.Bus, spawn Spawner, workspaceRoot string) *Toolset {
	return &Toolset{Agents: agents, Tasks: tasks, Conversations: conversations, Bus: bus, Spawn: spawn, WorkspaceRoot: workspaceRoot}
}

func (t *Toolset) callerRole(ctx context.Context, callerID string) (store.AgentRole, error) {
	agent, err := t.Agents.Get(ctx, callerID)
	if err != nil {
		return "", err
	}
	return agent.Role, nil
}

// requireNotRole returns a failed Result if the caller holds any of the
// forbidden roles; ROUTA/GATE never write_file, CRAFTER never
// create_agent/delegate_task.
func (t *Toolset) requireNotRole(ctx context.Context, callerID string, toolName string, forbidden ...store.AgentRole) (Result, bool) {
	role, err := t.callerRole(ctx, callerID)
	if err != nil {
		return fail(err), false
	}
	for _, f := range forbidden {
		if role == f {
			return failMsg(string(role) + " may not call " + toolName), false
		}
	}
	return Result{}, true
}

// ListAgents returns every agent in the workspace, most-recent first.
func (t *Toolset) ListAgents(ctx context.Context, callerID, workspaceID string) Result {
	agents, err := t.Agents.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return fail(err)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.After(agents[j].CreatedAt) })
	return ok(agents)
}

// ConversationQuery selects which slice of a conversation
// ReadAgentConversation returns: the last N messages, a turn range, or
// (neither set) the full history. TOOL-role messages are filtered out
// unless IncludeToolCalls is set.
type ConversationQuery struct {
	LastN            int
	StartTurn        int
	EndTurn          int
	IncludeToolCalls bool
}

// ReadAgentConversation returns another agent's message history per the
// query.
func (t *Toolset) ReadAgentConversation(ctx context.Context, callerID, targetAgentID string, q ConversationQuery) Result {
	if _, err := t.Agents.Get(ctx, targetAgentID); err != nil {
		return fail(err)
	}
	var (
		msgs []*store.Message
		err  error
	)
	switch {
	case q.LastN > 0:
		msgs, err = t.Conversations.GetLastN(ctx, targetAgentID, q.LastN)
	case q.EndTurn > 0:
		msgs, err = t.Conversations.GetByTurnRange(ctx, targetAgentID, q.StartTurn, q.EndTurn)
	default:
		msgs, err = t.Conversations.GetConversation(ctx, targetAgentID)
	}
	if err != nil {
		return fail(err)
	}
	if !q.IncludeToolCalls {
		filtered := msgs[:0]
		for _, m := range msgs {
			if m.Role != store.MessageRoleTool {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	return ok(msgs)
}

// CreateAgent spawns a new child agent under the caller. Forbidden to
// CRAFTER: only ROUTA creates CRAFTER/GATE agents during planning.
func (t *Toolset) CreateAgent(ctx context.Context, callerID, workspaceID, name string, role store.AgentRole, tier store.ModelTier) Result {
	if res, permitted := t.requireNotRole(ctx, callerID, "create_agent", store.RoleCrafter); !permitted {
		return res
	}
	agent, err := t.Spawn.SpawnAgent(ctx, workspaceID, callerID, name, role, tier)
	if err != nil {
		return fail(err)
	}
	t.Bus.Emit(eventbus.Event{Type: eventbus.EventAgentCreated, AgentID: agent.ID, WorkspaceID: workspaceID,
		Data: map[string]any{"role": string(role), "name": name, "parentId": callerID}})
	return ok(agent)
}

// DelegateTask assigns an existing task to an agent, marks the task
// IN_PROGRESS and the agent ACTIVE, and appends a "Task delegated" USER
// message to the agent's conversation. Forbidden to CRAFTER.
func (t *Toolset) DelegateTask(ctx context.Context, callerID, taskID, assigneeID string) Result {
	if res, permitted := t.requireNotRole(ctx, callerID, "delegate_task", store.RoleCrafter); !permitted {
		return res
	}
	task, err := t.Tasks.Get(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	if _, err := t.Agents.Get(ctx, assigneeID); err != nil {
		return fail(err)
	}
	task.AssignedTo = assigneeID
	task.Status = store.TaskStatusInProgress
	if err := t.Tasks.Save(ctx, task); err != nil {
		return fail(err)
	}
	if err := t.Agents.UpdateStatus(ctx, assigneeID, store.AgentStatusActive); err != nil {
		return fail(err)
	}
	content := fmt.Sprintf("Task delegated: %s\nObjective: %s", task.Title, task.Objective)
	msg := &store.Message{ID: uuid.New().String(), AgentID: assigneeID, Role: store.MessageRoleUser, Content: content}
	if err := t.Conversations.Append(ctx, msg); err != nil {
		return fail(err)
	}
	t.Bus.Emit(eventbus.Event{Type: eventbus.EventTaskAssigned, AgentID: assigneeID, WorkspaceID: task.WorkspaceID,
		Data: map[string]any{"taskId": taskID}})
	return ok(task)
}

// SendMessageToAgent appends a USER-role message to the target agent's
// conversation, attributed to the sender, and emits MESSAGE_SENT.
func (t *Toolset) SendMessageToAgent(ctx context.Context, callerID, targetAgentID, content string) Result {
	target, err := t.Agents.Get(ctx, targetAgentID)
	if err != nil {
		return fail(err)
	}
	body := fmt.Sprintf("[From agent %s]: %s", callerID, content)
	msg := &store.Message{ID: uuid.New().String(), AgentID: targetAgentID, Role: store.MessageRoleUser, Content: body}
	if err := t.Conversations.Append(ctx, msg); err != nil {
		return fail(err)
	}
	t.Bus.Emit(eventbus.Event{Type: eventbus.EventMessageSent, AgentID: targetAgentID, WorkspaceID: target.WorkspaceID,
		Data: map[string]any{"from": callerID}})
	return ok(msg)
}

// ReportToParent is the mechanism CRAFTER/GATE use to surface completion
// reports and verdicts to their parent. It transitions
// taskID to COMPLETED (success) or NEEDS_FIX, records the completion
// summary, marks the caller itself COMPLETED, and appends a formatted
// completion message to the parent's conversation.
func (t *Toolset) ReportToParent(ctx context.Context, callerID, taskID, summary string, success bool, filesModified []string) Result {
	caller, err := t.Agents.Get(ctx, callerID)
	if err != nil {
		return fail(err)
	}
	if caller.ParentID == "" {
		return failMsg("agent has no parent to report to")
	}

	task, err := t.Tasks.Get(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	if success {
		task.Status = store.TaskStatusCompleted
	} else {
		task.Status = store.TaskStatusNeedsFix
	}
	task.CompletionSummary = summary
	if err := t.Tasks.Save(ctx, task); err != nil {
		return fail(err)
	}

	if err := t.Agents.UpdateStatus(ctx, callerID, store.AgentStatusCompleted); err != nil {
		return fail(err)
	}

	content := formatCompletionReport(caller.Name, callerID, taskID, success, summary, filesModified)
	msg := &store.Message{ID: uuid.New().String(), AgentID: caller.ParentID, Role: store.MessageRoleUser, Content: content}
	if err := t.Conversations.Append(ctx, msg); err != nil {
		return fail(err)
	}

	t.Bus.Emit(eventbus.Event{Type: eventbus.EventTaskStatusChanged, WorkspaceID: caller.WorkspaceID,
		Data: map[string]any{"taskId": taskID, "status": string(task.Status)}})
	t.Bus.Emit(eventbus.Event{Type: eventbus.EventReportSubmitted, AgentID: callerID, WorkspaceID: caller.WorkspaceID,
		Data: map[string]any{"parentId": caller.ParentID, "taskId": taskID, "success": success}})
	return ok(msg)
}

// formatCompletionReport renders the [Completion Report ...] wire format
// appended to the parent's conversation.
func formatCompletionReport(agentName, agentID, taskID string, success bool, summary string, filesModified []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Completion Report from %s (%s)]\n", agentName, agentID)
	fmt.Fprintf(&b, "Task: %s\n", taskID)
	fmt.Fprintf(&b, "Success: %t\n", success)
	fmt.Fprintf(&b, "Summary: %s", summary)
	if len(filesModified) > 0 {
		fmt.Fprintf(&b, "\nFiles Modified: %s", strings.Join(filesModified, ", "))
	}
	return b.String()
}

// WakeOrCreateTaskAgent reactivates the agent already assigned to a task,
// appending contextMessage to its conversation, or, when no live assignee
// exists, spawns a fresh CRAFTER parented to the caller and delegates the
// task to it (the NEEDS_FIX re-wake path).
func (t *Toolset) WakeOrCreateTaskAgent(ctx context.Context, callerID, workspaceID, taskID, contextMessage, name string, tier store.ModelTier) Result {
	if res, permitted := t.requireNotRole(ctx, callerID, "wake_or_create_task_agent", store.RoleCrafter); !permitted {
		return res
	}
	task, err := t.Tasks.Get(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	if tier == "" {
		tier = store.ModelTierSmart
	}

	if task.AssignedTo != "" {
		if existing, err := t.Agents.Get(ctx, task.AssignedTo); err == nil &&
			existing.Status != store.AgentStatusCompleted && existing.Status != store.AgentStatusError {
			if err := t.Spawn.WakeAgent(ctx, existing.ID); err != nil {
				return fail(err)
			}
			if err := t.Agents.UpdateStatus(ctx, existing.ID, store.AgentStatusActive); err != nil {
				return fail(err)
			}
			existing.Status = store.AgentStatusActive
			if contextMessage != "" {
				if res := t.SendMessageToAgent(ctx, callerID, existing.ID, contextMessage); !res.Success {
					return res
				}
			}
			return ok(existing)
		}
	}

	if name == "" {
		name = "crafter-" + taskID
	}
	agent, err := t.Spawn.SpawnAgent(ctx, workspaceID, callerID, name, store.RoleCrafter, tier)
	if err != nil {
		return fail(err)
	}
	t.Bus.Emit(eventbus.Event{Type: eventbus.EventAgentCreated, AgentID: agent.ID, WorkspaceID: workspaceID,
		Data: map[string]any{"role": string(store.RoleCrafter), "name": name, "taskId": taskID}})
	if res := t.DelegateTask(ctx, callerID, taskID, agent.ID); !res.Success {
		return res
	}
	if contextMessage != "" {
		if res := t.SendMessageToAgent(ctx, callerID, agent.ID, contextMessage); !res.Success {
			return res
		}
	}
	return ok(agent)
}

// SendMessageToTaskAgent is a convenience wrapper resolving a task's
// assignee before delegating to SendMessageToAgent.
func (t *Toolset) SendMessageToTaskAgent(ctx context.Context, callerID, taskID, content string) Result {
	task, err := t.Tasks.Get(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	if task.AssignedTo == "" {
		return failMsg("task has no assignee")
	}
	return t.SendMessageToAgent(ctx, callerID, task.AssignedTo, content)
}

// GetAgentStatus returns a target agent's identity, lifecycle status,
// message count, and the tasks currently assigned to it.
func (t *Toolset) GetAgentStatus(ctx context.Context, callerID, targetAgentID string) Result {
	agent, err := t.Agents.Get(ctx, targetAgentID)
	if err != nil {
		return fail(err)
	}
	count, err := t.Conversations.GetMessageCount(ctx, targetAgentID)
	if err != nil {
		return fail(err)
	}
	assigned, err := t.Tasks.ListByAssignee(ctx, targetAgentID)
	if err != nil {
		return fail(err)
	}
	taskRows := make([]map[string]any, 0, len(assigned))
	for _, task := range assigned {
		taskRows = append(taskRows, map[string]any{"id": task.ID, "title": task.Title, "status": task.Status})
	}
	return ok(map[string]any{
		"name":         agent.Name,
		"role":         agent.Role,
		"status":       agent.Status,
		"modelTier":    agent.ModelTier,
		"parentId":     agent.ParentID,
		"messageCount": count,
		"tasks":        taskRows,
	})
}

// summaryResponseLimit caps the last-assistant-response excerpt returned by
// GetAgentSummary.
const summaryResponseLimit = 500

// GetAgentSummary returns a compact view of an agent: status, its last
// assistant response (truncated), how many tool calls its conversation
// records, and its in-flight tasks. Used by ROUTA to decide whether to
// re-delegate without reading full transcripts.
func (t *Toolset) GetAgentSummary(ctx context.Context, callerID, targetAgentID string) Result {
	agent, err := t.Agents.Get(ctx, targetAgentID)
	if err != nil {
		return fail(err)
	}
	msgs, err := t.Conversations.GetConversation(ctx, targetAgentID)
	if err != nil {
		return fail(err)
	}

	lastResponse := ""
	toolCalls := 0
	for _, m := range msgs {
		switch m.Role {
		case store.MessageRoleAssistant:
			lastResponse = m.Content
		case store.MessageRoleTool:
			toolCalls++
		}
	}

	assigned, err := t.Tasks.ListByAssignee(ctx, targetAgentID)
	if err != nil {
		return fail(err)
	}
	active := make([]map[string]any, 0, len(assigned))
	for _, task := range assigned {
		if task.Status == store.TaskStatusCompleted {
			continue
		}
		active = append(active, map[string]any{"id": task.ID, "title": task.Title, "status": task.Status})
	}

	return ok(map[string]any{
		"status":                agent.Status,
		"lastAssistantResponse": stringutil.Excerpt(lastResponse, summaryResponseLimit),
		"toolCallCount":         toolCalls,
		"activeTasks":           active,
	})
}

// SubscribeToEvents registers a filtered subscription for the caller and
// returns its subscription id.
func (t *Toolset) SubscribeToEvents(ctx context.Context, callerID string, filter eventbus.Filter) Result {
	id := t.Bus.Subscribe(filter)
	return ok(map[string]any{"subscriptionId": id})
}

// UnsubscribeFromEvents cancels a subscription.
func (t *Toolset) UnsubscribeFromEvents(ctx context.Context, callerID, subscriptionID string) Result {
	if !t.Bus.Unsubscribe(subscriptionID) {
		return failMsg("subscription not found")
	}
	return ok(map[string]any{"unsubscribed": true})
}

// ReadFile reads a file relative to the workspace root, rejecting any path
// that escapes it.
func (t *Toolset) ReadFile(ctx context.Context, callerID, relPath string) Result {
	abs, err := pathsafe.Resolve(t.WorkspaceRoot, relPath)
	if err != nil {
		return fail(err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fail(routaerr.NotFound("file", relPath))
	}
	return ok(map[string]any{"path": relPath, "content": string(data)})
}

// ListFiles lists entries directly under a workspace-relative directory;
// an empty path means the workspace root.
func (t *Toolset) ListFiles(ctx context.Context, callerID, relPath string) Result {
	if relPath == "" {
		relPath = "."
	}
	abs, err := pathsafe.Resolve(t.WorkspaceRoot, relPath)
	if err != nil {
		return fail(err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fail(routaerr.NotFound("directory", relPath))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return ok(map[string]any{"path": relPath, "entries": names})
}

// WriteFile writes content to a workspace-relative path, creating parent
// directories as needed. Forbidden to ROUTA and GATE: neither role writes
// files.
func (t *Toolset) WriteFile(ctx context.Context, callerID, relPath, content string) Result {
	if res, permitted := t.requireNotRole(ctx, callerID, "write_file", store.RoleRouta, store.RoleGate); !permitted {
		return res
	}
	abs, err := pathsafe.Resolve(t.WorkspaceRoot, relPath)
	if err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fail(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fail(err)
	}
	return ok(map[string]any{"path": relPath, "bytesWritten": len(content)})
}

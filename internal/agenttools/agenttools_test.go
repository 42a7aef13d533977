package agenttools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeSpawner struct {
	agents store.AgentStore
	woken  []string
}

func (f *fakeSpawner) SpawnAgent(ctx context.Context, workspaceID, parentID, name string, role store.AgentRole, tier store.ModelTier) (*store.Agent, error) {
	a := &store.Agent{ID: "spawned-" + name, Name: name, Role: role, WorkspaceID: workspaceID, ParentID: parentID, ModelTier: tier, Status: store.AgentStatusPending}
	if err := f.agents.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (f *fakeSpawner) WakeAgent(ctx context.Context, agentID string) error {
	f.woken = append(f.woken, agentID)
	return nil
}

func newTestToolset(t *testing.T) (*Toolset, string) {
	t.Helper()
	root := t.TempDir()
	agents := store.NewMemoryAgentStore()
	tasks := store.NewMemoryTaskStore()
	convos := store.NewMemoryConversationStore()
	bus := eventbus.New(0)
	return New(agents, tasks, convos, bus, &fakeSpawner{agents: agents}, root), root
}

func seedAgent(t *testing.T, ts *Toolset, role store.AgentRole, workspaceID string) *store.Agent {
	t.Helper()
	a := &store.Agent{ID: "agent-" + string(role), Role: role, WorkspaceID: workspaceID, Status: store.AgentStatusActive}
	require.NoError(t, ts.Agents.Save(context.Background(), a))
	return a
}

func TestCreateAgent_ForbiddenForCrafter(t *testing.T) {
	ts, _ := newTestToolset(t)
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	res := ts.CreateAgent(context.Background(), crafter.ID, "ws1", "helper", store.RoleCrafter, store.ModelTierFast)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "CRAFTER")
}

func TestCreateAgent_AllowedForRouta(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")

	res := ts.CreateAgent(context.Background(), routa.ID, "ws1", "crafter-1", store.RoleCrafter, store.ModelTierSmart)
	require.True(t, res.Success)
}

func TestWriteFile_ForbiddenForRoutaAndGate(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	gate := seedAgent(t, ts, store.RoleGate, "ws1")

	for _, caller := range []*store.Agent{routa, gate} {
		res := ts.WriteFile(context.Background(), caller.ID, "out.txt", "hi")
		require.False(t, res.Success)
	}
}

func TestWriteFile_AllowedForCrafter(t *testing.T) {
	ts, root := newTestToolset(t)
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	res := ts.WriteFile(context.Background(), crafter.ID, "sub/out.txt", "hello")
	require.True(t, res.Success)
	data, err := os.ReadFile(filepath.Join(root, "sub", "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestReadFile_PathEscapeRejected(t *testing.T) {
	ts, _ := newTestToolset(t)
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	res := ts.ReadFile(context.Background(), crafter.ID, "../../etc/passwd")
	require.False(t, res.Success)
}

func TestReadFile_AbsolutePathEscapeRejected(t *testing.T) {
	ts, _ := newTestToolset(t)
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	res := ts.ReadFile(context.Background(), crafter.ID, "/etc/passwd")
	require.False(t, res.Success)
}

func TestDelegateTask_ForbiddenForCrafter(t *testing.T) {
	ts, _ := newTestToolset(t)
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")
	task := &store.Task{ID: "t1", WorkspaceID: "ws1", Status: store.TaskStatusPending}
	require.NoError(t, ts.Tasks.Save(context.Background(), task))

	res := ts.DelegateTask(context.Background(), crafter.ID, "t1", crafter.ID)
	require.False(t, res.Success)
}

func TestReportToParent_NoParentFails(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")

	res := ts.ReportToParent(context.Background(), routa.ID, "t1", "done", true, nil)
	require.False(t, res.Success)
}

func TestReportToParent_SuccessCompletesTaskAndAgent(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")
	crafter.ParentID = routa.ID
	require.NoError(t, ts.Agents.Save(context.Background(), crafter))

	task := &store.Task{ID: "t1", WorkspaceID: "ws1", Title: "Add health endpoint", Status: store.TaskStatusReviewRequired, AssignedTo: crafter.ID}
	require.NoError(t, ts.Tasks.Save(context.Background(), task))

	res := ts.ReportToParent(context.Background(), crafter.ID, "t1", "endpoint is live", true, []string{"main.go"})
	require.True(t, res.Success)

	updatedTask, err := ts.Tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusCompleted, updatedTask.Status)
	require.Equal(t, "endpoint is live", updatedTask.CompletionSummary)

	updatedAgent, err := ts.Agents.Get(context.Background(), crafter.ID)
	require.NoError(t, err)
	require.Equal(t, store.AgentStatusCompleted, updatedAgent.Status)

	msgs, err := ts.Conversations.GetConversation(context.Background(), routa.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Content, "[Completion Report from")
	require.Contains(t, msgs[0].Content, "Files Modified: main.go")
}

func TestReportToParent_FailureSetsNeedsFix(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")
	crafter.ParentID = routa.ID
	require.NoError(t, ts.Agents.Save(context.Background(), crafter))

	task := &store.Task{ID: "t1", WorkspaceID: "ws1", Title: "Add health endpoint", Status: store.TaskStatusReviewRequired, AssignedTo: crafter.ID}
	require.NoError(t, ts.Tasks.Save(context.Background(), task))

	res := ts.ReportToParent(context.Background(), crafter.ID, "t1", "blocked on missing dependency", false, nil)
	require.True(t, res.Success)

	updatedTask, err := ts.Tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusNeedsFix, updatedTask.Status)
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")

	subRes := ts.SubscribeToEvents(context.Background(), routa.ID, eventbus.Filter{})
	require.True(t, subRes.Success)
	subID := subRes.Data.(map[string]any)["subscriptionId"].(string)

	unsubRes := ts.UnsubscribeFromEvents(context.Background(), routa.ID, subID)
	require.True(t, unsubRes.Success)

	again := ts.UnsubscribeFromEvents(context.Background(), routa.ID, subID)
	require.False(t, again.Success)
}

func TestListFiles_ReturnsSortedEntries(t *testing.T) {
	ts, root := newTestToolset(t)
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))

	res := ts.ListFiles(context.Background(), crafter.ID, ".")
	require.True(t, res.Success)
	entries := res.Data.(map[string]any)["entries"].([]string)
	require.Equal(t, []string{"a.txt", "b.txt"}, entries)
}

func TestSendMessageToAgent_AttributesSender(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	res := ts.SendMessageToAgent(context.Background(), routa.ID, crafter.ID, "please rebase first")
	require.True(t, res.Success)

	msgs, err := ts.Conversations.GetConversation(context.Background(), crafter.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "[From agent "+routa.ID+"]: please rebase first", msgs[0].Content)
	require.Equal(t, store.MessageRoleUser, msgs[0].Role)
}

func TestWakeOrCreateTaskAgent_ReactivatesLiveAssignee(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")
	crafter.Status = store.AgentStatusIdle
	require.NoError(t, ts.Agents.Save(context.Background(), crafter))

	task := &store.Task{ID: "t1", WorkspaceID: "ws1", Title: "Fix login", Status: store.TaskStatusNeedsFix, AssignedTo: crafter.ID}
	require.NoError(t, ts.Tasks.Save(context.Background(), task))

	res := ts.WakeOrCreateTaskAgent(context.Background(), routa.ID, "ws1", "t1", "gate found a regression, see notes", "", store.ModelTierSmart)
	require.True(t, res.Success)

	woken, err := ts.Agents.Get(context.Background(), crafter.ID)
	require.NoError(t, err)
	require.Equal(t, store.AgentStatusActive, woken.Status)
	require.Contains(t, ts.Spawn.(*fakeSpawner).woken, crafter.ID)

	msgs, err := ts.Conversations.GetConversation(context.Background(), crafter.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Content, "gate found a regression")
}

func TestWakeOrCreateTaskAgent_SpawnsAndDelegatesWhenAssigneeCompleted(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	old := seedAgent(t, ts, store.RoleCrafter, "ws1")
	old.Status = store.AgentStatusCompleted
	require.NoError(t, ts.Agents.Save(context.Background(), old))

	task := &store.Task{ID: "t1", WorkspaceID: "ws1", Title: "Fix login", Objective: "make login work", Status: store.TaskStatusNeedsFix, AssignedTo: old.ID}
	require.NoError(t, ts.Tasks.Save(context.Background(), task))

	res := ts.WakeOrCreateTaskAgent(context.Background(), routa.ID, "ws1", "t1", "previous attempt rejected", "fix-login-2", store.ModelTierFast)
	require.True(t, res.Success)

	fresh := res.Data.(*store.Agent)
	require.Equal(t, store.RoleCrafter, fresh.Role)
	require.Equal(t, routa.ID, fresh.ParentID)

	updated, err := ts.Tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusInProgress, updated.Status)
	require.Equal(t, fresh.ID, updated.AssignedTo)

	msgs, err := ts.Conversations.GetConversation(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "delegation message then context message")
	require.Contains(t, msgs[0].Content, "Task delegated: Fix login")
	require.Contains(t, msgs[1].Content, "previous attempt rejected")
}

func TestGetAgentStatus_IncludesIdentityAndTasks(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")
	crafter.ParentID = routa.ID
	crafter.Name = "fix-login"
	require.NoError(t, ts.Agents.Save(context.Background(), crafter))

	task := &store.Task{ID: "t1", WorkspaceID: "ws1", Title: "Fix login", Status: store.TaskStatusInProgress, AssignedTo: crafter.ID}
	require.NoError(t, ts.Tasks.Save(context.Background(), task))

	res := ts.GetAgentStatus(context.Background(), routa.ID, crafter.ID)
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	require.Equal(t, "fix-login", data["name"])
	require.Equal(t, store.RoleCrafter, data["role"])
	require.Equal(t, routa.ID, data["parentId"])
	require.Len(t, data["tasks"], 1)
}

func TestGetAgentSummary_TruncatesLastResponse(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	long := strings.Repeat("x", 900)
	require.NoError(t, ts.Conversations.Append(context.Background(), &store.Message{AgentID: crafter.ID, Role: store.MessageRoleAssistant, Content: long}))
	require.NoError(t, ts.Conversations.Append(context.Background(), &store.Message{AgentID: crafter.ID, Role: store.MessageRoleTool, Content: "{}", ToolName: "write_file"}))

	res := ts.GetAgentSummary(context.Background(), routa.ID, crafter.ID)
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	require.LessOrEqual(t, len(data["lastAssistantResponse"].(string)), 500)
	require.Equal(t, 1, data["toolCallCount"])
}

func TestReadFile_DeniedMessageNamesWorkspace(t *testing.T) {
	ts, _ := newTestToolset(t)
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	res := ts.ReadFile(context.Background(), crafter.ID, "../../../etc/passwd")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "Access denied")
	require.Contains(t, res.Error, "outside workspace")
}

func TestReadAgentConversation_FiltersToolMessagesByDefault(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	require.NoError(t, ts.Conversations.Append(context.Background(), &store.Message{AgentID: crafter.ID, Role: store.MessageRoleUser, Content: "do the task"}))
	require.NoError(t, ts.Conversations.Append(context.Background(), &store.Message{AgentID: crafter.ID, Role: store.MessageRoleTool, Content: "{}", ToolName: "write_file"}))
	require.NoError(t, ts.Conversations.Append(context.Background(), &store.Message{AgentID: crafter.ID, Role: store.MessageRoleAssistant, Content: "done"}))

	res := ts.ReadAgentConversation(context.Background(), routa.ID, crafter.ID, ConversationQuery{})
	require.True(t, res.Success)
	require.Len(t, res.Data, 2)

	res = ts.ReadAgentConversation(context.Background(), routa.ID, crafter.ID, ConversationQuery{IncludeToolCalls: true})
	require.True(t, res.Success)
	require.Len(t, res.Data, 3)
}

func TestReadAgentConversation_TurnRange(t *testing.T) {
	ts, _ := newTestToolset(t)
	routa := seedAgent(t, ts, store.RoleRouta, "ws1")
	crafter := seedAgent(t, ts, store.RoleCrafter, "ws1")

	for turn := 1; turn <= 4; turn++ {
		require.NoError(t, ts.Conversations.Append(context.Background(), &store.Message{
			AgentID: crafter.ID, Role: store.MessageRoleUser, Content: "msg", Turn: turn, HasTurn: true,
		}))
	}

	res := ts.ReadAgentConversation(context.Background(), routa.ID, crafter.ID, ConversationQuery{StartTurn: 2, EndTurn: 3})
	require.True(t, res.Success)
	require.Len(t, res.Data, 2)
}

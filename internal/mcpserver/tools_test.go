package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/store"
)

type fakeSpawner struct{}

func (fakeSpawner) SpawnAgent(ctx context.Context, workspaceID, parentID, name string, role store.AgentRole, tier store.ModelTier) (*store.Agent, error) {
	return &store.Agent{ID: "spawned-" + name, Name: name, Role: role, WorkspaceID: workspaceID, ParentID: parentID}, nil
}
func (fakeSpawner) WakeAgent(ctx context.Context, agentID string) error { return nil }

func newTestToolset(t *testing.T) *agenttools.Toolset {
	t.Helper()
	agents := store.NewMemoryAgentStore()
	tasks := store.NewMemoryTaskStore()
	convos := store.NewMemoryConversationStore()
	bus := eventbus.New(0)
	return agenttools.New(agents, tasks, convos, bus, fakeSpawner{}, t.TempDir())
}

func callToolReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) agenttools.Result {
	t.Helper()
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out agenttools.Result
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestHandle_ListAgentsRoundTrips(t *testing.T) {
	tools := newTestToolset(t)
	routa := &store.Agent{ID: "routa-1", Role: store.RoleRouta, WorkspaceID: "ws1"}
	require.NoError(t, tools.Agents.Save(context.Background(), routa))

	h := handle(func(ctx context.Context, args map[string]any) agenttools.Result {
		return tools.ListAgents(ctx, routa.ID, str(args, "workspace_id"))
	})

	res, err := h(context.Background(), callToolReq(map[string]any{"workspace_id": "ws1"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.True(t, out.Success)
}

func TestHandle_ReportToParentCoercesBoolAndSlice(t *testing.T) {
	tools := newTestToolset(t)
	routa := &store.Agent{ID: "routa-1", Role: store.RoleRouta, WorkspaceID: "ws1"}
	crafter := &store.Agent{ID: "crafter-1", Role: store.RoleCrafter, WorkspaceID: "ws1", ParentID: routa.ID}
	require.NoError(t, tools.Agents.Save(context.Background(), routa))
	require.NoError(t, tools.Agents.Save(context.Background(), crafter))
	task := &store.Task{ID: "t1", WorkspaceID: "ws1", Status: store.TaskStatusReviewRequired, AssignedTo: crafter.ID}
	require.NoError(t, tools.Tasks.Save(context.Background(), task))

	h := handle(func(ctx context.Context, args map[string]any) agenttools.Result {
		return tools.ReportToParent(ctx, crafter.ID, str(args, "task_id"), str(args, "summary"),
			boolArg(args, "success"), stringSlice(args, "files_modified"))
	})

	// Arguments decoded from JSON arrive as []any and bool, matching what the
	// MCP wire format would deliver.
	args := map[string]any{
		"task_id":        "t1",
		"summary":        "shipped",
		"success":        true,
		"files_modified": []any{"main.go", "server.go"},
	}
	res, err := h(context.Background(), callToolReq(args))
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.True(t, out.Success)

	updated, err := tools.Tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusCompleted, updated.Status)
}

func TestHandle_FailedToolCallIsStillATextResult(t *testing.T) {
	tools := newTestToolset(t)
	crafter := &store.Agent{ID: "crafter-1", Role: store.RoleCrafter, WorkspaceID: "ws1"}
	require.NoError(t, tools.Agents.Save(context.Background(), crafter))

	h := handle(func(ctx context.Context, args map[string]any) agenttools.Result {
		return tools.CreateAgent(ctx, crafter.ID, str(args, "workspace_id"), str(args, "name"),
			store.RoleCrafter, store.ModelTierFast)
	})

	res, err := h(context.Background(), callToolReq(map[string]any{"workspace_id": "ws1", "name": "helper"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	require.False(t, out.Success)
	require.Contains(t, out.Error, "CRAFTER")
}

func TestEventTypes_ParsesStringSlice(t *testing.T) {
	args := map[string]any{"event_types": []any{"TASK_ASSIGNED", "AGENT_CREATED"}}
	got := eventTypes(args, "event_types")
	require.Equal(t, []eventbus.EventType{eventbus.EventTaskAssigned, eventbus.EventAgentCreated}, got)
}

func TestIntArg_HandlesJSONFloat64(t *testing.T) {
	require.Equal(t, 5, intArg(map[string]any{"n": float64(5)}, "n"))
	require.Equal(t, 0, intArg(map[string]any{}, "n"))
}

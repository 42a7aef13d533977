package llm

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/store"
)

type scriptedMessagesClient struct {
	responses []*sdk.Message
	calls     int
}

func (s *scriptedMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

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

func TestRunStreaming_TextOnlyStopsImmediately(t *testing.T) {
	tools := newTestToolset(t)
	routa := &store.Agent{ID: "routa-1", Role: store.RoleRouta, WorkspaceID: "ws1"}
	require.NoError(t, tools.Agents.Save(context.Background(), routa))

	client := &scriptedMessagesClient{responses: []*sdk.Message{
		{
			Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "@@@task\n# do it\n@@@"}},
			StopReason: sdk.StopReasonEndTurn,
		},
	}}
	p := New(client, Options{Model: "claude-test"}, tools, logger.Default())

	out, err := p.Run(context.Background(), store.RoleRouta, routa.ID, "plan this")
	require.NoError(t, err)
	require.Equal(t, "@@@task\n# do it\n@@@", out)
	require.Equal(t, 1, client.calls)
}

func TestRunStreaming_DispatchesToolCallThenReturnsFinalText(t *testing.T) {
	tools := newTestToolset(t)
	routa := &store.Agent{ID: "routa-1", Role: store.RoleRouta, WorkspaceID: "ws1"}
	require.NoError(t, tools.Agents.Save(context.Background(), routa))

	input, err := json.Marshal(map[string]any{"workspaceId": "ws1"})
	require.NoError(t, err)

	client := &scriptedMessagesClient{responses: []*sdk.Message{
		{
			Content: []sdk.ContentBlockUnion{
				{Type: "tool_use", Name: "list_agents", ID: "call-1", Input: input},
			},
			StopReason: sdk.StopReasonToolUse,
		},
		{
			Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "done looking"}},
			StopReason: sdk.StopReasonEndTurn,
		},
	}}
	p := New(client, Options{Model: "claude-test"}, tools, logger.Default())

	var chunks []string
	out, err := p.RunStreaming(context.Background(), store.RoleRouta, routa.ID, "who is here?", func(c provider.Chunk) {
		chunks = append(chunks, string(c.Type))
	})
	require.NoError(t, err)
	require.Equal(t, "done looking", out)
	require.Equal(t, 2, client.calls)
	require.Contains(t, chunks, "TOOL_CALL")
	require.Contains(t, chunks, "TOOL_RESULT")
}

func TestCapabilities_ExcludesTerminal(t *testing.T) {
	p := New(&scriptedMessagesClient{}, Options{Model: "claude-test"}, newTestToolset(t), logger.Default())
	caps := p.Capabilities()
	require.True(t, caps.SupportsToolCalling)
	require.False(t, caps.SupportsTerminal)
}

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryAgentStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAgentStore()

	agent := &Agent{Name: "routa-main", Role: RoleRouta, WorkspaceID: "ws1", Status: AgentStatusActive}
	require.NoError(t, s.Save(ctx, agent))
	require.NotEmpty(t, agent.ID)

	got, err := s.Get(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, "routa-main", got.Name)

	// Mutating the returned copy must not affect stored state.
	got.Name = "mutated"
	again, err := s.Get(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, "routa-main", again.Name)
}

func TestMemoryAgentStore_GetMissing(t *testing.T) {
	s := NewMemoryAgentStore()
	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
}

func TestMemoryAgentStore_ListByRoleAndParent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAgentStore()

	routa := &Agent{Name: "routa-main", Role: RoleRouta, WorkspaceID: "ws1"}
	require.NoError(t, s.Save(ctx, routa))

	crafter := &Agent{Name: "add-greet", Role: RoleCrafter, WorkspaceID: "ws1", ParentID: routa.ID}
	require.NoError(t, s.Save(ctx, crafter))

	byRole, err := s.ListByRole(ctx, "ws1", RoleCrafter)
	require.NoError(t, err)
	require.Len(t, byRole, 1)
	require.Equal(t, "add-greet", byRole[0].Name)

	byParent, err := s.ListByParent(ctx, routa.ID)
	require.NoError(t, err)
	require.Len(t, byParent, 1)
}

func TestMemoryTaskStore_FindReadyTasks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTaskStore()

	blocked := &Task{Title: "B", WorkspaceID: "ws1", Status: TaskStatusPending, Dependencies: []string{"missing"}}
	require.NoError(t, s.Save(ctx, blocked))

	free := &Task{Title: "A", WorkspaceID: "ws1", Status: TaskStatusPending}
	require.NoError(t, s.Save(ctx, free))

	done := &Task{Title: "D", WorkspaceID: "ws1", Status: TaskStatusCompleted}
	require.NoError(t, s.Save(ctx, done))

	unblocked := &Task{Title: "C", WorkspaceID: "ws1", Status: TaskStatusNeedsFix, Dependencies: []string{done.ID}}
	require.NoError(t, s.Save(ctx, unblocked))

	ready, err := s.FindReadyTasks(ctx, "ws1")
	require.NoError(t, err)

	titles := make(map[string]bool)
	for _, t := range ready {
		titles[t.Title] = true
	}
	require.True(t, titles["A"])
	require.True(t, titles["C"])
	require.False(t, titles["B"], "task with unresolved dependency must not be ready")
	require.False(t, titles["D"], "a completed task is never ready")
}

func TestMemoryConversationStore_AppendOrderAndTurnRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConversationStore()

	require.NoError(t, s.Append(ctx, &Message{AgentID: "a1", Role: MessageRoleUser, Content: "first", Turn: 1, HasTurn: true}))
	require.NoError(t, s.Append(ctx, &Message{AgentID: "a1", Role: MessageRoleAssistant, Content: "second", Turn: 2, HasTurn: true}))
	require.NoError(t, s.Append(ctx, &Message{AgentID: "a1", Role: MessageRoleAssistant, Content: "third"}))

	all, err := s.GetConversation(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "third"}, contents(all))

	last2, err := s.GetLastN(ctx, "a1", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"second", "third"}, contents(last2))

	ranged, err := s.GetByTurnRange(ctx, "a1", 1, 1)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	require.Equal(t, "first", ranged[0].Content)

	count, err := s.GetMessageCount(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestMemoryConversationStore_UnknownAgentReturnsEmpty(t *testing.T) {
	s := NewMemoryConversationStore()
	msgs, err := s.GetConversation(context.Background(), "unknown-agent")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func contents(msgs []*Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

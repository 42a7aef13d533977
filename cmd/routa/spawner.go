package main

import (
	"context"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/store"
)

// storeSpawner implements agenttools.Spawner directly against the agent
// store. Process/session startup for both the ACP and LLM providers is
// lazy (the first Run call spawns it), so spawning here only needs to
// persist the agent record; WakeAgent is a no-op for the same reason, an
// idle agent's next Run call re-establishes whatever session it needs.
type storeSpawner struct {
	agents store.AgentStore
}

var _ agenttools.Spawner = (*storeSpawner)(nil)

func (s *storeSpawner) SpawnAgent(ctx context.Context, workspaceID, parentID, name string, role store.AgentRole, tier store.ModelTier) (*store.Agent, error) {
	agent := &store.Agent{
		Name:        name,
		Role:        role,
		WorkspaceID: workspaceID,
		ParentID:    parentID,
		ModelTier:   tier,
		Status:      store.AgentStatusPending,
	}
	if err := s.agents.Save(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *storeSpawner) WakeAgent(ctx context.Context, agentID string) error {
	return nil
}

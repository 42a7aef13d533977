package orchestrator

import (
	"context"
	"testing"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/coordinator"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/pipeline"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/store"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	outputs []string
	calls   int
}

func (s *scriptedProvider) next() string {
	if s.calls >= len(s.outputs) {
		return ""
	}
	out := s.outputs[s.calls]
	s.calls++
	return out
}
func (s *scriptedProvider) Run(ctx context.Context, role provider.Role, agentID, prompt string) (string, error) {
	return s.next(), nil
}
func (s *scriptedProvider) RunStreaming(ctx context.Context, role provider.Role, agentID, prompt string, onChunk provider.OnChunk) (string, error) {
	return s.next(), nil
}
func (s *scriptedProvider) IsHealthy(agentID string) bool          { return true }
func (s *scriptedProvider) Interrupt(agentID string)               {}
func (s *scriptedProvider) Cleanup(agentID string)                  {}
func (s *scriptedProvider) Shutdown()                               {}
func (s *scriptedProvider) Capabilities() provider.Capabilities     { return provider.Capabilities{Name: "scripted"} }

type fakeSpawner struct{}

func (fakeSpawner) SpawnAgent(ctx context.Context, workspaceID, parentID, name string, role store.AgentRole, tier store.ModelTier) (*store.Agent, error) {
	return &store.Agent{ID: name, Role: role, WorkspaceID: workspaceID, ParentID: parentID}, nil
}
func (fakeSpawner) WakeAgent(ctx context.Context, agentID string) error { return nil }

func newHarness(t *testing.T, sp *scriptedProvider) (*Orchestrator, *pipeline.Context) {
	t.Helper()
	agents := store.NewMemoryAgentStore()
	tasks := store.NewMemoryTaskStore()
	convos := store.NewMemoryConversationStore()
	bus := eventbus.New(0)
	coord := coordinator.New(agents, tasks, convos, sp, bus)
	tools := agenttools.New(agents, tasks, convos, bus, fakeSpawner{}, t.TempDir())

	pc := pipeline.NewContext("ws1", "build a thing")
	pc.Agents = agents
	pc.Tasks = tasks
	pc.Conversations = convos
	pc.Router = sp
	pc.Tools = tools
	pc.Coordinator = coord
	pc.Bus = bus

	routa, err := coord.Initialize(context.Background(), "ws1")
	require.NoError(t, err)
	pc.RoutaAgentID = routa.ID

	return New(coord, 3), pc
}

const samplePlan = `@@@task
# Add health endpoint

## Objective
Expose a /healthz route.

## Definition of Done
- endpoint returns 200

## Verification
- curl /healthz
@@@`

func TestExecute_NoTasksWhenPlanEmpty(t *testing.T) {
	sp := &scriptedProvider{outputs: []string{"no tasks here, just chatting"}}
	orch, pc := newHarness(t, sp)

	res := orch.Execute(context.Background(), pc)
	require.Equal(t, OutcomeNoTasks, res.Kind)
}

func TestExecute_SuccessOnFirstWave(t *testing.T) {
	sp := &scriptedProvider{outputs: []string{
		samplePlan,
		"Task completed.",
		"APPROVED for Add health endpoint",
	}}
	orch, pc := newHarness(t, sp)

	res := orch.Execute(context.Background(), pc)
	require.Equal(t, OutcomeSuccess, res.Kind)
	require.Equal(t, 1, res.WaveCount)
}

func TestExecute_MaxWavesReachedOnRepeatedRejection(t *testing.T) {
	// Wave 1 runs Planning+TaskRegistration+CrafterExecution+GateVerification
	// (consumes plan, crafter output, gate verdict). A GATE rejection resumes
	// at CrafterExecution, not Planning, so waves 2 and 3 only
	// consume a crafter output and a gate verdict each.
	outputs := []string{samplePlan, "Task completed.", "NOT APPROVED for Add health endpoint"}
	for i := 0; i < 2; i++ {
		outputs = append(outputs, "Task completed.", "NOT APPROVED for Add health endpoint")
	}
	sp := &scriptedProvider{outputs: outputs}
	orch, pc := newHarness(t, sp)

	res := orch.Execute(context.Background(), pc)
	require.Equal(t, OutcomeMaxWavesReached, res.Kind)
	require.Equal(t, 3, res.WaveCount)
}

func TestExecute_EmptyProviderOutputYieldsNoTasks(t *testing.T) {
	sp := &scriptedProvider{outputs: []string{}} // next() returns "" -> parses to zero tasks -> NO_TASKS, not a failure path
	orch, pc := newHarness(t, sp)

	res := orch.Execute(context.Background(), pc)
	require.Equal(t, OutcomeNoTasks, res.Kind)
}

func TestExecute_PhaseTraceOnHappyPath(t *testing.T) {
	sp := &scriptedProvider{outputs: []string{
		samplePlan,
		"Task completed.",
		"APPROVED for Add health endpoint",
	}}
	orch, pc := newHarness(t, sp)

	var trace []coordinator.Phase
	pc.OnPhaseChange = func(evt pipeline.PhaseEvent) { trace = append(trace, evt.Phase) }

	res := orch.Execute(context.Background(), pc)
	require.Equal(t, OutcomeSuccess, res.Kind)
	require.Equal(t, []coordinator.Phase{
		coordinator.PhaseInitializing,
		coordinator.PhasePlanning,
		coordinator.PhasePlanReady,
		coordinator.PhaseReady,
		coordinator.PhaseTasksRegistered,
		coordinator.PhaseExecuting,
		coordinator.PhaseWaveComplete,
		coordinator.PhaseVerifying,
		coordinator.PhaseVerificationCompleted,
		coordinator.PhaseCompleted,
	}, trace)
}

func TestExecute_RejectionThenApprovalTracesNeedsFixAndSecondWave(t *testing.T) {
	sp := &scriptedProvider{outputs: []string{
		samplePlan,
		"Task completed.",
		"NOT APPROVED for Add health endpoint",
		"Task completed.",
		"APPROVED for Add health endpoint",
	}}
	orch, pc := newHarness(t, sp)

	var trace []pipeline.PhaseEvent
	pc.OnPhaseChange = func(evt pipeline.PhaseEvent) { trace = append(trace, evt) }

	res := orch.Execute(context.Background(), pc)
	require.Equal(t, OutcomeSuccess, res.Kind)
	require.Equal(t, 2, res.WaveCount)

	sawNeedsFix, sawSecondWave := false, false
	for _, evt := range trace {
		if evt.Phase == coordinator.PhaseNeedsFix && evt.Wave == 1 {
			sawNeedsFix = true
		}
		if evt.Phase == coordinator.PhaseExecuting && evt.Wave == 2 {
			sawSecondWave = true
		}
	}
	require.True(t, sawNeedsFix, "NeedsFix emitted for the rejected wave")
	require.True(t, sawSecondWave, "second wave starts after rejection")
}

func TestExecute_MaxWavesEmitsTerminalPhase(t *testing.T) {
	outputs := []string{samplePlan}
	for i := 0; i < 3; i++ {
		outputs = append(outputs, "Task completed.", "NOT APPROVED for Add health endpoint")
	}
	sp := &scriptedProvider{outputs: outputs}
	orch, pc := newHarness(t, sp)

	var last pipeline.PhaseEvent
	pc.OnPhaseChange = func(evt pipeline.PhaseEvent) { last = evt }

	res := orch.Execute(context.Background(), pc)
	require.Equal(t, OutcomeMaxWavesReached, res.Kind)
	require.Equal(t, coordinator.PhaseMaxWavesReached, last.Phase)
	require.Equal(t, 3, last.Wave)
}

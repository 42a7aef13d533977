// Package orchestrator runs the bounded wave loop that drives the four
// pipeline stages to completion, a no-tasks no-op, a max-waves abort, or a
// terminal failure.
package orchestrator

import (
	"context"

	"github.com/routa-dev/routa/internal/coordinator"
	"github.com/routa-dev/routa/internal/pipeline"
	"github.com/routa-dev/routa/internal/routaerr"
)

// OutcomeKind is one of the four terminal shapes an orchestration run ends in.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "SUCCESS"
	OutcomeNoTasks         OutcomeKind = "NO_TASKS"
	OutcomeMaxWavesReached OutcomeKind = "MAX_WAVES_REACHED"
	OutcomeFailed          OutcomeKind = "FAILED"
)

// Result is returned by Execute.
type Result struct {
	Kind      OutcomeKind
	Message   string
	WaveCount int
	TaskIDs   []string
	Err       error
}

const defaultMaxWaves = 3

// namedStage pairs a stage function with the name RepeatPipeline results
// use to target it.
type namedStage struct {
	name string
	fn   func(context.Context, *pipeline.Context) pipeline.StageResult
}

var stages = []namedStage{
	{pipeline.StageNamePlanning, pipeline.RunStage1Planning},
	{pipeline.StageNameTaskRegistration, pipeline.RunStage2TaskRegistration},
	{pipeline.StageNameCrafterExecution, pipeline.RunStage3CrafterExecution},
	{pipeline.StageNameGateVerification, pipeline.RunStage4GateVerification},
}

// crafterExecutionIndex is the default resume point for a RepeatPipeline
// result that names no stage.
const crafterExecutionIndex = 2

func stageIndex(name string) int {
	if name == "" {
		return crafterExecutionIndex
	}
	for i, s := range stages {
		if s.name == name {
			return i
		}
	}
	return crafterExecutionIndex
}

// Orchestrator drives a single pipeline.Context through waves of the four
// stages until one of them signals Done/Failed, or the wave budget runs out.
type Orchestrator struct {
	Coordinator *coordinator.Coordinator
	MaxWaves    int
}

// New constructs an Orchestrator. maxWaves <= 0 uses the default of 3.
func New(coord *coordinator.Coordinator, maxWaves int) *Orchestrator {
	if maxWaves <= 0 {
		maxWaves = defaultMaxWaves
	}
	return &Orchestrator{Coordinator: coord, MaxWaves: maxWaves}
}

// Execute drives pc through the four stages. The first pipeline iteration
// always starts at Planning; a RepeatPipeline result resumes at whichever
// stage it names (CrafterExecution by default) rather than re-planning, so
// a GATE rejection does not re-invoke ROUTA.
func (o *Orchestrator) Execute(ctx context.Context, pc *pipeline.Context) Result {
	pc.EmitPhase(pipeline.PhaseEvent{Phase: coordinator.PhaseInitializing})

	startIdx := 0
	for iteration := 1; iteration <= o.MaxWaves; iteration++ {
		res, stop, fromStage := o.runFrom(ctx, pc, startIdx)
		if stop {
			return res
		}
		startIdx = stageIndex(fromStage)
	}

	pc.EmitPhase(pipeline.PhaseEvent{Phase: coordinator.PhaseMaxWavesReached, Wave: pc.WaveNumber})
	return Result{
		Kind:      OutcomeMaxWavesReached,
		Message:   "exhausted wave budget without full approval",
		WaveCount: pc.WaveNumber,
		TaskIDs:   pc.TaskIDs,
		Err:       routaerr.PipelineFailure("orchestrator", routaerr.Validation("max waves reached")),
	}
}

// runFrom runs stages[startIdx:] in order. The bool return says whether the
// overall Execute loop should stop (true, returning res) or continue at the
// stage named by the third return value (false).
func (o *Orchestrator) runFrom(ctx context.Context, pc *pipeline.Context, startIdx int) (Result, bool, string) {
	for i := startIdx; i < len(stages); i++ {
		if stages[i].name == pipeline.StageNameCrafterExecution {
			pc.WaveNumber++
			if o.Coordinator != nil {
				o.Coordinator.IncrementWave(pc.WorkspaceID)
			}
		}

		res := stages[i].fn(ctx, pc)
		switch res.Kind {
		case pipeline.Continue:
			continue
		case pipeline.SkipRemaining:
			if pc.WaveNumber <= 1 && len(pc.TaskIDs) == 0 {
				return Result{Kind: OutcomeNoTasks, Message: res.Message, WaveCount: pc.WaveNumber}, true, ""
			}
			return Result{Kind: OutcomeSuccess, Message: res.Message, WaveCount: pc.WaveNumber, TaskIDs: pc.TaskIDs}, true, ""
		case pipeline.RepeatPipeline:
			return Result{}, false, res.FromStage
		case pipeline.Done:
			return Result{Kind: OutcomeSuccess, Message: res.Message, WaveCount: pc.WaveNumber, TaskIDs: pc.TaskIDs}, true, ""
		case pipeline.Failed:
			if routaerr.IsCancelled(res.Err) {
				cleanupRun(pc)
			}
			return Result{Kind: OutcomeFailed, Message: "pipeline stage failed", WaveCount: pc.WaveNumber, TaskIDs: pc.TaskIDs, Err: res.Err}, true, ""
		}
	}
	// All stages returned Continue without a terminal signal: treat as
	// success (GATE stage always returns Done/RepeatPipeline/Failed,
	// never bare Continue, but this keeps the loop well-defined).
	return Result{Kind: OutcomeSuccess, WaveCount: pc.WaveNumber, TaskIDs: pc.TaskIDs}, true, ""
}

// cleanupRun best-effort interrupts and releases every agent the run drove:
// in-flight provider calls are interrupted and per-agent provider state is
// released.
func cleanupRun(pc *pipeline.Context) {
	if pc.Router == nil {
		return
	}
	if pc.RoutaAgentID != "" {
		pc.Router.Interrupt(pc.RoutaAgentID)
		pc.Router.Cleanup(pc.RoutaAgentID)
	}
	for _, agentID := range pc.Delegations {
		pc.Router.Interrupt(agentID)
		pc.Router.Cleanup(agentID)
	}
	if pc.GateAgentID != "" {
		pc.Router.Interrupt(pc.GateAgentID)
		pc.Router.Cleanup(pc.GateAgentID)
	}
}

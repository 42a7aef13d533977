// Package pipeline implements the four-stage execution pipeline:
// Planning, TaskRegistration, CrafterExecution, GateVerification. Each
// stage is a function of a *Context returning a StageResult that tells the
// orchestrator what to do next.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/common/stringutil"
	"github.com/routa-dev/routa/internal/coordinator"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/reportparser"
	"github.com/routa-dev/routa/internal/routaerr"
	"github.com/routa-dev/routa/internal/store"
	"github.com/routa-dev/routa/internal/taskparser"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ResultKind is one of the five outcomes a stage can hand back to the
// orchestrator loop.
type ResultKind string

const (
	// Continue proceeds to the next stage in sequence.
	Continue ResultKind = "CONTINUE"
	// SkipRemaining stops the pipeline for this wave without it being an
	// error (e.g. planning produced zero tasks).
	SkipRemaining ResultKind = "SKIP_REMAINING"
	// RepeatPipeline restarts the pipeline at FromStage (default S3,
	// CrafterExecution) for another wave: GATE rejected one or more tasks
	// and a retry budget remains.
	RepeatPipeline ResultKind = "REPEAT_PIPELINE"
	// Done means the whole orchestration run has finished successfully.
	Done ResultKind = "DONE"
	// Failed means the run has failed unrecoverably.
	Failed ResultKind = "FAILED"
)

// StageResult is returned by every stage function.
type StageResult struct {
	Kind ResultKind
	// FromStage names the stage RepeatPipeline should resume at (one of the
	// StageName* constants). Empty means the orchestrator default,
	// crafter-execution.
	FromStage string
	Message   string
	Err       error
}

// Stage name constants, used as the FromStage value on RepeatPipeline
// results and to identify stages in the orchestrator's stage table.
const (
	StageNamePlanning         = "planning"
	StageNameTaskRegistration = "task-registration"
	StageNameCrafterExecution = "crafter-execution"
	StageNameGateVerification = "gate-verification"
)

func cont() StageResult           { return StageResult{Kind: Continue} }
func skip(msg string) StageResult { return StageResult{Kind: SkipRemaining, Message: msg} }
func repeatFrom(fromStage, msg string) StageResult {
	return StageResult{Kind: RepeatPipeline, FromStage: fromStage, Message: msg}
}
func done(msg string) StageResult  { return StageResult{Kind: Done, Message: msg} }
func failed(err error) StageResult { return StageResult{Kind: Failed, Err: err} }

// Cancellation is the single cancellation handle threaded through a
// pipeline run; Cancel() is safe to call from any goroutine and any number
// of times.
type Cancellation struct {
	ch chan struct{}
}

// NewCancellation returns a fresh, not-yet-cancelled handle.
func NewCancellation() *Cancellation { return &Cancellation{ch: make(chan struct{})} }

// Cancel marks the handle cancelled. Safe to call more than once.
func (c *Cancellation) Cancel() {
	select {
	case <-c.ch:
	default:
		close(c.ch)
	}
}

// Cancelled reports whether Cancel has been called.
func (c *Cancellation) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Context carries everything a stage needs and everything it produces,
// threaded through one run of the pipeline. The orchestrator creates one
// Context per run and reuses it across waves: TaskIDs/WaveNumber accumulate,
// and Delegations is deliberately never cleared between waves so a
// NEEDS_FIX task's next CrafterExecution pass re-wakes the same agent
// instead of spawning a new one.
type Context struct {
	Agents        store.AgentStore
	Tasks         store.TaskStore
	Conversations store.ConversationStore
	Router        provider.Provider
	Tools         *agenttools.Toolset
	Coordinator   *coordinator.Coordinator
	Bus           *eventbus.Bus
	Log           *logger.Logger

	WorkspaceID       string
	UserRequest       string
	// ParallelCrafters runs a wave's crafter turns concurrently; no
	// file-level locking or conflict detection is done between them.
	ParallelCrafters  bool
	MaxParallelism    int
	RoutaAgentID      string
	GateAgentID       string
	PlanOutput        string
	TaskIDs           []string
	WaveNumber        int
	Delegations       map[string]string // taskID -> agentID

	OnPhaseChange  func(PhaseEvent)
	OnStreamChunk  func(provider.Chunk)

	Cancellation *Cancellation
	Metadata     map[string]any
}

// NewContext builds a fresh pipeline Context for one orchestration run.
func NewContext(workspaceID, userRequest string) *Context {
	return &Context{
		WorkspaceID:  workspaceID,
		UserRequest:  userRequest,
		Delegations:  make(map[string]string),
		Cancellation: NewCancellation(),
		Metadata:     make(map[string]any),
		Log:          logger.Default(),
	}
}

// PhaseEvent is one entry in a run's phase trace. Wave and TaskCount carry
// the wave/count parameters some phases are qualified by (WaveStarting(w),
// TasksRegistered(n)); they are zero when a phase has no such parameter.
type PhaseEvent struct {
	Phase     coordinator.Phase
	Wave      int
	TaskCount int
}

// EmitPhase records a phase transition on the coordination state machine
// (for persisted phases) and delivers the event to OnPhaseChange. Phase
// events within one run are delivered sequentially, never concurrently, so
// observers see a consistent state-machine trace.
func (pc *Context) EmitPhase(evt PhaseEvent) {
	if pc.Coordinator != nil && evt.Phase.Persisted() {
		_ = pc.Coordinator.Transition(pc.WorkspaceID, evt.Phase)
	}
	if pc.OnPhaseChange != nil {
		pc.OnPhaseChange(evt)
	}
}

func (pc *Context) emitPhase(p coordinator.Phase) {
	pc.EmitPhase(PhaseEvent{Phase: p, Wave: pc.WaveNumber})
}

func (pc *Context) ensureActive(ctx context.Context) error {
	if pc.Cancellation != nil && pc.Cancellation.Cancelled() {
		return routaerr.Cancelled()
	}
	if err := ctx.Err(); err != nil {
		return routaerr.Cancelled()
	}
	return nil
}

func (pc *Context) streamSink() provider.OnChunk {
	return func(c provider.Chunk) {
		if pc.OnStreamChunk != nil {
			pc.OnStreamChunk(c)
		}
	}
}

// RunStage1Planning drives the ROUTA agent to produce @@@task blocks for
// pc.UserRequest. Retry policy: this stage makes a single provider call and
// does not retry it; an empty plan is not retried either (it is
// reported to the orchestrator as SkipRemaining so it can decide whether
// this was a no-op run).
func RunStage1Planning(ctx context.Context, pc *Context) StageResult {
	if err := pc.ensureActive(ctx); err != nil {
		return failed(err)
	}
	pc.emitPhase(coordinator.PhasePlanning)

	agentCtx, err := pc.Coordinator.BuildAgentContext(ctx, pc.RoutaAgentID)
	if err != nil {
		return failed(err)
	}

	prompt := agentCtx.SystemPrompt + "\n\n" + agentCtx.TaskSummary + "\n\nRequest:\n" + pc.UserRequest

	if err := pc.Conversations.Append(ctx, &store.Message{AgentID: pc.RoutaAgentID, Role: store.MessageRoleUser, Content: prompt}); err != nil {
		return failed(err)
	}
	if err := pc.Agents.UpdateStatus(ctx, pc.RoutaAgentID, store.AgentStatusActive); err != nil {
		return failed(err)
	}

	output, err := pc.Router.RunStreaming(ctx, store.RoleRouta, pc.RoutaAgentID, prompt, pc.streamSink())
	if err != nil {
		if routaerr.IsCancelled(err) {
			return failed(err)
		}
		return failed(routaerr.PipelineFailure("planning", err))
	}

	if err := pc.Conversations.Append(ctx, &store.Message{AgentID: pc.RoutaAgentID, Role: store.MessageRoleAssistant, Content: output}); err != nil {
		return failed(err)
	}
	if err := pc.Agents.UpdateStatus(ctx, pc.RoutaAgentID, store.AgentStatusIdle); err != nil {
		return failed(err)
	}

	pc.PlanOutput = output
	pc.emitPhase(coordinator.PhasePlanReady)
	tasks := taskparser.Parse(output, pc.WorkspaceID)
	if len(tasks) == 0 {
		return skip("planning produced no @@@task blocks")
	}
	pc.Metadata["parsedTasks"] = tasks
	return cont()
}

// RunStage2TaskRegistration persists every parsed task and records its id on
// pc.TaskIDs. No retry: persistence failures here are store-layer bugs, not
// transient provider errors.
func RunStage2TaskRegistration(ctx context.Context, pc *Context) StageResult {
	if err := pc.ensureActive(ctx); err != nil {
		return failed(err)
	}

	parsed, _ := pc.Metadata["parsedTasks"].([]*store.Task)
	for _, task := range parsed {
		if err := pc.Tasks.Save(ctx, task); err != nil {
			return failed(err)
		}
		pc.TaskIDs = append(pc.TaskIDs, task.ID)
		pc.Bus.Emit(eventbus.Event{Type: eventbus.EventTaskStatusChanged, WorkspaceID: pc.WorkspaceID,
			Data: map[string]any{"taskId": task.ID, "status": string(task.Status)}})
	}
	pc.emitPhase(coordinator.PhaseReady)
	pc.EmitPhase(PhaseEvent{Phase: coordinator.PhaseTasksRegistered, TaskCount: len(parsed)})
	return cont()
}

// RunStage3CrafterExecution spawns or wakes a CRAFTER agent per ready task
// and drives its turn, serially or with bounded concurrency when
// pc.ParallelCrafters is set. Retry policy: each task's turn goes through
// the provider's own resilient wrapper for transient retries; a
// semantic NEEDS_FIX here simply leaves the task in that status for S4/the
// next wave to pick up, it is not retried within this stage.
func RunStage3CrafterExecution(ctx context.Context, pc *Context) StageResult {
	if err := pc.ensureActive(ctx); err != nil {
		return failed(err)
	}
	pc.emitPhase(coordinator.PhaseExecuting)

	ready, err := pc.Tasks.FindReadyTasks(ctx, pc.WorkspaceID)
	if err != nil {
		return failed(err)
	}
	if len(ready) == 0 {
		all, err := pc.Tasks.ListByWorkspace(ctx, pc.WorkspaceID)
		if err != nil {
			return failed(err)
		}
		allComplete := len(all) > 0
		for _, t := range all {
			if t.Status != store.TaskStatusCompleted {
				allComplete = false
				break
			}
		}
		if allComplete {
			pc.emitPhase(coordinator.PhaseCompleted)
			return skip("all tasks completed")
		}
		// Tasks exist but none are ready (e.g. waiting on a dependency
		// still under review); fall through to GateVerification instead
		// of ending the run early.
		return cont()
	}

	maxParallel := pc.MaxParallelism
	if maxParallel <= 0 {
		maxParallel = 4
	}
	if sel, ok := pc.Router.(interface {
		SelectProvider(provider.Role) (provider.Provider, error)
	}); ok {
		if p, err := sel.SelectProvider(store.RoleCrafter); err == nil {
			if limit := p.Capabilities().MaxConcurrentAgents; limit > 0 && limit < maxParallel {
				maxParallel = limit
			}
		}
	}

	runOne := func(ctx context.Context, task *store.Task) error {
		return pc.executeCrafterTask(ctx, task)
	}

	if !pc.ParallelCrafters {
		for _, task := range ready {
			if err := pc.ensureActive(ctx); err != nil {
				return failed(err)
			}
			if err := runOne(ctx, task); err != nil {
				pc.Log.WithTaskID(task.ID).WithError(err).Warn("crafter execution failed")
			}
		}
		pc.emitPhase(coordinator.PhaseWaveComplete)
		return cont()
	}

	grp, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(maxParallel))
	acquireFailed := false
	for _, task := range ready {
		task := task
		if err := sem.Acquire(gctx, 1); err != nil {
			acquireFailed = true
			break
		}
		grp.Go(func() error {
			defer sem.Release(1)
			if err := runOne(gctx, task); err != nil {
				pc.Log.WithTaskID(task.ID).WithError(err).Warn("crafter execution failed")
			}
			return nil // individual task failures do not abort the wave
		})
	}
	if err := grp.Wait(); err != nil {
		return failed(err)
	}
	if acquireFailed {
		return failed(routaerr.Cancelled())
	}

	pc.emitPhase(coordinator.PhaseWaveComplete)
	return cont()
}

func (pc *Context) executeCrafterTask(ctx context.Context, task *store.Task) error {
	agentID, ok := pc.Delegations[task.ID]
	if !ok {
		agentID = task.AssignedTo
	}
	if agentID == "" {
		agent := &store.Agent{
			ID:          uuid.New().String(),
			Name:        stringutil.Slugify(task.Title),
			Role:        store.RoleCrafter,
			WorkspaceID: pc.WorkspaceID,
			ParentID:    pc.RoutaAgentID,
			ModelTier:   store.ModelTierSmart,
			Status:      store.AgentStatusPending,
		}
		if err := pc.Agents.Save(ctx, agent); err != nil {
			return err
		}
		agentID = agent.ID
		pc.Bus.Emit(eventbus.Event{Type: eventbus.EventAgentCreated, AgentID: agentID, WorkspaceID: pc.WorkspaceID,
			Data: map[string]any{"role": string(store.RoleCrafter), "taskId": task.ID}})
	}
	pc.Delegations[task.ID] = agentID

	task.AssignedTo = agentID
	task.Status = store.TaskStatusInProgress
	if err := pc.Tasks.Save(ctx, task); err != nil {
		return err
	}
	if err := pc.Agents.UpdateStatus(ctx, agentID, store.AgentStatusActive); err != nil {
		return err
	}

	agentCtx, err := pc.Coordinator.BuildAgentContext(ctx, agentID)
	if err != nil {
		return err
	}
	prompt := agentCtx.SystemPrompt + "\n\n" + taskPrompt(task)

	if err := pc.Conversations.Append(ctx, &store.Message{AgentID: agentID, Role: store.MessageRoleUser, Content: prompt}); err != nil {
		return err
	}

	output, runErr := pc.Router.RunStreaming(ctx, store.RoleCrafter, agentID, prompt, pc.streamSink())
	if runErr != nil && !routaerr.IsTransient(runErr) {
		_ = pc.Agents.UpdateStatus(ctx, agentID, store.AgentStatusError)
		task.Status = store.TaskStatusNeedsFix
		task.CompletionSummary = "provider error: " + runErr.Error()
		return pc.Tasks.Save(ctx, task)
	}

	if err := pc.Conversations.Append(ctx, &store.Message{AgentID: agentID, Role: store.MessageRoleAssistant, Content: output}); err != nil {
		return err
	}

	report := reportparser.ParseCrafterCompletion(agentID, output, task)
	if report != nil && report.Success {
		task.Status = store.TaskStatusReviewRequired
		task.CompletionSummary = report.Summary
	} else {
		task.Status = store.TaskStatusNeedsFix
		if report != nil {
			task.CompletionSummary = report.Summary
		} else {
			task.CompletionSummary = "no completion statement parsed"
		}
	}
	if err := pc.Tasks.Save(ctx, task); err != nil {
		return err
	}
	return pc.Agents.UpdateStatus(ctx, agentID, store.AgentStatusCompleted)
}

func taskPrompt(task *store.Task) string {
	return fmt.Sprintf("# %s\n\n## Objective\n%s\n\n## Scope\n- %s\n\n## Definition of Done\n- %s\n\n## Verification\n- %s",
		task.Title, task.Objective,
		joinOrNone(task.Scope), joinOrNone(task.AcceptanceCriteria), joinOrNone(task.VerificationCommands))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none specified)"
	}
	out := ""
	for i, it := range items {
		if i > 0 {
			out += "\n- "
		}
		out += it
	}
	return out
}

// RunStage4GateVerification drives a GATE agent over every REVIEW_REQUIRED
// task, applies verdicts, and decides whether another wave is needed.
// Retry policy: the wave loop itself (driven by the orchestrator) is the
// retry mechanism for NEEDS_FIX; this stage never re-invokes GATE within
// the same call.
func RunStage4GateVerification(ctx context.Context, pc *Context) StageResult {
	if err := pc.ensureActive(ctx); err != nil {
		return failed(err)
	}
	pc.emitPhase(coordinator.PhaseVerifying)

	all, err := pc.Tasks.ListByWorkspace(ctx, pc.WorkspaceID)
	if err != nil {
		return failed(err)
	}
	var underReview []*store.Task
	for _, t := range all {
		if t.Status == store.TaskStatusReviewRequired {
			underReview = append(underReview, t)
		}
	}
	if len(underReview) == 0 {
		allCompleted := len(all) > 0
		for _, t := range all {
			if t.Status != store.TaskStatusCompleted {
				allCompleted = false
				break
			}
		}
		if allCompleted {
			pc.emitPhase(coordinator.PhaseCompleted)
			return done("all tasks completed")
		}
		// Nothing reached review this wave (every crafter failed or tasks
		// are still blocked on dependencies); re-enter crafter execution
		// within the wave budget rather than declaring success.
		return repeatFrom(StageNameCrafterExecution, "no tasks reached review, retrying unfinished tasks")
	}

	if pc.GateAgentID == "" {
		agent := &store.Agent{
			ID:          uuid.New().String(),
			Name:        "gate",
			Role:        store.RoleGate,
			WorkspaceID: pc.WorkspaceID,
			ParentID:    pc.RoutaAgentID,
			ModelTier:   store.ModelTierSmart,
			Status:      store.AgentStatusPending,
		}
		if err := pc.Agents.Save(ctx, agent); err != nil {
			return failed(err)
		}
		pc.GateAgentID = agent.ID
		pc.Coordinator.SetGateAgent(pc.WorkspaceID, agent.ID)
	}

	agentCtx, err := pc.Coordinator.BuildAgentContext(ctx, pc.GateAgentID)
	if err != nil {
		return failed(err)
	}
	verificationCtx, err := pc.gatePrompt(ctx, underReview)
	if err != nil {
		return failed(err)
	}
	prompt := agentCtx.SystemPrompt + "\n\n" + verificationCtx

	if err := pc.Conversations.Append(ctx, &store.Message{AgentID: pc.GateAgentID, Role: store.MessageRoleUser, Content: prompt}); err != nil {
		return failed(err)
	}
	if err := pc.Agents.UpdateStatus(ctx, pc.GateAgentID, store.AgentStatusActive); err != nil {
		return failed(err)
	}

	output, err := pc.Router.RunStreaming(ctx, store.RoleGate, pc.GateAgentID, prompt, pc.streamSink())
	if err != nil {
		if routaerr.IsCancelled(err) {
			return failed(err)
		}
		return failed(routaerr.PipelineFailure("gate_verification", err))
	}
	if err := pc.Conversations.Append(ctx, &store.Message{AgentID: pc.GateAgentID, Role: store.MessageRoleAssistant, Content: output}); err != nil {
		return failed(err)
	}
	if err := pc.Agents.UpdateStatus(ctx, pc.GateAgentID, store.AgentStatusIdle); err != nil {
		return failed(err)
	}

	gateAgent, err := pc.Agents.Get(ctx, pc.GateAgentID)
	if err != nil {
		return failed(err)
	}

	// A COMPLETED gate agent means the tool-calling path already filed
	// reports: the provider called report_to_parent itself during the turn,
	// so there is nothing left to reconcile here. Otherwise fall back to
	// parsing the streamed text.
	var verdicts map[string]reportparser.Verdict
	if gateAgent.Status != store.AgentStatusCompleted {
		verdicts = reportparser.ParseGateVerdicts(pc.GateAgentID, output, underReview)
	}

	anyRejected := false
	for _, t := range underReview {
		if gateAgent.Status == store.AgentStatusCompleted {
			refreshed, err := pc.Tasks.Get(ctx, t.ID)
			if err != nil {
				return failed(err)
			}
			if refreshed.Status != store.TaskStatusCompleted {
				anyRejected = true
				if refreshed.Status == store.TaskStatusNeedsFix {
					refreshed.Status = store.TaskStatusPending
					refreshed.AssignedTo = ""
					if err := pc.Tasks.Save(ctx, refreshed); err != nil {
						return failed(err)
					}
				}
			}
			continue
		}

		verdict, known := verdicts[t.ID]
		approved := known && verdict == reportparser.VerdictApproved
		summary := "No verdict parsed"
		if approved {
			summary = "approved by gate"
		} else if known {
			summary = "rejected by gate"
		}

		// report_to_parent is filed against the CRAFTER that owns the task:
		// it finalizes that agent's report, transitions the task, and
		// appends the completion message to the CRAFTER's parent (ROUTA)'s
		// conversation.
		reporterID := t.AssignedTo
		if reporterID == "" {
			reporterID = pc.Delegations[t.ID]
		}
		if reporterID == "" {
			// No crafter on record for this task; fall back to direct
			// status mutation so the wave still makes forward progress.
			if approved {
				t.Status = store.TaskStatusCompleted
			} else {
				t.Status = store.TaskStatusPending
				t.AssignedTo = ""
				anyRejected = true
			}
			t.CompletionSummary = summary
			if err := pc.Tasks.Save(ctx, t); err != nil {
				return failed(err)
			}
			continue
		}

		res := pc.Tools.ReportToParent(ctx, reporterID, t.ID, summary, approved, nil)
		if !res.Success {
			return failed(routaerr.PipelineFailure("gate_verification", fmt.Errorf("report_to_parent: %s", res.Error)))
		}
		if !approved {
			// Rejected tasks reset straight to PENDING with assignedTo
			// cleared so FindReadyTasks picks them up next wave;
			// pc.Delegations is kept so the next crafter pass re-wakes the
			// same agent rather than spawning a fresh one.
			refreshed, err := pc.Tasks.Get(ctx, t.ID)
			if err != nil {
				return failed(err)
			}
			refreshed.Status = store.TaskStatusPending
			refreshed.AssignedTo = ""
			if err := pc.Tasks.Save(ctx, refreshed); err != nil {
				return failed(err)
			}
			anyRejected = true
		}
	}

	pc.Router.Cleanup(pc.GateAgentID)
	pc.emitPhase(coordinator.PhaseVerificationCompleted)

	if anyRejected {
		pc.emitPhase(coordinator.PhaseNeedsFix)
		return repeatFrom(StageNameCrafterExecution, "one or more tasks rejected by gate, repeating pipeline")
	}

	allTasks, err := pc.Tasks.ListByWorkspace(ctx, pc.WorkspaceID)
	if err != nil {
		return failed(err)
	}
	for _, t := range allTasks {
		if t.Status != store.TaskStatusCompleted {
			return repeatFrom(StageNameCrafterExecution, "tasks remain incomplete, repeating pipeline")
		}
	}

	pc.emitPhase(coordinator.PhaseCompleted)
	return done("all tasks approved")
}

// gateMessageLimit caps each crafter conversation excerpt included in the
// verification context.
const (
	gateMessageLimit = 500
	gateMessageCount = 5
)

// gatePrompt renders the verification context: per task under review,
// its definition, the crafter's completion summary, the tail of the
// crafter's conversation, and the verification commands.
func (pc *Context) gatePrompt(ctx context.Context, tasks []*store.Task) (string, error) {
	var b strings.Builder
	b.WriteString("Review the following tasks.\n\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "## %s (id: %s)\nObjective: %s\nAcceptance Criteria:\n- %s\n",
			t.Title, t.ID, t.Objective, joinOrNone(t.AcceptanceCriteria))
		if t.CompletionSummary != "" {
			fmt.Fprintf(&b, "Crafter completion summary: %s\n", t.CompletionSummary)
		}
		if t.AssignedTo != "" {
			recent, err := pc.Conversations.GetLastN(ctx, t.AssignedTo, gateMessageCount)
			if err != nil {
				return "", err
			}
			if len(recent) > 0 {
				b.WriteString("Recent crafter conversation:\n")
				for _, m := range recent {
					fmt.Fprintf(&b, "[%s] %s\n", m.Role, stringutil.Excerpt(m.Content, gateMessageLimit))
				}
			}
		}
		fmt.Fprintf(&b, "Verification commands:\n- %s\n\n", joinOrNone(t.VerificationCommands))
	}
	b.WriteString("Verify each task against its Acceptance Criteria. Output APPROVED or NOT APPROVED per task, with evidence.")
	return b.String(), nil
}

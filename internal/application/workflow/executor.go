package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/YoshitsuguKoike/deeflow/internal/app"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/application/service"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/feature"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/step"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/timing"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

// TracerName is the instrumentation scope of workflow spans
const TracerName = "deeflow/workflow"

// DefaultMaxValidationRetries is how often a node may re-run after invalid output
const DefaultMaxValidationRetries = 3

// errRunCancelled stops the executor when the run left `running` under it,
// for example because the feature was deleted
var errRunCancelled = errors.New("run is no longer running")

// ExecutorDeps are the collaborators the executor cannot run without
type ExecutorDeps struct {
	Runs        repository.AgentRunRepository
	Features    repository.FeatureRepository
	Steps       repository.ExecutionStepRepository
	Timings     repository.PhaseTimingRepository
	Checkpoints repository.CheckpointRepository
	SpecDocs    repository.SpecDocumentRepository
	Agent       output.AgentGateway
	Prompts     *service.PromptBuilderService
	Verifier    *service.MergeVerifier
}

// Option configures an Executor
type Option func(*Executor)

// WithStorage archives every agent result as a run artifact
func WithStorage(storage output.StorageGateway) Option {
	return func(e *Executor) { e.storage = storage }
}

// WithLogger sets the logger
func WithLogger(logger app.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for node spans
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithMaxValidationRetries sets the validation retry ceiling
func WithMaxValidationRetries(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxValidationRetries = n
		}
	}
}

// WithAgentTimeout bounds every agent call
func WithAgentTimeout(d time.Duration) Option {
	return func(e *Executor) { e.agentTimeout = d }
}

// Executor runs the feature workflow of one agent run inside a worker
// process. It advances node by node, checkpoints at every node boundary and
// returns when the run completes, fails or suspends at an approval gate.
type Executor struct {
	runs        repository.AgentRunRepository
	features    repository.FeatureRepository
	checkpoints repository.CheckpointRepository
	specDocs    repository.SpecDocumentRepository
	agent       output.AgentGateway
	prompts     *service.PromptBuilderService
	verifier    *service.MergeVerifier
	storage     output.StorageGateway

	rec    *recorder
	logger app.Logger
	tracer trace.Tracer
	now    func() time.Time

	maxValidationRetries int
	agentTimeout         time.Duration
}

// NewExecutor creates an executor
func NewExecutor(deps ExecutorDeps, opts ...Option) *Executor {
	e := &Executor{
		runs:                 deps.Runs,
		features:             deps.Features,
		checkpoints:          deps.Checkpoints,
		specDocs:             deps.SpecDocs,
		agent:                deps.Agent,
		prompts:              deps.Prompts,
		verifier:             deps.Verifier,
		logger:               app.GetLogger(),
		tracer:               otel.Tracer(TracerName),
		now:                  func() time.Time { return time.Now().UTC() },
		maxValidationRetries: DefaultMaxValidationRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.prompts == nil {
		e.prompts = service.NewPromptBuilderService()
	}
	e.rec = &recorder{
		steps:   deps.Steps,
		timings: deps.Timings,
		logger:  e.logger,
		now:     e.now,
	}
	return e
}

// RunRequest selects the run to execute and how to start it
type RunRequest struct {
	RunID string
	// FeatureID and ThreadID, when set, must match the stored run
	FeatureID string
	ThreadID  string
	// ApprovalGates overrides the run's gate snapshot when set
	ApprovalGates *execution.ApprovalGates
	// Resume continues from the latest checkpoint of the run's thread
	Resume bool
	// ResumeFromInterrupt applies ResumePayload to a suspended checkpoint
	ResumeFromInterrupt bool
	ResumePayload       *execution.ResumeCommand
}

// Outcome is how a worker invocation ended
type Outcome struct {
	RunID   string
	Status  agentrun.RunStatus
	Node    execution.Node
	Version int
	Err     error
}

// workflowRun is the mutable state of one executor invocation
type workflowRun struct {
	run     *agentrun.AgentRun
	feature *feature.Feature
	gates   *execution.ApprovalGates
	state   *execution.WorkflowState
	// approved is the node whose gate was approved by the resume command
	approved execution.Node
	version  int
}

// Run executes the workflow until it completes, fails or suspends.
//
// Business outcomes (failed, suspended, cancelled) are reported in the
// Outcome. An error is only returned when the run could not be loaded or its
// status could not be written.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*Outcome, error) {
	run, err := e.runs.FindByID(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if req.FeatureID != "" && req.FeatureID != run.FeatureID {
		return nil, fmt.Errorf("run %s belongs to feature %s, not %s", run.ID, run.FeatureID, req.FeatureID)
	}
	if req.ThreadID != "" && req.ThreadID != run.ThreadID {
		return nil, fmt.Errorf("run %s is on thread %s, not %s", run.ID, run.ThreadID, req.ThreadID)
	}
	feat, err := e.features.FindByID(ctx, run.FeatureID)
	if err != nil {
		return nil, err
	}

	update := repository.RunStatusUpdate{}
	if run.StartedAt == nil {
		startedAt := e.now()
		update.StartedAt = &startedAt
	}
	ok, err := e.runs.CompareAndSetStatus(ctx, run.ID,
		[]agentrun.RunStatus{agentrun.StatusPending, agentrun.StatusRunning},
		agentrun.StatusRunning, update)
	if err != nil {
		return nil, fmt.Errorf("mark run running: %w", err)
	}
	if !ok {
		current, err := e.runs.FindByID(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		e.logger.Warn("run %s is %s, not starting", run.ID, current.Status)
		return &Outcome{RunID: run.ID, Status: current.Status}, nil
	}

	gates := run.ApprovalGates
	if req.ApprovalGates != nil {
		gates = req.ApprovalGates
	}
	wr := &workflowRun{run: run, feature: feat, gates: gates}

	if err := e.prepareState(ctx, wr, req); err != nil {
		return e.fail(ctx, wr, "", err)
	}

	// A checkpoint suspended by a worker that died before updating the run
	// is suspended again instead of re-running the node
	if wr.state.PendingInterrupt != nil {
		node := wr.state.PendingInterrupt.Node
		if err := e.suspend(ctx, wr, node, nil, nil); err != nil {
			return e.fail(ctx, wr, node, err)
		}
		return e.outcome(wr, agentrun.StatusWaitingApproval, node, nil), nil
	}

	for {
		node := wr.state.CurrentNode
		suspended, err := e.executeNode(ctx, wr, node)
		if err != nil {
			return e.fail(ctx, wr, node, err)
		}
		if suspended {
			return e.outcome(wr, agentrun.StatusWaitingApproval, node, nil), nil
		}

		wr.state.MarkCompleted(node)
		next, ok := node.Next()
		if !ok {
			return e.complete(ctx, wr, node)
		}
		wr.state.CurrentNode = next
		if err := e.checkpoint(ctx, wr); err != nil {
			return e.fail(ctx, wr, next, err)
		}
	}
}

// prepareState builds the starting state: fresh, resumed from the latest
// checkpoint, or resumed from an interrupt with the human decision applied
func (e *Executor) prepareState(ctx context.Context, wr *workflowRun, req RunRequest) error {
	if !req.Resume && !req.ResumeFromInterrupt {
		wr.state = execution.NewWorkflowState(wr.feature.Push, wr.feature.OpenPR)
		return nil
	}

	cp, err := e.checkpoints.LoadLatest(ctx, wr.run.ThreadID)
	if err != nil {
		if execution.CodeOf(err) == execution.ErrCheckpointNotFound.Code && !req.ResumeFromInterrupt {
			e.logger.Info("no checkpoint for thread %s, starting fresh", wr.run.ThreadID)
			wr.state = execution.NewWorkflowState(wr.feature.Push, wr.feature.OpenPR)
			return nil
		}
		return err
	}
	state := cp.State
	wr.state = &state
	wr.version = cp.Version

	if !req.ResumeFromInterrupt {
		// a resumed run starts with a fresh validation retry budget
		wr.state.ResetValidation()
		return nil
	}

	if req.ResumePayload == nil {
		return execution.ErrInvalidResumeCommand
	}
	if err := req.ResumePayload.Validate(); err != nil {
		return err
	}
	if state.PendingInterrupt == nil {
		return execution.ErrNotSuspended.WithDetails(map[string]interface{}{
			"threadId": wr.run.ThreadID,
			"version":  cp.Version,
		})
	}

	node := state.PendingInterrupt.Node
	wr.state.PendingInterrupt = nil
	now := e.now()

	if req.ResumePayload.Approved {
		wr.state.AppendMessage(node, execution.RoleFeedback, "approved", now)
		wr.approved = node
		if node == execution.NodeMerge && wr.state.MergeCommitted {
			// Approval after the commit sub-phase continues with the squash merge
			wr.state.CurrentNode = execution.NodeMerge
			return nil
		}
		wr.state.MarkCompleted(node)
		next, ok := node.Next()
		if !ok {
			wr.state.CurrentNode = node
			return nil
		}
		wr.state.CurrentNode = next
		return nil
	}

	// Rejection repeats the interrupted node with the feedback injected
	wr.state.CurrentNode = node
	wr.state.Feedback = &execution.Feedback{
		Message:   req.ResumePayload.Feedback,
		Iteration: req.ResumePayload.Iteration,
	}
	wr.state.ResetValidation()
	if node == execution.NodeMerge {
		wr.state.MergeCommitted = false
	}
	wr.state.AppendMessage(node, execution.RoleFeedback, req.ResumePayload.Feedback, now)
	return nil
}

// executeNode runs one node inside a span. suspended is true when the node
// raised an approval interrupt.
func (e *Executor) executeNode(ctx context.Context, wr *workflowRun, node execution.Node) (suspended bool, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.node."+node.String(), trace.WithAttributes(
		attribute.String("deeflow.run_id", wr.run.ID),
		attribute.String("deeflow.feature_id", wr.feature.ID),
		attribute.String("deeflow.thread_id", wr.run.ThreadID),
		attribute.String("deeflow.node", node.String()),
	))
	defer func() {
		span.SetAttributes(
			attribute.Bool("deeflow.suspended", suspended),
			attribute.Int("deeflow.validation_retries", wr.state.ValidationRetries),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := e.enterNode(ctx, wr, node); err != nil {
		return false, err
	}

	if node == execution.NodeMerge {
		return e.runMergeNode(ctx, wr)
	}
	return e.runAgentNode(ctx, wr, node)
}

// enterNode records the node as the run's last active phase and moves the
// feature lifecycle along
func (e *Executor) enterNode(ctx context.Context, wr *workflowRun, node execution.Node) error {
	marker := node.ResultMarker()
	ok, err := e.runs.CompareAndSetStatus(ctx, wr.run.ID,
		[]agentrun.RunStatus{agentrun.StatusRunning},
		agentrun.StatusRunning, repository.RunStatusUpdate{Result: &marker})
	if err != nil {
		return fmt.Errorf("record node %s: %w", node, err)
	}
	if !ok {
		return errRunCancelled
	}
	wr.run.Result = marker

	if err := e.features.UpdateLifecycle(ctx, wr.feature.ID, feature.LifecycleForNode(node)); err != nil {
		e.logger.Warn("update lifecycle of feature %s: %v", wr.feature.ID, err)
	}
	return nil
}

// runAgentNode executes a non-merge node, re-entering it while its output
// fails validation
func (e *Executor) runAgentNode(ctx context.Context, wr *workflowRun, node execution.Node) (bool, error) {
	phase := e.rec.startStep(ctx, wr.run.ID, nil, node.String(), step.TypePhase, map[string]interface{}{
		"feedback_iteration": feedbackIteration(wr.state),
	})
	pt := e.rec.startTiming(ctx, wr.run.ID, node.String())

	fail := func(err error) (bool, error) {
		e.rec.finishStep(ctx, phase, step.StatusFailed, err.Error(), nil)
		e.rec.closeTiming(ctx, pt)
		return false, err
	}

	schema := OutputSchema(node)
	for attempt := 1; ; attempt++ {
		prompt, err := e.buildNodePrompt(wr, node, schema)
		if err != nil {
			return fail(err)
		}

		resp, err := e.callAgent(ctx, wr, node, phase, fmt.Sprintf("%s-agent-%d", node, attempt), prompt, wr.feature.WorkDir(), schema)
		if err != nil {
			return fail(err)
		}

		if schema == "" {
			break
		}

		errs := e.validate(ctx, wr, node, phase, attempt, resp.Output)
		if len(errs) == 0 {
			wr.state.ResetValidation()
			break
		}

		wr.state.RecordValidationFailure(errs)
		if wr.state.ValidationRetries > e.maxValidationRetries {
			return fail(execution.ErrValidationRetriesExceeded.WithDetails(map[string]interface{}{
				"node":    node.String(),
				"retries": wr.state.ValidationRetries,
				"errors":  errs,
			}))
		}
		e.logger.Warn("node %s output invalid (retry %d/%d): %v", node, wr.state.ValidationRetries, e.maxValidationRetries, errs)
		if err := e.checkpoint(ctx, wr); err != nil {
			return fail(err)
		}
	}

	wr.state.Feedback = nil
	e.rec.closeTiming(ctx, pt)

	if execution.ShouldInterrupt(node, wr.gates) {
		return true, e.suspend(ctx, wr, node, pt, phase)
	}

	e.rec.finishStep(ctx, phase, step.StatusCompleted, "completed", nil)
	return false, nil
}

func (e *Executor) buildNodePrompt(wr *workflowRun, node execution.Node, schema string) (string, error) {
	promptCtx := newPromptContext(wr, node, schema)
	result, err := e.prompts.BuildNodePrompt(promptCtx)
	if err != nil {
		return "", err
	}
	for _, w := range result.Warnings {
		e.logger.Debug("prompt for %s: %s", node, w)
	}
	return result.Content, nil
}

// validate records a validation step and returns the violations of result
func (e *Executor) validate(ctx context.Context, wr *workflowRun, node execution.Node, parent *step.ExecutionStep, attempt int, result string) []string {
	s := e.rec.startStep(ctx, wr.run.ID, parent, fmt.Sprintf("%s-validate-%d", node, attempt), step.TypeValidation, nil)
	errs := ValidateOutput(node, result)
	if len(errs) > 0 {
		e.rec.finishStep(ctx, s, step.StatusFailed, "invalid output", map[string]interface{}{"errors": errs})
		return errs
	}
	e.rec.finishStep(ctx, s, step.StatusCompleted, "valid", nil)
	return nil
}

// callAgent sends one prompt to the agent, recording an agent-call step and
// the prompt/result pair in the checkpoint message log
func (e *Executor) callAgent(
	ctx context.Context,
	wr *workflowRun,
	node execution.Node,
	parent *step.ExecutionStep,
	name, prompt, cwd, schema string,
) (*output.AgentResponse, error) {
	capability := e.agent.GetCapability()

	req := output.AgentRequest{
		Prompt:  prompt,
		Cwd:     cwd,
		Timeout: e.agentTimeout,
		Context: map[string]string{
			output.ContextKeyNode:      node.String(),
			output.ContextKeyRunID:     wr.run.ID,
			output.ContextKeyFeatureID: wr.feature.ID,
			output.ContextKeyStage:     name,
		},
	}
	if capability.SupportsSessionResume && wr.state.SessionID != "" {
		req.ResumeSession = wr.state.SessionID
	}
	if capability.SupportsStructuredOutput && schema != "" {
		req.OutputSchema = schema
	}

	s := e.rec.startStep(ctx, wr.run.ID, parent, name, step.TypeAgentCall, map[string]interface{}{
		"agent_type":     capability.AgentType,
		"resume_session": req.ResumeSession,
	})
	wr.state.AppendMessage(node, execution.RolePrompt, prompt, e.now())

	resp, err := e.agent.Execute(ctx, req)
	if err != nil {
		e.rec.finishStep(ctx, s, step.StatusFailed, err.Error(), nil)
		return nil, fmt.Errorf("agent call %s: %w", name, err)
	}

	wr.state.RecordSession(node, resp.SessionID)
	wr.state.AppendMessage(node, execution.RoleResult, resp.Output, e.now())

	metadata := map[string]interface{}{
		"session_id":  resp.SessionID,
		"cost_usd":    resp.CostUSD,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if id := e.storeArtifact(ctx, wr, node, resp.Output); id != "" {
		metadata["artifact_id"] = id
	}
	e.rec.finishStep(ctx, s, step.StatusCompleted, "completed", metadata)
	return resp, nil
}

// storeArtifact archives an agent result. Best-effort.
func (e *Executor) storeArtifact(ctx context.Context, wr *workflowRun, node execution.Node, content string) string {
	if e.storage == nil {
		return ""
	}
	meta, err := e.storage.SaveArtifact(ctx, output.SaveArtifactRequest{
		RunID:        wr.run.ID,
		Phase:        node.String(),
		ArtifactType: output.ArtifactTypeResult,
		Content:      []byte(content),
		Metadata:     map[string]string{"feature_id": wr.feature.ID},
	})
	if err != nil {
		e.logger.Warn("store %s artifact for run %s: %v", node, wr.run.ID, err)
		return ""
	}
	return meta.ID
}

// suspend persists the interrupt and hands the run over to a human.
// pt and phase may be nil when re-suspending from a checkpoint.
func (e *Executor) suspend(ctx context.Context, wr *workflowRun, node execution.Node, pt *timing.PhaseTiming, phase *step.ExecutionStep) error {
	wr.state.PendingInterrupt = &execution.PendingInterrupt{
		Node:     node,
		RaisedAt: e.now(),
	}
	wr.state.CurrentNode = node
	if err := e.checkpoint(ctx, wr); err != nil {
		return err
	}

	if pt == nil {
		pt = e.rec.startTiming(ctx, wr.run.ID, node.String())
		e.rec.closeTiming(ctx, pt)
	}
	e.rec.markWaiting(ctx, pt)

	marker := node.ResultMarker()
	ok, err := e.runs.CompareAndSetStatus(ctx, wr.run.ID,
		[]agentrun.RunStatus{agentrun.StatusRunning},
		agentrun.StatusWaitingApproval,
		repository.RunStatusUpdate{Result: &marker, ClearPID: true})
	if err != nil {
		return fmt.Errorf("mark run waiting for approval: %w", err)
	}
	if !ok {
		return errRunCancelled
	}

	e.rec.finishStep(ctx, phase, step.StatusCompleted, string(agentrun.StatusWaitingApproval), nil)
	e.logger.Info("run %s suspended at %s for approval", wr.run.ID, node)
	return nil
}

// checkpoint appends the current state to the thread's checkpoint history
func (e *Executor) checkpoint(ctx context.Context, wr *workflowRun) error {
	cp, err := e.checkpoints.Save(ctx, wr.run.ThreadID, *wr.state)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	wr.version = cp.Version
	return nil
}

// complete finishes a run whose last node succeeded
func (e *Executor) complete(ctx context.Context, wr *workflowRun, node execution.Node) (*Outcome, error) {
	if err := e.checkpoint(ctx, wr); err != nil {
		return e.fail(ctx, wr, node, err)
	}

	now := e.now()
	marker := node.ResultMarker()
	ok, err := e.runs.CompareAndSetStatus(ctx, wr.run.ID,
		[]agentrun.RunStatus{agentrun.StatusRunning},
		agentrun.StatusCompleted,
		repository.RunStatusUpdate{Result: &marker, CompletedAt: &now, ClearPID: true})
	if err != nil {
		return nil, fmt.Errorf("mark run completed: %w", err)
	}
	if !ok {
		return e.outcome(wr, agentrun.StatusCancelled, node, errRunCancelled), nil
	}

	if err := e.features.UpdateLifecycle(ctx, wr.feature.ID, feature.LifecycleMaintain); err != nil {
		e.logger.Warn("update lifecycle of feature %s: %v", wr.feature.ID, err)
	}
	e.logger.Info("run %s completed", wr.run.ID)
	return e.outcome(wr, agentrun.StatusCompleted, node, nil), nil
}

// fail ends the run. A cancelled context marks it interrupted so it can be
// resumed; anything else marks it failed. A run that already left `running`
// is not touched.
func (e *Executor) fail(ctx context.Context, wr *workflowRun, node execution.Node, cause error) (*Outcome, error) {
	if errors.Is(cause, errRunCancelled) {
		return e.outcome(wr, agentrun.StatusCancelled, node, cause), nil
	}

	status := agentrun.StatusFailed
	if ctx.Err() != nil {
		status = agentrun.StatusInterrupted
	}
	ctx = context.WithoutCancel(ctx)

	if wr.state != nil {
		if err := e.checkpoint(ctx, wr); err != nil {
			e.logger.Warn("save checkpoint of failed run %s: %v", wr.run.ID, err)
		}
	}

	now := e.now()
	msg := cause.Error()
	update := repository.RunStatusUpdate{Error: &msg, CompletedAt: &now, ClearPID: true}
	if node != "" {
		marker := node.ResultMarker()
		update.Result = &marker
	}
	ok, err := e.runs.CompareAndSetStatus(ctx, wr.run.ID,
		[]agentrun.RunStatus{agentrun.StatusPending, agentrun.StatusRunning}, status, update)
	if err != nil {
		return nil, fmt.Errorf("mark run %s: %w", status, err)
	}
	if !ok {
		return e.outcome(wr, agentrun.StatusCancelled, node, cause), nil
	}

	if status == agentrun.StatusFailed {
		if err := e.features.UpdateLifecycle(ctx, wr.feature.ID, feature.LifecycleBlocked); err != nil {
			e.logger.Warn("update lifecycle of feature %s: %v", wr.feature.ID, err)
		}
	}
	e.logger.Error("run %s %s at %s: %v", wr.run.ID, status, node, cause)
	return e.outcome(wr, status, node, cause), nil
}

func (e *Executor) outcome(wr *workflowRun, status agentrun.RunStatus, node execution.Node, err error) *Outcome {
	return &Outcome{
		RunID:   wr.run.ID,
		Status:  status,
		Node:    node,
		Version: wr.version,
		Err:     err,
	}
}

func feedbackIteration(state *execution.WorkflowState) int {
	if state.Feedback == nil {
		return 0
	}
	return state.Feedback.Iteration
}

package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/logger"
	"github.com/custodia-labs/lorastudio/internal/telemetry"
)

// Ensure RunOrchestrator implements the interface.
var _ driving.RunOrchestrator = (*RunOrchestrator)(nil)

// Run directory layout.
const (
	SnapshotFile = "run_config_snapshot.json"
	PackageDir   = "package"
)

// Stage progress values.
const (
	progressPreflight  = 0.1
	progressStaging    = 0.25
	progressTraining   = 0.45
	progressTrained    = 0.7
	progressEvaluating = 0.85
	progressPackaged   = 1.0
)

// Transition messages.
const (
	msgQueued     = "Queued"
	msgRunQueued  = "Run queued"
	msgClaimed    = "Picked by worker"
	msgStaging    = "Staging artifacts"
	msgTraining   = "Training adapter"
	msgEvaluating = "Running evaluation"
	msgPackaging  = "Building deployment package"
	msgReady      = "Run complete"
	msgCancelled  = "Run cancelled by user"
	msgRetry      = "Retry queued"
	msgFailed     = "Run failed"
)

// stateRetries bounds compare-and-set attempts when the state moves underneath us.
const stateRetries = 3

// errRunCancelled stops a drive when the persisted run was cancelled.
var errRunCancelled = errors.New("run cancelled")

// RunOrchestrator owns the training run state machine.
// Every state change goes through the store's compare-and-set.
type RunOrchestrator struct {
	settings     domain.TrainingSettings
	models       map[string]domain.BaseModel
	runs         driven.RunStore
	events       driven.RunEventStore
	datasets     driven.DatasetStore
	artifacts    driven.ArtifactStore
	engine       driven.TrainingEngine
	evaluator    driving.EvaluationService
	packager     driven.Packager
	entitlements *Entitlements
	telemetry    *telemetry.Recorder

	// mu serializes claim and drive within this process.
	mu  sync.Mutex
	now func() time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
func NewRunOrchestrator(
	settings domain.TrainingSettings,
	models map[string]domain.BaseModel,
	runs driven.RunStore,
	events driven.RunEventStore,
	datasets driven.DatasetStore,
	artifacts driven.ArtifactStore,
	engine driven.TrainingEngine,
	evaluator driving.EvaluationService,
	packager driven.Packager,
	entitlements *Entitlements,
	recorder *telemetry.Recorder,
) *RunOrchestrator {
	return &RunOrchestrator{
		settings:     settings,
		models:       models,
		runs:         runs,
		events:       events,
		datasets:     datasets,
		artifacts:    artifacts,
		engine:       engine,
		evaluator:    evaluator,
		packager:     packager,
		entitlements: entitlements,
		telemetry:    recorder,
		now:          time.Now,
	}
}

// EstimateVRAM applies the admission-control heuristic.
func (o *RunOrchestrator) EstimateVRAM(cfg domain.TrainingConfig, baseModelID string) domain.VRAMEstimate {
	return estimateVRAM(cfg, baseModelID, o.settings.SafeLimitGB())
}

// CreateRun validates a request and queues a run.
func (o *RunOrchestrator) CreateRun(ctx context.Context, req driving.CreateRunRequest) (*domain.TrainingRun, error) {
	if req.TenantID == "" || req.ProjectID == "" {
		return nil, domain.NewValidationError("project", "tenant and project are required")
	}
	if !req.DataRightsConfirmed {
		return nil, domain.NewValidationError("data_rights_confirmed", "client data rights confirmation is required")
	}
	if err := o.entitlements.CheckRunQuota(ctx, req.TenantID); err != nil {
		return nil, err
	}

	ds, err := o.datasets.GetDataset(ctx, req.TenantID, req.ProjectID, req.DatasetVersionID)
	if err != nil {
		return nil, err
	}
	if !ds.Status.Trainable() {
		return nil, domain.NewValidationError("dataset_version_id", "dataset is not eligible for training")
	}
	if !o.approved(req.BaseModelID) {
		return nil, domain.NewValidationError("base_model_id", "base model is not approved for deployment")
	}
	estimate := o.EstimateVRAM(req.Config, req.BaseModelID)
	if !estimate.WillFit {
		return nil, domain.NewValidationError("config", "training config exceeds safe VRAM limits")
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	now := o.now()
	run := &domain.TrainingRun{
		ID:               uuid.New().String(),
		TenantID:         req.TenantID,
		ProjectID:        req.ProjectID,
		DatasetVersionID: req.DatasetVersionID,
		RequestedBy:      req.RequestedBy,
		BaseModelID:      req.BaseModelID,
		Config:           req.Config,
		State:            domain.RunQueued,
		StateMessage:     msgQueued,
		VRAMEstimateGB:   estimate.EstimatedGB,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	if err := o.recordEvent(ctx, run, "", domain.RunQueued, msgRunQueued, nil); err != nil {
		return nil, err
	}
	o.telemetry.RunTransition(ctx, domain.RunQueued)
	logger.Info("run queued", "run_id", run.ID, "base_model", run.BaseModelID, "vram_gb", run.VRAMEstimateGB)
	return run, nil
}

// ClaimNextQueuedRun moves the oldest queued run to PREFLIGHT.
func (o *RunOrchestrator) ClaimNextQueuedRun(ctx context.Context) (*domain.TrainingRun, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.claim(ctx)
}

// ProcessNextQueuedRun claims and drives one run.
func (o *RunOrchestrator) ProcessNextQueuedRun(ctx context.Context) (*domain.TrainingRun, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.claim(ctx)
	if err != nil || run == nil {
		return nil, err
	}
	return o.process(ctx, run)
}

// ProcessClaimedRun drives a run in PREFLIGHT to READY or FAILED.
func (o *RunOrchestrator) ProcessClaimedRun(ctx context.Context, run *domain.TrainingRun) (*domain.TrainingRun, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.process(ctx, run)
}

func (o *RunOrchestrator) claim(ctx context.Context) (*domain.TrainingRun, error) {
	candidate, err := o.runs.OldestQueued(ctx)
	if err != nil {
		return nil, fmt.Errorf("find queued run: %w", err)
	}
	if candidate == nil {
		return nil, nil
	}

	ok, err := o.runs.CompareAndSetState(ctx, candidate.ID, domain.RunQueued, domain.RunPreflight, msgClaimed, o.now())
	if err != nil {
		return nil, fmt.Errorf("claim run %s: %w", candidate.ID, err)
	}
	if !ok {
		logger.Debug("run claimed elsewhere", "run_id", candidate.ID)
		return nil, nil
	}

	// The run is ours now; a cancelled caller must not strand it in PREFLIGHT.
	ctx = context.WithoutCancel(ctx)
	run, err := o.runs.GetRun(ctx, candidate.ID)
	if err != nil {
		return nil, err
	}
	if err := o.recordEvent(ctx, run, domain.RunQueued, domain.RunPreflight, msgClaimed, nil); err != nil {
		return nil, err
	}
	o.telemetry.RunTransition(ctx, domain.RunPreflight)
	logger.Info("run claimed", "run_id", run.ID)
	return run, nil
}

// process runs the stages and converts any failure, including a panic,
// into a FAILED transition. Only persistence errors while failing are returned.
func (o *RunOrchestrator) process(ctx context.Context, run *domain.TrainingRun) (*domain.TrainingRun, error) {
	if run == nil {
		return nil, domain.ErrInvalidInput
	}
	if run.State != domain.RunPreflight {
		return nil, &domain.InvalidTransitionError{From: run.State, To: domain.RunStaging}
	}

	// A claimed run always reaches a terminal state. Callers stop between runs.
	ctx = context.WithoutCancel(ctx)
	err := o.driveSafely(ctx, run)
	switch {
	case err == nil:
		return run, nil
	case errors.Is(err, errRunCancelled):
		logger.Info("run drive stopped: cancelled", "run_id", run.ID)
		return o.runs.GetRun(ctx, run.ID)
	default:
		if failErr := o.fail(ctx, run, err); failErr != nil {
			return nil, failErr
		}
		return run, nil
	}
}

func (o *RunOrchestrator) driveSafely(ctx context.Context, run *domain.TrainingRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during run drive: %v", r)
		}
	}()
	return o.drive(ctx, run)
}

func (o *RunOrchestrator) drive(ctx context.Context, run *domain.TrainingRun) error {
	ctx, span := o.telemetry.StartSpan(ctx, "run.drive", attribute.String("run_id", run.ID))
	defer span.End()

	ds, err := o.datasets.GetDataset(ctx, run.TenantID, run.ProjectID, run.DatasetVersionID)
	if err != nil {
		return fmt.Errorf("dataset missing: %w", err)
	}

	// Preflight.
	run.Progress = progressPreflight
	if err := o.preflight(run, ds); err != nil {
		return err
	}
	if err := o.save(ctx, run); err != nil {
		return err
	}

	// Staging.
	if err := o.transition(ctx, run, domain.RunStaging, msgStaging); err != nil {
		return err
	}
	run.Progress = progressStaging
	runDir, err := o.stage(ctx, run, ds)
	if err != nil {
		return err
	}
	if err := o.save(ctx, run); err != nil {
		return err
	}

	// Training.
	if err := o.transition(ctx, run, domain.RunTraining, msgTraining); err != nil {
		return err
	}
	run.Progress = progressTraining
	if err := o.save(ctx, run); err != nil {
		return err
	}
	if err := o.train(ctx, run, ds, runDir); err != nil {
		return err
	}
	run.Progress = progressTrained
	if err := o.save(ctx, run); err != nil {
		return err
	}

	// Evaluation.
	if err := o.transition(ctx, run, domain.RunEvaluating, msgEvaluating); err != nil {
		return err
	}
	stageCtx, stageSpan := o.telemetry.StartSpan(ctx, "run.evaluating", attribute.String("run_id", run.ID))
	report, err := o.evaluator.Evaluate(stageCtx, run, ds)
	stageSpan.End()
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	run.EvalReportID = report.ID
	run.Progress = progressEvaluating
	if err := o.save(ctx, run); err != nil {
		return err
	}

	// Packaging.
	if err := o.transition(ctx, run, domain.RunPackaging, msgPackaging); err != nil {
		return err
	}
	stageCtx, stageSpan = o.telemetry.StartSpan(ctx, "run.packaging", attribute.String("run_id", run.ID))
	pkgPath, err := o.packager.Package(stageCtx, filepath.Join(runDir, PackageDir), run.AdapterPath, domain.RunManifest{
		RunID:            run.ID,
		DatasetVersionID: run.DatasetVersionID,
		BaseModelID:      run.BaseModelID,
		EvalReportID:     report.ID,
	})
	stageSpan.End()
	if err != nil {
		return fmt.Errorf("package: %w", err)
	}
	run.PackagePath = pkgPath
	run.Progress = progressPackaged
	if err := o.save(ctx, run); err != nil {
		return err
	}

	if err := o.transition(ctx, run, domain.RunReady, msgReady); err != nil {
		return err
	}
	logger.Info("run ready", "run_id", run.ID, "package", run.PackagePath, "report_id", run.EvalReportID)
	return nil
}

// preflight re-validates what CreateRun checked, since the dataset or
// registry may have changed while the run was queued.
func (o *RunOrchestrator) preflight(run *domain.TrainingRun, ds *domain.DatasetVersion) error {
	if !ds.Status.Trainable() {
		return domain.NewValidationError("dataset", "dataset status invalid for training")
	}
	if !o.approved(run.BaseModelID) {
		return domain.NewValidationError("base_model_id", "base model is not in approved registry")
	}
	estimate := o.EstimateVRAM(run.Config, run.BaseModelID)
	run.VRAMEstimateGB = estimate.EstimatedGB
	if !estimate.WillFit {
		return domain.NewValidationError("config", "VRAM preflight failed")
	}
	return nil
}

// stage writes the run configuration snapshot and returns the run directory.
func (o *RunOrchestrator) stage(ctx context.Context, run *domain.TrainingRun, ds *domain.DatasetVersion) (string, error) {
	_, span := o.telemetry.StartSpan(ctx, "run.staging", attribute.String("run_id", run.ID))
	defer span.End()

	runDir, err := o.artifacts.RunDir(run.TenantID, run.ProjectID, run.ID)
	if err != nil {
		return "", err
	}
	hash, err := o.artifacts.HashFiles(ds.TrainPath, ds.ValPath, ds.TestPath)
	if err != nil {
		return "", fmt.Errorf("hash dataset: %w", err)
	}
	snapshot := domain.RunSnapshot{
		DatasetVersionID: run.DatasetVersionID,
		DatasetHash:      hash,
		BaseModelID:      run.BaseModelID,
		Config:           run.Config,
	}
	if err := o.artifacts.WriteJSON(filepath.Join(runDir, SnapshotFile), snapshot); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return runDir, nil
}

func (o *RunOrchestrator) train(ctx context.Context, run *domain.TrainingRun, ds *domain.DatasetVersion, runDir string) error {
	ctx, span := o.telemetry.StartSpan(ctx, "run.training",
		attribute.String("run_id", run.ID),
		attribute.String("engine", o.engine.Name()),
	)
	defer span.End()

	artifacts, err := o.engine.Train(ctx, domain.TrainingRequest{
		OutputDir:    runDir,
		BaseModelID:  run.BaseModelID,
		DatasetPaths: ds.Paths(),
		Config:       run.Config,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("train: %w", err)
	}
	run.CheckpointPath = artifacts.CheckpointPath
	run.AdapterPath = artifacts.AdapterPath
	return nil
}

// transition moves run to `to` with a compare-and-set from its current
// state and appends the event. A lost compare-and-set against a cancelled
// run yields errRunCancelled.
func (o *RunOrchestrator) transition(ctx context.Context, run *domain.TrainingRun, to domain.RunState, message string) error {
	from := run.State
	if !domain.CanTransition(from, to) {
		return &domain.InvalidTransitionError{From: from, To: to}
	}

	now := o.now()
	ok, err := o.runs.CompareAndSetState(ctx, run.ID, from, to, message, now)
	if err != nil {
		return fmt.Errorf("transition %s to %s: %w", from, to, err)
	}
	if !ok {
		current, err := o.runs.GetRun(ctx, run.ID)
		if err != nil {
			return err
		}
		if current.State == domain.RunCancelled {
			return errRunCancelled
		}
		return fmt.Errorf("run %s changed state to %s concurrently", run.ID, current.State)
	}

	run.State = to
	run.StateMessage = message
	run.UpdatedAt = now
	if err := o.recordEvent(ctx, run, from, to, message, nil); err != nil {
		return err
	}
	o.telemetry.RunTransition(ctx, to)
	logger.Info("run transition", "run_id", run.ID, "from", from, "to", to)
	return nil
}

// fail forces run into FAILED from whatever non-terminal state it holds.
// A run that was cancelled or already finished is left alone.
func (o *RunOrchestrator) fail(ctx context.Context, run *domain.TrainingRun, cause error) error {
	message := cause.Error()
	for attempt := 0; attempt < stateRetries; attempt++ {
		current, err := o.runs.GetRun(ctx, run.ID)
		if err != nil {
			return err
		}
		if current.State.Terminal() {
			*run = *current
			return nil
		}

		now := o.now()
		ok, err := o.runs.CompareAndSetState(ctx, run.ID, current.State, domain.RunFailed, msgFailed, now)
		if err != nil {
			return fmt.Errorf("fail run %s: %w", run.ID, err)
		}
		if !ok {
			continue
		}

		run.State = domain.RunFailed
		run.StateMessage = msgFailed
		run.ErrorMessage = message
		run.UpdatedAt = now
		if err := o.save(ctx, run); err != nil {
			return err
		}
		if err := o.recordEvent(ctx, run, current.State, domain.RunFailed, msgFailed,
			map[string]string{"error": message}); err != nil {
			return err
		}
		o.telemetry.RunTransition(ctx, domain.RunFailed)
		o.telemetry.RunFailure(ctx)
		logger.Error("run failed", "run_id", run.ID, "from", current.State, "error", message,
			"kind", domain.KindOf(cause).String())
		return nil
	}
	return fmt.Errorf("fail run %s: state kept changing", run.ID)
}

// CancelRun cancels a non-terminal run. Terminal runs are returned unchanged.
func (o *RunOrchestrator) CancelRun(ctx context.Context, tenantID, projectID, runID string) (*domain.TrainingRun, error) {
	for attempt := 0; attempt < stateRetries; attempt++ {
		run, err := o.GetRun(ctx, tenantID, projectID, runID)
		if err != nil {
			return nil, err
		}
		if run.State.Terminal() {
			return run, nil
		}

		from := run.State
		now := o.now()
		ok, err := o.runs.CompareAndSetState(ctx, run.ID, from, domain.RunCancelled, msgCancelled, now)
		if err != nil {
			return nil, fmt.Errorf("cancel run %s: %w", run.ID, err)
		}
		if !ok {
			continue
		}

		run.State = domain.RunCancelled
		run.StateMessage = msgCancelled
		run.UpdatedAt = now
		if err := o.recordEvent(ctx, run, from, domain.RunCancelled, msgCancelled, nil); err != nil {
			return nil, err
		}
		o.telemetry.RunTransition(ctx, domain.RunCancelled)
		logger.Info("run cancelled", "run_id", run.ID, "from", from)
		return run, nil
	}
	return nil, fmt.Errorf("cancel run %s: state kept changing", runID)
}

// RetryRun re-queues a FAILED or CANCELLED run with progress and error reset.
func (o *RunOrchestrator) RetryRun(ctx context.Context, tenantID, projectID, runID string) (*domain.TrainingRun, error) {
	run, err := o.GetRun(ctx, tenantID, projectID, runID)
	if err != nil {
		return nil, err
	}
	if !run.State.Retryable() {
		return nil, &domain.InvalidTransitionError{From: run.State, To: domain.RunQueued}
	}
	if err := o.transition(ctx, run, domain.RunQueued, msgRetry); err != nil {
		return nil, err
	}

	run.Progress = 0
	run.ErrorMessage = ""
	if err := o.save(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run within a project.
func (o *RunOrchestrator) GetRun(ctx context.Context, tenantID, projectID, runID string) (*domain.TrainingRun, error) {
	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.TenantID != tenantID || run.ProjectID != projectID {
		return nil, domain.NewNotFoundError("training run", runID)
	}
	return run, nil
}

// ListRuns returns the project's runs.
func (o *RunOrchestrator) ListRuns(ctx context.Context, tenantID, projectID string) ([]domain.TrainingRun, error) {
	return o.runs.ListRuns(ctx, tenantID, projectID)
}

// ListEvents returns a run's transition log.
func (o *RunOrchestrator) ListEvents(ctx context.Context, tenantID, projectID, runID string) ([]domain.RunEvent, error) {
	if _, err := o.GetRun(ctx, tenantID, projectID, runID); err != nil {
		return nil, err
	}
	return o.events.ListEvents(ctx, runID)
}

func (o *RunOrchestrator) approved(baseModelID string) bool {
	m, ok := o.models[baseModelID]
	return ok && m.Approved
}

func (o *RunOrchestrator) save(ctx context.Context, run *domain.TrainingRun) error {
	run.UpdatedAt = o.now()
	if err := o.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (o *RunOrchestrator) recordEvent(
	ctx context.Context,
	run *domain.TrainingRun,
	from, to domain.RunState,
	message string,
	details map[string]string,
) error {
	event := &domain.RunEvent{
		ID:        uuid.New().String(),
		RunID:     run.ID,
		TenantID:  run.TenantID,
		ProjectID: run.ProjectID,
		FromState: from,
		ToState:   to,
		Message:   message,
		Details:   details,
		CreatedAt: o.now(),
	}
	if err := o.events.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append run event: %w", err)
	}
	return nil
}

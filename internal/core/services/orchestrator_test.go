package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/lorastudio/internal/adapters/driven/packager"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/trainer"
	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
)

func eventPath(events []domain.RunEvent) []domain.RunState {
	states := make([]domain.RunState, 0, len(events))
	for _, e := range events {
		states = append(states, e.ToState)
	}
	return states
}

func TestCreateRun_Queued(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)

	run := env.createRun(t, ds)

	assert.Equal(t, domain.RunQueued, run.State)
	assert.Equal(t, msgQueued, run.StateMessage)
	assert.Equal(t, 2.29, run.VRAMEstimateGB)
	assert.Equal(t, "user-1", run.RequestedBy)
	assert.Zero(t, run.Progress)

	events, err := env.orchestrator.ListEvents(context.Background(), testTenant, testProject, run.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.RunState(""), events[0].FromState)
	assert.Equal(t, domain.RunQueued, events[0].ToState)
	assert.Equal(t, msgRunQueued, events[0].Message)
}

func TestCreateRun_Validation(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)

	failed := &domain.DatasetVersion{ID: "ds-failed", TenantID: testTenant, ProjectID: testProject, Status: domain.DatasetFailed}
	require.NoError(t, env.datasets.SaveDataset(context.Background(), failed))
	env.orchestrator.models["org/unapproved"] = domain.BaseModel{ID: "org/unapproved"}

	valid := func() driving.CreateRunRequest {
		return driving.CreateRunRequest{
			TenantID:            testTenant,
			ProjectID:           testProject,
			DatasetVersionID:    ds.ID,
			BaseModelID:         testModel,
			Config:              domain.DefaultTrainingConfig(),
			DataRightsConfirmed: true,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *driving.CreateRunRequest)
		wantErr error
		field   string
	}{
		{"missing project", func(r *driving.CreateRunRequest) { r.ProjectID = "" }, domain.ErrValidation, "project"},
		{"data rights", func(r *driving.CreateRunRequest) { r.DataRightsConfirmed = false }, domain.ErrValidation, "data_rights_confirmed"},
		{"unknown dataset", func(r *driving.CreateRunRequest) { r.DatasetVersionID = "missing" }, domain.ErrNotFound, ""},
		{"other project dataset", func(r *driving.CreateRunRequest) { r.ProjectID = "finance" }, domain.ErrNotFound, ""},
		{"failed dataset", func(r *driving.CreateRunRequest) { r.DatasetVersionID = failed.ID }, domain.ErrValidation, "dataset_version_id"},
		{"unknown model", func(r *driving.CreateRunRequest) { r.BaseModelID = "org/unknown" }, domain.ErrValidation, "base_model_id"},
		{"unapproved model", func(r *driving.CreateRunRequest) { r.BaseModelID = "org/unapproved" }, domain.ErrValidation, "base_model_id"},
		{"vram", func(r *driving.CreateRunRequest) {
			r.Config.SequenceLength = 8192
			r.Config.Use4Bit = false
			r.Config.Precision = "fp32"
		}, domain.ErrValidation, "config"},
		{"lora rank", func(r *driving.CreateRunRequest) { r.Config.LoRARank = 2 }, domain.ErrValidation, "lora_rank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)

			run, err := env.orchestrator.CreateRun(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, run)
			if tt.field != "" {
				var ve *domain.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.field, ve.Field)
			}
		})
	}

	runs, err := env.orchestrator.ListRuns(context.Background(), testTenant, testProject)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestCreateRun_Quota(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	env.plans.limits.MaxTrainingRunsMonthly = 1

	env.createRun(t, ds)
	_, err := env.orchestrator.CreateRun(context.Background(), driving.CreateRunRequest{
		TenantID:            testTenant,
		ProjectID:           testProject,
		DatasetVersionID:    ds.ID,
		BaseModelID:         testModel,
		Config:              domain.DefaultTrainingConfig(),
		DataRightsConfirmed: true,
	})

	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestProcessNextQueuedRun_Ready(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)

	run, err := env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, queued.ID, run.ID)
	assert.Equal(t, domain.RunReady, run.State)
	assert.Equal(t, msgReady, run.StateMessage)
	assert.Equal(t, 1.0, run.Progress)
	assert.NotEmpty(t, run.EvalReportID)
	assert.FileExists(t, run.PackagePath)
	assert.DirExists(t, run.AdapterPath)
	assert.DirExists(t, run.CheckpointPath)
	assert.Empty(t, run.ErrorMessage)

	stored, err := env.orchestrator.GetRun(context.Background(), testTenant, testProject, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunReady, stored.State)
	assert.Equal(t, run.PackagePath, stored.PackagePath)

	runDir := filepath.Dir(run.AdapterPath)
	assert.FileExists(t, filepath.Join(runDir, SnapshotFile))

	events, err := env.orchestrator.ListEvents(context.Background(), testTenant, testProject, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.RunState{
		domain.RunQueued,
		domain.RunPreflight,
		domain.RunStaging,
		domain.RunTraining,
		domain.RunEvaluating,
		domain.RunPackaging,
		domain.RunReady,
	}, eventPath(events))
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].ToState, events[i].FromState)
	}

	reports, err := env.evaluator.ReportsForRun(context.Background(), testTenant, testProject, run.ID)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, run.EvalReportID, reports[0].ID)
	assert.Equal(t, filepath.Join(run.AdapterPath, ReportFile), reports[0].ReportPath)

	next, err := env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next, "queue is empty")
}

func TestProcessNextQueuedRun_TrainingFailureThenRetry(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)
	env.engine.err = &domain.ExternalProcessError{ExitCode: 3, Reason: "CUDA out of memory"}

	run, err := env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.State)
	assert.Equal(t, msgFailed, run.StateMessage)
	assert.Contains(t, run.ErrorMessage, "CUDA out of memory")
	assert.Empty(t, run.PackagePath)

	events, err := env.orchestrator.ListEvents(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, domain.RunTraining, last.FromState)
	assert.Equal(t, domain.RunFailed, last.ToState)
	assert.Contains(t, last.Details["error"], "CUDA out of memory")

	env.engine.err = nil
	retried, err := env.orchestrator.RetryRun(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunQueued, retried.State)
	assert.Equal(t, msgRetry, retried.StateMessage)
	assert.Zero(t, retried.Progress)
	assert.Empty(t, retried.ErrorMessage)

	run, err = env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunReady, run.State)
	assert.Equal(t, 2, env.engine.calls)
}

func TestProcessNextQueuedRun_PanicBecomesFailure(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	env.createRun(t, ds)
	env.engine.panic = true

	run, err := env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.State)
	assert.Contains(t, run.ErrorMessage, "trainer exploded")
}

func TestProcessNextQueuedRun_PreflightRechecksDataset(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)

	ds.Status = domain.DatasetFailed
	require.NoError(t, env.datasets.SaveDataset(context.Background(), ds))

	run, err := env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, run.State)
	assert.Contains(t, run.ErrorMessage, "dataset status invalid")
	assert.Zero(t, env.engine.calls)

	events, err := env.orchestrator.ListEvents(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.RunState{domain.RunQueued, domain.RunPreflight, domain.RunFailed}, eventPath(events))
}

func TestCancelRun_Queued(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)

	run, err := env.orchestrator.CancelRun(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, run.State)
	assert.Equal(t, msgCancelled, run.StateMessage)

	next, err := env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next, "cancelled runs are never claimed")

	// Cancelling a terminal run is a no-op.
	again, err := env.orchestrator.CancelRun(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, again.State)

	events, err := env.orchestrator.ListEvents(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCancelRun_DuringTraining(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)

	env.engine.onTrain = func() {
		_, err := env.orchestrator.CancelRun(context.Background(), testTenant, testProject, queued.ID)
		require.NoError(t, err)
	}

	run, err := env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RunCancelled, run.State)
	assert.Equal(t, msgCancelled, run.StateMessage)
	assert.Empty(t, run.EvalReportID)

	reports, err := env.evaluator.ReportsForRun(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Empty(t, reports)

	events, err := env.orchestrator.ListEvents(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.RunState{
		domain.RunQueued,
		domain.RunPreflight,
		domain.RunStaging,
		domain.RunTraining,
		domain.RunCancelled,
	}, eventPath(events))

	retried, err := env.orchestrator.RetryRun(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunQueued, retried.State)
}

func TestProcessNextQueuedRun_CallerCancelledMidDrive(t *testing.T) {
	tests := []struct {
		name      string
		trainErr  error
		wantState domain.RunState
	}{
		{name: "drive completes", wantState: domain.RunReady},
		{name: "failure still recorded", trainErr: errors.New("trainer crashed"), wantState: domain.RunFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := sqlite.NewStore(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			env := newTestEnv(t)
			ds := env.buildDataset(t)
			require.NoError(t, db.DatasetStore().SaveDataset(context.Background(), ds))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			engine := &mockEngine{next: trainer.NewStub(), err: tt.trainErr, onTrain: cancel}

			cfg := domain.DefaultConfig()
			orch := NewRunOrchestrator(
				cfg.Training,
				cfg.Models,
				db.RunStore(),
				db.RunEventStore(),
				db.DatasetStore(),
				env.store,
				engine,
				env.evaluator,
				packager.NewZip(),
				NewEntitlements(env.plans, env.docs, db.RunStore()),
				nil,
			)
			queued, err := orch.CreateRun(context.Background(), driving.CreateRunRequest{
				TenantID:            testTenant,
				ProjectID:           testProject,
				DatasetVersionID:    ds.ID,
				BaseModelID:         testModel,
				Config:              domain.DefaultTrainingConfig(),
				DataRightsConfirmed: true,
			})
			require.NoError(t, err)

			run, err := orch.ProcessNextQueuedRun(ctx)
			require.NoError(t, err)
			require.Error(t, ctx.Err())
			assert.Equal(t, tt.wantState, run.State)

			stored, err := orch.GetRun(context.Background(), testTenant, testProject, queued.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, stored.State)
			assert.True(t, stored.State.Terminal())
			if tt.trainErr != nil {
				assert.Contains(t, stored.ErrorMessage, "trainer crashed")
			}
		})
	}
}

func TestRetryRun_NotRetryable(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)

	_, err := env.orchestrator.RetryRun(context.Background(), testTenant, testProject, queued.ID)
	var te *domain.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.RunQueued, te.From)

	run, err := env.orchestrator.ProcessNextQueuedRun(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RunReady, run.State)

	_, err = env.orchestrator.RetryRun(context.Background(), testTenant, testProject, queued.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
}

func TestProcessClaimedRun_RequiresPreflight(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)

	_, err := env.orchestrator.ProcessClaimedRun(context.Background(), queued)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	claimed, err := env.orchestrator.ClaimNextQueuedRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, domain.RunPreflight, claimed.State)
	assert.Equal(t, msgClaimed, claimed.StateMessage)

	run, err := env.orchestrator.ProcessClaimedRun(context.Background(), claimed)
	require.NoError(t, err)
	assert.Equal(t, domain.RunReady, run.State)
}

func TestClaimNextQueuedRun_SingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)

	workers := []*RunOrchestrator{env.orchestrator, env.newOrchestrator(), env.newOrchestrator(), env.newOrchestrator()}
	var wins atomic.Int32

	g, ctx := errgroup.WithContext(context.Background())
	for _, w := range workers {
		g.Go(func() error {
			run, err := w.ClaimNextQueuedRun(ctx)
			if err != nil {
				return err
			}
			if run != nil {
				if run.ID != queued.ID {
					return errors.New("claimed unexpected run")
				}
				wins.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), wins.Load())

	events, err := env.orchestrator.ListEvents(context.Background(), testTenant, testProject, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.RunState{domain.RunQueued, domain.RunPreflight}, eventPath(events))
}

func TestGetRun_Scoped(t *testing.T) {
	env := newTestEnv(t)
	ds := env.buildDataset(t)
	queued := env.createRun(t, ds)

	_, err := env.orchestrator.GetRun(context.Background(), "other", testProject, queued.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.orchestrator.ListEvents(context.Background(), testTenant, "other", queued.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.orchestrator.CancelRun(context.Background(), testTenant, "other", queued.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

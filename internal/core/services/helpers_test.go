package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/adapters/driven/artifacts"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/packager"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/predictor/reference"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/trainer"
	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/normalisers"
)

const (
	testTenant  = "acme"
	testProject = "hr"
	testModel   = "mistralai/Mistral-7B-Instruct-v0.3"

	// trainDocID hashes into the train bucket.
	trainDocID = "doc-0"
	// valDocID hashes into the validation bucket.
	valDocID = "doc-17"
	// testDocID hashes into the test bucket.
	testDocID = "doc-1"
)

const refundPolicy = "# Refund Policy\n" +
	"Customers may request a refund within 30 days. Managers approve exceptions. Do not refund gift cards."

// --- Mock implementations for service testing ---

// mockPlanProvider implements driven.PlanProvider for testing.
type mockPlanProvider struct {
	limits domain.PlanLimits
	err    error
}

func (m *mockPlanProvider) LimitsFor(_ string) (domain.PlanLimits, error) {
	if m.err != nil {
		return domain.PlanLimits{}, m.err
	}
	return m.limits, nil
}

// mockEngine implements driven.TrainingEngine for testing.
type mockEngine struct {
	mu    sync.Mutex
	calls int
	err   error
	panic bool
	// onTrain runs before the engine returns.
	onTrain func()
	next    driven.TrainingEngine
}

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) Train(ctx context.Context, req domain.TrainingRequest) (*domain.TrainingArtifacts, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.onTrain != nil {
		m.onTrain()
	}
	if m.panic {
		panic("trainer exploded")
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.next.Train(ctx, req)
}

// mockPredictor implements driven.Predictor for testing.
type mockPredictor struct {
	answer string
	err    error
}

func (m *mockPredictor) Name() string { return "mock" }

func (m *mockPredictor) Predict(_ context.Context, _ domain.Example) (string, error) {
	return m.answer, m.err
}

// testEnv wires every service against in-memory stores and a temp artifact tree.
type testEnv struct {
	docs        *memory.DocumentStore
	datasets    *memory.DatasetStore
	runs        *memory.RunStore
	events      *memory.RunEventStore
	reports     *memory.EvaluationStore
	deployments *memory.DeploymentStore
	history     *memory.PollHistoryStore
	store       *artifacts.Store
	plans       *mockPlanProvider
	engine      *mockEngine

	entitlements *Entitlements
	ingestion    *IngestionPipeline
	builder      *DatasetBuilder
	evaluator    *EvaluationEngine
	orchestrator *RunOrchestrator
	deployer     *DeploymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := domain.DefaultConfig()

	env := &testEnv{
		docs:        memory.NewDocumentStore(),
		datasets:    memory.NewDatasetStore(),
		runs:        memory.NewRunStore(),
		events:      memory.NewRunEventStore(),
		reports:     memory.NewEvaluationStore(),
		deployments: memory.NewDeploymentStore(),
		history:     memory.NewPollHistoryStore(),
		store:       artifacts.New(t.TempDir()),
		plans: &mockPlanProvider{limits: domain.PlanLimits{
			Tier:                   domain.PlanStarter,
			MaxDocuments:           200,
			MaxTrainingRunsMonthly: 10,
			MaxStorageMB:           2048,
		}},
		engine: &mockEngine{next: trainer.NewStub()},
	}

	env.entitlements = NewEntitlements(env.plans, env.docs, env.runs)
	env.ingestion = NewIngestionPipeline(cfg.Ingest, env.docs, env.store, normalisers.DefaultRegistry(), env.entitlements, nil)
	env.builder = NewDatasetBuilder(cfg.Dataset, env.docs, env.datasets, env.store)
	env.evaluator = NewEvaluationEngine(env.reports, env.store, reference.New())
	env.orchestrator = env.newOrchestrator()
	env.deployer = NewDeploymentService(env.runs, env.deployments)
	return env
}

// newOrchestrator creates another orchestrator over the same stores,
// standing in for a second worker process.
func (e *testEnv) newOrchestrator() *RunOrchestrator {
	cfg := domain.DefaultConfig()
	return NewRunOrchestrator(
		cfg.Training,
		cfg.Models,
		e.runs,
		e.events,
		e.datasets,
		e.store,
		e.engine,
		e.evaluator,
		packager.NewZip(),
		e.entitlements,
		nil,
	)
}

// addDocument stores a document with a fixed id and its normalized artifact.
func (e *testEnv) addDocument(t *testing.T, id, text string, status domain.DocumentStatus) *domain.Document {
	t.Helper()
	normalized := normalizeText(text)
	path, err := e.store.WriteNormalized(testTenant, testProject, id, &domain.NormalizedArtifact{
		Filename: id + ".md",
		Text:     normalized,
		Sections: extractSections(normalized),
		Metadata: map[string]any{},
	})
	require.NoError(t, err)

	doc := &domain.Document{
		ID:             id,
		TenantID:       testTenant,
		ProjectID:      testProject,
		Filename:       id + ".md",
		FileType:       domain.FileTypeMarkdown,
		NormalizedPath: path,
		ContentHash:    id,
		Status:         status,
	}
	require.NoError(t, e.docs.SaveDocument(context.Background(), doc))
	return doc
}

// buildDataset builds a dataset from a single train-bucket document.
func (e *testEnv) buildDataset(t *testing.T) *domain.DatasetVersion {
	t.Helper()
	e.addDocument(t, trainDocID, refundPolicy, domain.DocumentReady)
	ds, err := e.builder.Build(context.Background(), driving.BuildDatasetRequest{
		TenantID:  testTenant,
		ProjectID: testProject,
		Name:      "v1",
	})
	require.NoError(t, err)
	return ds
}

// createRun queues a run against ds with the default configuration.
func (e *testEnv) createRun(t *testing.T, ds *domain.DatasetVersion) *domain.TrainingRun {
	t.Helper()
	run, err := e.orchestrator.CreateRun(context.Background(), driving.CreateRunRequest{
		TenantID:            testTenant,
		ProjectID:           testProject,
		DatasetVersionID:    ds.ID,
		BaseModelID:         testModel,
		RequestedBy:         "user-1",
		Config:              domain.DefaultTrainingConfig(),
		DataRightsConfirmed: true,
	})
	require.NoError(t, err)
	return run
}

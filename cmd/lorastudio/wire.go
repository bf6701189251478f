package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/lorastudio/internal/adapters/driven/artifacts"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/config/file"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/packager"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/predictor/ollama"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/predictor/reference"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/lorastudio/internal/adapters/driven/trainer"
	"github.com/custodia-labs/lorastudio/internal/adapters/driving/cli"
	"github.com/custodia-labs/lorastudio/internal/adapters/driving/inbox"
	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/core/services"
	"github.com/custodia-labs/lorastudio/internal/logger"
	"github.com/custodia-labs/lorastudio/internal/normalisers"
	"github.com/custodia-labs/lorastudio/internal/telemetry"
)

// stores groups the repositories of one storage backend.
type stores struct {
	docs        driven.DocumentStore
	datasets    driven.DatasetStore
	runs        driven.RunStore
	events      driven.RunEventStore
	reports     driven.EvaluationStore
	deployments driven.DeploymentStore
	history     driven.PollHistoryStore
	close       func() error
}

// bootstrap is the composition root: it loads configuration and wires
// every adapter into the core services.
func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, error) {
	path := opts.ConfigPath
	if path == "" {
		p, err := file.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := file.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.Storage.DataDir = opts.DataDir
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	logger.Debug("configuration loaded", "path", path, "data_dir", cfg.Storage.DataDir,
		"storage", cfg.Storage.Backend, "trainer", cfg.Training.Backend, "predictor", cfg.Evaluation.Predictor)

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	var closers []func() error
	abort := func(cause error) (*cli.Services, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		_ = shutdownTelemetry(context.WithoutCancel(ctx))
		return nil, cause
	}
	recorder := telemetry.Global()

	st, err := openStores(cfg.Storage)
	if err != nil {
		return abort(err)
	}
	closers = append(closers, st.close)

	engine, err := trainer.New(cfg.Training)
	if err != nil {
		return abort(err)
	}

	predictor, err := newPredictor(cfg)
	if err != nil {
		return abort(err)
	}

	artifactStore := artifacts.New(filepath.Join(cfg.Storage.DataDir, "artifacts"))
	entitlements := services.NewEntitlements(file.NewPlanProvider(cfg.Plans), st.docs, st.runs)

	ingestion := services.NewIngestionPipeline(
		cfg.Ingest, st.docs, artifactStore, normalisers.DefaultRegistry(), entitlements, recorder)
	datasets := services.NewDatasetBuilder(cfg.Dataset, st.docs, st.datasets, artifactStore)
	evaluator := services.NewEvaluationEngine(st.reports, artifactStore, predictor)
	orchestrator := services.NewRunOrchestrator(
		cfg.Training,
		cfg.Models,
		st.runs,
		st.events,
		st.datasets,
		artifactStore,
		engine,
		evaluator,
		packager.NewZip(),
		entitlements,
		recorder,
	)

	svc := &cli.Services{
		Ingestion:  ingestion,
		Datasets:   datasets,
		Runs:       orchestrator,
		Evaluation: evaluator,
		Deployment: services.NewDeploymentService(st.runs, st.deployments),
		Poller:     services.NewRunPoller(cfg.Worker, orchestrator, st.history),
		Close: func() error {
			return errors.Join(shutdownTelemetry(context.Background()), st.close())
		},
	}
	if cfg.Inbox.Enabled {
		svc.Inbox = inbox.New(cfg.Inbox, ingestion)
	}
	return svc, nil
}

func openStores(cfg domain.StorageConfig) (*stores, error) {
	if cfg.Backend == domain.StorageMemory {
		return &stores{
			docs:        memory.NewDocumentStore(),
			datasets:    memory.NewDatasetStore(),
			runs:        memory.NewRunStore(),
			events:      memory.NewRunEventStore(),
			reports:     memory.NewEvaluationStore(),
			deployments: memory.NewDeploymentStore(),
			history:     memory.NewPollHistoryStore(),
			close:       func() error { return nil },
		}, nil
	}

	db, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &stores{
		docs:        db.DocumentStore(),
		datasets:    db.DatasetStore(),
		runs:        db.RunStore(),
		events:      db.RunEventStore(),
		reports:     db.EvaluationStore(),
		deployments: db.DeploymentStore(),
		history:     db.PollHistoryStore(),
		close:       db.Close,
	}, nil
}

func newPredictor(cfg domain.Config) (driven.Predictor, error) {
	if cfg.Evaluation.Predictor != domain.PredictorOllama {
		return reference.New(), nil
	}

	prompts, err := file.NewPromptStore(filepath.Join(filepath.Dir(cfg.Storage.DataDir), "prompts"))
	if err != nil {
		return nil, err
	}
	return ollama.New(ollama.Config{
		BaseURL: cfg.Evaluation.OllamaBaseURL,
		Model:   cfg.Evaluation.OllamaModel,
		Timeout: cfg.Evaluation.OllamaTimeout,
	}, prompts), nil
}

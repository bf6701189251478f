package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/logger"
	"github.com/custodia-labs/lorastudio/internal/postprocessors/chunker"
)

// Ensure DatasetBuilder implements the interface.
var _ driving.DatasetService = (*DatasetBuilder)(nil)

// Dataset file names inside a dataset directory.
const (
	TrainFile  = "train.jsonl"
	ValFile    = "val.jsonl"
	TestFile   = "test.jsonl"
	GoldFile   = "gold_eval.jsonl"
	ReviewFile = "review_queue.jsonl"
)

// Gold curation thresholds.
const (
	goldScoreThreshold     = 80
	goldFallbackThreshold  = 75
	goldFallbackMaxExample = 10
)

// DatasetBuilder synthesizes, scores and splits dataset versions.
type DatasetBuilder struct {
	docStore     driven.DocumentStore
	datasetStore driven.DatasetStore
	artifacts    driven.ArtifactStore
	chunker      *chunker.Processor
	now          func() time.Time
}

// NewDatasetBuilder creates a new dataset builder.
func NewDatasetBuilder(
	config domain.DatasetConfig,
	docStore driven.DocumentStore,
	datasetStore driven.DatasetStore,
	artifacts driven.ArtifactStore,
) *DatasetBuilder {
	return &DatasetBuilder{
		docStore:     docStore,
		datasetStore: datasetStore,
		artifacts:    artifacts,
		chunker:      chunker.New(chunker.WithChunkSize(config.ChunkWords), chunker.WithOverlap(config.ChunkOverlap)),
		now:          time.Now,
	}
}

// Build synthesizes a new dataset version from the project's eligible documents.
// A build that yields no examples is stored as FAILED and returns a ValidationError.
func (b *DatasetBuilder) Build(ctx context.Context, req driving.BuildDatasetRequest) (*domain.DatasetVersion, error) {
	if req.TenantID == "" || req.ProjectID == "" {
		return nil, domain.NewValidationError("project", "tenant and project are required")
	}
	if req.Name == "" {
		return nil, domain.NewValidationError("name", "must not be empty")
	}

	docs, err := b.docStore.ListDocuments(ctx, req.TenantID, req.ProjectID, domain.DocumentFilter{
		Statuses: []domain.DocumentStatus{domain.DocumentReady, domain.DocumentNeedsReview},
		IDs:      req.DocumentIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("list eligible documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, domain.NewValidationError("documents", "no eligible documents found for dataset generation")
	}

	ds := &domain.DatasetVersion{
		ID:        uuid.New().String(),
		TenantID:  req.TenantID,
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Status:    domain.DatasetBuilding,
		CreatedAt: b.now(),
	}
	for i := range docs {
		ds.SourceDocumentIDs = append(ds.SourceDocumentIDs, docs[i].ID)
	}
	if err := b.datasetStore.SaveDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("save dataset: %w", err)
	}

	var examples []domain.Example
	for i := range docs {
		artifact, err := b.artifacts.ReadNormalized(docs[i].NormalizedPath)
		if err != nil {
			logger.Warn("skipping document in dataset build", "doc_id", docs[i].ID, "error", err)
			continue
		}
		examples = append(examples, synthesizeExamples(docs[i].ID, artifact, b.chunker)...)
	}

	if len(examples) == 0 {
		ds.Status = domain.DatasetFailed
		ds.Stats = domain.DatasetStats{Error: "No examples generated"}
		if err := b.datasetStore.SaveDataset(ctx, ds); err != nil {
			return nil, fmt.Errorf("save failed dataset: %w", err)
		}
		return nil, domain.NewValidationError("dataset", "dataset generation failed: no examples")
	}

	if err := b.writeSplits(ctx, ds, examples); err != nil {
		return nil, b.fail(ctx, ds, err)
	}

	logger.Info("dataset built",
		"dataset_id", ds.ID,
		"status", ds.Status,
		"examples", ds.Stats.TotalExamples,
		"quality", ds.QualityScore,
	)
	return ds, nil
}

// writeSplits scores and partitions examples, persists the five files
// and finalizes ds.
func (b *DatasetBuilder) writeSplits(ctx context.Context, ds *domain.DatasetVersion, examples []domain.Example) error {
	var train, val, test, gold, review []domain.Example
	total := 0
	taskMix := make(map[string]int)

	for i := range examples {
		ex := examples[i]
		ex.ExampleScore = scoreExample(ex)
		total += ex.ExampleScore
		taskMix[string(ex.TaskType)]++

		if ex.ExampleScore < reviewScoreThreshold {
			review = append(review, ex)
		}
		bucket := splitBucket(ex.Source.DocID)
		switch bucket {
		case domain.SplitTrain:
			train = append(train, ex)
		case domain.SplitVal:
			val = append(val, ex)
		default:
			test = append(test, ex)
		}
		if ex.ExampleScore >= goldScoreThreshold && bucket != domain.SplitTrain {
			gold = append(gold, ex)
		}
	}

	if len(val) == 0 && len(train) > 0 {
		val = append(val, train[0])
		train = train[1:]
	}
	if len(test) == 0 && len(train) > 0 {
		test = append(test, train[0])
		train = train[1:]
	}
	if len(gold) == 0 {
		gold = fallbackGold(val, test, train)
	}

	dir, err := b.artifacts.DatasetDir(ds.TenantID, ds.ProjectID, ds.ID)
	if err != nil {
		return err
	}
	files := []struct {
		path *string
		name string
		rows []domain.Example
	}{
		{&ds.TrainPath, TrainFile, train},
		{&ds.ValPath, ValFile, val},
		{&ds.TestPath, TestFile, test},
		{&ds.GoldPath, GoldFile, gold},
		{&ds.ReviewPath, ReviewFile, review},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := b.artifacts.WriteExamples(path, f.rows); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		*f.path = path
	}

	ds.QualityScore = total / len(examples)
	ds.Status = domain.DatasetReady
	if len(review) > 0 {
		ds.Status = domain.DatasetNeedsReview
	}
	ds.Stats = domain.DatasetStats{
		TotalExamples:    len(examples),
		TrainExamples:    len(train),
		ValExamples:      len(val),
		TestExamples:     len(test),
		GoldExamples:     len(gold),
		ReviewExamples:   len(review),
		TaskMix:          taskMix,
		MeanExampleScore: ds.QualityScore,
	}
	if err := b.datasetStore.SaveDataset(ctx, ds); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	return nil
}

// fail stores ds as FAILED with cause in its stats and returns cause.
func (b *DatasetBuilder) fail(ctx context.Context, ds *domain.DatasetVersion, cause error) error {
	logger.Error("dataset build failed", "dataset_id", ds.ID, "error", cause)
	ds.Status = domain.DatasetFailed
	ds.TrainPath, ds.ValPath, ds.TestPath, ds.GoldPath, ds.ReviewPath = "", "", "", "", ""
	ds.QualityScore = 0
	ds.Stats = domain.DatasetStats{Error: cause.Error()}
	if err := b.datasetStore.SaveDataset(context.WithoutCancel(ctx), ds); err != nil {
		return errors.Join(cause, fmt.Errorf("save failed dataset: %w", err))
	}
	return cause
}

// fallbackGold takes up to ten rows scoring at least 75, searching
// validation, test and then training rows.
func fallbackGold(val, test, train []domain.Example) []domain.Example {
	var candidates []domain.Example
	for _, slice := range [][]domain.Example{val, test, train} {
		for _, ex := range slice {
			if ex.ExampleScore >= goldFallbackThreshold {
				candidates = append(candidates, ex)
			}
		}
	}
	if len(candidates) > goldFallbackMaxExample {
		candidates = candidates[:goldFallbackMaxExample]
	}
	return candidates
}

// GetDataset retrieves a dataset version within a project.
func (b *DatasetBuilder) GetDataset(ctx context.Context, tenantID, projectID, id string) (*domain.DatasetVersion, error) {
	return b.datasetStore.GetDataset(ctx, tenantID, projectID, id)
}

// ListDatasets returns the project's dataset versions.
func (b *DatasetBuilder) ListDatasets(ctx context.Context, tenantID, projectID string) ([]domain.DatasetVersion, error) {
	return b.datasetStore.ListDatasets(ctx, tenantID, projectID)
}

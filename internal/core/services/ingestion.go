package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
	"github.com/custodia-labs/lorastudio/internal/logger"
	"github.com/custodia-labs/lorastudio/internal/telemetry"
)

// Ensure IngestionPipeline implements the interface.
var _ driving.IngestionService = (*IngestionPipeline)(nil)

// candidateLoadLimit bounds concurrent artifact reads during near-duplicate search.
const candidateLoadLimit = 8

// IngestionPipeline extracts, scores and deduplicates uploads.
type IngestionPipeline struct {
	config       domain.IngestConfig
	docStore     driven.DocumentStore
	artifacts    driven.ArtifactStore
	normalisers  driven.NormaliserRegistry
	entitlements *Entitlements
	telemetry    *telemetry.Recorder
	now          func() time.Time
}

// NewIngestionPipeline creates a new ingestion pipeline.
func NewIngestionPipeline(
	config domain.IngestConfig,
	docStore driven.DocumentStore,
	artifacts driven.ArtifactStore,
	normalisers driven.NormaliserRegistry,
	entitlements *Entitlements,
	recorder *telemetry.Recorder,
) *IngestionPipeline {
	return &IngestionPipeline{
		config:       config,
		docStore:     docStore,
		artifacts:    artifacts,
		normalisers:  normalisers,
		entitlements: entitlements,
		telemetry:    recorder,
		now:          time.Now,
	}
}

// Ingest extracts, scores and stores one upload.
func (p *IngestionPipeline) Ingest(ctx context.Context, req driving.IngestRequest) (*domain.Document, error) {
	if req.TenantID == "" || req.ProjectID == "" {
		return nil, domain.NewValidationError("project", "tenant and project are required")
	}
	metadata, err := p.decodeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	filename := safeFilename(req.Filename)
	if len(req.Content) == 0 {
		return nil, domain.NewValidationError("file", "uploaded file is empty")
	}
	fileType, err := domain.DetectFileType(filename)
	if err != nil {
		return nil, err
	}
	if int64(len(req.Content)) > p.config.MaxUploadBytes() {
		return nil, domain.NewValidationError("file", "file too large: "+filename)
	}

	if err := p.entitlements.CheckDocumentQuota(ctx, req.TenantID); err != nil {
		return nil, err
	}

	extracted, err := p.normalisers.Normalise(ctx, &domain.RawFile{
		Filename: filename,
		FileType: fileType,
		Content:  req.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}

	text := normalizeText(extracted.Text)
	sections := extractSections(text)
	sum := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])

	existing, err := p.docStore.FindByHash(ctx, req.TenantID, req.ProjectID, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup content hash: %w", err)
	}

	rawPath, err := p.artifacts.WriteRaw(req.TenantID, req.ProjectID, filename, req.Content)
	if err != nil {
		return nil, err
	}
	normalizedPath, err := p.artifacts.WriteNormalized(req.TenantID, req.ProjectID, hash, &domain.NormalizedArtifact{
		Filename:   filename,
		Text:       text,
		Sections:   sections,
		Metadata:   metadata,
		Extraction: extracted.Extraction,
	})
	if err != nil {
		return nil, err
	}

	var (
		piiHits    []domain.PIIHit
		nearDupOf  string
		similarity float64
	)
	if existing == nil {
		piiHits = detectPII(text)
		nearDupOf, similarity, err = p.findNearDuplicate(ctx, req.TenantID, req.ProjectID, text)
		if err != nil {
			return nil, err
		}
	}

	quality := documentQuality(qualityInput{
		text:       text,
		extraction: extracted.Extraction,
		metadata:   metadata,
		piiHits:    len(piiHits),
		similarity: similarity,
	}, p.now())

	status := domain.DocumentReady
	switch {
	case existing != nil:
		status = domain.DocumentRejected
		nearDupOf = existing.ID
	case len(piiHits) > 0:
		status = domain.DocumentRedactionRequired
	case quality < p.config.DocQualityThreshold || nearDupOf != "":
		status = domain.DocumentNeedsReview
	}

	doc := &domain.Document{
		ID:              uuid.New().String(),
		TenantID:        req.TenantID,
		ProjectID:       req.ProjectID,
		Filename:        filename,
		FileType:        fileType,
		StoragePath:     rawPath,
		NormalizedPath:  normalizedPath,
		SizeBytes:       int64(len(req.Content)),
		ContentHash:     hash,
		NearDuplicateOf: nearDupOf,
		QualityScore:    quality,
		PIIHits:         piiHits,
		Metadata:        metadata,
		Status:          status,
		CreatedAt:       p.now(),
	}
	if err := p.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	p.telemetry.DocumentIngested(ctx, status)
	logger.Info("document ingested",
		"doc_id", doc.ID,
		"filename", filename,
		"status", status,
		"quality", quality,
		"pii_hits", len(piiHits),
	)
	return doc, nil
}

// GetDocument retrieves a document by ID within a project.
func (p *IngestionPipeline) GetDocument(ctx context.Context, tenantID, projectID, id string) (*domain.Document, error) {
	return p.docStore.GetDocument(ctx, tenantID, projectID, id)
}

// ListDocuments returns project documents matching filter.
func (p *IngestionPipeline) ListDocuments(
	ctx context.Context,
	tenantID, projectID string,
	filter domain.DocumentFilter,
) ([]domain.Document, error) {
	return p.docStore.ListDocuments(ctx, tenantID, projectID, filter)
}

// decodeMetadata requires a JSON object no larger than MaxMetadataBytes
// once re-serialized. Absent metadata is an empty object.
func (p *IngestionPipeline) decodeMetadata(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}

	var metadata map[string]any
	if err := json.Unmarshal(trimmed, &metadata); err != nil || metadata == nil {
		return nil, domain.NewValidationError("metadata", "must be an object")
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, domain.NewValidationError("metadata", "must be an object")
	}
	if len(encoded) > p.config.MaxMetadataBytes {
		return nil, domain.NewValidationError("metadata", "payload too large")
	}
	return metadata, nil
}

// findNearDuplicate compares text with every non-rejected project document.
// It returns the best match only when it reaches the configured threshold,
// along with the best similarity seen.
func (p *IngestionPipeline) findNearDuplicate(
	ctx context.Context,
	tenantID, projectID, text string,
) (string, float64, error) {
	candidates, err := p.docStore.ListDocuments(ctx, tenantID, projectID, domain.DocumentFilter{})
	if err != nil {
		return "", 0, fmt.Errorf("list candidates: %w", err)
	}

	texts := make([]string, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(candidateLoadLimit)
	for i := range candidates {
		if candidates[i].Status == domain.DocumentRejected {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			artifact, err := p.artifacts.ReadNormalized(candidates[i].NormalizedPath)
			if err != nil {
				logger.Warn("skipping near-duplicate candidate", "doc_id", candidates[i].ID, "error", err)
				return nil
			}
			texts[i] = normalizeText(artifact.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, err
	}

	target := hashedEmbedding(text)
	bestID := ""
	best := 0.0
	for i, candidate := range texts {
		if candidate == "" {
			continue
		}
		score := cosineSimilarity(target, hashedEmbedding(candidate))
		if score > best {
			best = score
			bestID = candidates[i].ID
		}
	}

	if best >= p.config.NearDuplicateThreshold {
		return bestID, best, nil
	}
	return "", best, nil
}

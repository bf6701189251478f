package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driving"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document",
	Long: `Extracts, scores and stores a document for the tenant and project.

The document is checked for PII, exact and near duplicates, and scored for
quality. Its status decides whether it can feed dataset builds.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Inspect ingested documents",
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List project documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var (
	ingestMetadata string
	documentStatus []string
)

func init() {
	ingestCmd.Flags().StringVarP(&ingestMetadata, "metadata", "m", "", "Metadata as a JSON object")
	documentListCmd.Flags().StringSliceVar(&documentStatus, "status", nil,
		"Filter by status (ready, needs_review, redaction_required, rejected)")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(documentCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	req := driving.IngestRequest{
		TenantID:  tenant,
		ProjectID: project,
		Filename:  filepath.Base(path),
		Content:   content,
	}
	if ingestMetadata != "" {
		req.Metadata = json.RawMessage(ingestMetadata)
	}

	doc, err := ingestionService.Ingest(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to ingest document: %w", err)
	}

	cmd.Printf("Ingested %s\n\n", doc.Filename)
	printDocument(cmd, doc)
	return nil
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	filter := domain.DocumentFilter{}
	for _, s := range documentStatus {
		status := domain.DocumentStatus(strings.ToLower(s))
		if !status.Valid() {
			return domain.NewValidationError("status", "unknown document status: "+s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	docs, err := ingestionService.ListDocuments(cmd.Context(), tenant, project, filter)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	cmd.Printf("Documents for %s/%s:\n\n", tenant, project)
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    File:    %s\n", docs[i].Filename)
		cmd.Printf("    Status:  %s\n", docs[i].Status)
		cmd.Printf("    Quality: %d\n", docs[i].QualityScore)
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	tenant, project, err := scope()
	if err != nil {
		return err
	}

	doc, err := ingestionService.GetDocument(cmd.Context(), tenant, project, args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	printDocument(cmd, doc)
	return nil
}

func printDocument(cmd *cobra.Command, doc *domain.Document) {
	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  File:     %s (%s, %d bytes)\n", doc.Filename, doc.FileType, doc.SizeBytes)
	cmd.Printf("  Status:   %s\n", doc.Status)
	cmd.Printf("  Quality:  %d\n", doc.QualityScore)
	cmd.Printf("  Hash:     %s\n", doc.ContentHash)
	if doc.NearDuplicateOf != "" {
		cmd.Printf("  Duplicate of: %s\n", doc.NearDuplicateOf)
	}
	if !doc.CreatedAt.IsZero() {
		cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	if len(doc.PIIHits) > 0 {
		// Only the classes are shown; values are previews of personal data.
		counts := make(map[string]int)
		var order []string
		for _, hit := range doc.PIIHits {
			if counts[hit.Type] == 0 {
				order = append(order, hit.Type)
			}
			counts[hit.Type]++
		}
		cmd.Println("\n  PII:")
		for _, class := range order {
			cmd.Printf("    %s: %d\n", class, counts[class])
		}
	}

	if len(doc.Metadata) > 0 {
		cmd.Println("\n  Metadata:")
		for k, v := range doc.Metadata {
			cmd.Printf("    %s: %v\n", k, v)
		}
	}
}

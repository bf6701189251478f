package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// ==================== Evaluation Store ====================

// evaluationStore implements driven.EvaluationStore.
type evaluationStore struct {
	store *Store
}

var _ driven.EvaluationStore = (*evaluationStore)(nil)

const reportColumns = `id, tenant_id, project_id, run_id, predictor, metrics, go_no_go, failures, report_path, created_at`

// SaveReport stores a new report.
func (s *evaluationStore) SaveReport(ctx context.Context, report *domain.EvaluationReport) error {
	if report == nil {
		return domain.ErrInvalidInput
	}

	metricsJSON, err := json.Marshal(report.Metrics)
	if err != nil {
		return fmt.Errorf("marshalling metrics: %w", err)
	}
	failures := report.Failures
	if failures == nil {
		failures = []domain.FailureExample{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO evaluation_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.ID, report.TenantID, report.ProjectID, report.RunID, report.Predictor,
		string(metricsJSON), boolToInt(report.GoNoGo), string(failuresJSON),
		nullString(report.ReportPath), formatTime(report.CreatedAt))

	if err != nil {
		return fmt.Errorf("saving evaluation report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID.
func (s *evaluationStore) GetReport(ctx context.Context, id string) (*domain.EvaluationReport, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+` FROM evaluation_reports WHERE id = ?
	`, id)

	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("evaluation report", id)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

// LatestForProject returns the most recent project report not produced by excludeRunID.
// Returns nil and no error if there is none.
func (s *evaluationStore) LatestForProject(
	ctx context.Context, tenantID, projectID, excludeRunID string,
) (*domain.EvaluationReport, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM evaluation_reports
		WHERE tenant_id = ? AND project_id = ? AND run_id != ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, tenantID, projectID, excludeRunID)

	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReportsForRun returns every report produced for a run, newest first.
func (s *evaluationStore) ListReportsForRun(ctx context.Context, runID string) ([]domain.EvaluationReport, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM evaluation_reports
		WHERE run_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying evaluation reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.EvaluationReport //nolint:prealloc // size unknown from query
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating evaluation reports: %w", err)
	}

	return reports, nil
}

// ==================== Deployment Store ====================

// deploymentStore implements driven.DeploymentStore.
type deploymentStore struct {
	store *Store
}

var _ driven.DeploymentStore = (*deploymentStore)(nil)

const deploymentColumns = `id, tenant_id, project_id, run_id, version, status, package_path, endpoint_url, created_at`

// Activate archives the project's ACTIVE packages and inserts pkg as ACTIVE
// in one transaction.
func (s *deploymentStore) Activate(ctx context.Context, pkg *domain.DeploymentPackage) error {
	if pkg == nil {
		return domain.ErrInvalidInput
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		UPDATE deployment_packages SET status = ?
		WHERE tenant_id = ? AND project_id = ? AND status = ?
	`, string(domain.DeploymentArchived), pkg.TenantID, pkg.ProjectID,
		string(domain.DeploymentActive)); err != nil {
		return fmt.Errorf("archiving active deployments: %w", err)
	}

	pkg.Status = domain.DeploymentActive
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO deployment_packages (`+deploymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pkg.ID, pkg.TenantID, pkg.ProjectID, pkg.RunID, pkg.Version,
		string(pkg.Status), pkg.PackagePath, nullString(pkg.EndpointURL),
		formatTime(pkg.CreatedAt)); err != nil {
		return fmt.Errorf("saving deployment package: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ActiveDeployment returns the project's ACTIVE package.
// Returns nil and no error if there is none.
func (s *deploymentStore) ActiveDeployment(
	ctx context.Context, tenantID, projectID string,
) (*domain.DeploymentPackage, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployment_packages
		WHERE tenant_id = ? AND project_id = ? AND status = ?
	`, tenantID, projectID, string(domain.DeploymentActive))

	pkg, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

// ListDeployments returns the project's packages, newest first.
func (s *deploymentStore) ListDeployments(
	ctx context.Context, tenantID, projectID string,
) ([]domain.DeploymentPackage, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployment_packages
		WHERE tenant_id = ? AND project_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying deployment packages: %w", err)
	}
	defer rows.Close()

	var pkgs []domain.DeploymentPackage //nolint:prealloc // size unknown from query
	for rows.Next() {
		pkg, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, *pkg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deployment packages: %w", err)
	}

	return pkgs, nil
}

// scanReport scans an evaluation_reports row. sql.ErrNoRows is returned unwrapped.
func scanReport(row scanner) (*domain.EvaluationReport, error) {
	var report domain.EvaluationReport
	var metricsJSON, failuresJSON, createdAt string
	var goNoGo int
	var reportPath sql.NullString

	if err := row.Scan(&report.ID, &report.TenantID, &report.ProjectID, &report.RunID,
		&report.Predictor, &metricsJSON, &goNoGo, &failuresJSON, &reportPath, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning evaluation report: %w", err)
	}

	if err := json.Unmarshal([]byte(metricsJSON), &report.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshaling metrics of report %s: %w", report.ID, err)
	}
	if err := json.Unmarshal([]byte(failuresJSON), &report.Failures); err != nil {
		return nil, fmt.Errorf("unmarshaling failures of report %s: %w", report.ID, err)
	}

	report.GoNoGo = goNoGo == 1
	report.ReportPath = reportPath.String
	report.CreatedAt = parseTime(createdAt)

	return &report, nil
}

// scanDeployment scans a deployment_packages row. sql.ErrNoRows is returned unwrapped.
func scanDeployment(row scanner) (*domain.DeploymentPackage, error) {
	var pkg domain.DeploymentPackage
	var status, createdAt string
	var endpoint sql.NullString

	if err := row.Scan(&pkg.ID, &pkg.TenantID, &pkg.ProjectID, &pkg.RunID, &pkg.Version,
		&status, &pkg.PackagePath, &endpoint, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning deployment package: %w", err)
	}

	pkg.Status = domain.DeploymentStatus(status)
	pkg.EndpointURL = endpoint.String
	pkg.CreatedAt = parseTime(createdAt)

	return &pkg, nil
}

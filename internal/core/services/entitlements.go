package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Entitlements enforces tenant plan limits.
type Entitlements struct {
	plans driven.PlanProvider
	docs  driven.DocumentStore
	runs  driven.RunStore
	now   func() time.Time
}

// NewEntitlements creates the plan limit checker.
// A nil plan provider disables every check.
func NewEntitlements(plans driven.PlanProvider, docs driven.DocumentStore, runs driven.RunStore) *Entitlements {
	return &Entitlements{
		plans: plans,
		docs:  docs,
		runs:  runs,
		now:   time.Now,
	}
}

// CheckDocumentQuota fails when the tenant has reached its document
// count or raw storage limit.
func (e *Entitlements) CheckDocumentQuota(ctx context.Context, tenantID string) error {
	if e == nil || e.plans == nil {
		return nil
	}
	limits, err := e.plans.LimitsFor(tenantID)
	if err != nil {
		return fmt.Errorf("resolve plan: %w", err)
	}

	count, bytes, err := e.docs.Usage(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("document usage: %w", err)
	}
	if count >= limits.MaxDocuments {
		return &domain.QuotaExceededError{
			Resource: "document",
			Used:     count,
			Limit:    limits.MaxDocuments,
			Plan:     limits.Tier,
		}
	}

	usedMB := bytes / (1024 * 1024)
	if usedMB >= limits.MaxStorageMB {
		return &domain.QuotaExceededError{
			Resource: "storage_mb",
			Used:     usedMB,
			Limit:    limits.MaxStorageMB,
			Plan:     limits.Tier,
		}
	}
	return nil
}

// CheckRunQuota fails when the tenant has created its monthly allowance
// of training runs since the first of the current UTC month.
func (e *Entitlements) CheckRunQuota(ctx context.Context, tenantID string) error {
	if e == nil || e.plans == nil {
		return nil
	}
	limits, err := e.plans.LimitsFor(tenantID)
	if err != nil {
		return fmt.Errorf("resolve plan: %w", err)
	}

	now := e.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	count, err := e.runs.CountCreatedSince(ctx, tenantID, monthStart)
	if err != nil {
		return fmt.Errorf("count runs: %w", err)
	}
	if count >= limits.MaxTrainingRunsMonthly {
		return &domain.QuotaExceededError{
			Resource: "training_runs_monthly",
			Used:     count,
			Limit:    limits.MaxTrainingRunsMonthly,
			Plan:     limits.Tier,
		}
	}
	return nil
}

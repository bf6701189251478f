package driven

import "github.com/custodia-labs/lorastudio/internal/core/domain"

// PlanProvider resolves the plan limits that apply to a tenant.
type PlanProvider interface {
	// LimitsFor returns the tenant's plan limits.
	LimitsFor(tenantID string) (domain.PlanLimits, error)
}

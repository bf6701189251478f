package file

import (
	"fmt"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

// Ensure PlanProvider implements the interface.
var _ driven.PlanProvider = (*PlanProvider)(nil)

// PlanProvider resolves tenant limits from the [plans] section.
type PlanProvider struct {
	plans domain.PlanConfig
}

// NewPlanProvider creates a provider over plans.
func NewPlanProvider(plans domain.PlanConfig) *PlanProvider {
	return &PlanProvider{plans: plans}
}

// LimitsFor returns the limits of the tenant's configured tier.
func (p *PlanProvider) LimitsFor(tenantID string) (domain.PlanLimits, error) {
	tier := p.plans.TierFor(tenantID)
	limits, ok := domain.LimitsFor(tier)
	if !ok {
		return domain.PlanLimits{}, fmt.Errorf("%w: plan tier %q", domain.ErrUnsupportedType, tier)
	}
	return limits, nil
}

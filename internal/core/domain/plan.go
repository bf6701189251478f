package domain

// PlanTier names a tenant subscription tier.
type PlanTier string

// Plan tiers.
const (
	PlanStarter    PlanTier = "starter"
	PlanStandard   PlanTier = "standard"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// PlanLimits are the numeric quotas the pipeline enforces.
type PlanLimits struct {
	Tier                   PlanTier
	MaxDocuments           int64
	MaxTrainingRunsMonthly int64
	MaxStorageMB           int64
}

var planLimits = map[PlanTier]PlanLimits{
	PlanStarter:    {Tier: PlanStarter, MaxDocuments: 200, MaxTrainingRunsMonthly: 10, MaxStorageMB: 2048},
	PlanStandard:   {Tier: PlanStandard, MaxDocuments: 1000, MaxTrainingRunsMonthly: 50, MaxStorageMB: 10240},
	PlanPro:        {Tier: PlanPro, MaxDocuments: 5000, MaxTrainingRunsMonthly: 200, MaxStorageMB: 51200},
	PlanEnterprise: {Tier: PlanEnterprise, MaxDocuments: 50000, MaxTrainingRunsMonthly: 5000, MaxStorageMB: 512000},
}

// LimitsFor returns the limits of tier.
func LimitsFor(tier PlanTier) (PlanLimits, bool) {
	l, ok := planLimits[tier]
	return l, ok
}

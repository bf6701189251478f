package domain

import "time"

// DeploymentStatus is the lifecycle status of a deployment package.
type DeploymentStatus string

// Deployment statuses.
const (
	DeploymentCreated  DeploymentStatus = "created"
	DeploymentActive   DeploymentStatus = "active"
	DeploymentArchived DeploymentStatus = "archived"
)

// DeploymentPackage is a deployable bundle built from a READY run.
// At most one package per project is ACTIVE.
type DeploymentPackage struct {
	// ID is the unique identifier for the package.
	ID string

	// TenantID and ProjectID scope the package.
	TenantID  string
	ProjectID string

	// RunID is the READY training run the bundle came from.
	RunID string

	// Version is the caller-supplied label.
	Version string

	// Status is the lifecycle status.
	Status DeploymentStatus

	// PackagePath locates the bundle archive.
	PackagePath string

	// EndpointURL is where the package is served, if known.
	EndpointURL string

	// CreatedAt is when the package was created.
	CreatedAt time.Time
}

// InferencePolicy is the fixed runtime policy shipped in every bundle.
type InferencePolicy struct {
	API struct {
		Path   string `json:"path"`
		Method string `json:"method"`
	} `json:"api"`
	RuntimePolicy struct {
		MustGroundFacts         bool `json:"must_ground_facts"`
		RefusalOnMissingContext bool `json:"refusal_on_missing_context"`
	} `json:"runtime_policy"`
}

// DefaultInferencePolicy requires grounded facts and refusal on missing context.
func DefaultInferencePolicy() InferencePolicy {
	var p InferencePolicy
	p.API.Path = "/api/v1/inference/chat"
	p.API.Method = "POST"
	p.RuntimePolicy.MustGroundFacts = true
	p.RuntimePolicy.RefusalOnMissingContext = true
	return p
}

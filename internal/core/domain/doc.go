// Package domain defines the core business entities for LoRA Studio.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded, scored and deduplicated source document
//   - DatasetVersion: A synthesized instruction dataset split into files
//   - TrainingRun: A fine-tuning job driven through the run state machine
//   - RunEvent: One entry of a run's append-only transition trail
//   - EvaluationReport: Metrics and the go/no-go verdict for a run
//   - DeploymentPackage: A deployable bundle built from a READY run
//   - Config: The configuration value object built once at start-up
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

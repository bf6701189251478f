// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore, DatasetStore, RunStore, RunEventStore: entity persistence
//   - EvaluationStore, DeploymentStore: report and package persistence
//   - ArtifactStore: tenant/project scoped filesystem tree
//   - NormaliserRegistry: per-file-type text extraction
//   - TrainingEngine: produces checkpoint and adapter artifacts
//   - Packager: bundles an adapter into a deployable archive
//   - Predictor: produces candidate answers during evaluation
//   - PlanProvider: numeric plan limits per tenant
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - PollHistoryStore: poller cycle history. Without it, cycles are only logged.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven

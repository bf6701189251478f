// Package services implements the driving port interfaces.
// Services contain the pipeline logic (ingestion, dataset synthesis,
// the run state machine, evaluation and deployment) and orchestrate
// calls to driven ports (adapters).
//
// Services never touch the filesystem or database directly; every
// side effect goes through a driven port.
package services

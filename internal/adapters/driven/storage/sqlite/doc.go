// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - DocumentStore: ingested document records
//   - DatasetStore: dataset version records
//   - RunStore and RunEventStore: training runs and their transition log
//   - EvaluationStore: evaluation reports
//   - DeploymentStore: deployment packages
//   - PollHistoryStore: poller cycles and the runs each one drove
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Claims
//
// RunStore.CompareAndSetState is a single conditional UPDATE. Any number of
// processes sharing the database file may race for a queued run; exactly one
// observes an affected row.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite

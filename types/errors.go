package types

import "errors"

/*
Sentinel errors shared across the engine. Callers are expected to match with
errors.Is; everything else is wrapped context via fmt.Errorf("...: %w").
*/

var (
	// ErrSerializationFailure is raised under RepeatableRead/Serializable when
	// re-evaluation after a write-write wait reveals a conflicting committed
	// change. Retryable by re-running the whole transaction.
	ErrSerializationFailure = errors.New("could not serialize access due to concurrent update")

	// ErrSnapshotTooOld is raised when a transaction's snapshot has outlived
	// the configured maximum age. Not retryable without a new transaction.
	ErrSnapshotTooOld = errors.New("snapshot too old")

	// ErrIsolationMismatch is raised by snapshot import/export when the
	// transaction's isolation level cannot hold a stable transaction-scoped
	// snapshot.
	ErrIsolationMismatch = errors.New("isolation level cannot share a transaction snapshot")

	// ErrInvalidSnapshotToken is raised by import when the token is unknown or
	// its exporting transaction has already ended.
	ErrInvalidSnapshotToken = errors.New("snapshot token is invalid or expired")

	// ErrTransactionAborted is returned for any operation on a transaction
	// that has failed or been aborted and is waiting for rollback.
	ErrTransactionAborted = errors.New("current transaction is aborted")

	// ErrNestedTransaction is returned when Begin is issued while a top-level
	// transaction is already open on the session. Savepoints are the only
	// sanctioned nesting mechanism.
	ErrNestedTransaction = errors.New("a transaction is already in progress")

	// ErrNoTransaction is returned for transaction-scoped operations issued
	// outside any transaction.
	ErrNoTransaction = errors.New("no transaction in progress")

	// ErrNoSuchSavepoint is returned by RollbackTo/ReleaseSavepoint for an
	// unknown savepoint name.
	ErrNoSuchSavepoint = errors.New("no such savepoint")

	// ErrReadOnlyTransaction is returned for write operations in a transaction
	// begun read-only. Read-only transactions never take a real id.
	ErrReadOnlyTransaction = errors.New("cannot execute writes in a read-only transaction")

	// ErrRowNotFound is returned by Update/Delete when no version of the row
	// is visible under the statement's snapshot.
	ErrRowNotFound = errors.New("row not found")
)

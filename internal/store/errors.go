package store

import "errors"

// Sentinel errors returned by repository methods to signal well-known failure
// conditions. Callers should use [errors.Is] to match against these values.
var (
	// ErrEntityNotFound is returned when no entity with the requested UUID
	// exists, tombstones included.
	ErrEntityNotFound = errors.New("entity was not found")

	// ErrEntityAlreadyExists is returned when a create targets a UUID that
	// is already stored, including the case where a concurrent create won
	// the unique index.
	ErrEntityAlreadyExists = errors.New("entity already exists")

	// ErrVersionConflict is returned when an optimistic-locking check fails:
	// the stored version no longer equals the version the write was based on,
	// meaning another writer has modified the entity in the meantime.
	ErrVersionConflict = errors.New("entity version conflict occurred")

	// ErrReceiptNotFound is returned when a device change has not been
	// applied before.
	ErrReceiptNotFound = errors.New("change receipt was not found")

	// ErrConflictNotFound is returned when a ledger entry does not exist.
	ErrConflictNotFound = errors.New("conflict was not found")

	// ErrConflictAlreadyResolved is returned by MarkResolved when the entry
	// has already made its single transition to resolved.
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")

	// ErrNothingToSave is returned when a write is called with no records.
	ErrNothingToSave = errors.New("nothing to save")

	// ErrOutboxEntryNotFound is returned by the local outbox when an entry
	// with the given offline client ID is unknown.
	ErrOutboxEntryNotFound = errors.New("outbox entry was not found")
)

// Low-level database operation errors. These are returned (or wrapped) by
// repository methods when a SQL-level operation fails before any domain logic
// can be applied.
var (
	// ErrBuildingSQLQuery is returned when constructing a parameterised SQL
	// query fails (e.g. invalid argument count or unsupported type).
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a SELECT or similar
	// read-only query against the database fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the database driver cannot
	// start a new transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommitingTransaction is returned when committing an open transaction
	// fails. The transaction is considered rolled back at this point.
	ErrCommitingTransaction = errors.New("failed to commit transaction")

	// ErrExecutingStatement is returned when executing a DML statement
	// (INSERT, UPDATE, DELETE) fails.
	ErrExecutingStatement = errors.New("failed to execute statement")

	// ErrScanningRow is returned when scanning column values from a single
	// result row fails.
	ErrScanningRow = errors.New("failed to scan row")

	// ErrScanningRows is returned when scanning column values during
	// multi-row iteration fails, typically mid-result-set.
	ErrScanningRows = errors.New("failed to scan rows")
)

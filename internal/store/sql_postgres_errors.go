package store

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorClassification tells the retry loop in DB whether a failed statement
// is worth repeating.
type ErrorClassification int

const (
	NonRetryable ErrorClassification = iota
	Retryable
)

// PostgresErrorClassifier reads SQLSTATE codes from pgx and lib/pq errors.
type PostgresErrorClassifier struct{}

func NewPostgresErrorClassifier() *PostgresErrorClassifier {
	return &PostgresErrorClassifier{}
}

// Classify reports Retryable only for connection loss, rollbacks caused by
// concurrent transactions (serialization failures and deadlocks hit the
// versioned upsert under contention) and a database that is still starting.
// Constraint, data and syntax errors, and anything that is not a Postgres
// error at all, are NonRetryable.
func (c *PostgresErrorClassifier) Classify(err error) ErrorClassification {
	code, ok := sqlState(err)
	if !ok {
		return NonRetryable
	}

	switch code {
	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.TransactionRollback,
		pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.CannotConnectNow:
		return Retryable
	default:
		return NonRetryable
	}
}

// sqlState extracts the SQLSTATE code from either driver's error type.
func sqlState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}

	return "", false
}

// isUniqueViolation reports a duplicate key, which the entity store turns
// into a version race on create.
func isUniqueViolation(err error) bool {
	code, ok := sqlState(err)
	return ok && code == pgerrcode.UniqueViolation
}

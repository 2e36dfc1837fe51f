package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

type Tx interface {
	Execer
	Getter
}

// ErrDuplicateReference reports that a ledger event with the same (kind,
// reference) pair was already appended. Callers treat it as proof the credit
// or debit was applied before.
var ErrDuplicateReference = errors.New("duplicate ledger reference")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}

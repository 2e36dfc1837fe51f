package store

import (
	"context"
	"time"
)

const (
	KindDepositCredit = "deposit_credit"
	KindDebit         = "debit"
	KindRefund        = "refund"
	KindVoucherCredit = "voucher_credit"
	KindPackageCredit = "package_credit"
	KindAdminAdjust   = "admin_adjust"
)

type LedgerStore struct {
	db DB
}

type LedgerEvent struct {
	ID               string    `db:"id"`
	AccountID        string    `db:"account_id"`
	Kind             string    `db:"kind"`
	Amount           int64     `db:"amount"`
	ResultingBalance int64     `db:"resulting_balance"`
	Reference        *string   `db:"reference"`
	Description      string    `db:"description"`
	CreatedAt        time.Time `db:"created_at"`
}

type LedgerEventInput struct {
	ID               string
	AccountID        string
	Kind             string
	Amount           int64
	ResultingBalance int64
	Reference        *string
	Description      string
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// InsertEvent appends one immutable event. The (kind, reference) unique
// index makes referenced credits idempotent: a second insert for the same
// transaction hash, voucher code, or request id fails with
// ErrDuplicateReference instead of double-applying.
func (s *LedgerStore) InsertEvent(ctx context.Context, tx Execer, input LedgerEventInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_events (id, account_id, kind, amount, resulting_balance, reference, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, input.ID, input.AccountID, input.Kind, input.Amount, input.ResultingBalance, input.Reference, input.Description)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

func (s *LedgerStore) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_events
		WHERE account_id = $1
	`, accountID)
	return sum, err
}

func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]LedgerEvent, error) {
	var rows []LedgerEvent
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, kind, amount, resulting_balance, reference, description, created_at
		FROM ledger_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	return rows, err
}

// HasReference reports whether an event with the given kind and reference
// was already appended, regardless of account.
func (s *LedgerStore) HasReference(ctx context.Context, kind, reference string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM ledger_events
		WHERE kind = $1 AND reference = $2
	`, kind, reference)
	return count > 0, err
}

package store

import (
	"context"
	"time"
)

const (
	CurrencyUSD = "USD"
	CurrencyCID = "CID"

	AccountActive    = "active"
	AccountSuspended = "suspended"
)

type AccountStore struct {
	db DB
}

type Account struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Currency  string    `db:"currency"`
	Balance   int64     `db:"balance"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

type AccountBalanceSummary struct {
	ID            string `db:"id"`
	UserID        string `db:"user_id"`
	Currency      string `db:"currency"`
	StoredBalance int64  `db:"stored_balance"`
	LedgerSum     int64  `db:"ledger_sum"`
	Difference    int64  `db:"difference"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, id, userID, currency string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, currency, balance, status)
		VALUES ($1, $2, $3, 0, 'active')
	`, id, userID, currency)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, currency, balance, status, created_at
		FROM accounts
		WHERE id = $1
	`, accountID)
	return row, err
}

func (s *AccountStore) GetByUserAndCurrency(ctx context.Context, userID, currency string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, currency, balance, status, created_at
		FROM accounts
		WHERE user_id = $1 AND currency = $2
	`, userID, currency)
	return row, err
}

func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]Account, error) {
	var rows []Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, currency, balance, status, created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY currency
	`, userID)
	return rows, err
}

// GetForUpdate is the per-account serialization point: every balance
// mutation locks the row first, so mutations on one account are totally
// ordered while other accounts proceed independently.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, currency, balance, status
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	return row, err
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}

func (s *AccountStore) SetStatus(ctx context.Context, tx Execer, accountID, status string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListBalanceSummaries compares each stored balance against the sum of its
// ledger events. Any nonzero difference is a conservation violation.
func (s *AccountStore) ListBalanceSummaries(ctx context.Context) ([]AccountBalanceSummary, error) {
	var rows []AccountBalanceSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id,
		       a.user_id,
		       a.currency,
		       a.balance AS stored_balance,
		       COALESCE(SUM(l.amount), 0) AS ledger_sum,
		       (a.balance - COALESCE(SUM(l.amount), 0)) AS difference
		FROM accounts a
		LEFT JOIN ledger_events l ON l.account_id = a.id
		GROUP BY a.id, a.user_id, a.currency, a.balance
		ORDER BY a.user_id, a.currency
	`)
	return rows, err
}

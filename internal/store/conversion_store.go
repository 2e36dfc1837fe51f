package store

import (
	"context"
	"time"
)

const (
	ConversionReserved  = "reserved"
	ConversionFinalized = "finalized"
	ConversionReleased  = "released"
)

type ConversionStore struct {
	db DB
}

type ConversionDebit struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	AccountID      string    `db:"account_id"`
	ReservedUnits  int64     `db:"reserved_units"`
	InstallationID string    `db:"installation_id"`
	ConfirmationID *string   `db:"confirmation_id"`
	Status         string    `db:"status"`
	FailReason     *string   `db:"fail_reason"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type ConversionDebitInput struct {
	ID             string
	UserID         string
	AccountID      string
	ReservedUnits  int64
	InstallationID string
}

func NewConversionStore(db DB) *ConversionStore {
	return &ConversionStore{db: db}
}

func (s *ConversionStore) Create(ctx context.Context, tx Execer, input ConversionDebitInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversion_debits (id, user_id, account_id, reserved_units, installation_id, status)
		VALUES ($1, $2, $3, $4, $5, 'reserved')
	`, input.ID, input.UserID, input.AccountID, input.ReservedUnits, input.InstallationID)
	return err
}

func (s *ConversionStore) GetByID(ctx context.Context, id string) (ConversionDebit, error) {
	var row ConversionDebit
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, account_id, reserved_units, installation_id, confirmation_id, status, fail_reason, created_at, updated_at
		FROM conversion_debits
		WHERE id = $1
	`, id)
	return row, err
}

// Finalize moves a reservation to finalized. The reserved funds were already
// debited, so no ledger change accompanies this transition.
func (s *ConversionStore) Finalize(ctx context.Context, tx Execer, id, confirmationID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE conversion_debits
		SET status = 'finalized', confirmation_id = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'reserved'
	`, confirmationID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *ConversionStore) Release(ctx context.Context, tx Execer, id, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE conversion_debits
		SET status = 'released', fail_reason = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'reserved'
	`, reason, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListStaleReserved returns reservations that have been waiting on the
// external provider for longer than the cutoff; the sweep force-releases
// them so funds are never stuck behind a hung call.
func (s *ConversionStore) ListStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]ConversionDebit, error) {
	var rows []ConversionDebit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, account_id, reserved_units, installation_id, confirmation_id, status, fail_reason, created_at, updated_at
		FROM conversion_debits
		WHERE status = 'reserved' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	return rows, err
}

func (s *ConversionStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]ConversionDebit, error) {
	var rows []ConversionDebit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, account_id, reserved_units, installation_id, confirmation_id, status, fail_reason, created_at, updated_at
		FROM conversion_debits
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return rows, err
}

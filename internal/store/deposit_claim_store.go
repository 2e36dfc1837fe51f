package store

import (
	"context"
	"errors"
	"time"
)

const (
	ClaimPending  = "pending"
	ClaimVerified = "verified"
	ClaimRejected = "rejected"
	ClaimCredited = "credited"
)

var ErrDuplicateClaim = errors.New("deposit claim already exists")

type DepositClaimStore struct {
	db DB
}

type DepositClaim struct {
	TxID         string     `db:"txid"`
	UserID       string     `db:"user_id"`
	ClaimedMinor int64      `db:"claimed_minor"`
	ActualMinor  *int64     `db:"actual_minor"`
	Status       string     `db:"status"`
	RejectReason *string    `db:"reject_reason"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CreditedAt   *time.Time `db:"credited_at"`
}

func NewDepositClaimStore(db DB) *DepositClaimStore {
	return &DepositClaimStore{db: db}
}

func (s *DepositClaimStore) Create(ctx context.Context, txid, userID string, claimedMinor int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposit_claims (txid, user_id, claimed_minor, status)
		VALUES ($1, $2, $3, 'pending')
	`, txid, userID, claimedMinor)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateClaim
	}
	return err
}

func (s *DepositClaimStore) GetByTxID(ctx context.Context, txid string) (DepositClaim, error) {
	var row DepositClaim
	err := s.db.GetContext(ctx, &row, `
		SELECT txid, user_id, claimed_minor, actual_minor, status, reject_reason, created_at, updated_at, credited_at
		FROM deposit_claims
		WHERE txid = $1
	`, txid)
	return row, err
}

func (s *DepositClaimStore) GetForUpdate(ctx context.Context, tx Getter, txid string) (DepositClaim, error) {
	var row DepositClaim
	err := tx.GetContext(ctx, &row, `
		SELECT txid, user_id, claimed_minor, actual_minor, status, reject_reason, created_at, updated_at, credited_at
		FROM deposit_claims
		WHERE txid = $1
		FOR UPDATE
	`, txid)
	return row, err
}

// MarkVerified moves a pending claim to verified and records the on-chain
// amount. Returns rows affected: 0 means the claim already left pending.
func (s *DepositClaimStore) MarkVerified(ctx context.Context, tx Execer, txid string, actualMinor int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_claims
		SET status = 'verified', actual_minor = $1, updated_at = NOW()
		WHERE txid = $2 AND status = 'pending'
	`, actualMinor, txid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *DepositClaimStore) MarkRejected(ctx context.Context, tx Execer, txid, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_claims
		SET status = 'rejected', reject_reason = $1, updated_at = NOW()
		WHERE txid = $2 AND status = 'pending'
	`, reason, txid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkCredited is the terminal transition; only a verified claim can reach
// credited, and it can reach it exactly once.
func (s *DepositClaimStore) MarkCredited(ctx context.Context, tx Execer, txid string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_claims
		SET status = 'credited', credited_at = NOW(), updated_at = NOW()
		WHERE txid = $1 AND status = 'verified'
	`, txid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *DepositClaimStore) ListByStatus(ctx context.Context, status string, limit int) ([]DepositClaim, error) {
	var rows []DepositClaim
	err := s.db.SelectContext(ctx, &rows, `
		SELECT txid, user_id, claimed_minor, actual_minor, status, reject_reason, created_at, updated_at, credited_at
		FROM deposit_claims
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`, status, limit)
	return rows, err
}

func (s *DepositClaimStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]DepositClaim, error) {
	var rows []DepositClaim
	err := s.db.SelectContext(ctx, &rows, `
		SELECT txid, user_id, claimed_minor, actual_minor, status, reject_reason, created_at, updated_at, credited_at
		FROM deposit_claims
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return rows, err
}

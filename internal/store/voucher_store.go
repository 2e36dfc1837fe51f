package store

import (
	"context"
	"time"
)

const (
	VoucherUnused = "unused"
	VoucherUsed   = "used"
)

type VoucherStore struct {
	db DB
}

type Voucher struct {
	Code       string     `db:"code"`
	ValueMinor int64      `db:"value_minor"`
	Currency   string     `db:"currency"`
	Status     string     `db:"status"`
	RedeemedBy *string    `db:"redeemed_by"`
	RedeemedAt *time.Time `db:"redeemed_at"`
	CreatedBy  string     `db:"created_by"`
	ExpiresAt  *time.Time `db:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

type VoucherInput struct {
	Code       string
	ValueMinor int64
	Currency   string
	CreatedBy  string
	ExpiresAt  *time.Time
}

func NewVoucherStore(db DB) *VoucherStore {
	return &VoucherStore{db: db}
}

func (s *VoucherStore) CreateBatch(ctx context.Context, tx Execer, vouchers []VoucherInput) error {
	query := `
		INSERT INTO vouchers (code, value_minor, currency, status, created_by, expires_at)
		VALUES ($1, $2, $3, 'unused', $4, $5)
	`
	for _, v := range vouchers {
		if _, err := tx.ExecContext(ctx, query, v.Code, v.ValueMinor, v.Currency, v.CreatedBy, v.ExpiresAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *VoucherStore) GetByCode(ctx context.Context, code string) (Voucher, error) {
	var row Voucher
	err := s.db.GetContext(ctx, &row, `
		SELECT code, value_minor, currency, status, redeemed_by, redeemed_at, created_by, expires_at, created_at
		FROM vouchers
		WHERE code = $1
	`, code)
	return row, err
}

// Redeem flips a voucher from unused to used in one conditional UPDATE.
// Under concurrent attempts at most one caller sees rows == 1; everyone
// else gets 0 and must reread the voucher to learn why.
func (s *VoucherStore) Redeem(ctx context.Context, tx Execer, code, userID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE vouchers
		SET status = 'used', redeemed_by = $1, redeemed_at = NOW()
		WHERE code = $2 AND status = 'unused' AND (expires_at IS NULL OR expires_at > NOW())
	`, userID, code)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListUsedWithoutCredit finds vouchers that were marked used but have no
// matching voucher_credit ledger event, i.e. a redemption whose credit step
// never landed. The sweep re-credits these using the code as reference.
func (s *VoucherStore) ListUsedWithoutCredit(ctx context.Context, limit int) ([]Voucher, error) {
	var rows []Voucher
	err := s.db.SelectContext(ctx, &rows, `
		SELECT v.code, v.value_minor, v.currency, v.status, v.redeemed_by, v.redeemed_at, v.created_by, v.expires_at, v.created_at
		FROM vouchers v
		LEFT JOIN ledger_events l ON l.kind = 'voucher_credit' AND l.reference = v.code
		WHERE v.status = 'used' AND l.id IS NULL
		ORDER BY v.redeemed_at
		LIMIT $1
	`, limit)
	return rows, err
}

func (s *VoucherStore) List(ctx context.Context, status string, limit, offset int) ([]Voucher, error) {
	var rows []Voucher
	err := s.db.SelectContext(ctx, &rows, `
		SELECT code, value_minor, currency, status, redeemed_by, redeemed_at, created_by, expires_at, created_at
		FROM vouchers
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	return rows, err
}

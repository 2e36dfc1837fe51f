package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"cidbank/internal/store"

	"github.com/jmoiron/sqlx"
)

const voucherAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RedeemVoucher marks the code used and credits its value in one
// transaction. The conditional update on the voucher row is the single-use
// gate; under concurrent redemption exactly one caller sees a row change.
func (c *Coordinator) RedeemVoucher(ctx context.Context, userID, code string) (int64, error) {
	var (
		account store.Account
		balance int64
		applied bool
	)
	err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		voucher, err := c.vouchers.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrVoucherNotFound
			}
			return err
		}
		rows, err := c.vouchers.Redeem(ctx, tx, code, userID)
		if err != nil {
			return err
		}
		if rows == 0 {
			if voucher.Status == store.VoucherUsed {
				return ErrVoucherAlreadyUsed
			}
			if voucher.ExpiresAt != nil && !voucher.ExpiresAt.After(time.Now()) {
				return ErrVoucherExpired
			}
			return ErrVoucherAlreadyUsed
		}
		account, err = c.lockUserAccount(ctx, tx, userID, voucher.Currency)
		if err != nil {
			return err
		}
		ref := voucher.Code
		balance, applied, err = c.applyLocked(ctx, tx, account, store.KindVoucherCredit, voucher.ValueMinor, &ref, "voucher redemption")
		if err != nil {
			return err
		}
		return c.auditTx(ctx, tx, userID, "voucher.redeemed", "voucher", voucher.Code, map[string]string{
			"value": fmt.Sprintf("%d", voucher.ValueMinor),
		})
	})
	if err != nil {
		return 0, err
	}
	if applied {
		c.broadcast(userID, account, balance, "voucher")
	}
	return balance, nil
}

// RepairVoucherCredits credits vouchers that were marked used but whose
// credit never landed. The voucher code is the ledger reference, so a
// voucher repaired twice still credits once.
func (c *Coordinator) RepairVoucherCredits(ctx context.Context) {
	vouchers, err := c.vouchers.ListUsedWithoutCredit(ctx, 100)
	if err != nil {
		log.Printf("voucher sweep: list uncredited: %v", err)
		return
	}
	for _, v := range vouchers {
		if v.RedeemedBy == nil {
			continue
		}
		userID := *v.RedeemedBy
		var (
			account store.Account
			balance int64
			applied bool
		)
		err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			account, err = c.lockUserAccount(ctx, tx, userID, v.Currency)
			if err != nil {
				return err
			}
			ref := v.Code
			balance, applied, err = c.applyLocked(ctx, tx, account, store.KindVoucherCredit, v.ValueMinor, &ref, "voucher redemption (repair)")
			return err
		})
		if err != nil {
			log.Printf("voucher sweep: repair %s: %v", v.Code, err)
			continue
		}
		if applied {
			c.broadcast(userID, account, balance, "voucher")
		}
	}
}

// CreateVouchers generates a batch of single-use codes.
func (c *Coordinator) CreateVouchers(ctx context.Context, adminID string, count int, valueMinor int64, currency string, expiresAt *time.Time) ([]string, error) {
	if count < 1 || count > 500 {
		return nil, ErrInvalidAmount
	}
	if valueMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	if currency != store.CurrencyUSD && currency != store.CurrencyCID {
		return nil, ErrInvalidCurrency
	}
	inputs := make([]store.VoucherInput, 0, count)
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := generateVoucherCode()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, store.VoucherInput{
			Code:       code,
			ValueMinor: valueMinor,
			Currency:   currency,
			CreatedBy:  adminID,
			ExpiresAt:  expiresAt,
		})
		codes = append(codes, code)
	}
	err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := c.vouchers.CreateBatch(ctx, tx, inputs); err != nil {
			return err
		}
		return c.auditTx(ctx, tx, adminID, "voucher.created", "voucher_batch", codes[0], map[string]string{
			"count":    fmt.Sprintf("%d", count),
			"value":    fmt.Sprintf("%d", valueMinor),
			"currency": currency,
		})
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func generateVoucherCode() (string, error) {
	// Rejection sampling keeps the draw uniform over the alphabet: bytes at
	// or above the largest multiple of len(voucherAlphabet) are discarded.
	limit := byte(256 - 256%len(voucherAlphabet))
	out := make([]byte, 0, 9)
	buf := make([]byte, 1)
	for len(out) < 9 {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		if buf[0] >= limit {
			continue
		}
		out = append(out, voucherAlphabet[int(buf[0])%len(voucherAlphabet)])
	}
	return "CID" + string(out), nil
}

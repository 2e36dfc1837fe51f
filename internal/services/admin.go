package services

import (
	"context"
	"database/sql"
	"fmt"

	"cidbank/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AdminAdjust applies a manual balance correction. Suspended accounts are
// still adjustable; suspension blocks user-initiated mutations only.
func (c *Coordinator) AdminAdjust(ctx context.Context, adminID, userID, currency string, delta int64, reason string) (int64, error) {
	if delta == 0 {
		return 0, ErrInvalidAmount
	}
	if currency != store.CurrencyUSD && currency != store.CurrencyCID {
		return 0, ErrInvalidCurrency
	}
	adjustmentID := uuid.NewString()

	var (
		account store.Account
		balance int64
	)
	err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		base, err := c.accounts.GetByUserAndCurrency(ctx, userID, currency)
		if err != nil {
			return err
		}
		account, err = c.accounts.GetForUpdate(ctx, tx, base.ID)
		if err != nil {
			return err
		}
		ref := adjustmentID
		balance, _, err = c.applyLocked(ctx, tx, account, store.KindAdminAdjust, delta, &ref, "admin adjustment: "+reason)
		if err != nil {
			return err
		}
		return c.auditTx(ctx, tx, adminID, "account.adjusted", "account", account.ID, map[string]string{
			"delta":  fmt.Sprintf("%d", delta),
			"reason": reason,
		})
	})
	if err != nil {
		return 0, err
	}
	c.broadcast(userID, account, balance, "adjust")
	return balance, nil
}

// SetAccountStatus suspends or reactivates an account.
func (c *Coordinator) SetAccountStatus(ctx context.Context, adminID, accountID, status string) error {
	if status != store.AccountActive && status != store.AccountSuspended {
		return fmt.Errorf("invalid account status %q", status)
	}
	return c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := c.accounts.SetStatus(ctx, tx, accountID, status)
		if err != nil {
			return err
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		return c.auditTx(ctx, tx, adminID, "account.status", "account", accountID, map[string]string{
			"status": status,
		})
	})
}

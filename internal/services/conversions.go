package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cidbank/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RequestConversion debits the conversion cost up front, calls the provider
// without holding any locks, then finalizes or refunds. The request id ties
// the debit, the provider call, and any refund together.
func (c *Coordinator) RequestConversion(ctx context.Context, userID, installationID string) (store.ConversionDebit, error) {
	requestID := uuid.NewString()

	var (
		account store.Account
		balance int64
	)
	err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		account, err = c.lockUserAccount(ctx, tx, userID, store.CurrencyCID)
		if err != nil {
			return err
		}
		ref := requestID
		var applied bool
		balance, applied, err = c.applyLocked(ctx, tx, account, store.KindDebit, -c.cfg.ConversionCostUnits, &ref, "cid conversion")
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("conversion %s: debit reference collision", requestID)
		}
		return c.conversions.Create(ctx, tx, store.ConversionDebitInput{
			ID:             requestID,
			UserID:         userID,
			AccountID:      account.ID,
			ReservedUnits:  c.cfg.ConversionCostUnits,
			InstallationID: installationID,
		})
	})
	if err != nil {
		return store.ConversionDebit{}, err
	}
	c.broadcast(userID, account, balance, "conversion")

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ConvertTimeout)
	defer cancel()
	confirmationID, convErr := c.converter.Convert(callCtx, installationID)
	if convErr != nil {
		reason := "provider unavailable"
		if errors.Is(convErr, ErrConversionRejected) {
			reason = "installation id rejected"
		}
		// Refund on the detached context too: a client disconnect must not
		// strand the debit until the sweep.
		if err := c.releaseConversion(context.WithoutCancel(ctx), requestID, reason); err != nil {
			log.Printf("conversion %s: release after failure: %v", requestID, err)
		}
		debit, getErr := c.conversions.GetByID(ctx, requestID)
		if getErr != nil {
			return store.ConversionDebit{}, getErr
		}
		return debit, convErr
	}

	finalizeCtx := context.WithoutCancel(ctx)
	err = c.txRunner.WithTx(finalizeCtx, func(tx *sqlx.Tx) error {
		rows, err := c.conversions.Finalize(finalizeCtx, tx, requestID, confirmationID)
		if err != nil {
			return err
		}
		if rows == 0 {
			log.Printf("conversion %s: finalized after release, confirmation %s needs follow-up", requestID, confirmationID)
			return nil
		}
		return c.auditTx(finalizeCtx, tx, userID, "conversion.finalized", "conversion", requestID, map[string]string{
			"confirmation_id": confirmationID,
		})
	})
	if err != nil {
		return store.ConversionDebit{}, err
	}
	return c.conversions.GetByID(finalizeCtx, requestID)
}

// releaseConversion refunds a reserved debit. The conditional update on the
// reservation row guarantees at most one refund; the refund is allowed even
// on a suspended account since it returns the user's own funds.
func (c *Coordinator) releaseConversion(ctx context.Context, requestID, reason string) error {
	debit, err := c.conversions.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	var (
		account store.Account
		balance int64
		applied bool
	)
	err = c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := c.conversions.Release(ctx, tx, requestID, reason)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		account, err = c.accounts.GetForUpdate(ctx, tx, debit.AccountID)
		if err != nil {
			return err
		}
		ref := requestID
		balance, applied, err = c.applyLocked(ctx, tx, account, store.KindRefund, debit.ReservedUnits, &ref, "conversion refund: "+reason)
		if err != nil {
			return err
		}
		return c.auditTx(ctx, tx, debit.UserID, "conversion.released", "conversion", requestID, map[string]string{
			"reason": reason,
		})
	})
	if err != nil {
		return err
	}
	if applied {
		c.broadcast(debit.UserID, account, balance, "conversion")
	}
	return nil
}

// ReleaseStaleConversions refunds reservations older than maxAge that never
// reached a terminal state, typically after a crash mid-conversion.
func (c *Coordinator) ReleaseStaleConversions(ctx context.Context, maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	stale, err := c.conversions.ListStaleReserved(ctx, cutoff, 100)
	if err != nil {
		log.Printf("conversion sweep: list stale: %v", err)
		return
	}
	for _, debit := range stale {
		if err := c.releaseConversion(ctx, debit.ID, "reservation timeout"); err != nil {
			log.Printf("conversion sweep: release %s: %v", debit.ID, err)
		}
	}
}

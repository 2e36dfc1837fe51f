package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cidbank/internal/store"

	"github.com/jmoiron/sqlx"
)

// SubmitDepositClaim records a pending claim for a transaction hash. The
// hash is the natural key: a second submission by the same user returns the
// existing claim, while a hash already claimed by someone else is refused.
func (c *Coordinator) SubmitDepositClaim(ctx context.Context, userID, txid string, claimedMinor int64) (store.DepositClaim, error) {
	if claimedMinor < 0 {
		return store.DepositClaim{}, ErrInvalidAmount
	}
	err := c.claims.Create(ctx, txid, userID, claimedMinor)
	if err != nil && !errors.Is(err, store.ErrDuplicateClaim) {
		return store.DepositClaim{}, err
	}
	claim, getErr := c.claims.GetByTxID(ctx, txid)
	if getErr != nil {
		return store.DepositClaim{}, getErr
	}
	if claim.UserID != userID {
		return store.DepositClaim{}, ErrClaimOwnedByOther
	}
	return claim, nil
}

// ProcessDepositClaim drives a claim toward a terminal state. Chain lookups
// happen outside any transaction; only the resulting state transition and
// the credit itself take locks.
func (c *Coordinator) ProcessDepositClaim(ctx context.Context, userID, txid string) (store.DepositClaim, error) {
	claim, err := c.claims.GetByTxID(ctx, txid)
	if err != nil {
		return store.DepositClaim{}, err
	}
	if claim.UserID != userID {
		return store.DepositClaim{}, ErrClaimOwnedByOther
	}

	switch claim.Status {
	case store.ClaimCredited, store.ClaimRejected:
		return claim, nil
	case store.ClaimVerified:
		if err := c.creditDeposit(ctx, txid); err != nil {
			return store.DepositClaim{}, err
		}
		return c.claims.GetByTxID(ctx, txid)
	}

	verdict := c.verifier.Verify(ctx, txid, claim.ClaimedMinor)
	switch verdict.Status {
	case VerdictProviderError:
		log.Printf("deposit %s: verification unavailable: %s", txid, verdict.Detail)
		return store.DepositClaim{}, ErrVerificationUnavailable
	case VerdictPending:
		return store.DepositClaim{}, ErrDepositPending
	case VerdictNotFound:
		if err := c.rejectClaim(ctx, txid, verdict.Detail); err != nil {
			return store.DepositClaim{}, err
		}
		return c.claims.GetByTxID(ctx, txid)
	}

	// Confirmed or underpaid: the chain amount is what gets credited.
	if verdict.ActualMinor < c.cfg.MinDepositMinor {
		reason := fmt.Sprintf("amount below minimum deposit: %d", verdict.ActualMinor)
		if err := c.rejectClaim(ctx, txid, reason); err != nil {
			return store.DepositClaim{}, err
		}
		return c.claims.GetByTxID(ctx, txid)
	}

	err = c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := c.claims.GetForUpdate(ctx, tx, txid)
		if err != nil {
			return err
		}
		if current.Status != store.ClaimPending {
			return nil
		}
		_, err = c.claims.MarkVerified(ctx, tx, txid, verdict.ActualMinor)
		return err
	})
	if err != nil {
		return store.DepositClaim{}, err
	}

	if err := c.creditDeposit(ctx, txid); err != nil {
		return store.DepositClaim{}, err
	}
	return c.claims.GetByTxID(ctx, txid)
}

func (c *Coordinator) rejectClaim(ctx context.Context, txid, reason string) error {
	return c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := c.claims.GetForUpdate(ctx, tx, txid)
		if err != nil {
			return err
		}
		if current.Status != store.ClaimPending {
			return nil
		}
		if _, err := c.claims.MarkRejected(ctx, tx, txid, reason); err != nil {
			return err
		}
		return c.auditTx(ctx, tx, current.UserID, "deposit.rejected", "deposit_claim", txid, map[string]string{
			"reason": reason,
		})
	})
}

// creditDeposit moves a verified claim to credited and applies the ledger
// credit, all in one transaction. The txid doubles as the ledger reference,
// so a crash between marking and crediting is healed on retry without a
// double credit.
func (c *Coordinator) creditDeposit(ctx context.Context, txid string) error {
	var (
		account store.Account
		userID  string
		balance int64
		applied bool
	)
	err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		claim, err := c.claims.GetForUpdate(ctx, tx, txid)
		if err != nil {
			return err
		}
		if claim.Status == store.ClaimCredited {
			return nil
		}
		if claim.Status != store.ClaimVerified || claim.ActualMinor == nil {
			return fmt.Errorf("deposit %s: cannot credit claim in status %s", txid, claim.Status)
		}
		userID = claim.UserID
		account, err = c.lockUserAccount(ctx, tx, claim.UserID, store.CurrencyUSD)
		if err != nil {
			return err
		}
		ref := txid
		balance, applied, err = c.applyLocked(ctx, tx, account, store.KindDepositCredit, *claim.ActualMinor, &ref, "usdt deposit")
		if err != nil {
			return err
		}
		if _, err := c.claims.MarkCredited(ctx, tx, txid); err != nil {
			return err
		}
		return c.auditTx(ctx, tx, claim.UserID, "deposit.credited", "deposit_claim", txid, map[string]string{
			"amount": fmt.Sprintf("%d", *claim.ActualMinor),
		})
	})
	if err != nil {
		return err
	}
	if applied {
		c.broadcast(userID, account, balance, "deposit")
	}
	return nil
}

// RetryVerifiedClaims re-drives claims stuck in verified, typically after a
// crash between verification and crediting.
func (c *Coordinator) RetryVerifiedClaims(ctx context.Context) {
	claims, err := c.claims.ListByStatus(ctx, store.ClaimVerified, 100)
	if err != nil {
		log.Printf("deposit sweep: list verified claims: %v", err)
		return
	}
	for _, claim := range claims {
		if err := c.creditDeposit(ctx, claim.TxID); err != nil {
			log.Printf("deposit sweep: credit %s: %v", claim.TxID, err)
		}
	}
}

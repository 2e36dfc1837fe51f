package services

import (
	"context"
	"fmt"

	"cidbank/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PurchaseResult reports the balances after a package purchase.
type PurchaseResult struct {
	PurchaseID string
	USDBalance int64
	CIDBalance int64
}

// PurchasePackage debits USD and credits CID atomically against the catalog
// snapshot the caller was shown. Both account rows are locked in id order.
func (c *Coordinator) PurchasePackage(ctx context.Context, userID, packageID string, catalog *Catalog) (PurchaseResult, error) {
	units, priceMinor, err := catalog.Price(packageID)
	if err != nil {
		return PurchaseResult{}, err
	}
	purchaseID := uuid.NewString()

	var (
		usdAccount store.Account
		cidAccount store.Account
		usdBalance int64
		cidBalance int64
	)
	err = c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		usd, err := c.accounts.GetByUserAndCurrency(ctx, userID, store.CurrencyUSD)
		if err != nil {
			return err
		}
		cid, err := c.accounts.GetByUserAndCurrency(ctx, userID, store.CurrencyCID)
		if err != nil {
			return err
		}
		usdAccount, cidAccount, err = c.lockTwoAccounts(ctx, tx, usd.ID, cid.ID)
		if err != nil {
			return err
		}
		if usdAccount.Status != store.AccountActive || cidAccount.Status != store.AccountActive {
			return ErrAccountSuspended
		}
		if usdAccount.Balance < priceMinor {
			return ErrInsufficientFunds
		}
		ref := purchaseID
		usdBalance, _, err = c.applyLocked(ctx, tx, usdAccount, store.KindDebit, -priceMinor, &ref, "package purchase: "+packageID)
		if err != nil {
			return err
		}
		cidBalance, _, err = c.applyLocked(ctx, tx, cidAccount, store.KindPackageCredit, units, &ref, "package purchase: "+packageID)
		if err != nil {
			return err
		}
		return c.auditTx(ctx, tx, userID, "package.purchased", "package", packageID, map[string]string{
			"catalog_version": fmt.Sprintf("%d", catalog.Version),
			"price":           fmt.Sprintf("%d", priceMinor),
			"units":           fmt.Sprintf("%d", units),
			"purchase_id":     purchaseID,
		})
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	c.broadcast(userID, usdAccount, usdBalance, "purchase")
	c.broadcast(userID, cidAccount, cidBalance, "purchase")
	return PurchaseResult{PurchaseID: purchaseID, USDBalance: usdBalance, CIDBalance: cidBalance}, nil
}

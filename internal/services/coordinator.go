package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"cidbank/internal/db"
	"cidbank/internal/money"
	"cidbank/internal/store"
	"cidbank/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAccountSuspended        = errors.New("account suspended")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidCurrency         = errors.New("invalid currency")
	ErrVoucherNotFound         = errors.New("voucher not found")
	ErrVoucherAlreadyUsed      = errors.New("voucher already used")
	ErrVoucherExpired          = errors.New("voucher expired")
	ErrClaimOwnedByOther       = errors.New("transaction hash claimed by another user")
	ErrDepositPending          = errors.New("deposit awaiting confirmations")
	ErrVerificationUnavailable = errors.New("verification temporarily unavailable")
	ErrConversionRejected      = errors.New("installation id rejected by provider")
	ErrProviderUnavailable     = errors.New("conversion provider unavailable")
)

type AccountStore interface {
	GetByUserAndCurrency(ctx context.Context, userID, currency string) (store.Account, error)
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error
	SetStatus(ctx context.Context, tx store.Execer, accountID, status string) (int64, error)
}

type LedgerStore interface {
	InsertEvent(ctx context.Context, tx store.Execer, input store.LedgerEventInput) error
}

type DepositClaimStore interface {
	Create(ctx context.Context, txid, userID string, claimedMinor int64) error
	GetByTxID(ctx context.Context, txid string) (store.DepositClaim, error)
	GetForUpdate(ctx context.Context, tx store.Getter, txid string) (store.DepositClaim, error)
	MarkVerified(ctx context.Context, tx store.Execer, txid string, actualMinor int64) (int64, error)
	MarkRejected(ctx context.Context, tx store.Execer, txid, reason string) (int64, error)
	MarkCredited(ctx context.Context, tx store.Execer, txid string) (int64, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]store.DepositClaim, error)
}

type VoucherStore interface {
	CreateBatch(ctx context.Context, tx store.Execer, vouchers []store.VoucherInput) error
	GetByCode(ctx context.Context, code string) (store.Voucher, error)
	Redeem(ctx context.Context, tx store.Execer, code, userID string) (int64, error)
	ListUsedWithoutCredit(ctx context.Context, limit int) ([]store.Voucher, error)
}

type ConversionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.ConversionDebitInput) error
	GetByID(ctx context.Context, id string) (store.ConversionDebit, error)
	Finalize(ctx context.Context, tx store.Execer, id, confirmationID string) (int64, error)
	Release(ctx context.Context, tx store.Execer, id, reason string) (int64, error)
	ListStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]store.ConversionDebit, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, id, actorID, action, entityType, entityID, data string) error
}

type DepositVerifier interface {
	Verify(ctx context.Context, txid string, expectedMinor int64) Verdict
}

// Converter resolves an installation id into a confirmation id. It reports
// ErrConversionRejected when the provider declares the input invalid and
// ErrProviderUnavailable for transport or provider-side failures.
type Converter interface {
	Convert(ctx context.Context, installationID string) (string, error)
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

type CoordinatorConfig struct {
	MinDepositMinor     int64
	ConversionCostUnits int64
	ConvertTimeout      time.Duration
}

// Coordinator owns every balance mutation. It holds no state of its own;
// correctness rests on the row locks and conditional updates exposed by the
// stores plus the (kind, reference) dedup in the ledger.
type Coordinator struct {
	txRunner    db.TxRunner
	accounts    AccountStore
	ledger      LedgerStore
	claims      DepositClaimStore
	vouchers    VoucherStore
	conversions ConversionStore
	audit       AuditStore
	verifier    DepositVerifier
	converter   Converter
	hub         BalanceHub
	cfg         CoordinatorConfig
}

func NewCoordinator(txRunner db.TxRunner, accounts AccountStore, ledger LedgerStore, claims DepositClaimStore, vouchers VoucherStore, conversions ConversionStore, audit AuditStore, verifier DepositVerifier, converter Converter, hub BalanceHub, cfg CoordinatorConfig) *Coordinator {
	if cfg.ConversionCostUnits <= 0 {
		cfg.ConversionCostUnits = 1
	}
	if cfg.ConvertTimeout <= 0 {
		cfg.ConvertTimeout = 2 * time.Minute
	}
	return &Coordinator{
		txRunner:    txRunner,
		accounts:    accounts,
		ledger:      ledger,
		claims:      claims,
		vouchers:    vouchers,
		conversions: conversions,
		audit:       audit,
		verifier:    verifier,
		converter:   converter,
		hub:         hub,
		cfg:         cfg,
	}
}

// applyLocked appends a ledger event and moves the balance in the same
// transaction. The caller must already hold the account row lock. A
// duplicate (kind, reference) means the mutation landed earlier; the
// balance is left untouched and applied is false.
func (c *Coordinator) applyLocked(ctx context.Context, tx *sqlx.Tx, account store.Account, kind string, amount int64, reference *string, description string) (int64, bool, error) {
	newBalance := account.Balance + amount
	if newBalance < 0 {
		return account.Balance, false, ErrInsufficientFunds
	}
	err := c.ledger.InsertEvent(ctx, tx, store.LedgerEventInput{
		ID:               uuid.NewString(),
		AccountID:        account.ID,
		Kind:             kind,
		Amount:           amount,
		ResultingBalance: newBalance,
		Reference:        reference,
		Description:      description,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			return account.Balance, false, nil
		}
		return 0, false, err
	}
	if err := c.accounts.UpdateBalance(ctx, tx, account.ID, newBalance); err != nil {
		return 0, false, err
	}
	return newBalance, true, nil
}

// lockUserAccount resolves and row-locks the user's account for the given
// currency, refusing mutations on suspended accounts.
func (c *Coordinator) lockUserAccount(ctx context.Context, tx *sqlx.Tx, userID, currency string) (store.Account, error) {
	account, err := c.accounts.GetByUserAndCurrency(ctx, userID, currency)
	if err != nil {
		return store.Account{}, err
	}
	locked, err := c.accounts.GetForUpdate(ctx, tx, account.ID)
	if err != nil {
		return store.Account{}, err
	}
	if locked.Status != store.AccountActive {
		return store.Account{}, ErrAccountSuspended
	}
	return locked, nil
}

// lockTwoAccounts locks both rows in ascending id order so concurrent
// multi-account operations never deadlock.
func (c *Coordinator) lockTwoAccounts(ctx context.Context, tx *sqlx.Tx, firstID, secondID string) (store.Account, store.Account, error) {
	leftID, rightID := firstID, secondID
	if leftID > rightID {
		leftID, rightID = rightID, leftID
	}
	left, err := c.accounts.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	right, err := c.accounts.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func (c *Coordinator) auditTx(ctx context.Context, tx *sqlx.Tx, actorID, action, entityType, entityID string, data map[string]string) error {
	payload, _ := json.Marshal(data)
	return c.audit.Log(ctx, tx, uuid.NewString(), actorID, action, entityType, entityID, string(payload))
}

func (c *Coordinator) broadcast(userID string, account store.Account, balance int64, kind string) {
	if c.hub == nil {
		return
	}
	c.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		AccountID: account.ID,
		Currency:  account.Currency,
		Balance:   formatBalance(account.Currency, balance),
		Kind:      kind,
	})
}

func formatBalance(currency string, balance int64) string {
	if currency == store.CurrencyUSD {
		return money.FormatMinor(balance)
	}
	return strconv.FormatInt(balance, 10)
}

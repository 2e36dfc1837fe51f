package handlers

import (
	"context"
	"time"

	"cidbank/internal/config"
	"cidbank/internal/services"
	"cidbank/internal/store"
	"cidbank/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, id, username, passwordHash string) error
	getByUsernameFn func(ctx context.Context, username string) (store.User, error)
	getByIDFn       func(ctx context.Context, userID string) (store.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, passwordHash)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (store.User, error) {
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.User, error) {
	return s.getByIDFn(ctx, userID)
}

type stubAccountStore struct {
	createFn               func(ctx context.Context, tx store.Execer, id, userID, currency string) error
	listByUserFn           func(ctx context.Context, userID string) ([]store.Account, error)
	getByUserAndCurrencyFn func(ctx context.Context, userID, currency string) (store.Account, error)
	listSummariesFn        func(ctx context.Context) ([]store.AccountBalanceSummary, error)
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Execer, id, userID, currency string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, userID, currency)
}

func (s stubAccountStore) ListByUser(ctx context.Context, userID string) ([]store.Account, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

func (s stubAccountStore) GetByUserAndCurrency(ctx context.Context, userID, currency string) (store.Account, error) {
	return s.getByUserAndCurrencyFn(ctx, userID, currency)
}

func (s stubAccountStore) ListBalanceSummaries(ctx context.Context) ([]store.AccountBalanceSummary, error) {
	if s.listSummariesFn == nil {
		return nil, nil
	}
	return s.listSummariesFn(ctx)
}

type stubLedgerStore struct {
	listByAccountFn func(ctx context.Context, accountID string, limit, offset int) ([]store.LedgerEvent, error)
	sumByAccountFn  func(ctx context.Context, accountID string) (int64, error)
}

func (s stubLedgerStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]store.LedgerEvent, error) {
	if s.listByAccountFn == nil {
		return nil, nil
	}
	return s.listByAccountFn(ctx, accountID, limit, offset)
}

func (s stubLedgerStore) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	if s.sumByAccountFn == nil {
		return 0, nil
	}
	return s.sumByAccountFn(ctx, accountID)
}

type stubClaimStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]store.DepositClaim, error)
}

func (s stubClaimStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]store.DepositClaim, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubVoucherStore struct {
	getByCodeFn func(ctx context.Context, code string) (store.Voucher, error)
	listFn      func(ctx context.Context, status string, limit, offset int) ([]store.Voucher, error)
}

func (s stubVoucherStore) GetByCode(ctx context.Context, code string) (store.Voucher, error) {
	if s.getByCodeFn == nil {
		return store.Voucher{Code: code, Currency: store.CurrencyUSD}, nil
	}
	return s.getByCodeFn(ctx, code)
}

func (s stubVoucherStore) List(ctx context.Context, status string, limit, offset int) ([]store.Voucher, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, status, limit, offset)
}

type stubConversionStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]store.ConversionDebit, error)
}

func (s stubConversionStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]store.ConversionDebit, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubPricingStore struct {
	loadCurrentFn func(ctx context.Context) (int64, []store.Package, error)
	replaceAllFn  func(ctx context.Context, tx store.Tx, packages []store.PackageInput) (int64, error)
}

func (s stubPricingStore) LoadCurrent(ctx context.Context) (int64, []store.Package, error) {
	if s.loadCurrentFn == nil {
		return 1, nil, nil
	}
	return s.loadCurrentFn(ctx)
}

func (s stubPricingStore) ReplaceAll(ctx context.Context, tx store.Tx, packages []store.PackageInput) (int64, error) {
	if s.replaceAllFn == nil {
		return 2, nil
	}
	return s.replaceAllFn(ctx, tx, packages)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, createdBy *string) error
	hasAnyAdminFn func(ctx context.Context, tx store.Getter) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, createdBy)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context, tx store.Getter) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx, tx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, id, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, id, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, id, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubCoordinator struct {
	submitFn       func(ctx context.Context, userID, txid string, claimedMinor int64) (store.DepositClaim, error)
	processFn      func(ctx context.Context, userID, txid string) (store.DepositClaim, error)
	redeemFn       func(ctx context.Context, userID, code string) (int64, error)
	convertFn      func(ctx context.Context, userID, installationID string) (store.ConversionDebit, error)
	purchaseFn     func(ctx context.Context, userID, packageID string, catalog *services.Catalog) (services.PurchaseResult, error)
	adjustFn       func(ctx context.Context, adminID, userID, currency string, delta int64, reason string) (int64, error)
	setStatusFn    func(ctx context.Context, adminID, accountID, status string) error
	createVouchFn  func(ctx context.Context, adminID string, count int, valueMinor int64, currency string, expiresAt *time.Time) ([]string, error)
}

func (s stubCoordinator) SubmitDepositClaim(ctx context.Context, userID, txid string, claimedMinor int64) (store.DepositClaim, error) {
	return s.submitFn(ctx, userID, txid, claimedMinor)
}

func (s stubCoordinator) ProcessDepositClaim(ctx context.Context, userID, txid string) (store.DepositClaim, error) {
	return s.processFn(ctx, userID, txid)
}

func (s stubCoordinator) RedeemVoucher(ctx context.Context, userID, code string) (int64, error) {
	return s.redeemFn(ctx, userID, code)
}

func (s stubCoordinator) RequestConversion(ctx context.Context, userID, installationID string) (store.ConversionDebit, error) {
	return s.convertFn(ctx, userID, installationID)
}

func (s stubCoordinator) PurchasePackage(ctx context.Context, userID, packageID string, catalog *services.Catalog) (services.PurchaseResult, error) {
	return s.purchaseFn(ctx, userID, packageID, catalog)
}

func (s stubCoordinator) AdminAdjust(ctx context.Context, adminID, userID, currency string, delta int64, reason string) (int64, error) {
	return s.adjustFn(ctx, adminID, userID, currency, delta, reason)
}

func (s stubCoordinator) SetAccountStatus(ctx context.Context, adminID, accountID, status string) error {
	return s.setStatusFn(ctx, adminID, accountID, status)
}

func (s stubCoordinator) CreateVouchers(ctx context.Context, adminID string, count int, valueMinor int64, currency string, expiresAt *time.Time) ([]string, error) {
	return s.createVouchFn(ctx, adminID, count, valueMinor, currency, expiresAt)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		AllowedOrigins: "*",
	}
}

func newTestHandler(txRunner fakeTxRunner, users stubUserStore, accounts stubAccountStore, ledger stubLedgerStore, claims stubClaimStore, vouchers stubVoucherStore, conversions stubConversionStore, pricing stubPricingStore, admin stubAdminStore, audit stubAuditStore, coordinator stubCoordinator) *Handler {
	return New(txRunner, testConfig(), users, accounts, ledger, claims, vouchers, conversions, pricing, admin, audit, coordinator, websocket.NewHub())
}

package services

import (
	"context"
	"sync"
	"time"

	"cidbank/internal/db"
	"cidbank/internal/store"
	"cidbank/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubAccountStore struct {
	getByUserAndCurrencyFn func(ctx context.Context, userID, currency string) (store.Account, error)
	getByIDFn              func(ctx context.Context, accountID string) (store.Account, error)
	getForUpdateFn         func(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	updateBalanceFn        func(ctx context.Context, tx store.Execer, accountID string, balance int64) error
	setStatusFn            func(ctx context.Context, tx store.Execer, accountID, status string) (int64, error)
}

func (s stubAccountStore) GetByUserAndCurrency(ctx context.Context, userID, currency string) (store.Account, error) {
	return s.getByUserAndCurrencyFn(ctx, userID, currency)
}

func (s stubAccountStore) GetByID(ctx context.Context, accountID string) (store.Account, error) {
	if s.getByIDFn == nil {
		return store.Account{}, nil
	}
	return s.getByIDFn(ctx, accountID)
}

func (s stubAccountStore) GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error) {
	return s.getForUpdateFn(ctx, tx, accountID)
}

func (s stubAccountStore) UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error {
	if s.updateBalanceFn == nil {
		return nil
	}
	return s.updateBalanceFn(ctx, tx, accountID, balance)
}

func (s stubAccountStore) SetStatus(ctx context.Context, tx store.Execer, accountID, status string) (int64, error) {
	if s.setStatusFn == nil {
		return 1, nil
	}
	return s.setStatusFn(ctx, tx, accountID, status)
}

type stubLedgerStore struct {
	insertFn func(ctx context.Context, tx store.Execer, input store.LedgerEventInput) error
}

func (s stubLedgerStore) InsertEvent(ctx context.Context, tx store.Execer, input store.LedgerEventInput) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, input)
}

type stubClaimStore struct {
	createFn       func(ctx context.Context, txid, userID string, claimedMinor int64) error
	getByTxIDFn    func(ctx context.Context, txid string) (store.DepositClaim, error)
	getForUpdateFn func(ctx context.Context, tx store.Getter, txid string) (store.DepositClaim, error)
	markVerifiedFn func(ctx context.Context, tx store.Execer, txid string, actualMinor int64) (int64, error)
	markRejectedFn func(ctx context.Context, tx store.Execer, txid, reason string) (int64, error)
	markCreditedFn func(ctx context.Context, tx store.Execer, txid string) (int64, error)
	listByStatusFn func(ctx context.Context, status string, limit int) ([]store.DepositClaim, error)
}

func (s stubClaimStore) Create(ctx context.Context, txid, userID string, claimedMinor int64) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, txid, userID, claimedMinor)
}

func (s stubClaimStore) GetByTxID(ctx context.Context, txid string) (store.DepositClaim, error) {
	return s.getByTxIDFn(ctx, txid)
}

func (s stubClaimStore) GetForUpdate(ctx context.Context, tx store.Getter, txid string) (store.DepositClaim, error) {
	if s.getForUpdateFn == nil {
		return s.getByTxIDFn(ctx, txid)
	}
	return s.getForUpdateFn(ctx, tx, txid)
}

func (s stubClaimStore) MarkVerified(ctx context.Context, tx store.Execer, txid string, actualMinor int64) (int64, error) {
	if s.markVerifiedFn == nil {
		return 1, nil
	}
	return s.markVerifiedFn(ctx, tx, txid, actualMinor)
}

func (s stubClaimStore) MarkRejected(ctx context.Context, tx store.Execer, txid, reason string) (int64, error) {
	if s.markRejectedFn == nil {
		return 1, nil
	}
	return s.markRejectedFn(ctx, tx, txid, reason)
}

func (s stubClaimStore) MarkCredited(ctx context.Context, tx store.Execer, txid string) (int64, error) {
	if s.markCreditedFn == nil {
		return 1, nil
	}
	return s.markCreditedFn(ctx, tx, txid)
}

func (s stubClaimStore) ListByStatus(ctx context.Context, status string, limit int) ([]store.DepositClaim, error) {
	if s.listByStatusFn == nil {
		return nil, nil
	}
	return s.listByStatusFn(ctx, status, limit)
}

type stubVoucherStore struct {
	createBatchFn           func(ctx context.Context, tx store.Execer, vouchers []store.VoucherInput) error
	getByCodeFn             func(ctx context.Context, code string) (store.Voucher, error)
	redeemFn                func(ctx context.Context, tx store.Execer, code, userID string) (int64, error)
	listUsedWithoutCreditFn func(ctx context.Context, limit int) ([]store.Voucher, error)
}

func (s stubVoucherStore) CreateBatch(ctx context.Context, tx store.Execer, vouchers []store.VoucherInput) error {
	if s.createBatchFn == nil {
		return nil
	}
	return s.createBatchFn(ctx, tx, vouchers)
}

func (s stubVoucherStore) GetByCode(ctx context.Context, code string) (store.Voucher, error) {
	return s.getByCodeFn(ctx, code)
}

func (s stubVoucherStore) Redeem(ctx context.Context, tx store.Execer, code, userID string) (int64, error) {
	if s.redeemFn == nil {
		return 1, nil
	}
	return s.redeemFn(ctx, tx, code, userID)
}

func (s stubVoucherStore) ListUsedWithoutCredit(ctx context.Context, limit int) ([]store.Voucher, error) {
	if s.listUsedWithoutCreditFn == nil {
		return nil, nil
	}
	return s.listUsedWithoutCreditFn(ctx, limit)
}

type stubConversionStore struct {
	createFn            func(ctx context.Context, tx store.Execer, input store.ConversionDebitInput) error
	getByIDFn           func(ctx context.Context, id string) (store.ConversionDebit, error)
	finalizeFn          func(ctx context.Context, tx store.Execer, id, confirmationID string) (int64, error)
	releaseFn           func(ctx context.Context, tx store.Execer, id, reason string) (int64, error)
	listStaleReservedFn func(ctx context.Context, cutoff time.Time, limit int) ([]store.ConversionDebit, error)
}

func (s stubConversionStore) Create(ctx context.Context, tx store.Execer, input store.ConversionDebitInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubConversionStore) GetByID(ctx context.Context, id string) (store.ConversionDebit, error) {
	if s.getByIDFn == nil {
		return store.ConversionDebit{ID: id}, nil
	}
	return s.getByIDFn(ctx, id)
}

func (s stubConversionStore) Finalize(ctx context.Context, tx store.Execer, id, confirmationID string) (int64, error) {
	if s.finalizeFn == nil {
		return 1, nil
	}
	return s.finalizeFn(ctx, tx, id, confirmationID)
}

func (s stubConversionStore) Release(ctx context.Context, tx store.Execer, id, reason string) (int64, error) {
	if s.releaseFn == nil {
		return 1, nil
	}
	return s.releaseFn(ctx, tx, id, reason)
}

func (s stubConversionStore) ListStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]store.ConversionDebit, error) {
	if s.listStaleReservedFn == nil {
		return nil, nil
	}
	return s.listStaleReservedFn(ctx, cutoff, limit)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, id, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, id, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, id, actorID, action, entityType, entityID, data)
}

type stubVerifier struct {
	verifyFn func(ctx context.Context, txid string, expectedMinor int64) Verdict
}

func (s stubVerifier) Verify(ctx context.Context, txid string, expectedMinor int64) Verdict {
	return s.verifyFn(ctx, txid, expectedMinor)
}

type stubConverter struct {
	convertFn func(ctx context.Context, installationID string) (string, error)
}

func (s stubConverter) Convert(ctx context.Context, installationID string) (string, error) {
	if s.convertFn == nil {
		return "", nil
	}
	return s.convertFn(ctx, installationID)
}

type stubHub struct {
	mu    sync.Mutex
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, update)
}

func (s *stubHub) updates() []websocket.BalanceUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]websocket.BalanceUpdate, len(s.calls))
	copy(out, s.calls)
	return out
}

// coordinatorDeps bundles the stubs so each test only sets what it cares
// about.
type coordinatorDeps struct {
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

func newTestCoordinator(d coordinatorDeps) *Coordinator {
	if d.txRunner == nil {
		d.txRunner = fakeTxRunner{}
	}
	if d.accounts == nil {
		d.accounts = stubAccountStore{
			getByUserAndCurrencyFn: func(_ context.Context, _, currency string) (store.Account, error) {
				return store.Account{ID: "acct-" + currency, Currency: currency, Status: store.AccountActive}, nil
			},
			getForUpdateFn: func(_ context.Context, _ store.Getter, accountID string) (store.Account, error) {
				return store.Account{ID: accountID, Status: store.AccountActive}, nil
			},
		}
	}
	if d.ledger == nil {
		d.ledger = stubLedgerStore{}
	}
	if d.claims == nil {
		d.claims = stubClaimStore{}
	}
	if d.vouchers == nil {
		d.vouchers = stubVoucherStore{}
	}
	if d.conversions == nil {
		d.conversions = stubConversionStore{}
	}
	if d.audit == nil {
		d.audit = stubAuditStore{}
	}
	if d.verifier == nil {
		d.verifier = stubVerifier{verifyFn: func(context.Context, string, int64) Verdict {
			return Verdict{Status: VerdictConfirmed}
		}}
	}
	if d.converter == nil {
		d.converter = stubConverter{}
	}
	if d.hub == nil {
		d.hub = &stubHub{}
	}
	if d.cfg.ConversionCostUnits == 0 {
		d.cfg.ConversionCostUnits = 1
	}
	if d.cfg.ConvertTimeout == 0 {
		d.cfg.ConvertTimeout = time.Second
	}
	return NewCoordinator(d.txRunner, d.accounts, d.ledger, d.claims, d.vouchers, d.conversions, d.audit, d.verifier, d.converter, d.hub, d.cfg)
}

func int64Ptr(v int64) *int64 { return &v }

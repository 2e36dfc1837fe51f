package handlers

import (
	"context"
	"time"

	"cidbank/internal/services"
	"cidbank/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, passwordHash string) error
	GetByUsername(ctx context.Context, username string) (store.User, error)
	GetByID(ctx context.Context, userID string) (store.User, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID, currency string) error
	ListByUser(ctx context.Context, userID string) ([]store.Account, error)
	GetByUserAndCurrency(ctx context.Context, userID, currency string) (store.Account, error)
	ListBalanceSummaries(ctx context.Context) ([]store.AccountBalanceSummary, error)
}

type LedgerStore interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]store.LedgerEvent, error)
}

type DepositClaimStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]store.DepositClaim, error)
}

type VoucherStore interface {
	GetByCode(ctx context.Context, code string) (store.Voucher, error)
	List(ctx context.Context, status string, limit, offset int) ([]store.Voucher, error)
}

type ConversionStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]store.ConversionDebit, error)
}

type PricingStore interface {
	LoadCurrent(ctx context.Context) (int64, []store.Package, error)
	ReplaceAll(ctx context.Context, tx store.Tx, packages []store.PackageInput) (int64, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, createdBy *string) error
	HasAnyAdmin(ctx context.Context, tx store.Getter) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, id, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

type Coordinator interface {
	SubmitDepositClaim(ctx context.Context, userID, txid string, claimedMinor int64) (store.DepositClaim, error)
	ProcessDepositClaim(ctx context.Context, userID, txid string) (store.DepositClaim, error)
	RedeemVoucher(ctx context.Context, userID, code string) (int64, error)
	RequestConversion(ctx context.Context, userID, installationID string) (store.ConversionDebit, error)
	PurchasePackage(ctx context.Context, userID, packageID string, catalog *services.Catalog) (services.PurchaseResult, error)
	AdminAdjust(ctx context.Context, adminID, userID, currency string, delta int64, reason string) (int64, error)
	SetAccountStatus(ctx context.Context, adminID, accountID, status string) error
	CreateVouchers(ctx context.Context, adminID string, count int, valueMinor int64, currency string, expiresAt *time.Time) ([]string, error)
}

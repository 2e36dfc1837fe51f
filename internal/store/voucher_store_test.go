package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestVoucherStoreCreateBatch(t *testing.T) {
	ctx := context.Background()
	calls := 0
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO vouchers") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 5 {
				t.Fatalf("expected 5 args, got %d", len(args))
			}
			calls++
			return stubResult{rows: 1}, nil
		},
	}
	store := NewVoucherStore(stubDB{})
	vouchers := []VoucherInput{
		{Code: "CIDAAAA11111", ValueMinor: 1000, Currency: CurrencyUSD, CreatedBy: "admin-1"},
		{Code: "CIDBBBB22222", ValueMinor: 1000, Currency: CurrencyUSD, CreatedBy: "admin-1"},
	}
	if err := store.CreateBatch(ctx, execer, vouchers); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 inserts, got %d", calls)
	}
}

func TestVoucherStoreRedeem(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "status = 'unused'") || !strings.Contains(query, "expires_at IS NULL OR expires_at > NOW()") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != "user-1" || args[1] != "CIDAAAA11111" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewVoucherStore(stubDB{})
	rows, err := store.Redeem(ctx, execer, "CIDAAAA11111", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 row affected, got %d", rows)
	}
}

func TestVoucherStoreRedeemAlreadyUsed(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			return stubResult{rows: 0}, nil
		},
	}
	store := NewVoucherStore(stubDB{})
	rows, err := store.Redeem(ctx, execer, "CIDAAAA11111", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 rows affected, got %d", rows)
	}
}

func TestVoucherStoreListUsedWithoutCredit(t *testing.T) {
	ctx := context.Background()
	store := NewVoucherStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "LEFT JOIN ledger_events") || !strings.Contains(query, "l.id IS NULL") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 1 || args[0] != 100 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]Voucher) = []Voucher{{Code: "CIDAAAA11111", Status: VoucherUsed}}
			return nil
		},
	})
	rows, err := store.ListUsedWithoutCredit(ctx, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Code != "CIDAAAA11111" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

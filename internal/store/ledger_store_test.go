package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"
)

func TestLedgerStoreInsertEvent(t *testing.T) {
	ctx := context.Background()
	ref := "tx-abc"
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO ledger_events") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 7 {
				t.Fatalf("expected 7 args, got %d", len(args))
			}
			if args[0] != "evt-1" || args[1] != "acc-1" || args[2] != KindDepositCredit || args[3] != int64(5000) || args[4] != int64(6000) {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLedgerStore(stubDB{})
	err := store.InsertEvent(ctx, execer, LedgerEventInput{
		ID:               "evt-1",
		AccountID:        "acc-1",
		Kind:             KindDepositCredit,
		Amount:           5000,
		ResultingBalance: 6000,
		Reference:        &ref,
		Description:      "usdt deposit",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedgerStoreInsertEventDuplicateReference(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			return nil, &pq.Error{Code: "23505"}
		},
	}
	store := NewLedgerStore(stubDB{})
	ref := "tx-abc"
	err := store.InsertEvent(ctx, execer, LedgerEventInput{ID: "evt-2", AccountID: "acc-1", Kind: KindDepositCredit, Amount: 5000, Reference: &ref})
	if !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestLedgerStoreSumByAccount(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM ledger_events") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 1 || args[0] != "acc-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int64) = 1000
			return nil
		},
	})
	sum, err := store.SumByAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != 1000 {
		t.Fatalf("unexpected sum: %d", sum)
	}
}

func TestLedgerStoreHasReference(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE kind = $1 AND reference = $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != KindVoucherCredit || args[1] != "CIDAAAA11111" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int) = 1
			return nil
		},
	})
	found, err := store.HasReference(ctx, KindVoucherCredit, "CIDAAAA11111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected reference to exist")
	}
}

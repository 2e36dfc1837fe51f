package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"cidbank/internal/store"
)

const testIID = "111111222222333333444444555555666666777777888888999999000000111"

func cidAccountStore(balance *int64) stubAccountStore {
	return stubAccountStore{
		getByUserAndCurrencyFn: func(_ context.Context, _, currency string) (store.Account, error) {
			return store.Account{ID: "acct-cid", Currency: currency, Status: store.AccountActive, Balance: *balance}, nil
		},
		getForUpdateFn: func(_ context.Context, _ store.Getter, accountID string) (store.Account, error) {
			return store.Account{ID: accountID, Currency: store.CurrencyCID, Status: store.AccountActive, Balance: *balance}, nil
		},
		updateBalanceFn: func(_ context.Context, _ store.Execer, _ string, newBalance int64) error {
			*balance = newBalance
			return nil
		},
	}
}

// statefulConversions mirrors the reserved/finalized/released transitions
// so the coordinator's conditional updates behave like the real rows.
func statefulConversions(debit *store.ConversionDebit) stubConversionStore {
	return stubConversionStore{
		createFn: func(_ context.Context, _ store.Execer, input store.ConversionDebitInput) error {
			*debit = store.ConversionDebit{
				ID:             input.ID,
				UserID:         input.UserID,
				AccountID:      input.AccountID,
				ReservedUnits:  input.ReservedUnits,
				InstallationID: input.InstallationID,
				Status:         store.ConversionReserved,
			}
			return nil
		},
		getByIDFn: func(context.Context, string) (store.ConversionDebit, error) {
			return *debit, nil
		},
		finalizeFn: func(_ context.Context, _ store.Execer, _ string, confirmationID string) (int64, error) {
			if debit.Status != store.ConversionReserved {
				return 0, nil
			}
			debit.Status = store.ConversionFinalized
			debit.ConfirmationID = &confirmationID
			return 1, nil
		},
		releaseFn: func(_ context.Context, _ store.Execer, _ string, reason string) (int64, error) {
			if debit.Status != store.ConversionReserved {
				return 0, nil
			}
			debit.Status = store.ConversionReleased
			debit.FailReason = &reason
			return 1, nil
		},
	}
}

func TestRequestConversionSuccess(t *testing.T) {
	balance := int64(10)
	var debit store.ConversionDebit
	var inserted []store.LedgerEventInput
	c := newTestCoordinator(coordinatorDeps{
		accounts:    cidAccountStore(&balance),
		conversions: statefulConversions(&debit),
		ledger: stubLedgerStore{insertFn: func(_ context.Context, _ store.Execer, input store.LedgerEventInput) error {
			inserted = append(inserted, input)
			return nil
		}},
		converter: stubConverter{convertFn: func(_ context.Context, iid string) (string, error) {
			if iid != testIID {
				t.Fatalf("unexpected installation id %q", iid)
			}
			return "CONF-123", nil
		}},
	})
	got, err := c.RequestConversion(context.Background(), "user-1", testIID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Status != store.ConversionFinalized {
		t.Fatalf("expected finalized, got %s", got.Status)
	}
	if got.ConfirmationID == nil || *got.ConfirmationID != "CONF-123" {
		t.Fatal("expected confirmation id recorded")
	}
	if balance != 9 {
		t.Fatalf("expected balance 9, got %d", balance)
	}
	if len(inserted) != 1 || inserted[0].Kind != store.KindDebit || inserted[0].Amount != -1 {
		t.Fatalf("unexpected ledger events: %+v", inserted)
	}
}

func TestRequestConversionInsufficientFunds(t *testing.T) {
	balance := int64(0)
	c := newTestCoordinator(coordinatorDeps{
		accounts: cidAccountStore(&balance),
		converter: stubConverter{convertFn: func(context.Context, string) (string, error) {
			t.Fatal("provider must not be called without a debit")
			return "", nil
		}},
	})
	if _, err := c.RequestConversion(context.Background(), "user-1", testIID); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestRequestConversionRejectedRefunds(t *testing.T) {
	balance := int64(5)
	var debit store.ConversionDebit
	var kinds []string
	c := newTestCoordinator(coordinatorDeps{
		accounts:    cidAccountStore(&balance),
		conversions: statefulConversions(&debit),
		ledger: stubLedgerStore{insertFn: func(_ context.Context, _ store.Execer, input store.LedgerEventInput) error {
			kinds = append(kinds, input.Kind)
			return nil
		}},
		converter: stubConverter{convertFn: func(context.Context, string) (string, error) {
			return "", ErrConversionRejected
		}},
	})
	got, err := c.RequestConversion(context.Background(), "user-1", testIID)
	if !errors.Is(err, ErrConversionRejected) {
		t.Fatalf("expected ErrConversionRejected, got %v", err)
	}
	if got.Status != store.ConversionReleased {
		t.Fatalf("expected released, got %s", got.Status)
	}
	if balance != 5 {
		t.Fatalf("expected full refund, balance %d", balance)
	}
	want := []string{store.KindDebit, store.KindRefund}
	if len(kinds) != 2 || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Fatalf("expected debit then refund, got %v", kinds)
	}
}

func TestRequestConversionProviderDownRefunds(t *testing.T) {
	balance := int64(5)
	var debit store.ConversionDebit
	c := newTestCoordinator(coordinatorDeps{
		accounts:    cidAccountStore(&balance),
		conversions: statefulConversions(&debit),
		converter: stubConverter{convertFn: func(context.Context, string) (string, error) {
			return "", ErrProviderUnavailable
		}},
	})
	got, err := c.RequestConversion(context.Background(), "user-1", testIID)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if got.Status != store.ConversionReleased {
		t.Fatalf("expected released, got %s", got.Status)
	}
	if got.FailReason == nil || *got.FailReason != "provider unavailable" {
		t.Fatalf("unexpected fail reason %v", got.FailReason)
	}
	if balance != 5 {
		t.Fatalf("expected full refund, balance %d", balance)
	}
}

func TestReleaseConversionAlreadyTerminal(t *testing.T) {
	debit := store.ConversionDebit{ID: "conv-1", UserID: "user-1", AccountID: "acct-cid", ReservedUnits: 1, Status: store.ConversionFinalized}
	c := newTestCoordinator(coordinatorDeps{
		conversions: statefulConversions(&debit),
		ledger: stubLedgerStore{insertFn: func(context.Context, store.Execer, store.LedgerEventInput) error {
			t.Fatal("no refund for a finalized conversion")
			return nil
		}},
	})
	if err := c.releaseConversion(context.Background(), "conv-1", "reservation timeout"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if debit.Status != store.ConversionFinalized {
		t.Fatalf("status must not change, got %s", debit.Status)
	}
}

func TestReleaseStaleConversions(t *testing.T) {
	balance := int64(0)
	debit := store.ConversionDebit{ID: "conv-1", UserID: "user-1", AccountID: "acct-cid", ReservedUnits: 2, Status: store.ConversionReserved}
	conversions := statefulConversions(&debit)
	conversions.listStaleReservedFn = func(_ context.Context, cutoff time.Time, _ int) ([]store.ConversionDebit, error) {
		if cutoff.After(time.Now()) {
			t.Fatal("cutoff must be in the past")
		}
		return []store.ConversionDebit{debit}, nil
	}
	c := newTestCoordinator(coordinatorDeps{
		accounts:    cidAccountStore(&balance),
		conversions: conversions,
	})
	c.ReleaseStaleConversions(context.Background(), 30*time.Minute)
	if debit.Status != store.ConversionReleased {
		t.Fatalf("expected released, got %s", debit.Status)
	}
	if balance != 2 {
		t.Fatalf("expected refund of 2, balance %d", balance)
	}
}

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cidbank/internal/store"
)

func TestAdminRoutesRejectNonAdmin(t *testing.T) {
	h := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubLedgerStore{}, stubClaimStore{}, stubVoucherStore{}, stubConversionStore{}, stubPricingStore{}, stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, error) { return false, nil },
	}, stubAuditStore{}, stubCoordinator{})
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, authedRequest(t, http.MethodPost, "/admin/adjust", `{"user_id":"u","currency":"USD","delta":"1.00","reason":"x"}`))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAdminAdjustParsesUSDDelta(t *testing.T) {
	h := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubLedgerStore{}, stubClaimStore{}, stubVoucherStore{}, stubConversionStore{}, stubPricingStore{}, stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, error) { return true, nil },
	}, stubAuditStore{}, stubCoordinator{
		adjustFn: func(_ context.Context, adminID, userID, currency string, delta int64, reason string) (int64, error) {
			if delta != -250 {
				t.Fatalf("expected delta -250, got %d", delta)
			}
			if currency != store.CurrencyUSD || reason != "chargeback" {
				t.Fatalf("unexpected args %s %s", currency, reason)
			}
			return 750, nil
		},
	})
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, authedRequest(t, http.MethodPost, "/admin/adjust", `{"user_id":"user-2","currency":"USD","delta":"-2.50","reason":"chargeback"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"balance":"7.50"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestAdminReplacePackagesAudited(t *testing.T) {
	var audited bool
	h := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubLedgerStore{}, stubClaimStore{}, stubVoucherStore{}, stubConversionStore{}, stubPricingStore{
		replaceAllFn: func(_ context.Context, _ store.Tx, packages []store.PackageInput) (int64, error) {
			if len(packages) != 1 || packages[0].PriceMinor != 2500 {
				t.Fatalf("unexpected packages %+v", packages)
			}
			return 8, nil
		},
	}, stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, error) { return true, nil },
	}, stubAuditStore{
		logFn: func(_ context.Context, _ store.Execer, _, _, action, _, _, _ string) error {
			if action == "catalog.replaced" {
				audited = true
			}
			return nil
		},
	}, stubCoordinator{})
	rr := httptest.NewRecorder()
	body := `{"packages":[{"id":"starter","name":"Starter","cid_units":5,"price":"25.00"}]}`
	h.Routes().ServeHTTP(rr, authedRequest(t, http.MethodPut, "/admin/packages", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"catalog_version":8`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
	if !audited {
		t.Fatal("expected audit entry")
	}
}

func TestAdminReplacePackagesRejectsEmpty(t *testing.T) {
	h := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubLedgerStore{}, stubClaimStore{}, stubVoucherStore{}, stubConversionStore{}, stubPricingStore{}, stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, error) { return true, nil },
	}, stubAuditStore{}, stubCoordinator{})
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, authedRequest(t, http.MethodPut, "/admin/packages", `{"packages":[]}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminReconcileFlagsDrift(t *testing.T) {
	h := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{
		listSummariesFn: func(context.Context) ([]store.AccountBalanceSummary, error) {
			return []store.AccountBalanceSummary{
				{ID: "a1", Currency: store.CurrencyUSD, StoredBalance: 1000, LedgerSum: 900, Difference: 100},
			}, nil
		},
	}, stubLedgerStore{}, stubClaimStore{}, stubVoucherStore{}, stubConversionStore{}, stubPricingStore{}, stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, error) { return true, nil },
	}, stubAuditStore{}, stubCoordinator{})
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, authedRequest(t, http.MethodGet, "/admin/reconcile", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"clean":false`) {
		t.Fatalf("expected drift flagged: %s", rr.Body.String())
	}
}

func TestWSBalancesMissingToken(t *testing.T) {
	h := newTestHandler(fakeTxRunner{}, stubUserStore{}, stubAccountStore{}, stubLedgerStore{}, stubClaimStore{}, stubVoucherStore{}, stubConversionStore{}, stubPricingStore{}, stubAdminStore{}, stubAuditStore{}, stubCoordinator{})
	rr := httptest.NewRecorder()
	h.WSBalances(rr, httptest.NewRequest(http.MethodGet, "/ws/balances", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

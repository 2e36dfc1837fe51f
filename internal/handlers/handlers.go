package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"cidbank/internal/money"
	"cidbank/internal/services"
	"cidbank/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError translates coordinator errors into HTTP responses.
// Unknown errors become a generic 500 so internals never leak.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrInvalidCurrency):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInsufficientFunds):
		respondError(w, http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, services.ErrAccountSuspended):
		respondError(w, http.StatusForbidden, "account suspended")
	case errors.Is(err, services.ErrVoucherNotFound):
		respondError(w, http.StatusNotFound, "voucher not found")
	case errors.Is(err, services.ErrVoucherAlreadyUsed):
		respondError(w, http.StatusConflict, "voucher already used")
	case errors.Is(err, services.ErrVoucherExpired):
		respondError(w, http.StatusConflict, "voucher expired")
	case errors.Is(err, services.ErrClaimOwnedByOther):
		respondError(w, http.StatusConflict, "transaction already claimed")
	case errors.Is(err, services.ErrDepositPending):
		respondError(w, http.StatusAccepted, "deposit awaiting confirmations")
	case errors.Is(err, services.ErrVerificationUnavailable):
		respondError(w, http.StatusServiceUnavailable, "verification temporarily unavailable")
	case errors.Is(err, services.ErrConversionRejected):
		respondError(w, http.StatusUnprocessableEntity, "installation id rejected")
	case errors.Is(err, services.ErrProviderUnavailable):
		respondError(w, http.StatusBadGateway, "conversion provider unavailable")
	case errors.Is(err, services.ErrUnknownPackage):
		respondError(w, http.StatusNotFound, "unknown package")
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "not found")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// formatBalance renders USD in dollars with cents and CID as whole units.
func formatBalance(currency string, balance int64) string {
	if currency == store.CurrencyUSD {
		return money.FormatMinor(balance)
	}
	return strconv.FormatInt(balance, 10)
}

func parsePage(r *http.Request) (limit, offset int) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

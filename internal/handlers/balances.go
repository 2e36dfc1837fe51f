package handlers

import (
	"net/http"

	"cidbank/internal/middleware"
	"cidbank/internal/store"
)

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load accounts")
		return
	}
	out := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, map[string]any{
			"account_id": account.ID,
			"currency":   account.Currency,
			"balance":    formatBalance(account.Currency, account.Balance),
			"status":     account.Status,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// ListEvents returns the ledger history for one of the caller's accounts,
// selected by currency.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = store.CurrencyUSD
	}
	if currency != store.CurrencyUSD && currency != store.CurrencyCID {
		respondError(w, http.StatusBadRequest, "unknown currency")
		return
	}
	account, err := h.accounts.GetByUserAndCurrency(r.Context(), userID, currency)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	limit, offset := parsePage(r)
	events, err := h.ledger.ListByAccount(r.Context(), account.ID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load events")
		return
	}
	out := make([]map[string]any, 0, len(events))
	for _, event := range events {
		entry := map[string]any{
			"id":                event.ID,
			"kind":              event.Kind,
			"amount":            formatBalance(currency, event.Amount),
			"resulting_balance": formatBalance(currency, event.ResultingBalance),
			"description":       event.Description,
			"created_at":        event.CreatedAt,
		}
		if event.Reference != nil {
			entry["reference"] = *event.Reference
		}
		out = append(out, entry)
	}
	respondJSON(w, http.StatusOK, out)
}

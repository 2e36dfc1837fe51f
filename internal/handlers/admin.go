package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"cidbank/internal/auth"
	"cidbank/internal/middleware"
	"cidbank/internal/money"
	"cidbank/internal/store"
	"cidbank/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type createVouchersRequest struct {
	Count     int    `json:"count"`
	Value     string `json:"value"`
	Currency  string `json:"currency"`
	ExpiresAt string `json:"expires_at"`
}

func (h *Handler) AdminCreateVouchers(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createVouchersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = store.CurrencyUSD
	}
	var valueMinor int64
	var err error
	if currency == store.CurrencyUSD {
		valueMinor, err = money.ParseMinor(req.Value)
	} else {
		valueMinor, err = parseUnits(req.Value)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid value")
		return
	}
	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid expires_at")
			return
		}
		expiresAt = &parsed
	}
	codes, err := h.coordinator.CreateVouchers(r.Context(), adminID, req.Count, valueMinor, currency, expiresAt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"codes":    codes,
		"currency": currency,
		"value":    formatBalance(currency, valueMinor),
	})
}

func (h *Handler) AdminListVouchers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	vouchers, err := h.vouchers.List(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load vouchers")
		return
	}
	out := make([]map[string]any, 0, len(vouchers))
	for _, v := range vouchers {
		entry := map[string]any{
			"code":       v.Code,
			"currency":   v.Currency,
			"value":      formatBalance(v.Currency, v.ValueMinor),
			"status":     v.Status,
			"created_at": v.CreatedAt,
		}
		if v.RedeemedBy != nil {
			entry["redeemed_by"] = *v.RedeemedBy
		}
		if v.ExpiresAt != nil {
			entry["expires_at"] = *v.ExpiresAt
		}
		out = append(out, entry)
	}
	respondJSON(w, http.StatusOK, out)
}

type replacePackagesRequest struct {
	Packages []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		CIDUnits int64  `json:"cid_units"`
		Price    string `json:"price"`
	} `json:"packages"`
}

// AdminReplacePackages swaps the whole catalog in one transaction. In-flight
// purchases keep the version they loaded.
func (h *Handler) AdminReplacePackages(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req replacePackagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(req.Packages) == 0 {
		respondError(w, http.StatusBadRequest, "catalog cannot be empty")
		return
	}
	inputs := make([]store.PackageInput, 0, len(req.Packages))
	for _, pkg := range req.Packages {
		priceMinor, err := money.ParseMinor(pkg.Price)
		if err != nil || pkg.ID == "" || pkg.CIDUnits <= 0 || priceMinor <= 0 {
			respondError(w, http.StatusBadRequest, "invalid package definition")
			return
		}
		inputs = append(inputs, store.PackageInput{
			ID:         pkg.ID,
			Name:       pkg.Name,
			CIDUnits:   pkg.CIDUnits,
			PriceMinor: priceMinor,
		})
	}
	var version int64
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		version, err = h.pricing.ReplaceAll(r.Context(), tx, inputs)
		if err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"version": version, "packages": len(inputs)})
		return h.audit.Log(r.Context(), tx, uuid.NewString(), adminID, "catalog.replaced", "catalog", "pricing", string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to replace catalog")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"catalog_version": version})
}

type adjustRequest struct {
	UserID   string `json:"user_id"`
	Currency string `json:"currency"`
	Delta    string `json:"delta"`
	Reason   string `json:"reason"`
}

func (h *Handler) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}
	var delta int64
	var err error
	if req.Currency == store.CurrencyUSD {
		delta, err = parseSignedMinor(req.Delta)
	} else {
		delta, err = parseSignedUnits(req.Delta)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid delta")
		return
	}
	balance, err := h.coordinator.AdminAdjust(r.Context(), adminID, req.UserID, req.Currency, delta, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  req.UserID,
		"currency": req.Currency,
		"balance":  formatBalance(req.Currency, balance),
	})
}

type suspendRequest struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

func (h *Handler) AdminSetAccountStatus(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req suspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.coordinator.SetAccountStatus(r.Context(), adminID, req.AccountID, req.Status); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"account_id": req.AccountID,
		"status":     req.Status,
	})
}

type promoteRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) AdminPromote(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, req.UserID, &adminID); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, uuid.NewString(), adminID, "admin.promoted", "user", req.UserID, "{}")
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"user_id": req.UserID})
}

func (h *Handler) AdminListAudit(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	entries, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit log")
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		row := map[string]any{
			"id":          entry.ID,
			"action":      entry.Action,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
			"data":        json.RawMessage(entry.Data),
			"created_at":  entry.CreatedAt,
		}
		if entry.ActorUserID != nil {
			row["actor_user_id"] = *entry.ActorUserID
		}
		out = append(out, row)
	}
	respondJSON(w, http.StatusOK, out)
}

// AdminReconcile compares every stored balance against its ledger sum.
func (h *Handler) AdminReconcile(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.accounts.ListBalanceSummaries(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile")
		return
	}
	out := make([]map[string]any, 0, len(summaries))
	clean := true
	for _, s := range summaries {
		if s.Difference != 0 {
			clean = false
		}
		out = append(out, map[string]any{
			"account_id":     s.ID,
			"user_id":        s.UserID,
			"currency":       s.Currency,
			"stored_balance": formatBalance(s.Currency, s.StoredBalance),
			"ledger_sum":     formatBalance(s.Currency, s.LedgerSum),
			"difference":     formatBalance(s.Currency, s.Difference),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"clean":    clean,
		"accounts": out,
	})
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}

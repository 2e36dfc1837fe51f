package handlers

import (
	"encoding/json"
	"net/http"

	"cidbank/internal/middleware"
	"cidbank/internal/money"
	"cidbank/internal/store"
	"cidbank/internal/validator"

	"github.com/go-chi/chi/v5"
)

type submitDepositRequest struct {
	TxID   string `json:"txid"`
	Amount string `json:"amount"`
}

// SubmitDeposit records the claim and immediately attempts verification.
// A deposit that cannot settle yet leaves the claim pending; the caller
// can poll it via GET /deposits/{txid}.
func (h *Handler) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req submitDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	txid, err := validator.NormalizeTxID(req.TxID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var claimedMinor int64
	if req.Amount != "" {
		claimedMinor, err = money.ParseMinor(req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid amount")
			return
		}
	}
	if _, err := h.coordinator.SubmitDepositClaim(r.Context(), userID, txid, claimedMinor); err != nil {
		respondServiceError(w, err)
		return
	}
	claim, err := h.coordinator.ProcessDepositClaim(r.Context(), userID, txid)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, depositResponse(claim))
}

// CheckDeposit re-drives a pending claim and reports its current state.
func (h *Handler) CheckDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	txid, err := validator.NormalizeTxID(chi.URLParam(r, "txid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	claim, err := h.coordinator.ProcessDepositClaim(r.Context(), userID, txid)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, depositResponse(claim))
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := parsePage(r)
	claims, err := h.claims.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load deposits")
		return
	}
	out := make([]map[string]any, 0, len(claims))
	for _, claim := range claims {
		out = append(out, depositResponse(claim))
	}
	respondJSON(w, http.StatusOK, out)
}

func depositResponse(claim store.DepositClaim) map[string]any {
	out := map[string]any{
		"txid":           claim.TxID,
		"status":         claim.Status,
		"claimed_amount": money.FormatMinor(claim.ClaimedMinor),
		"created_at":     claim.CreatedAt,
	}
	if claim.ActualMinor != nil {
		out["actual_amount"] = money.FormatMinor(*claim.ActualMinor)
	}
	if claim.RejectReason != nil {
		out["reject_reason"] = *claim.RejectReason
	}
	if claim.CreditedAt != nil {
		out["credited_at"] = *claim.CreditedAt
	}
	return out
}

package handlers

import (
	"encoding/json"
	"net/http"

	"cidbank/internal/middleware"
	"cidbank/internal/validator"
)

type redeemVoucherRequest struct {
	Code string `json:"code"`
}

func (h *Handler) RedeemVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req redeemVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	code, err := validator.NormalizeVoucherCode(req.Code)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := h.coordinator.RedeemVoucher(r.Context(), userID, code)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	voucher, err := h.vouchers.GetByCode(r.Context(), code)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "redeemed but unable to load voucher")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"code":     code,
		"currency": voucher.Currency,
		"value":    formatBalance(voucher.Currency, voucher.ValueMinor),
		"balance":  formatBalance(voucher.Currency, balance),
	})
}

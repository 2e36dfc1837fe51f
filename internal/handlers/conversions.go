package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"cidbank/internal/middleware"
	"cidbank/internal/services"
	"cidbank/internal/store"
	"cidbank/internal/validator"
)

type convertRequest struct {
	InstallationID string `json:"installation_id"`
}

// Convert runs the debit-first conversion flow. A rejected or failed
// conversion still returns the request record so the caller sees the
// refund state.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	installationID, err := validator.NormalizeInstallationID(req.InstallationID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	debit, err := h.coordinator.RequestConversion(r.Context(), userID, installationID)
	if err != nil {
		if errors.Is(err, services.ErrConversionRejected) || errors.Is(err, services.ErrProviderUnavailable) {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, services.ErrProviderUnavailable) {
				status = http.StatusBadGateway
			}
			respondJSON(w, status, conversionResponse(debit))
			return
		}
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conversionResponse(debit))
}

func (h *Handler) ListConversions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := parsePage(r)
	debits, err := h.conversions.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load conversions")
		return
	}
	out := make([]map[string]any, 0, len(debits))
	for _, debit := range debits {
		out = append(out, conversionResponse(debit))
	}
	respondJSON(w, http.StatusOK, out)
}

func conversionResponse(debit store.ConversionDebit) map[string]any {
	out := map[string]any{
		"id":         debit.ID,
		"status":     debit.Status,
		"cost":       debit.ReservedUnits,
		"created_at": debit.CreatedAt,
	}
	if debit.ConfirmationID != nil {
		out["confirmation_id"] = *debit.ConfirmationID
	}
	if debit.FailReason != nil {
		out["fail_reason"] = *debit.FailReason
	}
	return out
}

package handlers

import (
	"encoding/json"
	"net/http"

	"cidbank/internal/middleware"
	"cidbank/internal/money"
	"cidbank/internal/services"
	"cidbank/internal/store"
)

func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	version, packages, err := h.pricing.LoadCurrent(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load packages")
		return
	}
	out := make([]map[string]any, 0, len(packages))
	for _, pkg := range packages {
		out = append(out, map[string]any{
			"id":        pkg.ID,
			"name":      pkg.Name,
			"cid_units": pkg.CIDUnits,
			"price":     money.FormatMinor(pkg.PriceMinor),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"catalog_version": version,
		"packages":        out,
	})
}

type purchaseRequest struct {
	PackageID string `json:"package_id"`
}

// PurchasePackage buys against the catalog version current at request
// time; a concurrent catalog replacement does not change the price of a
// purchase already in flight.
func (h *Handler) PurchasePackage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	version, packages, err := h.pricing.LoadCurrent(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load packages")
		return
	}
	catalog := services.NewCatalog(version, packages)
	result, err := h.coordinator.PurchasePackage(r.Context(), userID, req.PackageID, catalog)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"purchase_id":     result.PurchaseID,
		"catalog_version": version,
		"usd_balance":     formatBalance(store.CurrencyUSD, result.USDBalance),
		"cid_balance":     formatBalance(store.CurrencyCID, result.CIDBalance),
	})
}

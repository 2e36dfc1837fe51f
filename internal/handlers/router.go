package handlers

import (
	"net/http"

	"cidbank/internal/config"
	"cidbank/internal/db"
	"cidbank/internal/middleware"
	"cidbank/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner    db.TxRunner
	cfg         config.Config
	users       UserStore
	accounts    AccountStore
	ledger      LedgerStore
	claims      DepositClaimStore
	vouchers    VoucherStore
	conversions ConversionStore
	pricing     PricingStore
	admin       AdminStore
	audit       AuditStore
	coordinator Coordinator
	hub         *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, accounts AccountStore, ledger LedgerStore, claims DepositClaimStore, vouchers VoucherStore, conversions ConversionStore, pricing PricingStore, admin AdminStore, audit AuditStore, coordinator Coordinator, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner:    txRunner,
		cfg:         cfg,
		users:       users,
		accounts:    accounts,
		ledger:      ledger,
		claims:      claims,
		vouchers:    vouchers,
		conversions: conversions,
		pricing:     pricing,
		admin:       admin,
		audit:       audit,
		coordinator: coordinator,
		hub:         hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/balances", h.ListBalances)
		r.Get("/events", h.ListEvents)
		r.Post("/deposits", h.SubmitDeposit)
		r.Get("/deposits", h.ListDeposits)
		r.Get("/deposits/{txid}", h.CheckDeposit)
		r.Post("/vouchers/redeem", h.RedeemVoucher)
		r.Get("/packages", h.ListPackages)
		r.Post("/packages/purchase", h.PurchasePackage)
		r.Post("/convert", h.Convert)
		r.Get("/conversions", h.ListConversions)
	})
	router.Get("/ws/balances", h.WSBalances)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireAdmin(h.admin))
		r.Post("/vouchers", h.AdminCreateVouchers)
		r.Get("/vouchers", h.AdminListVouchers)
		r.Put("/packages", h.AdminReplacePackages)
		r.Post("/adjust", h.AdminAdjust)
		r.Post("/suspend", h.AdminSetAccountStatus)
		r.Post("/promote", h.AdminPromote)
		r.Get("/audit", h.AdminListAudit)
		r.Get("/reconcile", h.AdminReconcile)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

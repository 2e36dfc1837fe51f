package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cidbank/internal/config"
	"cidbank/internal/db"
	"cidbank/internal/handlers"
	"cidbank/internal/pidkey"
	"cidbank/internal/services"
	"cidbank/internal/store"
	"cidbank/internal/tron"
	"cidbank/internal/websocket"
)

func main() {
	cfg := config.Load()
	if cfg.WalletAddress == "" {
		log.Fatal("USDT_TRC20_ADDRESS must be set")
	}
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	ledger := store.NewLedgerStore(database)
	claims := store.NewDepositClaimStore(database)
	vouchers := store.NewVoucherStore(database)
	conversions := store.NewConversionStore(database)
	pricing := store.NewPricingStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	verifier := services.NewVerifier(tron.NewClient(cfg.TronAPIURL, cfg.WalletAddress), services.VerifierConfig{
		WalletAddress:    cfg.WalletAddress,
		MinConfirmations: cfg.MinConfirmations,
		ToleranceMinor:   cfg.DepositToleranceMinor,
		Retry: services.RetryPolicy{
			MaxAttempts: cfg.VerifyMaxAttempts,
			BaseDelay:   cfg.VerifyBaseDelay,
		},
	})
	converter := pidkey.NewClient(cfg.PidkeyAPIURL, cfg.PidkeyAPIKey, cfg.ConvertTimeout)
	coordinator := services.NewCoordinator(txRunner, accounts, ledger, claims, vouchers, conversions, audit, verifier, converter, hub, services.CoordinatorConfig{
		MinDepositMinor:     cfg.MinDepositMinor,
		ConversionCostUnits: cfg.ConversionCostUnits,
		ConvertTimeout:      cfg.ConvertTimeout,
	})

	handler := handlers.New(txRunner, cfg, users, accounts, ledger, claims, vouchers, conversions, pricing, admin, audit, coordinator, hub)
	// The convert endpoint waits on the upstream provider, so the write
	// timeout must outlast ConvertTimeout.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ConvertTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeps(sweepCtx, coordinator, cfg)

	go func() {
		log.Printf("cidbank API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// runSweeps heals the states a crash can leave behind: verified claims
// without a credit, used vouchers without a credit, and reservations whose
// conversion never finished.
func runSweeps(ctx context.Context, coordinator *services.Coordinator, cfg config.Config) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			coordinator.RetryVerifiedClaims(ctx)
			coordinator.RepairVoucherCredits(ctx)
			coordinator.ReleaseStaleConversions(ctx, cfg.ReservationMaxAge)
		}
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/catalog"
	"github.com/hyprcat/gateway/internal/config"
	"github.com/hyprcat/gateway/internal/events"
	"github.com/hyprcat/gateway/internal/federation"
	"github.com/hyprcat/gateway/internal/governance"
	"github.com/hyprcat/gateway/internal/identity"
	"github.com/hyprcat/gateway/internal/logging"
	"github.com/hyprcat/gateway/internal/provenance"
	"github.com/hyprcat/gateway/internal/server"
	"github.com/hyprcat/gateway/internal/store"
	"github.com/hyprcat/gateway/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.EnableLogging, cfg.DevMode)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resources, wallets := buildStores(ctx, cfg, log)
	bus := events.NewBus()

	walletStore := wallet.NewStore(wallets)
	identitySvc := identity.NewService(cfg.JWTSecret, cfg.DevMode, log,
		func(ctx context.Context, did string) {
			if _, err := walletStore.Provision(ctx, did); err != nil {
				log.Warn("wallet provisioning failed", zap.String("did", did), zap.Error(err))
			}
		})
	identitySvc.StartSweeper(ctx)

	payments := governance.NewPaymentService(cfg.PaymentSecret, walletStore, bus, log)
	payments.StartSweeper(ctx)

	catalogSvc := catalog.NewService(resources, cfg.BaseURL, log)
	if err := catalogSvc.Seed(ctx); err != nil {
		log.Fatal("catalog seeding failed", zap.Error(err))
	}

	srv := server.New(server.Deps{
		Config:   cfg,
		Log:      log,
		Store:    resources,
		Catalog:  catalogSvc,
		Identity: identitySvc,
		Wallets:  walletStore,
		Payments: payments,
		Fed:      federation.NewEngine(log, bus),
		Prov:     provenance.NewService(bus),
		Bus:      bus,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown incomplete", zap.Error(err))
		}
	}
}

// buildStores constructs the resource and wallet backends for the
// configured storage mode. A redis backend that fails its ping falls
// back to memory so a dev gateway still comes up.
func buildStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, store.Store) {
	switch cfg.StorageBackend {
	case "file":
		return store.NewFileStore(cfg.StorageDir + "/resources"),
			store.NewFileStore(cfg.StorageDir + "/wallets")
	case "redis":
		resources, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "hyprcat:resources")
		if err != nil {
			log.Warn("redis unreachable, falling back to memory", zap.Error(err))
			return store.NewMemoryStore(), nil
		}
		wallets, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "hyprcat:wallets")
		if err != nil {
			return resources, nil
		}
		return resources, wallets
	default:
		return store.NewMemoryStore(), nil
	}
}

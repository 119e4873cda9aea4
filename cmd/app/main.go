package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hodhod22/payout-engine/internal/config"
	"github.com/hodhod22/payout-engine/internal/domain/model"
	"github.com/hodhod22/payout-engine/internal/domain/ports/adapter"
	"github.com/hodhod22/payout-engine/internal/infra/api"
	pg "github.com/hodhod22/payout-engine/internal/infra/db/postgres"
	"github.com/hodhod22/payout-engine/internal/infra/logging"
	"github.com/hodhod22/payout-engine/internal/infra/metrics"
	"github.com/hodhod22/payout-engine/internal/infra/payment"
	red "github.com/hodhod22/payout-engine/internal/infra/redis"
	"github.com/hodhod22/payout-engine/internal/infra/sched"
	"github.com/hodhod22/payout-engine/internal/infra/worker"
	"github.com/hodhod22/payout-engine/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, sandbox providers)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	rateLimiter := red.NewPayoutRequestLimiter(
		red.NewRateLimiter(redisClient),
		cfg.Payout.RateLimit,
		cfg.Payout.RateLimitWindow,
	)
	idemStore := red.NewIdempotencyStore(redisClient, cfg.Redis.TTL)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	payoutRepo := pg.NewPostgresPayoutRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Provider adapters ----
	adapters := map[model.PayoutMethod]adapter.ProviderAdapter{}
	checkers := map[string]adapter.StatusChecker{}
	var pollProviders []string

	if cfg.Providers.PayPal.ClientID != "" {
		paypal := payment.NewPayPalGateway(
			cfg.Providers.PayPal.ClientID,
			cfg.Providers.PayPal.ClientSecret,
			cfg.Providers.PayPal.Sandbox,
		)
		adapters[model.PayoutMethodPayPal] = paypal
		checkers[paypal.Name()] = paypal
		pollProviders = append(pollProviders, paypal.Name())
		logger.Info().Bool("sandbox", cfg.Providers.PayPal.Sandbox).Msg("paypal rail configured")
	}
	if cfg.Providers.Stripe.SecretKey != "" {
		stripe := payment.NewStripeGateway(cfg.Providers.Stripe.SecretKey)
		adapters[model.PayoutMethodBank] = stripe
		adapters[model.PayoutMethodCard] = stripe
		logger.Info().Msg("stripe rail configured")
	}

	var redirect adapter.ProviderAdapter
	var verifier adapter.Verifier
	if cfg.Providers.Zarinpal.MerchantID != "" {
		zp := payment.NewZarinpalGateway(
			cfg.Providers.Zarinpal.MerchantID,
			cfg.Providers.Zarinpal.CallbackURL,
			cfg.Providers.Zarinpal.Sandbox,
		)
		redirect = zp
		verifier = zp
		logger.Info().Bool("sandbox", cfg.Providers.Zarinpal.Sandbox).Msg("redirect gateway configured")
	}

	if len(adapters) == 0 && redirect == nil {
		logger.Fatal().Msg("no payment provider configured: set providers.paypal, providers.stripe or providers.zarinpal")
	}

	// ---- Use cases ----
	payoutUC := usecase.NewPayoutUseCase(payoutRepo, adapters, redirect, idemStore, rateLimiter, usecase.PayoutConfig{
		MinAmount:        cfg.Payout.MinAmount,
		RedirectCurrency: cfg.Payout.RedirectCurrency,
		PollDeadline:     cfg.Payout.PollDeadline,
	}, logger)
	reconcileUC := usecase.NewReconcileUseCase(payoutRepo, checkers, usecase.ReconcileConfig{
		PollInterval: cfg.Payout.PollInterval,
		PollDeadline: cfg.Payout.PollDeadline,
	}, logger)

	if verifier == nil {
		verifier = noVerifier{}
	}
	verifyUC := usecase.NewVerificationUseCase(payoutRepo, verifier, txManager, locker, logger)

	// ---- Background reconciliation ----
	pool2 := worker.NewPool(cfg.Payout.Workers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()
	if len(pollProviders) > 0 {
		reconciler := sched.NewPayoutReconciler(
			reconcileUC,
			pool2,
			pollProviders,
			cfg.Payout.ReconcileInterval,
			cfg.Payout.ReconcileStaleAfter,
			logger,
		)
		go reconciler.Start(ctx)
	}

	// ---- HTTP server ----
	srv := api.NewServer(payoutUC, verifyUC, logger).
		WithWebhookSecret(cfg.Providers.Zarinpal.WebhookSecret)
	go func() {
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
}

// noVerifier backs the verification endpoint when no redirect gateway is
// configured; every callback fails closed.
type noVerifier struct{}

func (noVerifier) Verify(ctx context.Context, amount int64, authority string) (string, error) {
	return "", errors.New("no redirect gateway configured")
}

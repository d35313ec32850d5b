package main

import (
	"context"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/api/rest"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/config"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/feed"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/feed/mock"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/feed/okx"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/health"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/http/middleware"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/log"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/metrics"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/netutil"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/runner"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/version"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/replay"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/sim"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	logger := log.NewLogger(cfg)

	// Offline replay mode short-circuits the service entirely.
	if os.Getenv("TRADESIM_REPLAY_CSV") != "" {
		if err := replay.RunCSV(); err != nil {
			logger.Error().Err(err).Msg("replay failed")
			os.Exit(1)
		}
		return
	}

	takerFee, err := decimal.NewFromString(cfg.Simulation.TakerFeeRate)
	if err != nil || takerFee.IsNegative() {
		logger.Error().Str("taker_fee_rate", cfg.Simulation.TakerFeeRate).Msg("invalid taker fee rate")
		os.Exit(1)
	}

	b := book.New(cfg.Feed.Symbol)
	engine := sim.NewEngine(b, takerFee, logger)

	var adapter feed.Adapter
	switch cfg.Feed.Exchange {
	case "mock":
		adapter = mock.New(cfg.Feed.Symbol)
	default:
		adapter = okx.New(cfg, logger)
	}

	// Init metrics and start HTTP endpoint
	registry := metrics.Init(logger)
	mux := http.NewServeMux()
	// admin endpoints (metrics, pprof) behind IP allowlist gate
	adminCIDRs := netutil.MustParseCIDRs(cfg.Server.AdminAllowCIDRs)
	mux.Handle("/metrics", middleware.AdminGate(adminCIDRs, metrics.Handler(registry)))
	mux.HandleFunc("/healthz", health.Healthz)
	mux.HandleFunc("/readyz", health.Readyz)
	mux.HandleFunc("/version", version.Handler)
	mux.Handle("/", rest.New(engine).Handler())
	if cfg.Server.Pprof {
		mux.Handle("/debug/pprof/", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Index)))
		mux.Handle("/debug/pprof/cmdline", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Cmdline)))
		mux.Handle("/debug/pprof/profile", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Profile)))
		mux.Handle("/debug/pprof/symbol", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Symbol)))
		mux.Handle("/debug/pprof/trace", middleware.AdminGate(adminCIDRs, http.HandlerFunc(pprof.Trace)))
	}

	// wrap mux with middlewares (request id and logging)
	handler := middleware.RequestID(middleware.Logger(logger)(mux))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	logger.Info().Str("symbol", cfg.Feed.Symbol).Str("feed", adapter.Name()).Str("addr", cfg.Server.Addr).Msg("trade simulator started")

	if err := adapter.Connect(ctx); err != nil {
		logger.Error().Err(err).Msg("feed connect failed")
		os.Exit(1)
	}
	if err := adapter.Subscribe(ctx); err != nil {
		logger.Error().Err(err).Msg("feed subscribe failed")
		os.Exit(1)
	}

	g := &runner.Group{}
	updater := feed.NewUpdater(b, adapter, logger, cfg.Feed.ResyncBurst, cfg.Feed.ResyncPerMinute)
	updaterErrCh := g.Go(ctx, updater.Run)
	if cfg.Simulation.SelfQuote {
		qty, qerr := decimal.NewFromString(cfg.Simulation.Quantity)
		if qerr != nil || !qty.IsPositive() {
			logger.Warn().Str("quantity", cfg.Simulation.Quantity).Msg("invalid self-quote quantity; loop disabled")
		} else {
			interval := time.Duration(cfg.Simulation.IntervalSeconds) * time.Second
			g.Go(ctx, func(ctx context.Context) error {
				return engine.RunSelfQuote(ctx, interval, qty)
			})
		}
	}

	// mark ready after initialization completes
	health.SetReady(true)

	// Wait for termination signals or updater failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case s := <-sigCh:
		logger.Info().Str("signal", s.String()).Msg("shutdown signal received")
	case err := <-updaterErrCh:
		if err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("updater error")
			health.SetReady(false)
		}
	}

	// mark not ready before shutdown
	health.SetReady(false)
	cancel()
	_ = adapter.Close()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	g.Wait()
	logger.Info().Msg("shutdown complete")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_trade_rl/internal/config"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/exchange"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/logger"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/metrics"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/policy"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/storage"
	"github.com/vitos/crypto_trade_rl/internal/usecase"
	"github.com/vitos/crypto_trade_rl/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Venue
	client, err := exchange.NewClient(exchange.VenueOptions{
		Name:         cfg.Venue.Name,
		APIKey:       cfg.Venue.APIKey,
		APISecret:    cfg.Venue.APISecret,
		Testnet:      cfg.Venue.Testnet,
		RESTEndpoint: cfg.Venue.RESTEndpoint,
		WSEndpoint:   cfg.Venue.WSEndpoint,
		PaperBalance: cfg.Venue.PaperBalance,
		PriceFeed:    cfg.Venue.PriceFeed,
		FeeRate:      cfg.Trading.FeeRate,
	}, log)
	if err != nil {
		log.Fatal("Failed to init venue", zap.Error(err))
	}

	precision := int(usecase.DefaultReconcilerConfig().QtyPrecision)
	if cfg.Trading.QtyPrecision < 0 {
		infoCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		inst, err := client.GetInstrument(infoCtx, cfg.Symbol)
		cancel()
		if err != nil {
			log.Fatal("Failed to load instrument precision", zap.String("symbol", cfg.Symbol), zap.Error(err))
		}
		precision = inst.QuantityPrecision
		log.Info("Instrument loaded",
			zap.String("symbol", inst.Symbol),
			zap.String("status", inst.Status),
			zap.Int("qty_precision", precision))
	}

	// 5. Init Services
	resolver, err := usecase.NewActionResolver(cfg.ResolverConfig())
	if err != nil {
		log.Fatal("Invalid resolver config", zap.Error(err))
	}
	reconciler, err := usecase.NewLiveReconciler(cfg.ReconcilerConfig(precision))
	if err != nil {
		log.Fatal("Invalid reconciler config", zap.Error(err))
	}
	features := usecase.NewFeatureEngine(log)
	market := usecase.NewMarketService(client, features, cfg.Interval, cfg.Env.WindowSize)
	executor := usecase.NewTradeExecutor(client, cfg.Symbol, cfg.Live.SettlePause, log)

	pol, err := buildPolicy(cfg, features.FeatureNames())
	if err != nil {
		log.Fatal("Failed to init policy", zap.Error(err))
	}

	session, err := usecase.NewLiveSession(cfg.LiveSessionConfig(), client, market, pol, resolver, reconciler, executor, store, metrics.NewRecorder(), log)
	if err != nil {
		log.Fatal("Failed to init live session", zap.Error(err))
	}
	if err := usecase.NewObservationBuilder(features.FeatureNames(), log).CheckLen(cfg.Policy.ObservationLen); err != nil {
		log.Fatal("Policy observation length does not match features", zap.Error(err))
	}
	if cfg.Live.Trigger == "kline_ws" {
		session.WithTrigger(client.ClosedBars(ctx, cfg.Symbol, cfg.Interval))
	}

	// 6. Init Web Server
	server := web.NewServer(cfg.Server.Port, session, store, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	// 7. Run until signalled
	if err := session.Run(ctx); err != nil {
		log.Fatal("Live session failed to start", zap.Error(err))
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}

func buildPolicy(cfg *config.Config, featureNames []string) (domain.Policy, error) {
	switch cfg.Policy.Kind {
	case "http":
		return policy.NewHTTPPolicy(cfg.Policy.URL, cfg.Mode, cfg.Policy.Timeout), nil
	case "random":
		return policy.NewRandomPolicy(cfg.Mode, cfg.Policy.Seed), nil
	}
	return policy.NewTrendPolicy(featureNames, cfg.Mode, cfg.Policy.Allocation)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/vitos/crypto_trade_rl/internal/config"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/logger"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/marketdata"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/metrics"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/policy"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/storage"
	"github.com/vitos/crypto_trade_rl/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	csvPath := flag.String("csv", "", "OHLCV csv (overrides simulate.csv)")
	workers := flag.Int("workers", 0, "parallel episodes (overrides simulate.workers)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *csvPath != "" {
		cfg.Simulate.CSV = *csvPath
	}
	if *workers > 0 {
		cfg.Simulate.Workers = *workers
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Simulate.CSV == "" {
		log.Fatal("No candle csv given (use -csv or simulate.csv)")
	}

	candles, err := marketdata.LoadCSV(cfg.Simulate.CSV)
	if err != nil {
		log.Fatal("Failed to load candles", zap.String("path", cfg.Simulate.CSV), zap.Error(err))
	}
	features := usecase.NewFeatureEngine(log)
	rows, err := features.Series(candles)
	if err != nil {
		log.Fatal("Failed to compute features", zap.Error(err))
	}
	log.Info("Feature series ready",
		zap.Int("candles", len(candles)),
		zap.Int("rows", len(rows)),
		zap.Strings("features", features.FeatureNames()))

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	names := features.FeatureNames()
	if err := usecase.NewObservationBuilder(names, log).CheckLen(cfg.Policy.ObservationLen); err != nil {
		log.Fatal("Policy observation length does not match features", zap.Error(err))
	}
	factory := func(worker int) (domain.Policy, error) {
		switch cfg.Policy.Kind {
		case "http":
			return policy.NewHTTPPolicy(cfg.Policy.URL, cfg.Mode, cfg.Policy.Timeout), nil
		case "random":
			return policy.NewRandomPolicy(cfg.Mode, cfg.Policy.Seed+int64(worker)), nil
		}
		return policy.NewTrendPolicy(names, cfg.Mode, cfg.Policy.Allocation)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := usecase.NewSimulationRunner(rows, names, cfg.EnvConfig(), cfg.Simulate.Workers, factory, store, metrics.NewRecorder(), log)
	results, err := runner.Run(ctx)
	if err != nil {
		log.Fatal("Simulation failed", zap.Error(err))
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tSTEPS\tTRADES\tFINAL\tRETURN\tMAX_DD\tFEES\tREWARD\tBREACHED")
	for _, r := range results {
		ret := (r.FinalNetWorth - r.InitialBalance) / r.InitialBalance
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.2f\t%.2f%%\t%.2f%%\t%.2f\t%.2f\t%v\n",
			r.Worker, r.Steps, r.Trades, r.FinalNetWorth, ret*100, r.MaxDrawdown*100, r.FeesPaid, r.TotalReward, r.Breached)
	}
	tw.Flush()
}

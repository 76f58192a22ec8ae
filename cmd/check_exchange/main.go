package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/crypto_trade_rl/internal/config"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/exchange"
	"github.com/vitos/crypto_trade_rl/internal/infrastructure/logger"
	"github.com/vitos/crypto_trade_rl/internal/usecase"
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
	log, err := logger.NewLogger("warn")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	fmt.Printf("Testing %s interaction (testnet=%v)...\n", cfg.Venue.Name, cfg.Venue.Testnet)
	if len(cfg.Venue.APIKey) >= 4 {
		fmt.Printf("API Key: %s...\n", cfg.Venue.APIKey[:4])
	}

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
		fmt.Printf("❌ Failed to init venue: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2. Public endpoints
	price, err := client.ReadPrice(ctx, cfg.Symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Price (%s): %f\n", cfg.Symbol, price)
	}

	precision := cfg.Trading.QtyPrecision
	inst, err := client.GetInstrument(ctx, cfg.Symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get instrument: %v\n", err)
	} else {
		fmt.Printf("✅ Instrument %s: status=%s qty_precision=%d\n", inst.Symbol, inst.Status, inst.QuantityPrecision)
		if precision < 0 {
			precision = inst.QuantityPrecision
		}
	}

	candles, err := client.GetCandles(ctx, cfg.Symbol, cfg.Interval, cfg.Env.WindowSize)
	if err != nil {
		fmt.Printf("❌ Failed to get candles: %v\n", err)
	} else {
		fmt.Printf("✅ Candles (%s): %d bars\n", cfg.Interval, len(candles))
		if fv, err := usecase.NewFeatureEngine(log).Latest(candles); err != nil {
			fmt.Printf("❌ Failed to compute features: %v\n", err)
		} else {
			for i, n := range fv.Names {
				fmt.Printf("   %-12s %+.4f\n", n, fv.Values[i])
			}
		}
	}

	// 3. Private endpoints
	pos, err := client.ReadPosition(ctx, cfg.Symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get position: %v\n", err)
	} else {
		fmt.Printf("✅ Position (%s): %f\n", cfg.Symbol, pos)
	}

	equity, err := client.ReadEquity(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get equity: %v\n", err)
		return
	}
	fmt.Printf("✅ Equity: %f\n", equity)

	// 4. Sizing preview
	if price > 0 {
		if precision < 0 {
			precision = int(usecase.DefaultReconcilerConfig().QtyPrecision)
		}
		rec, err := usecase.NewLiveReconciler(cfg.ReconcilerConfig(precision))
		if err != nil {
			fmt.Printf("❌ Invalid sizing config: %v\n", err)
			return
		}
		state := usecase.LiveState{Position: pos, Price: price, Equity: equity}
		fmt.Printf("✅ Max tradable qty: %f (min order %f), allocation now %+.3f\n",
			rec.MaxTradableQty(equity, price), rec.MinQuantity(), rec.Allocation(state))
	}
}

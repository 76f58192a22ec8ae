package exchange

import (
	"context"
	"fmt"

	"github.com/vitos/crypto_trade_rl/internal/domain"
	"go.uber.org/zap"
)

type VenueOptions struct {
	Name         string
	APIKey       string
	APISecret    string
	Testnet      bool
	RESTEndpoint string
	WSEndpoint   string
	PaperBalance float64
	PriceFeed    string
	FeeRate      float64
}

// Client is everything the commands need from one venue connection.
type Client interface {
	domain.Venue
	domain.CandleSource
	GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	ClosedBars(ctx context.Context, symbol, interval string) <-chan struct{}
}

// paperClient routes account calls to the paper venue and market data to the feed.
type paperClient struct {
	*PaperVenue
	feed Client
}

func (p *paperClient) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return p.feed.GetCandles(ctx, symbol, interval, limit)
}

func (p *paperClient) GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	return p.feed.GetInstrument(ctx, symbol)
}

func (p *paperClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (p *paperClient) ClosedBars(ctx context.Context, symbol, interval string) <-chan struct{} {
	return p.feed.ClosedBars(ctx, symbol, interval)
}

// bybitClient adds the websocket trigger to the REST adapter.
type bybitClient struct {
	*BybitAdapter
	trigger *BybitKlineTrigger
}

func (b *bybitClient) ClosedBars(ctx context.Context, symbol, interval string) <-chan struct{} {
	return b.trigger.ClosedBars(ctx, symbol, interval)
}

// NewClient builds the venue named in opts. The paper venue trades in memory against
// real prices and bars from opts.PriceFeed.
func NewClient(opts VenueOptions, logger *zap.Logger) (Client, error) {
	switch opts.Name {
	case "binance":
		return NewBinanceAdapter(opts.APIKey, opts.APISecret, opts.Testnet, logger), nil
	case "bybit":
		base, ws := opts.RESTEndpoint, opts.WSEndpoint
		if base == "" && opts.Testnet {
			base = BybitTestnetBaseURL
		}
		if ws == "" && opts.Testnet {
			ws = BybitTestnetWSURL
		}
		return &bybitClient{
			BybitAdapter: NewBybitAdapter(opts.APIKey, opts.APISecret, base, logger),
			trigger:      NewBybitKlineTrigger(ws, logger),
		}, nil
	case "paper":
		feedName := opts.PriceFeed
		if feedName == "" || feedName == "paper" {
			feedName = "binance"
		}
		// Market data endpoints are public; the feed never trades.
		feed, err := NewClient(VenueOptions{Name: feedName, RESTEndpoint: opts.RESTEndpoint, WSEndpoint: opts.WSEndpoint}, logger)
		if err != nil {
			return nil, err
		}
		return &paperClient{
			PaperVenue: NewPaperVenue(feed, opts.PaperBalance, opts.FeeRate),
			feed:       feed,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown venue %q", domain.ErrInvalidConfig, opts.Name)
}

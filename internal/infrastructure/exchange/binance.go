package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"go.uber.org/zap"
)

const BinanceTestnetBaseURL = "https://testnet.binancefuture.com"

// BinanceAdapter wraps the USDT-margined futures client.
type BinanceAdapter struct {
	client     *futures.Client
	quoteAsset string
	logger     *zap.Logger
}

// NewBinanceAdapter builds a futures client. useTestnet must be decided before any
// other futures client is created in the process.
func NewBinanceAdapter(apiKey, apiSecret string, useTestnet bool, logger *zap.Logger) *BinanceAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	futures.UseTestnet = useTestnet
	client := futures.NewClient(apiKey, apiSecret)
	return &BinanceAdapter{
		client:     client,
		quoteAsset: "USDT",
		logger:     logger,
	}
}

func (b *BinanceAdapter) Name() string { return "binance" }

// ReadPosition sums position amounts across position sides. Binance reports shorts as negative.
func (b *BinanceAdapter) ReadPosition(ctx context.Context, symbol string) (float64, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance position risk: %w", err)
	}
	var net float64
	for _, p := range risks {
		if p == nil || !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		amt, err := strconv.ParseFloat(p.PositionAmt, 64)
		if err != nil {
			return 0, fmt.Errorf("binance position amount %q: %w", p.PositionAmt, err)
		}
		net += amt
	}
	return net, nil
}

func (b *BinanceAdapter) ReadPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance price: %w", err)
	}
	for _, p := range prices {
		if p != nil && strings.EqualFold(p.Symbol, symbol) {
			return strconv.ParseFloat(p.Price, 64)
		}
	}
	return 0, fmt.Errorf("%w: %s", domain.ErrNoPrice, symbol)
}

// ReadEquity returns the margin balance (wallet plus unrealized PnL) of the quote asset.
func (b *BinanceAdapter) ReadEquity(ctx context.Context) (float64, error) {
	acc, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance account: %w", err)
	}
	for _, a := range acc.Assets {
		if a != nil && a.Asset == b.quoteAsset {
			return strconv.ParseFloat(a.MarginBalance, 64)
		}
	}
	return 0, fmt.Errorf("binance account has no %s asset", b.quoteAsset)
}

func (b *BinanceAdapter) SubmitOrder(ctx context.Context, symbol string, order domain.OrderInstruction) (*domain.OrderConfirmation, error) {
	side := futures.SideTypeBuy
	if order.Side == domain.SideSell {
		side = futures.SideTypeSell
	}
	qty := decimal.NewFromFloat(order.Quantity).String()

	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty)
	if order.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance create order %s %s: %w", side, qty, err)
	}

	return &domain.OrderConfirmation{
		OrderID:     strconv.FormatInt(res.OrderID, 10),
		Symbol:      symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		ReduceOnly:  order.ReduceOnly,
		Status:      string(res.Status),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (b *BinanceAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	res, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance change leverage: %w", err)
	}
	b.logger.Debug("Binance leverage changed", zap.String("symbol", res.Symbol), zap.Int("leverage", res.Leverage))
	return nil
}

// GetCandles returns closed and in-progress bars, oldest first.
func (b *BinanceAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	kls, err := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines: %w", err)
	}
	out := make([]domain.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, domain.Candle{
			Time:   kl.OpenTime / 1000,
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
		})
	}
	return out, nil
}

func (b *BinanceAdapter) GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return &domain.Instrument{
				Symbol:            s.Symbol,
				QuantityPrecision: s.QuantityPrecision,
				Status:            s.Status,
			}, nil
		}
	}
	return nil, fmt.Errorf("binance instrument %s not found", symbol)
}

// ClosedBars emits a signal every time a bar of interval closes for symbol. The
// stream reconnects until ctx is done.
func (b *BinanceAdapter) ClosedBars(ctx context.Context, symbol, interval string) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		delay := time.Second
		for {
			handler := func(ev *futures.WsKlineEvent) {
				if ev == nil || !ev.Kline.IsFinal {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
			errHandler := func(err error) {
				b.logger.Warn("Binance kline stream error", zap.Error(err))
			}
			doneC, stopC, err := futures.WsKlineServe(symbol, interval, handler, errHandler)
			if err != nil {
				b.logger.Warn("Binance kline subscribe failed", zap.Error(err), zap.Duration("retry_in", delay))
				if !sleepWithContext(ctx, delay) {
					return
				}
				delay = nextDelay(delay)
				continue
			}
			delay = time.Second
			select {
			case <-ctx.Done():
				close(stopC)
				<-doneC
				return
			case <-doneC:
				b.logger.Info("Binance kline stream closed, reconnecting")
			}
		}
	}()
	return out
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > time.Minute {
		return time.Minute
	}
	return d
}

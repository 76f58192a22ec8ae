package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

type stubPrices struct {
	price float64
	err   error
}

func (s *stubPrices) ReadPrice(ctx context.Context, symbol string) (float64, error) {
	return s.price, s.err
}

func equity(t *testing.T, p *PaperVenue) float64 {
	t.Helper()
	e, err := p.ReadEquity(context.Background())
	require.NoError(t, err)
	return e
}

func position(t *testing.T, p *PaperVenue) float64 {
	t.Helper()
	pos, err := p.ReadPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	return pos
}

func TestPaperVenue_OpenMarkAndReduce(t *testing.T) {
	ctx := context.Background()
	p := NewPaperVenue(nil, 1000, 0.001)
	p.SetPrice(100)

	conf, err := p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideBuy, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", conf.Status)
	assert.NotEmpty(t, conf.OrderID)
	assert.Equal(t, 2.0, position(t, p))
	assert.InDelta(t, 999.8, equity(t, p), 1e-9)

	p.SetPrice(110)
	assert.InDelta(t, 1019.8, equity(t, p), 1e-9)

	_, err = p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideSell, Quantity: 1, ReduceOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1.0, position(t, p))
	assert.InDelta(t, 1019.69, equity(t, p), 1e-9)
}

func TestPaperVenue_ReduceOnly(t *testing.T) {
	ctx := context.Background()
	p := NewPaperVenue(nil, 1000, 0)
	p.SetPrice(100)

	_, err := p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideSell, Quantity: 1, ReduceOnly: true})
	assert.Error(t, err, "nothing to reduce")

	_, err = p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideBuy, Quantity: 1})
	require.NoError(t, err)

	_, err = p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideBuy, Quantity: 1, ReduceOnly: true})
	assert.Error(t, err, "reduce-only buy would grow a long")
	assert.Equal(t, 1.0, position(t, p))

	conf, err := p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideSell, Quantity: 5, ReduceOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1.0, conf.Quantity, "reduce-only is capped at the position size")
	assert.Zero(t, position(t, p))
	assert.InDelta(t, 1000, equity(t, p), 1e-9)
}

func TestPaperVenue_FlipRealizesAndReprices(t *testing.T) {
	ctx := context.Background()
	p := NewPaperVenue(nil, 1000, 0)
	p.SetPrice(100)
	_, err := p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideBuy, Quantity: 1})
	require.NoError(t, err)

	p.SetPrice(90)
	_, err = p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideSell, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, -2.0, position(t, p))
	assert.InDelta(t, 990, equity(t, p), 1e-9)

	p.SetPrice(80)
	assert.InDelta(t, 1010, equity(t, p), 1e-9)
}

func TestPaperVenue_Prices(t *testing.T) {
	ctx := context.Background()

	p := NewPaperVenue(nil, 1000, 0)
	_, err := p.ReadPrice(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
	_, err = p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideBuy, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrNoPrice)
	_, err = p.SubmitOrder(ctx, "BTCUSDT", domain.OrderInstruction{Side: domain.SideBuy})
	assert.Error(t, err)

	feed := &stubPrices{price: 64000}
	p = NewPaperVenue(feed, 1000, 0)
	price, err := p.ReadPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64000.0, price)

	feed.err = errors.New("feed down")
	_, err = p.ReadPrice(ctx, "BTCUSDT")
	assert.ErrorContains(t, err, "feed down")
	assert.Equal(t, "paper", p.Name())
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(VenueOptions{Name: "paper", PaperBalance: 500, PriceFeed: "bybit"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "paper", c.Name())
	assert.NoError(t, c.SetLeverage(context.Background(), "BTCUSDT", 10))

	c, err = NewClient(VenueOptions{Name: "bybit", Testnet: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "bybit", c.Name())

	c, err = NewClient(VenueOptions{Name: "binance", Testnet: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "binance", c.Name())

	_, err = NewClient(VenueOptions{Name: "ftx"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

package exchange

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

// PriceReader is the part of a venue the paper venue borrows real prices from.
type PriceReader interface {
	ReadPrice(ctx context.Context, symbol string) (float64, error)
}

// PaperVenue fills market orders in memory at the latest price. Orders never reach
// an exchange. Equity is cash plus unrealized PnL of the single net position.
type PaperVenue struct {
	prices  PriceReader
	feeRate float64

	mu         sync.Mutex
	cash       float64
	position   float64
	entryPrice float64
	lastPrice  float64
}

func NewPaperVenue(prices PriceReader, startingBalance, feeRate float64) *PaperVenue {
	return &PaperVenue{
		prices:  prices,
		feeRate: feeRate,
		cash:    startingBalance,
	}
}

func (p *PaperVenue) Name() string { return "paper" }

// SetPrice pins the mark price. Used when no PriceReader is configured.
func (p *PaperVenue) SetPrice(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice = price
}

func (p *PaperVenue) ReadPrice(ctx context.Context, symbol string) (float64, error) {
	if p.prices != nil {
		price, err := p.prices.ReadPrice(ctx, symbol)
		if err != nil {
			return 0, err
		}
		p.SetPrice(price)
		return price, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPrice <= 0 {
		return 0, domain.ErrNoPrice
	}
	return p.lastPrice, nil
}

func (p *PaperVenue) ReadPosition(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *PaperVenue) ReadEquity(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash + p.unrealized(), nil
}

func (p *PaperVenue) SubmitOrder(ctx context.Context, symbol string, order domain.OrderInstruction) (*domain.OrderConfirmation, error) {
	if order.Quantity <= 0 {
		return nil, errors.New("paper: quantity must be > 0")
	}
	price, err := p.ReadPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	signed := order.Quantity
	if order.Side == domain.SideSell {
		signed = -signed
	}
	if order.ReduceOnly {
		if p.position == 0 || math.Signbit(signed) == math.Signbit(p.position) {
			return nil, errors.New("paper: reduce-only order would increase position")
		}
		if math.Abs(signed) > math.Abs(p.position) {
			signed = -p.position
		}
	}

	p.fill(signed, price)

	return &domain.OrderConfirmation{
		OrderID:     uuid.New().String(),
		Symbol:      symbol,
		Side:        order.Side,
		Quantity:    math.Abs(signed),
		ReduceOnly:  order.ReduceOnly,
		Status:      "FILLED",
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// fill applies a signed quantity at price. Caller holds mu.
func (p *PaperVenue) fill(signed, price float64) {
	p.cash -= math.Abs(signed) * price * p.feeRate

	next := p.position + signed
	switch {
	case p.position == 0 || math.Signbit(p.position) == math.Signbit(signed):
		// Opening or adding: blend the entry price.
		total := math.Abs(p.position) + math.Abs(signed)
		p.entryPrice = (p.entryPrice*math.Abs(p.position) + price*math.Abs(signed)) / total
	default:
		closed := math.Min(math.Abs(signed), math.Abs(p.position))
		dir := 1.0
		if p.position < 0 {
			dir = -1.0
		}
		p.cash += closed * (price - p.entryPrice) * dir
		if math.Abs(signed) > math.Abs(p.position) {
			p.entryPrice = price
		}
	}
	if math.Abs(next) < 1e-12 {
		next = 0
		p.entryPrice = 0
	}
	p.position = next
	p.lastPrice = price
}

func (p *PaperVenue) unrealized() float64 {
	if p.position == 0 || p.lastPrice <= 0 {
		return 0
	}
	return p.position * (p.lastPrice - p.entryPrice)
}

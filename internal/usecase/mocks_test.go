package usecase_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

// MockVenue is an in-memory venue. Orders move Position immediately unless
// IgnoreReduceOnly is set, which simulates a close that never settles.
type MockVenue struct {
	mu sync.Mutex

	Position float64
	Price    float64
	Equity   float64

	PositionErr error
	PriceErr    error
	EquityErr   error
	SubmitErr   error
	// FailAfter makes SubmitOrder fail once this many orders were accepted (0 = never).
	FailAfter int

	IgnoreReduceOnly bool

	Orders       []domain.OrderInstruction
	PositionRead int
	Leverage     int
}

func (m *MockVenue) Name() string { return "mock" }

func (m *MockVenue) ReadPosition(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PositionRead++
	if m.PositionErr != nil {
		return 0, m.PositionErr
	}
	return m.Position, nil
}

func (m *MockVenue) ReadPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Price, m.PriceErr
}

func (m *MockVenue) ReadEquity(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Equity, m.EquityErr
}

func (m *MockVenue) SubmitOrder(ctx context.Context, symbol string, order domain.OrderInstruction) (*domain.OrderConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	if m.FailAfter > 0 && len(m.Orders) >= m.FailAfter {
		return nil, errors.New("venue rejected order")
	}
	m.Orders = append(m.Orders, order)
	if !(order.ReduceOnly && m.IgnoreReduceOnly) {
		if order.Side == domain.SideBuy {
			m.Position += order.Quantity
		} else {
			m.Position -= order.Quantity
		}
	}
	return &domain.OrderConfirmation{
		OrderID:     strconv.Itoa(len(m.Orders)),
		Symbol:      symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		ReduceOnly:  order.ReduceOnly,
		Status:      "FILLED",
		SubmittedAt: time.Now(),
	}, nil
}

func (m *MockVenue) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Leverage = leverage
	return nil
}

func (m *MockVenue) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// MockCandleSource returns a fixed series.
type MockCandleSource struct {
	Candles []domain.Candle
	Err     error
	Calls   int
}

func (m *MockCandleSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if limit > 0 && limit < len(m.Candles) {
		return m.Candles[len(m.Candles)-limit:], nil
	}
	return m.Candles, nil
}

// StaticFeatures always returns the same vector.
type StaticFeatures struct {
	Names  []string
	Values []float64
}

func (s *StaticFeatures) FeatureNames() []string { return s.Names }

func (s *StaticFeatures) Latest(candles []domain.Candle) (domain.FeatureVector, error) {
	if len(candles) == 0 {
		return domain.FeatureVector{}, domain.ErrInsufficientCandle
	}
	return domain.FeatureVector{
		Time:   candles[len(candles)-1].Time,
		Close:  candles[len(candles)-1].Close,
		Names:  s.Names,
		Values: s.Values,
	}, nil
}

type MockPolicy struct {
	mock.Mock
}

func (m *MockPolicy) Decide(ctx context.Context, observation []float64) (domain.RawAction, error) {
	args := m.Called(ctx, observation)
	return args.Get(0).(domain.RawAction), args.Error(1)
}

// FixedPolicy returns the same action on every call.
type FixedPolicy struct {
	Action domain.RawAction
}

func (p FixedPolicy) Decide(ctx context.Context, observation []float64) (domain.RawAction, error) {
	return p.Action, nil
}

type MockJournal struct {
	mu     sync.Mutex
	Cycles []*domain.CycleRecord
	Orders []*domain.Order
}

func (m *MockJournal) SaveCycle(ctx context.Context, c *domain.CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cycles = append(m.Cycles, c)
	return nil
}

func (m *MockJournal) ListCycles(ctx context.Context, limit int) ([]*domain.CycleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Cycles, nil
}

func (m *MockJournal) SaveOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders = append(m.Orders, o)
	return nil
}

func (m *MockJournal) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Orders, nil
}

type MockEpisodeRepo struct {
	mu       sync.Mutex
	Episodes []*domain.EpisodeSummary
}

func (m *MockEpisodeRepo) SaveEpisode(ctx context.Context, ep *domain.EpisodeSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Episodes = append(m.Episodes, ep)
	return nil
}

func (m *MockEpisodeRepo) ListEpisodes(ctx context.Context, limit int) ([]*domain.EpisodeSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Episodes, nil
}

type MockMetrics struct {
	mu       sync.Mutex
	Cycles   int
	Orders   int
	Errors   map[string]int
	Episodes int
}

func (m *MockMetrics) ObserveCycle(c *domain.CycleRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cycles++
}

func (m *MockMetrics) ObserveOrder(venue string, o domain.OrderInstruction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders++
}

func (m *MockMetrics) ObserveError(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Errors == nil {
		m.Errors = map[string]int{}
	}
	m.Errors[stage]++
}

func (m *MockMetrics) ObserveEpisode(ep *domain.EpisodeSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Episodes++
}

// trendCandles builds n bars with a steady drift and a small oscillation.
func trendCandles(n int, start, drift float64) []domain.Candle {
	out := make([]domain.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		wiggle := float64(i%7-3) * 0.1
		open := price
		price = price + drift + wiggle
		out[i] = domain.Candle{
			Time:   int64(1700000000 + i*3600),
			Open:   open,
			High:   maxf(open, price) + 0.5,
			Low:    minf(open, price) - 0.5,
			Close:  price,
			Volume: 10 + float64(i%5),
		}
	}
	return out
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (m *MockVenue) SetPositionErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PositionErr = err
}

func (m *MockVenue) SetPosition(pos float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Position = pos
}

func (m *MockVenue) SetEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Equity = equity
}

// featureRows wraps closes into feature rows with a fixed uptrend flag.
func featureRows(closes []float64) []domain.FeatureVector {
	rows := make([]domain.FeatureVector, len(closes))
	for i, c := range closes {
		rows[i] = domain.FeatureVector{
			Time:   int64(1700000000 + i*3600),
			Close:  c,
			Names:  testFeatureNames,
			Values: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 1},
		}
	}
	return rows
}

func observationOfLen(n int) interface{} {
	return mock.MatchedBy(func(obs []float64) bool { return len(obs) == n })
}

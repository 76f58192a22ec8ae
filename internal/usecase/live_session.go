package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultDecisionInterval = 60 * time.Second
	DefaultErrorBackoff     = 10 * time.Second
	DefaultCycleTimeout     = 30 * time.Second
)

type LiveSessionConfig struct {
	Symbol       string
	Leverage     int
	Interval     time.Duration
	ErrorBackoff time.Duration
	CycleTimeout time.Duration

	// ObservationLen is the vector length the policy was trained on; 0 skips the check.
	ObservationLen int
}

// LeverageSetter is implemented by venues that allow changing leverage per symbol.
type LeverageSetter interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// SessionStatus is a snapshot of the most recent cycle.
type SessionStatus struct {
	Running        bool                `json:"running"`
	Symbol         string              `json:"symbol"`
	Venue          string              `json:"venue"`
	Mode           domain.Mode         `json:"mode"`
	Cycles         int                 `json:"cycles"`
	Failures       int                 `json:"failures"`
	StartingEquity float64             `json:"starting_equity"`
	LastCycle      *domain.CycleRecord `json:"last_cycle,omitempty"`
	LastError      string              `json:"last_error,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// LiveSession runs the read, decide, reconcile, execute loop against one venue.
// Position, price and equity are read fresh at the start of every cycle; nothing
// from a previous cycle is trusted.
type LiveSession struct {
	cfg        LiveSessionConfig
	venue      domain.Venue
	market     *MarketService
	policy     domain.Policy
	resolver   ActionResolver
	reconciler *LiveReconciler
	executor   *TradeExecutor
	builder    *ObservationBuilder
	journal    domain.JournalRepository
	metrics    domain.MetricsRecorder
	trigger    <-chan struct{}
	logger     *zap.Logger

	mu             sync.RWMutex
	status         SessionStatus
	startingEquity float64
}

func NewLiveSession(
	cfg LiveSessionConfig,
	venue domain.Venue,
	market *MarketService,
	policy domain.Policy,
	resolver ActionResolver,
	reconciler *LiveReconciler,
	executor *TradeExecutor,
	journal domain.JournalRepository,
	metrics domain.MetricsRecorder,
	logger *zap.Logger,
) (*LiveSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidConfig)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDecisionInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}

	builder := NewObservationBuilder(market.FeatureNames(), logger)

	return &LiveSession{
		cfg:        cfg,
		venue:      venue,
		market:     market,
		policy:     policy,
		resolver:   resolver,
		reconciler: reconciler,
		executor:   executor,
		builder:    builder,
		journal:    journal,
		metrics:    metrics,
		logger:     logger,
		status: SessionStatus{
			Symbol: cfg.Symbol,
			Venue:  venue.Name(),
			Mode:   resolver.Mode(),
		},
	}, nil
}

// WithTrigger makes the session wake on trigger as well as on the interval timer.
// A closed bar on the kline stream is the usual source.
func (s *LiveSession) WithTrigger(trigger <-chan struct{}) *LiveSession {
	s.trigger = trigger
	return s
}

// ObservationLen is the length of the vector handed to the policy.
func (s *LiveSession) ObservationLen() int { return s.builder.Len() }

// Start checks the policy's observation length, sets leverage and records the
// starting equity. Failures here are fatal.
func (s *LiveSession) Start(ctx context.Context) error {
	if s.cfg.ObservationLen > 0 {
		if err := s.builder.CheckLen(s.cfg.ObservationLen); err != nil {
			return err
		}
	}
	if setter, ok := s.venue.(LeverageSetter); ok && s.cfg.Leverage > 0 {
		if err := setter.SetLeverage(ctx, s.cfg.Symbol, s.cfg.Leverage); err != nil {
			return fmt.Errorf("failed to set leverage: %w", err)
		}
		s.logger.Info("Leverage set", zap.String("symbol", s.cfg.Symbol), zap.Int("leverage", s.cfg.Leverage))
	}
	equity, err := s.venue.ReadEquity(ctx)
	if err != nil {
		return fmt.Errorf("failed to read starting equity: %w", err)
	}
	s.mu.Lock()
	s.startingEquity = equity
	s.status.StartingEquity = equity
	s.mu.Unlock()
	s.logger.Info("Live session started",
		zap.String("venue", s.venue.Name()),
		zap.String("symbol", s.cfg.Symbol),
		zap.String("mode", string(s.resolver.Mode())),
		zap.Float64("equity", equity),
		zap.Int("observation_len", s.builder.Len()))
	return nil
}

// Run loops until ctx is cancelled. A failed cycle is logged and retried after the
// error backoff; it never stops the loop.
func (s *LiveSession) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.setRunning(true)
	defer s.setRunning(false)

	for {
		cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
		_, err := s.RunCycle(cycleCtx)
		cancel()

		wait := s.cfg.Interval
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("Live cycle failed", zap.Error(err), zap.Duration("retry_in", s.cfg.ErrorBackoff))
			wait = s.cfg.ErrorBackoff
		}

		if !s.wait(ctx, wait, err == nil) {
			s.logger.Info("Live session stopped", zap.String("symbol", s.cfg.Symbol))
			return nil
		}
	}
}

// wait returns false once ctx is done. The trigger channel only shortens healthy waits.
func (s *LiveSession) wait(ctx context.Context, d time.Duration, useTrigger bool) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var trigger <-chan struct{}
	if useTrigger {
		trigger = s.trigger
	}
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-trigger:
		return true
	}
}

// RunCycle performs one full iteration and journals the outcome.
func (s *LiveSession) RunCycle(ctx context.Context) (*domain.CycleRecord, error) {
	rec := &domain.CycleRecord{
		ID:        uuid.New().String(),
		Symbol:    s.cfg.Symbol,
		CreatedAt: time.Now().UTC(),
	}

	orders, err := s.cycle(ctx, rec)
	if err != nil {
		rec.Error = err.Error()
	}
	s.record(ctx, rec, orders, err)
	return rec, err
}

func (s *LiveSession) cycle(ctx context.Context, rec *domain.CycleRecord) ([]*domain.OrderConfirmation, error) {
	state, err := s.readState(ctx)
	if err != nil {
		s.observeError("read_state")
		return nil, err
	}
	rec.Price = state.Price
	rec.Equity = state.Equity
	rec.LivePosition = state.Position

	features, err := s.market.LatestFeatures(ctx, s.cfg.Symbol)
	if err != nil {
		s.observeError("features")
		return nil, err
	}

	allocation := s.reconciler.Allocation(state)
	rec.Allocation = allocation

	obs, err := s.builder.Build(features.Values, allocation, s.sessionReturn(state.Equity))
	if err != nil {
		return nil, err
	}
	rec.Observation = obs

	raw, err := s.policy.Decide(ctx, obs)
	if err != nil {
		s.observeError("policy")
		return nil, fmt.Errorf("policy decide: %w", err)
	}

	decision := s.resolver.Resolve(raw, allocation, state.Price)
	rec.Kind = decision.Kind
	rec.Target = decision.TargetPosition
	rec.Executed = decision.Executed

	plan := s.reconciler.Reconcile(decision, state)
	if plan.Empty() {
		s.logger.Debug("Nothing to execute",
			zap.String("symbol", s.cfg.Symbol),
			zap.String("kind", string(decision.Kind)),
			zap.String("reason", plan.Reason))
		return nil, nil
	}

	s.logger.Info("Executing plan",
		zap.String("symbol", s.cfg.Symbol),
		zap.String("kind", string(decision.Kind)),
		zap.Float64("target", decision.TargetPosition),
		zap.Float64("live_position", state.Position),
		zap.Float64("delta", plan.Delta),
		zap.Int("legs", len(plan.Legs)),
		zap.Bool("reversal", plan.Reversal))

	confirmations, err := s.executor.Execute(ctx, plan)
	if err != nil {
		stage := "execute"
		if errors.Is(err, domain.ErrCloseNotConfirmed) {
			stage = "close_unsettled"
		}
		s.observeError(stage)
		return confirmations, fmt.Errorf("execute plan: %w", err)
	}
	return confirmations, nil
}

func (s *LiveSession) readState(ctx context.Context) (LiveState, error) {
	position, err := s.venue.ReadPosition(ctx, s.cfg.Symbol)
	if err != nil {
		return LiveState{}, fmt.Errorf("failed to read position: %w", err)
	}
	price, err := s.venue.ReadPrice(ctx, s.cfg.Symbol)
	if err != nil {
		return LiveState{}, fmt.Errorf("failed to read price: %w", err)
	}
	if price <= 0 {
		return LiveState{}, fmt.Errorf("%w: %s", domain.ErrNoPrice, s.cfg.Symbol)
	}
	equity, err := s.venue.ReadEquity(ctx)
	if err != nil {
		return LiveState{}, fmt.Errorf("failed to read equity: %w", err)
	}
	return LiveState{Position: position, Price: price, Equity: equity}, nil
}

func (s *LiveSession) sessionReturn(equity float64) float64 {
	s.mu.RLock()
	start := s.startingEquity
	s.mu.RUnlock()
	if start <= 0 {
		return 0
	}
	return (equity - start) / start
}

func (s *LiveSession) record(ctx context.Context, rec *domain.CycleRecord, confirmations []*domain.OrderConfirmation, cycleErr error) {
	rec.Orders = len(confirmations)

	s.mu.Lock()
	s.status.Cycles++
	if cycleErr != nil {
		s.status.Failures++
		s.status.LastError = cycleErr.Error()
	} else {
		s.status.LastError = ""
	}
	s.status.LastCycle = rec
	s.status.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveCycle(rec)
		for _, c := range confirmations {
			s.metrics.ObserveOrder(s.venue.Name(), domain.OrderInstruction{Side: c.Side, Quantity: c.Quantity, ReduceOnly: c.ReduceOnly})
		}
	}

	if s.journal == nil {
		return
	}
	// The cycle context may already be expired; journal with a fresh deadline.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.journal.SaveCycle(jctx, rec); err != nil {
		s.logger.Error("Failed to journal cycle", zap.Error(err))
	}
	for _, c := range confirmations {
		order := &domain.Order{
			CycleID:    rec.ID,
			OrderID:    c.OrderID,
			Exchange:   s.venue.Name(),
			Symbol:     c.Symbol,
			Side:       c.Side,
			Quantity:   c.Quantity,
			ReduceOnly: c.ReduceOnly,
			Price:      rec.Price,
			CreatedAt:  c.SubmittedAt,
		}
		if err := s.journal.SaveOrder(jctx, order); err != nil {
			s.logger.Error("Failed to journal order", zap.String("order_id", c.OrderID), zap.Error(err))
		}
	}
}

func (s *LiveSession) observeError(stage string) {
	if s.metrics != nil {
		s.metrics.ObserveError(stage)
	}
}

func (s *LiveSession) setRunning(running bool) {
	s.mu.Lock()
	s.status.Running = running
	s.mu.Unlock()
}

// Status returns a copy of the latest session snapshot.
func (s *LiveSession) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

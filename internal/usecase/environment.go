package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/crypto_trade_rl/internal/domain"
)

// EnvConfig holds the per-episode simulation knobs.
type EnvConfig struct {
	InitialBalance float64
	DrawdownFloor  float64
	ObservationLen int // declared by the policy; 0 skips the check
	Reward         RewardConfig
	Resolver       ResolverConfig
}

// StepResult is what a policy gets back from one environment step.
type StepResult struct {
	Observation []float64
	Reward      float64
	Terminated  bool
	Decision    domain.ActionDecision
	Sample      domain.RewardSample
	Info        StepInfo
}

// Environment replays a precomputed feature series. Each instance owns its own
// Ledger and RewardEngine; run one per worker.
//
// A decision made on bar k pays its fee immediately and earns from bar k+1 onward:
// the move from k to k+1 is marked against the position held before the decision.
type Environment struct {
	rows       []domain.FeatureVector
	trendIndex int

	resolver ActionResolver
	ledger   *Ledger
	reward   *RewardEngine
	builder  *ObservationBuilder

	initialBalance float64
}

func NewEnvironment(rows []domain.FeatureVector, featureNames []string, cfg EnvConfig, builder *ObservationBuilder) (*Environment, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: environment needs at least 2 rows, got %d", domain.ErrInsufficientCandle, len(rows))
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("%w: initial balance must be positive", domain.ErrInvalidConfig)
	}
	for i, r := range rows {
		if math.IsNaN(r.Close) || math.IsInf(r.Close, 0) || r.Close <= 0 {
			return nil, fmt.Errorf("%w: row %d close %v", domain.ErrNoPrice, i, r.Close)
		}
	}
	resolver, err := NewActionResolver(cfg.Resolver)
	if err != nil {
		return nil, err
	}
	if err := builder.CheckLen(len(featureNames) + AccountFeatureCount); err != nil {
		return nil, err
	}
	if cfg.ObservationLen > 0 {
		if err := builder.CheckLen(cfg.ObservationLen); err != nil {
			return nil, err
		}
	}

	trendIndex := -1
	for i, n := range featureNames {
		if n == domain.FeatureTrend {
			trendIndex = i
		}
	}

	return &Environment{
		rows:           rows,
		trendIndex:     trendIndex,
		resolver:       resolver,
		ledger:         NewLedger(cfg.DrawdownFloor),
		reward:         NewRewardEngine(cfg.Reward),
		builder:        builder,
		initialBalance: cfg.InitialBalance,
	}, nil
}

func (e *Environment) ObservationLen() int { return e.builder.Len() }

func (e *Environment) Mode() domain.Mode { return e.resolver.Mode() }

func (e *Environment) Ledger() *Ledger { return e.ledger }

// Reset starts a new episode and returns the first observation.
func (e *Environment) Reset() ([]float64, error) {
	e.ledger.Reset(e.initialBalance, len(e.rows))
	e.reward.Reset(e.initialBalance)
	return e.observe(0)
}

// Step resolves raw against the current position and advances one bar.
func (e *Environment) Step(raw domain.RawAction) (StepResult, error) {
	if !e.ledger.Started() {
		return StepResult{}, domain.ErrEpisodeNotStarted
	}
	k := e.ledger.StepIndex
	if k >= len(e.rows)-1 {
		return StepResult{}, fmt.Errorf("episode already finished at step %d", k)
	}
	current := e.rows[k]
	next := e.rows[k+1]

	decision := e.resolver.Resolve(raw, e.ledger.Position, current.Close)
	terminated, info := e.ledger.Advance(decision, next.Close, current.Close)

	reward, sample := e.reward.Calculate(info.NetWorth, next.Close, current.Close, info.PositionBefore, decision.Kind, e.trendFlag(current))
	if info.Breached {
		reward = e.reward.TerminalPenalty()
		sample.TotalReward = reward
	}

	obs, err := e.observe(e.ledger.StepIndex)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Observation: obs,
		Reward:      reward,
		Terminated:  terminated,
		Decision:    decision,
		Sample:      sample,
		Info:        info,
	}, nil
}

func (e *Environment) trendFlag(row domain.FeatureVector) float64 {
	if e.trendIndex < 0 || e.trendIndex >= len(row.Values) {
		return 1
	}
	return row.Values[e.trendIndex]
}

func (e *Environment) observe(index int) ([]float64, error) {
	if index >= len(e.rows) {
		index = len(e.rows) - 1
	}
	return e.builder.Build(e.rows[index].Values, e.ledger.Position, e.ledger.Return())
}

package usecase

import (
	"math"

	"github.com/vitos/crypto_trade_rl/internal/domain"
)

type RewardConfig struct {
	Scaling            float64
	DrawdownBeta       float64
	Clip               float64
	TerminalPenalty    float64
	CounterTrendFactor float64
}

func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		Scaling:            100,
		DrawdownBeta:       0.5,
		Clip:               10,
		TerminalPenalty:    -100,
		CounterTrendFactor: 0.5,
	}
}

// RewardEngine shapes a dense, bounded reward from net-worth transitions.
// Its only state is the high-water mark, reset together with the ledger.
type RewardEngine struct {
	cfg         RewardConfig
	maxNetWorth float64
}

func NewRewardEngine(cfg RewardConfig) *RewardEngine {
	if cfg.Clip <= 0 {
		cfg.Clip = 10
	}
	if cfg.CounterTrendFactor <= 0 {
		cfg.CounterTrendFactor = 0.5
	}
	return &RewardEngine{cfg: cfg}
}

func (e *RewardEngine) Reset(initialNetWorth float64) {
	e.maxNetWorth = initialNetWorth
}

func (e *RewardEngine) MaxNetWorth() float64 { return e.maxNetWorth }

func (e *RewardEngine) TerminalPenalty() float64 { return e.cfg.TerminalPenalty }

// Calculate scores one step. trendFlag 0 marks a regime unfavorable to longs.
func (e *RewardEngine) Calculate(netWorth, currentPrice, pastPrice, position float64, kind domain.ActionKind, trendFlag float64) (float64, domain.RewardSample) {
	if netWorth > e.maxNetWorth {
		e.maxNetWorth = netWorth
	}

	var stepReward float64
	if currentPrice > 0 && pastPrice > 0 {
		stepReward = position * math.Log(currentPrice/pastPrice)
	}

	var drawdown float64
	if e.maxNetWorth > 0 {
		drawdown = (e.maxNetWorth - netWorth) / e.maxNetWorth
	}
	penalty := e.cfg.DrawdownBeta * drawdown

	trendFactor := 1.0
	if trendFlag == 0 && position > 0 {
		trendFactor = e.cfg.CounterTrendFactor
	}

	raw := (stepReward - penalty) * trendFactor
	total := raw * e.cfg.Scaling
	if math.IsNaN(total) {
		total = -e.cfg.Clip
	}
	total = clip(total, -e.cfg.Clip, e.cfg.Clip)

	return total, domain.RewardSample{
		StepReward:      stepReward,
		DrawdownPenalty: penalty,
		TrendFactor:     trendFactor,
		MaxDrawdown:     drawdown,
		TotalReward:     total,
	}
}

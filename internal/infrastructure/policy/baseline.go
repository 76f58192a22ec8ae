package policy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/vitos/crypto_trade_rl/internal/domain"
	"github.com/vitos/crypto_trade_rl/internal/usecase"
)

// TrendPolicy follows the long-term trend flag. Long while price is above its slow
// average. Below it, short when momentum is stretched, otherwise stand aside.
//
// Observations are the feature vector followed by position and cumulative return.
type TrendPolicy struct {
	mode       domain.Mode
	trendIdx   int
	rsiIdx     int
	posIdx     int
	allocation float64
	rsiShort   float64
}

func NewTrendPolicy(featureNames []string, mode domain.Mode, allocation float64) (*TrendPolicy, error) {
	trendIdx, rsiIdx := -1, -1
	for i, n := range featureNames {
		switch n {
		case domain.FeatureTrend:
			trendIdx = i
		case domain.FeatureRSI:
			rsiIdx = i
		}
	}
	if trendIdx < 0 {
		return nil, fmt.Errorf("%w: trend policy needs feature %s", domain.ErrInvalidConfig, domain.FeatureTrend)
	}
	if allocation <= 0 || allocation > 1 {
		allocation = 1
	}
	return &TrendPolicy{
		mode:       mode,
		trendIdx:   trendIdx,
		rsiIdx:     rsiIdx,
		posIdx:     len(featureNames),
		allocation: allocation,
		rsiShort:   0.2, // RSI above 60
	}, nil
}

func (p *TrendPolicy) Decide(_ context.Context, obs []float64) (domain.RawAction, error) {
	if len(obs) <= p.posIdx {
		return domain.RawAction{}, fmt.Errorf("%w: got %d values", domain.ErrObservationLength, len(obs))
	}
	uptrend := obs[p.trendIdx] > 0.5
	stretched := p.rsiIdx >= 0 && obs[p.rsiIdx] > p.rsiShort
	position := obs[p.posIdx]

	if p.mode == domain.ModeContinuous {
		target := 0.0
		switch {
		case uptrend:
			target = p.allocation
		case stretched:
			target = -p.allocation
		}
		return domain.RawAction{Vector: []float64{target}}, nil
	}

	switch {
	case uptrend && position <= 0:
		return domain.RawAction{Index: usecase.DiscreteLong}, nil
	case !uptrend && stretched && position >= 0:
		return domain.RawAction{Index: usecase.DiscreteShort}, nil
	case !uptrend && !stretched && position > 0:
		return domain.RawAction{Index: usecase.DiscreteClose}, nil
	}
	return domain.RawAction{Index: usecase.DiscreteWait}, nil
}

// RandomPolicy samples uniformly from the action space. Useful as an exploration
// baseline and for smoke-testing the simulator.
type RandomPolicy struct {
	mode domain.Mode
	mu   sync.Mutex
	rng  *rand.Rand
}

func NewRandomPolicy(mode domain.Mode, seed int64) *RandomPolicy {
	return &RandomPolicy{mode: mode, rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPolicy) Decide(_ context.Context, _ []float64) (domain.RawAction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == domain.ModeContinuous {
		return domain.RawAction{Vector: []float64{p.rng.Float64()*2 - 1}}, nil
	}
	return domain.RawAction{Index: p.rng.Intn(usecase.DiscreteActionCount)}, nil
}

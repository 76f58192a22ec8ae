package usecase_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"github.com/vitos/crypto_trade_rl/internal/usecase"
)

const testFee = 0.0004

func TestDiscreteResolver_FeeGrid(t *testing.T) {
	r := usecase.NewDiscreteResolver(testFee)

	tests := []struct {
		action   int
		position float64
		target   float64
		fees     float64 // multiples of the fee rate
		executed bool
		kind     domain.ActionKind
	}{
		{usecase.DiscreteWait, -1, -1, 0, false, domain.ActionWait},
		{usecase.DiscreteWait, 0, 0, 0, false, domain.ActionWait},
		{usecase.DiscreteWait, 1, 1, 0, false, domain.ActionWait},

		{usecase.DiscreteLong, -1, 1, 2, true, domain.ActionLong},
		{usecase.DiscreteLong, 0, 1, 1, true, domain.ActionLong},
		{usecase.DiscreteLong, 1, 1, 0, false, domain.ActionLong},

		{usecase.DiscreteShort, -1, -1, 0, false, domain.ActionShort},
		{usecase.DiscreteShort, 0, -1, 1, true, domain.ActionShort},
		{usecase.DiscreteShort, 1, -1, 2, true, domain.ActionShort},

		{usecase.DiscreteClose, -1, 0, 1, true, domain.ActionClose},
		{usecase.DiscreteClose, 0, 0, 0, false, domain.ActionClose},
		{usecase.DiscreteClose, 1, 0, 1, true, domain.ActionClose},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s_from_%+.0f", r.KindOf(tt.action), tt.position)
		t.Run(name, func(t *testing.T) {
			d := r.Resolve(domain.RawAction{Index: tt.action}, tt.position, 100)
			assert.Equal(t, tt.target, d.TargetPosition)
			assert.InDelta(t, tt.fees*testFee, d.Fee, 1e-15)
			assert.Equal(t, tt.executed, d.Executed)
			assert.Equal(t, tt.kind, d.Kind)
			if !d.Executed {
				assert.Zero(t, d.Fee, "no-op must not charge a fee")
			}
		})
	}
}

func TestDiscreteResolver_InvalidIndexIsWait(t *testing.T) {
	r := usecase.NewDiscreteResolver(testFee)
	for _, idx := range []int{-1, 4, 99} {
		d := r.Resolve(domain.RawAction{Index: idx}, 1, 100)
		assert.Equal(t, domain.ActionWait, d.Kind)
		assert.False(t, d.Executed)
		assert.Zero(t, d.Fee)
		assert.Equal(t, 1.0, d.TargetPosition)
	}
}

func TestContinuousResolver(t *testing.T) {
	r := usecase.NewContinuousResolver(testFee, 0.1, 0.1)

	tests := []struct {
		name     string
		current  float64
		action   []float64
		target   float64
		fee      float64
		executed bool
		kind     domain.ActionKind
	}{
		{"below threshold snaps flat and holds", 0, []float64{0.05}, 0, 0, false, domain.ActionHold},
		{"open half long", 0, []float64{0.5}, 0.5, 0.5 * testFee, true, domain.ActionBuy},
		{"clip above one", 0, []float64{3}, 1, testFee, true, domain.ActionBuy},
		{"reduce long", 0.8, []float64{0.3}, 0.3, 0.5 * testFee, true, domain.ActionSell},
		{"flip short", 0.5, []float64{-0.5}, -0.5, 1.0 * testFee, true, domain.ActionSell},
		{"small rebalance held", 0.5, []float64{0.55}, 0.5, 0, false, domain.ActionHold},
		{"threshold closes held position", 0.5, []float64{0.05}, 0, 0.5 * testFee, true, domain.ActionSell},
		{"wrong length", 0.2, []float64{0.5, 0.5}, 0.2, 0, false, domain.ActionHold},
		{"empty", 0.2, nil, 0.2, 0, false, domain.ActionHold},
		{"nan", 0.2, []float64{math.NaN()}, 0.2, 0, false, domain.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Resolve(domain.RawAction{Vector: tt.action}, tt.current, 100)
			assert.InDelta(t, tt.target, d.TargetPosition, 1e-12)
			assert.InDelta(t, tt.fee, d.Fee, 1e-15)
			assert.Equal(t, tt.executed, d.Executed)
			assert.Equal(t, tt.kind, d.Kind)
		})
	}
}

func TestContinuousResolver_TargetAlwaysBounded(t *testing.T) {
	r := usecase.NewContinuousResolver(testFee, 0.1, 0.1)
	for a := -5.0; a <= 5.0; a += 0.25 {
		d := r.Resolve(domain.RawAction{Vector: []float64{a}}, 0, 100)
		assert.LessOrEqual(t, math.Abs(d.TargetPosition), 1.0)
	}
}

func TestNewActionResolver(t *testing.T) {
	r, err := usecase.NewActionResolver(usecase.ResolverConfig{Mode: domain.ModeDiscrete, FeeRate: testFee})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDiscrete, r.Mode())

	r, err = usecase.NewActionResolver(usecase.ResolverConfig{Mode: domain.ModeContinuous, FeeRate: testFee, Threshold: 0.1, RebalanceDeadband: 0.1})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeContinuous, r.Mode())

	_, err = usecase.NewActionResolver(usecase.ResolverConfig{Mode: "hybrid"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = usecase.NewActionResolver(usecase.ResolverConfig{Mode: domain.ModeDiscrete, FeeRate: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

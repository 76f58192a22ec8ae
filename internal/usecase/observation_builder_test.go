package usecase_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"github.com/vitos/crypto_trade_rl/internal/usecase"
)

var testFeatureNames = []string{"norm_close", "rsi14", "volatility", "macd", "sma_dist", "i_trend"}

func TestObservationBuilder_Layout(t *testing.T) {
	b := usecase.NewObservationBuilder(testFeatureNames, nil)
	require.Equal(t, len(testFeatureNames)+2, b.Len())

	obs, err := b.Build([]float64{0.1, 0.5, 0.02, -0.3, 0.01, 1}, -1, 0.25)
	require.NoError(t, err)
	assert.Len(t, obs, b.Len())
	assert.Equal(t, []float64{0.1, 0.5, 0.02, -0.3, 0.01, 1, -1, 0.25}, obs)
}

func TestObservationBuilder_NonFiniteReplaced(t *testing.T) {
	b := usecase.NewObservationBuilder(testFeatureNames, nil)

	obs, err := b.Build([]float64{math.NaN(), math.Inf(1), 0.02, math.Inf(-1), 0.01, 1}, 0.5, math.NaN())
	require.NoError(t, err)
	for i, v := range obs {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "index %d", i)
	}
	assert.Equal(t, 0.0, obs[0])
	assert.Equal(t, 0.0, obs[1])
	assert.Equal(t, 0.02, obs[2])
	assert.Equal(t, 0.5, obs[6])
	assert.Equal(t, 0.0, obs[7])
}

func TestObservationBuilder_LengthMismatch(t *testing.T) {
	b := usecase.NewObservationBuilder(testFeatureNames, nil)

	_, err := b.Build([]float64{1, 2, 3}, 0, 0)
	assert.ErrorIs(t, err, domain.ErrObservationLength)

	assert.NoError(t, b.CheckLen(8))
	assert.ErrorIs(t, b.CheckLen(7), domain.ErrObservationLength)
}

func TestObservationBuilder_CopiesNames(t *testing.T) {
	names := []string{"a", "b"}
	b := usecase.NewObservationBuilder(names, nil)
	names = append(names, "c")
	assert.Equal(t, 4, b.Len())
}

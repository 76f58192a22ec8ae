package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/crypto_trade_rl/internal/domain"
	"go.uber.org/zap"
)

// AccountFeatureCount is the number of account scalars appended after the market features.
const AccountFeatureCount = 2

// ObservationBuilder assembles the fixed-length vector a policy sees:
// market features in declared order, then position and return on initial balance.
type ObservationBuilder struct {
	featureNames []string
	logger       *zap.Logger
}

func NewObservationBuilder(featureNames []string, logger *zap.Logger) *ObservationBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return &ObservationBuilder{featureNames: names, logger: logger}
}

// Len is the declared observation length.
func (b *ObservationBuilder) Len() int {
	return len(b.featureNames) + AccountFeatureCount
}

// CheckLen verifies a consumer's declared observation length at startup.
func (b *ObservationBuilder) CheckLen(declared int) error {
	if declared != b.Len() {
		return fmt.Errorf("%w: declared %d, builder produces %d", domain.ErrObservationLength, declared, b.Len())
	}
	return nil
}

// Build returns features ++ [position, cumulativeReturn]. Non-finite values are
// replaced by 0 and logged.
func (b *ObservationBuilder) Build(features []float64, position, cumulativeReturn float64) ([]float64, error) {
	if len(features) != len(b.featureNames) {
		return nil, fmt.Errorf("%w: got %d features, want %d", domain.ErrObservationLength, len(features), len(b.featureNames))
	}

	obs := make([]float64, 0, b.Len())
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.logger.Warn("Feature unavailable, using neutral value",
				zap.String("feature", b.featureNames[i]),
				zap.Float64("value", v))
			v = 0
		}
		obs = append(obs, v)
	}
	obs = append(obs, finiteOrZero(position), finiteOrZero(cumulativeReturn))
	return obs, nil
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

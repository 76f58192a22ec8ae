package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/crypto_trade_rl/internal/domain"
)

// MarketService fetches a fresh bar window and turns it into features.
// Nothing is cached between calls.
type MarketService struct {
	candles  domain.CandleSource
	features domain.FeatureSource
	interval string
	window   int
}

func NewMarketService(candles domain.CandleSource, features domain.FeatureSource, interval string, window int) *MarketService {
	return &MarketService{
		candles:  candles,
		features: features,
		interval: interval,
		window:   window,
	}
}

func (s *MarketService) FeatureNames() []string {
	return s.features.FeatureNames()
}

// LatestFeatures returns the features of the newest bar for symbol.
func (s *MarketService) LatestFeatures(ctx context.Context, symbol string) (domain.FeatureVector, error) {
	candles, err := s.candles.GetCandles(ctx, symbol, s.interval, s.window)
	if err != nil {
		return domain.FeatureVector{}, fmt.Errorf("failed to get candles: %w", err)
	}
	fv, err := s.features.Latest(candles)
	if err != nil {
		return domain.FeatureVector{}, fmt.Errorf("failed to compute features: %w", err)
	}
	return fv, nil
}

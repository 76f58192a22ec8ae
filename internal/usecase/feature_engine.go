package usecase

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"go.uber.org/zap"
)

// DefaultFeatureNames is the feature order the policy is trained against.
var DefaultFeatureNames = []string{
	domain.FeatureNormClose,
	domain.FeatureRSI,
	domain.FeatureVolatility,
	domain.FeatureMACD,
	domain.FeatureSMADist,
	domain.FeatureTrend,
}

const (
	zScoreWindow = 50
	rsiPeriod    = 14
	atrPeriod    = 14
	smaFast      = 50
	smaSlow      = 200
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	zScoreEps    = 1e-8
)

// FeatureEngine computes normalized technical features from OHLCV bars.
type FeatureEngine struct {
	logger *zap.Logger
}

func NewFeatureEngine(logger *zap.Logger) *FeatureEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureEngine{logger: logger}
}

func (e *FeatureEngine) FeatureNames() []string {
	names := make([]string, len(DefaultFeatureNames))
	copy(names, DefaultFeatureNames)
	return names
}

// WarmUp is the number of bars consumed before the first complete feature row.
func (e *FeatureEngine) WarmUp() int {
	return smaSlow - 1
}

// Latest returns the features of the most recent bar.
func (e *FeatureEngine) Latest(candles []domain.Candle) (domain.FeatureVector, error) {
	rows, err := e.Series(candles)
	if err != nil {
		return domain.FeatureVector{}, err
	}
	return rows[len(rows)-1], nil
}

// Series returns one feature row per bar after the warm-up period, oldest first.
func (e *FeatureEngine) Series(candles []domain.Candle) ([]domain.FeatureVector, error) {
	n := len(candles)
	if n <= e.WarmUp() {
		return nil, fmt.Errorf("%w: have %d, need more than %d", domain.ErrInsufficientCandle, n, e.WarmUp())
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	_, _, macdHist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	atr := talib.Atr(highs, lows, closes, atrPeriod)
	sma50 := talib.Sma(closes, smaFast)
	sma200 := talib.Sma(closes, smaSlow)

	atrPct := make([]float64, n)
	for i := range atr {
		if closes[i] != 0 {
			atrPct[i] = atr[i] / closes[i]
		}
	}

	normClose := rollingZScore(closes, 0, zScoreWindow)
	volatility := rollingZScore(atrPct, atrPeriod, zScoreWindow)
	macdZ := rollingZScore(macdHist, macdSlow+macdSignal-2, zScoreWindow)

	names := e.FeatureNames()
	rows := make([]domain.FeatureVector, 0, n-e.WarmUp())
	sanitized := 0
	for i := e.WarmUp(); i < n; i++ {
		smaDist := math.NaN()
		if sma50[i] != 0 {
			smaDist = (closes[i] - sma50[i]) / sma50[i]
		}
		trend := 0.0
		if closes[i] > sma200[i] {
			trend = 1.0
		}
		values := []float64{
			normClose[i],
			rsi[i]/50.0 - 1.0,
			volatility[i],
			macdZ[i],
			smaDist,
			trend,
		}
		for j, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				values[j] = 0
				sanitized++
			}
		}
		rows = append(rows, domain.FeatureVector{
			Time:   candles[i].Time,
			Close:  closes[i],
			Names:  names,
			Values: values,
		})
	}
	if sanitized > 0 {
		e.logger.Warn("Sanitized non-finite feature values", zap.Int("count", sanitized))
	}
	return rows, nil
}

// rollingZScore standardizes src[start:] against its trailing window mean and sample
// standard deviation. Positions without a full window are NaN.
func rollingZScore(src []float64, start, window int) []float64 {
	out := make([]float64, len(src))
	for i := range out {
		out[i] = math.NaN()
	}
	if start < 0 || len(src)-start < window {
		return out
	}
	sub := src[start:]
	mean := talib.Sma(sub, window)
	// talib divides by n; models are trained on the n-1 estimator.
	std := talib.StdDev(sub, window, math.Sqrt(float64(window)/float64(window-1)))
	for i := window - 1; i < len(sub); i++ {
		out[start+i] = (sub[i] - mean[i]) / (std[i] + zScoreEps)
	}
	return out
}

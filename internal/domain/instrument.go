package domain

type Instrument struct {
	Symbol            string `json:"symbol"`
	QuantityPrecision int    `json:"quantity_precision"`
	Status            string `json:"status"`
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Feature names produced by the technical feature engine.
const (
	FeatureNormClose  = "norm_close"
	FeatureRSI        = "rsi14"
	FeatureVolatility = "volatility"
	FeatureMACD       = "macd"
	FeatureSMADist    = "sma_dist"
	FeatureTrend      = "i_trend"
)

// FeatureVector holds named, normalized features for a single bar.
type FeatureVector struct {
	Time   int64     `json:"time"`
	Close  float64   `json:"close"`
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

package domain

import "context"

// Venue defines the interface for reading account state from and sending orders to
// a perpetual futures exchange.
type Venue interface {
	Name() string
	// ReadPosition returns the signed position size (positive long, negative short).
	ReadPosition(ctx context.Context, symbol string) (float64, error)
	ReadPrice(ctx context.Context, symbol string) (float64, error)
	ReadEquity(ctx context.Context) (float64, error)
	SubmitOrder(ctx context.Context, symbol string, order OrderInstruction) (*OrderConfirmation, error)
}

// CandleSource provides recent OHLCV bars, oldest first.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// FeatureSource turns a window of bars into the features of the most recent bar.
type FeatureSource interface {
	FeatureNames() []string
	Latest(candles []Candle) (FeatureVector, error)
}

// Policy maps an observation to a raw action.
type Policy interface {
	Decide(ctx context.Context, observation []float64) (RawAction, error)
}

// EpisodeRepository stores simulation episode summaries.
type EpisodeRepository interface {
	SaveEpisode(ctx context.Context, ep *EpisodeSummary) error
	ListEpisodes(ctx context.Context, limit int) ([]*EpisodeSummary, error)
}

// JournalRepository stores what the live session saw and did.
type JournalRepository interface {
	SaveCycle(ctx context.Context, cycle *CycleRecord) error
	ListCycles(ctx context.Context, limit int) ([]*CycleRecord, error)
	SaveOrder(ctx context.Context, order *Order) error
	ListOrders(ctx context.Context, limit int) ([]*Order, error)
}

// MetricsRecorder receives counters and gauges from the live session and simulator.
type MetricsRecorder interface {
	ObserveCycle(cycle *CycleRecord)
	ObserveOrder(venue string, order OrderInstruction)
	ObserveError(stage string)
	ObserveEpisode(ep *EpisodeSummary)
}

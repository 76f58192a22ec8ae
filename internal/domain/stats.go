package domain

import "time"

// RewardSample is the per-step breakdown of the shaped reward.
type RewardSample struct {
	StepReward      float64 `json:"step_reward"`
	DrawdownPenalty float64 `json:"drawdown_penalty"`
	TrendFactor     float64 `json:"trend_factor"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	TotalReward     float64 `json:"total_reward"`
}

// EpisodeSummary is the result of one simulated episode.
type EpisodeSummary struct {
	ID             string    `json:"id"`
	Worker         int       `json:"worker"`
	Mode           Mode      `json:"mode"`
	Steps          int       `json:"steps"`
	Trades         int       `json:"trades"`
	InitialBalance float64   `json:"initial_balance"`
	FinalNetWorth  float64   `json:"final_net_worth"`
	MaxNetWorth    float64   `json:"max_net_worth"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	TotalReward    float64   `json:"total_reward"`
	FeesPaid       float64   `json:"fees_paid"`
	Breached       bool      `json:"breached"`
	CreatedAt      time.Time `json:"created_at"`
}

// CycleRecord is a snapshot of one live control-loop iteration.
type CycleRecord struct {
	ID           string     `json:"id"`
	Symbol       string     `json:"symbol"`
	Price        float64    `json:"price"`
	Equity       float64    `json:"equity"`
	LivePosition float64    `json:"live_position"`
	Allocation   float64    `json:"allocation"`
	Observation  []float64  `json:"observation"`
	Kind         ActionKind `json:"kind"`
	Target       float64    `json:"target"`
	Executed     bool       `json:"executed"`
	Orders       int        `json:"orders"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

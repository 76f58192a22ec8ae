package domain

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ActionKind labels what a resolved action did (or asked for).
type ActionKind string

const (
	ActionWait  ActionKind = "WAIT"
	ActionLong  ActionKind = "LONG"
	ActionShort ActionKind = "SHORT"
	ActionClose ActionKind = "CLOSE"
	ActionBuy   ActionKind = "BUY"
	ActionSell  ActionKind = "SELL"
	ActionHold  ActionKind = "HOLD"
)

// Mode selects the action space of the policy.
type Mode string

const (
	ModeDiscrete   Mode = "discrete"
	ModeContinuous Mode = "continuous"
)

// Discrete positions.
const (
	PositionShort = -1.0
	PositionFlat  = 0.0
	PositionLong  = 1.0
)

// RawAction is what a policy emits. Discrete policies fill Index, continuous
// policies fill Vector (length 1).
type RawAction struct {
	Index  int       `json:"index"`
	Vector []float64 `json:"vector,omitempty"`
}

// ActionDecision is the outcome of resolving a raw action against the current position.
// Fee is a rate applied to net worth, not an absolute amount.
type ActionDecision struct {
	TargetPosition float64    `json:"target_position"`
	Fee            float64    `json:"fee"`
	Executed       bool       `json:"executed"`
	Kind           ActionKind `json:"kind"`
}

// OrderInstruction is one leg sent to the venue.
type OrderInstruction struct {
	Side       Side    `json:"side"`
	Quantity   float64 `json:"quantity"`
	ReduceOnly bool    `json:"reduce_only"`
}

// OrderConfirmation is what the venue returns for an accepted order.
type OrderConfirmation struct {
	OrderID     string
	Symbol      string
	Side        Side
	Quantity    float64
	ReduceOnly  bool
	Status      string
	SubmittedAt time.Time
}

// Order is a journaled order submitted by the live session.
type Order struct {
	ID         int64     `json:"id"`
	CycleID    string    `json:"cycle_id"`
	OrderID    string    `json:"order_id"`
	Exchange   string    `json:"exchange"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	ReduceOnly bool      `json:"reduce_only"`
	Price      float64   `json:"price"`
	CreatedAt  time.Time `json:"created_at"`
}

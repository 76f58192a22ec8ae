package usecase

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

type ReconcilerConfig struct {
	Mode            domain.Mode
	FixedQuantity   float64 // discrete mode order size
	Leverage        int
	SafetyMargin    float64 // fraction of the theoretical max quantity we allow
	MaxCapitalUsage float64
	DustFloorPct    float64 // fraction of max tradable quantity below which deltas are ignored
	QtyPrecision    int32
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Mode:            domain.ModeDiscrete,
		FixedQuantity:   0.002,
		Leverage:        20,
		SafetyMargin:    0.95,
		MaxCapitalUsage: 0.5,
		DustFloorPct:    0.001,
		QtyPrecision:    3,
	}
}

// LiveState is what was read from the venue at the start of the cycle.
type LiveState struct {
	Position float64 // signed quantity
	Price    float64
	Equity   float64
}

// ReconcilePlan lists the order legs to submit, in order. When Reversal is set the
// first leg is a reduce-only close that must settle before the second is sent.
type ReconcilePlan struct {
	Legs        []domain.OrderInstruction
	Reversal    bool
	MaxTradable float64
	TargetQty   float64
	Delta       float64
	Reason      string
}

func (p ReconcilePlan) Empty() bool { return len(p.Legs) == 0 }

// LiveReconciler turns a resolved decision into venue orders against the live position.
type LiveReconciler struct {
	cfg ReconcilerConfig
}

func NewLiveReconciler(cfg ReconcilerConfig) (*LiveReconciler, error) {
	if cfg.QtyPrecision < 0 {
		return nil, fmt.Errorf("%w: quantity precision %d", domain.ErrInvalidConfig, cfg.QtyPrecision)
	}
	if cfg.Leverage <= 0 {
		return nil, fmt.Errorf("%w: leverage must be positive", domain.ErrInvalidConfig)
	}
	if cfg.SafetyMargin <= 0 || cfg.SafetyMargin > 1 {
		return nil, fmt.Errorf("%w: safety margin %f outside (0, 1]", domain.ErrInvalidConfig, cfg.SafetyMargin)
	}
	r := &LiveReconciler{cfg: cfg}
	if cfg.Mode == domain.ModeDiscrete && r.roundQty(cfg.FixedQuantity, false) <= 0 {
		return nil, fmt.Errorf("%w: fixed quantity %f rounds to zero at precision %d",
			domain.ErrInvalidConfig, cfg.FixedQuantity, cfg.QtyPrecision)
	}
	return r, nil
}

// MaxTradableQty is the largest quantity the equity can carry at the configured leverage,
// kept below the theoretical max by the safety margin.
func (r *LiveReconciler) MaxTradableQty(equity, price float64) float64 {
	if equity <= 0 || price <= 0 {
		return 0
	}
	return equity * float64(r.cfg.Leverage) * r.cfg.SafetyMargin / price
}

// Allocation expresses a live quantity as a fraction of the capital the policy may use,
// clipped to [-1, 1]. Discrete mode reports the sign only.
func (r *LiveReconciler) Allocation(state LiveState) float64 {
	if r.cfg.Mode == domain.ModeDiscrete {
		if r.roundQty(math.Abs(state.Position), true) == 0 {
			return domain.PositionFlat
		}
		return snapDiscrete(state.Position)
	}
	capacity := r.MaxTradableQty(state.Equity, state.Price) * r.cfg.MaxCapitalUsage
	if capacity <= 0 {
		return 0
	}
	return clip(state.Position/capacity, -1, 1)
}

// Reconcile plans the orders that move the live position toward the decision's target.
func (r *LiveReconciler) Reconcile(decision domain.ActionDecision, state LiveState) ReconcilePlan {
	if !decision.Executed {
		return ReconcilePlan{Reason: "no change requested"}
	}
	if r.cfg.Mode == domain.ModeDiscrete {
		return r.reconcileDiscrete(decision, state)
	}
	return r.reconcileContinuous(decision, state)
}

func (r *LiveReconciler) reconcileDiscrete(decision domain.ActionDecision, state LiveState) ReconcilePlan {
	var plan ReconcilePlan
	live := state.Position
	if r.roundQty(math.Abs(live), true) == 0 {
		live = 0
	}

	switch decision.Kind {
	case domain.ActionLong:
		if live > 0 {
			plan.Reason = "already long"
			return plan
		}
		if live < 0 {
			plan.add(r.closeLeg(live))
		}
		plan.add(r.leg(domain.SideBuy, r.cfg.FixedQuantity, false))
	case domain.ActionShort:
		if live < 0 {
			plan.Reason = "already short"
			return plan
		}
		if live > 0 {
			plan.add(r.closeLeg(live))
		}
		plan.add(r.leg(domain.SideSell, r.cfg.FixedQuantity, false))
	case domain.ActionClose:
		if live == 0 {
			plan.Reason = "already flat"
			return plan
		}
		plan.add(r.closeLeg(live))
	default:
		plan.Reason = "wait"
		return plan
	}

	plan.Reversal = len(plan.Legs) == 2
	return plan
}

func (r *LiveReconciler) reconcileContinuous(decision domain.ActionDecision, state LiveState) ReconcilePlan {
	plan := ReconcilePlan{MaxTradable: r.MaxTradableQty(state.Equity, state.Price)}
	if plan.MaxTradable <= 0 {
		plan.Reason = "no tradable capacity"
		return plan
	}

	live := state.Position
	plan.TargetQty = decision.TargetPosition * plan.MaxTradable * r.cfg.MaxCapitalUsage
	plan.Delta = plan.TargetQty - live

	if math.Abs(plan.Delta) < plan.MaxTradable*r.cfg.DustFloorPct {
		plan.Reason = "delta below dust floor"
		return plan
	}

	crosses := live != 0 && plan.TargetQty != 0 && math.Signbit(live) != math.Signbit(plan.TargetQty)
	if crosses {
		// Never flip in one order: flatten first, then open the new side.
		plan.add(r.closeLeg(live))
		side := domain.SideBuy
		if plan.TargetQty < 0 {
			side = domain.SideSell
		}
		plan.add(r.leg(side, math.Abs(plan.TargetQty), false))
		plan.Reversal = len(plan.Legs) == 2
		return plan
	}

	side := domain.SideBuy
	if plan.Delta < 0 {
		side = domain.SideSell
	}
	reducing := live != 0 && math.Abs(plan.TargetQty) < math.Abs(live)
	plan.add(r.leg(side, math.Abs(plan.Delta), reducing))
	if plan.Empty() {
		plan.Reason = "rounds to zero"
	}
	return plan
}

func (r *LiveReconciler) closeLeg(live float64) (domain.OrderInstruction, bool) {
	side := domain.SideSell
	if live < 0 {
		side = domain.SideBuy
	}
	return r.leg(side, math.Abs(live), true)
}

func (r *LiveReconciler) leg(side domain.Side, qty float64, reduceOnly bool) (domain.OrderInstruction, bool) {
	q := r.roundQty(qty, reduceOnly)
	if q <= 0 {
		return domain.OrderInstruction{}, false
	}
	return domain.OrderInstruction{Side: side, Quantity: q, ReduceOnly: reduceOnly}, true
}

func (p *ReconcilePlan) add(leg domain.OrderInstruction, ok bool) {
	if ok {
		p.Legs = append(p.Legs, leg)
	}
}

// roundQty snaps a quantity to the venue precision. Closing legs round to nearest so a
// full position is closed; opening legs truncate so they never exceed the capital bound.
func (r *LiveReconciler) roundQty(qty float64, closing bool) float64 {
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	d := decimal.NewFromFloat(qty)
	if closing {
		d = d.Round(r.cfg.QtyPrecision)
	} else {
		d = d.Truncate(r.cfg.QtyPrecision)
	}
	f, _ := d.Float64()
	return f
}

// MinQuantity is the smallest quantity the venue precision can express.
func (r *LiveReconciler) MinQuantity() float64 {
	f, _ := decimal.New(1, -r.cfg.QtyPrecision).Float64()
	return f
}

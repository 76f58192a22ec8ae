package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/crypto_trade_rl/internal/domain"
)

// ActionResolver maps a raw policy action onto a target position and fee rate.
type ActionResolver interface {
	Mode() domain.Mode
	Resolve(raw domain.RawAction, currentPosition, currentPrice float64) domain.ActionDecision
}

// Discrete action indices.
const (
	DiscreteWait = iota
	DiscreteLong
	DiscreteShort
	DiscreteClose
	DiscreteActionCount
)

var discreteKinds = map[int]domain.ActionKind{
	DiscreteWait:  domain.ActionWait,
	DiscreteLong:  domain.ActionLong,
	DiscreteShort: domain.ActionShort,
	DiscreteClose: domain.ActionClose,
}

type DiscreteResolver struct {
	feeRate float64
}

func NewDiscreteResolver(feeRate float64) *DiscreteResolver {
	return &DiscreteResolver{feeRate: feeRate}
}

func (r *DiscreteResolver) Mode() domain.Mode { return domain.ModeDiscrete }

// KindOf returns the label for a discrete index. Unknown indices read as WAIT.
func (r *DiscreteResolver) KindOf(index int) domain.ActionKind {
	if k, ok := discreteKinds[index]; ok {
		return k
	}
	return domain.ActionWait
}

func (r *DiscreteResolver) Resolve(raw domain.RawAction, currentPosition, currentPrice float64) domain.ActionDecision {
	current := snapDiscrete(currentPosition)
	noop := domain.ActionDecision{TargetPosition: current, Kind: r.KindOf(raw.Index)}

	switch raw.Index {
	case DiscreteLong:
		return r.enter(current, domain.PositionLong, domain.ActionLong, noop)
	case DiscreteShort:
		return r.enter(current, domain.PositionShort, domain.ActionShort, noop)
	case DiscreteClose:
		if current == domain.PositionFlat {
			return noop
		}
		return domain.ActionDecision{
			TargetPosition: domain.PositionFlat,
			Fee:            r.feeRate,
			Executed:       true,
			Kind:           domain.ActionClose,
		}
	default:
		// WAIT and anything outside the action space.
		return domain.ActionDecision{TargetPosition: current, Kind: domain.ActionWait}
	}
}

func (r *DiscreteResolver) enter(current, target float64, kind domain.ActionKind, noop domain.ActionDecision) domain.ActionDecision {
	switch current {
	case target:
		return noop
	case domain.PositionFlat:
		return domain.ActionDecision{TargetPosition: target, Fee: r.feeRate, Executed: true, Kind: kind}
	default:
		// Reversal: close the opposite side and open the new one.
		return domain.ActionDecision{TargetPosition: target, Fee: 2 * r.feeRate, Executed: true, Kind: kind}
	}
}

// snapDiscrete collapses any signed value onto {-1, 0, +1}.
func snapDiscrete(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return domain.PositionFlat
	case p > 0:
		return domain.PositionLong
	case p < 0:
		return domain.PositionShort
	}
	return domain.PositionFlat
}

type ContinuousResolver struct {
	feeRate           float64
	threshold         float64 // flat band around zero exposure
	rebalanceDeadband float64 // minimum |delta| worth trading
}

func NewContinuousResolver(feeRate, threshold, rebalanceDeadband float64) *ContinuousResolver {
	return &ContinuousResolver{
		feeRate:           feeRate,
		threshold:         threshold,
		rebalanceDeadband: rebalanceDeadband,
	}
}

func (r *ContinuousResolver) Mode() domain.Mode { return domain.ModeContinuous }

func (r *ContinuousResolver) Resolve(raw domain.RawAction, currentPosition, currentPrice float64) domain.ActionDecision {
	hold := domain.ActionDecision{TargetPosition: currentPosition, Kind: domain.ActionHold}
	if len(raw.Vector) != 1 || math.IsNaN(raw.Vector[0]) {
		return hold
	}

	target := clip(raw.Vector[0], -1, 1)
	if math.Abs(target) < r.threshold {
		target = 0
	}

	delta := target - currentPosition
	if math.Abs(delta) < r.rebalanceDeadband {
		return hold
	}

	kind := domain.ActionSell
	if delta > 0 {
		kind = domain.ActionBuy
	}
	return domain.ActionDecision{
		TargetPosition: target,
		Fee:            math.Abs(delta) * r.feeRate,
		Executed:       true,
		Kind:           kind,
	}
}

// ResolverConfig carries the constants both resolver variants need.
type ResolverConfig struct {
	Mode              domain.Mode
	FeeRate           float64
	Threshold         float64
	RebalanceDeadband float64
}

// NewActionResolver picks the resolver variant once, at configuration time.
func NewActionResolver(cfg ResolverConfig) (ActionResolver, error) {
	if cfg.FeeRate < 0 {
		return nil, fmt.Errorf("%w: fee rate %f is negative", domain.ErrInvalidConfig, cfg.FeeRate)
	}
	switch cfg.Mode {
	case domain.ModeDiscrete:
		return NewDiscreteResolver(cfg.FeeRate), nil
	case domain.ModeContinuous:
		return NewContinuousResolver(cfg.FeeRate, cfg.Threshold, cfg.RebalanceDeadband), nil
	}
	return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidConfig, cfg.Mode)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

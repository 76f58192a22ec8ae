package usecase

import (
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

const DefaultDrawdownFloor = 0.5

// StepInfo describes what a single Advance did to the ledger.
type StepInfo struct {
	StepIndex      int
	FeeCost        float64
	PnL            float64
	PositionBefore float64
	Position       float64
	NetWorth       float64
	MaxNetWorth    float64
	Breached       bool
	EndOfSeries    bool
}

// Ledger is the per-episode account state. It is owned by exactly one episode
// (or live session) and is not safe for concurrent use.
type Ledger struct {
	InitialBalance float64
	Balance        float64
	NetWorth       float64
	MaxNetWorth    float64
	Position       float64
	StepIndex      int

	drawdownFloor float64
	seriesLen     int
	started       bool
}

func NewLedger(drawdownFloor float64) *Ledger {
	if drawdownFloor <= 0 {
		drawdownFloor = DefaultDrawdownFloor
	}
	return &Ledger{drawdownFloor: drawdownFloor}
}

// Reset starts a new episode over a price series of seriesLen points.
func (l *Ledger) Reset(initialBalance float64, seriesLen int) {
	l.InitialBalance = initialBalance
	l.Balance = initialBalance
	l.NetWorth = initialBalance
	l.MaxNetWorth = initialBalance
	l.Position = domain.PositionFlat
	l.StepIndex = 0
	l.seriesLen = seriesLen
	l.started = true
}

// Advance applies one decision and the price move from previousPrice to currentPrice.
// The fee is charged on total net worth, and the PnL is earned by the position held
// before the decision is committed.
func (l *Ledger) Advance(decision domain.ActionDecision, currentPrice, previousPrice float64) (bool, StepInfo) {
	info := StepInfo{PositionBefore: l.Position}

	if decision.Executed && decision.Fee > 0 {
		info.FeeCost = l.NetWorth * decision.Fee
		l.NetWorth -= info.FeeCost
		l.Balance -= info.FeeCost
	}

	if previousPrice > 0 {
		change := (currentPrice - previousPrice) / previousPrice
		info.PnL = l.NetWorth * l.Position * change
		l.NetWorth += info.PnL
	}

	if decision.Executed {
		l.Position = decision.TargetPosition
	}
	// Flat means everything is realized.
	if l.Position == domain.PositionFlat {
		l.Balance = l.NetWorth
	}
	if l.NetWorth > l.MaxNetWorth {
		l.MaxNetWorth = l.NetWorth
	}
	l.StepIndex++

	info.StepIndex = l.StepIndex
	info.Position = l.Position
	info.NetWorth = l.NetWorth
	info.MaxNetWorth = l.MaxNetWorth
	info.EndOfSeries = l.seriesLen > 0 && l.StepIndex >= l.seriesLen-1
	info.Breached = l.NetWorth < l.InitialBalance*l.drawdownFloor

	return info.EndOfSeries || info.Breached, info
}

// Started reports whether Reset has been called.
func (l *Ledger) Started() bool { return l.started }

// Return is the cumulative return on the initial balance.
func (l *Ledger) Return() float64 {
	if l.InitialBalance == 0 {
		return 0
	}
	return (l.NetWorth - l.InitialBalance) / l.InitialBalance
}

// Drawdown is the fractional decline of net worth from its high-water mark.
func (l *Ledger) Drawdown() float64 {
	if l.MaxNetWorth <= 0 {
		return 0
	}
	return (l.MaxNetWorth - l.NetWorth) / l.MaxNetWorth
}

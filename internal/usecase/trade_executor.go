package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vitos/crypto_trade_rl/internal/domain"
	"go.uber.org/zap"
)

const DefaultSettlePause = 1 * time.Second

// TradeExecutor submits a reconcile plan leg by leg. On a reversal the close leg must
// be accepted and visible in the venue position before the opening leg is sent.
type TradeExecutor struct {
	venue       domain.Venue
	symbol      string
	settlePause time.Duration
	logger      *zap.Logger
}

func NewTradeExecutor(venue domain.Venue, symbol string, settlePause time.Duration, logger *zap.Logger) *TradeExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeExecutor{
		venue:       venue,
		symbol:      symbol,
		settlePause: settlePause,
		logger:      logger,
	}
}

// Execute returns the confirmations of every leg the venue accepted, even on error.
func (e *TradeExecutor) Execute(ctx context.Context, plan ReconcilePlan) ([]*domain.OrderConfirmation, error) {
	var confirmations []*domain.OrderConfirmation

	for i, leg := range plan.Legs {
		if leg.Quantity <= 0 {
			continue
		}
		conf, err := e.venue.SubmitOrder(ctx, e.symbol, leg)
		if err != nil {
			return confirmations, fmt.Errorf("submit %s %.6f (leg %d/%d): %w", leg.Side, leg.Quantity, i+1, len(plan.Legs), err)
		}
		confirmations = append(confirmations, conf)
		e.logger.Info("Order submitted",
			zap.String("symbol", e.symbol),
			zap.String("side", string(leg.Side)),
			zap.Float64("qty", leg.Quantity),
			zap.Bool("reduce_only", leg.ReduceOnly),
			zap.String("order_id", conf.OrderID))

		if plan.Reversal && i == 0 {
			if err := e.awaitClose(ctx, leg); err != nil {
				return confirmations, err
			}
		}
	}
	return confirmations, nil
}

// awaitClose pauses for settlement, then re-reads the venue position to make sure the
// closed side is gone before anything new is opened.
func (e *TradeExecutor) awaitClose(ctx context.Context, closeLeg domain.OrderInstruction) error {
	if err := sleepCtx(ctx, e.settlePause); err != nil {
		return err
	}
	pos, err := e.venue.ReadPosition(ctx, e.symbol)
	if err != nil {
		return fmt.Errorf("confirm close: %w", err)
	}
	// Closing a long sells; a remaining long means the close did not settle (and vice versa).
	stillOpen := (closeLeg.Side == domain.SideSell && pos > 0) || (closeLeg.Side == domain.SideBuy && pos < 0)
	if stillOpen && math.Abs(pos) > 0 {
		e.logger.Warn("Close leg not settled, skipping open leg",
			zap.String("symbol", e.symbol),
			zap.Float64("position", pos))
		return domain.ErrCloseNotConfirmed
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

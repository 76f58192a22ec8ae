package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PolicyFactory builds the policy used by one worker. Policies are not shared
// between workers.
type PolicyFactory func(worker int) (domain.Policy, error)

type SimulationRunner struct {
	rows          []domain.FeatureVector
	featureNames  []string
	cfg           EnvConfig
	workers       int
	policyFactory PolicyFactory
	repo          domain.EpisodeRepository
	metrics       domain.MetricsRecorder
	logger        *zap.Logger
}

func NewSimulationRunner(
	rows []domain.FeatureVector,
	featureNames []string,
	cfg EnvConfig,
	workers int,
	policyFactory PolicyFactory,
	repo domain.EpisodeRepository,
	metrics domain.MetricsRecorder,
	logger *zap.Logger,
) *SimulationRunner {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulationRunner{
		rows:          rows,
		featureNames:  featureNames,
		cfg:           cfg,
		workers:       workers,
		policyFactory: policyFactory,
		repo:          repo,
		metrics:       metrics,
		logger:        logger,
	}
}

// Run plays one full episode per worker, in parallel, and returns the summaries in
// worker order. Summaries are persisted after all workers finish.
func (r *SimulationRunner) Run(ctx context.Context) ([]*domain.EpisodeSummary, error) {
	results := make([]*domain.EpisodeSummary, r.workers)
	builder := NewObservationBuilder(r.featureNames, r.logger)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < r.workers; w++ {
		worker := w
		g.Go(func() error {
			policy, err := r.policyFactory(worker)
			if err != nil {
				return fmt.Errorf("worker %d: build policy: %w", worker, err)
			}
			env, err := NewEnvironment(r.rows, r.featureNames, r.cfg, builder)
			if err != nil {
				return fmt.Errorf("worker %d: %w", worker, err)
			}
			summary, err := PlayEpisode(gctx, env, policy)
			if err != nil {
				return fmt.Errorf("worker %d: %w", worker, err)
			}
			summary.Worker = worker
			results[worker] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, s := range results {
		r.logger.Info("Episode finished",
			zap.String("id", s.ID),
			zap.Int("worker", s.Worker),
			zap.Int("steps", s.Steps),
			zap.Int("trades", s.Trades),
			zap.Float64("final_net_worth", s.FinalNetWorth),
			zap.Float64("max_drawdown", s.MaxDrawdown),
			zap.Float64("total_reward", s.TotalReward),
			zap.Bool("breached", s.Breached))
		if r.metrics != nil {
			r.metrics.ObserveEpisode(s)
		}
		if r.repo != nil {
			if err := r.repo.SaveEpisode(ctx, s); err != nil {
				r.logger.Error("Failed to save episode", zap.String("id", s.ID), zap.Error(err))
			}
		}
	}
	return results, nil
}

// PlayEpisode runs env to termination under policy.
func PlayEpisode(ctx context.Context, env *Environment, policy domain.Policy) (*domain.EpisodeSummary, error) {
	obs, err := env.Reset()
	if err != nil {
		return nil, err
	}
	ledger := env.Ledger()
	summary := &domain.EpisodeSummary{
		ID:             uuid.New().String(),
		Mode:           env.Mode(),
		InitialBalance: ledger.InitialBalance,
		CreatedAt:      time.Now().UTC(),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := policy.Decide(ctx, obs)
		if err != nil {
			return nil, fmt.Errorf("policy decide at step %d: %w", ledger.StepIndex, err)
		}
		res, err := env.Step(raw)
		if err != nil {
			return nil, err
		}
		summary.Steps++
		summary.TotalReward += res.Reward
		summary.FeesPaid += res.Info.FeeCost
		summary.MaxDrawdown = math.Max(summary.MaxDrawdown, ledger.Drawdown())
		if res.Decision.Executed {
			summary.Trades++
		}
		obs = res.Observation
		if res.Terminated {
			summary.Breached = res.Info.Breached
			break
		}
	}

	summary.FinalNetWorth = ledger.NetWorth
	summary.MaxNetWorth = ledger.MaxNetWorth
	return summary, nil
}

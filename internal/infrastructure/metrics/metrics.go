// Package metrics exposes Prometheus collectors for the live session and the simulator.
//
//   - rl_cycles_total{kind,executed}        live cycles by resolved action
//   - rl_cycle_errors_total{stage}          failed cycles by the stage that failed
//   - rl_orders_total{venue,side,reduce_only}
//   - rl_equity_usd                         live equity snapshot
//   - rl_live_position                      signed venue position
//   - rl_allocation                         position as seen by the policy
//   - rl_episodes_total{mode,breached}
//   - rl_episode_reward, rl_episode_drawdown
//
// Collectors are registered in init() and served at /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitos/crypto_trade_rl/internal/domain"
)

var (
	mtxCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rl_cycles_total",
			Help: "Live decision cycles",
		},
		[]string{"kind", "executed"},
	)

	mtxCycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rl_cycle_errors_total",
			Help: "Failed live cycles split by stage",
		},
		[]string{"stage"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rl_orders_total",
			Help: "Orders accepted by the venue",
		},
		[]string{"venue", "side", "reduce_only"},
	)

	mtxEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rl_equity_usd",
			Help: "Account equity read at the start of the last cycle",
		},
	)

	mtxPosition = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rl_live_position",
			Help: "Signed venue position in base units",
		},
	)

	mtxAllocation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rl_allocation",
			Help: "Position expressed in policy units",
		},
	)

	mtxEpisodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rl_episodes_total",
			Help: "Simulated episodes",
		},
		[]string{"mode", "breached"},
	)

	mtxEpisodeReward = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rl_episode_reward",
			Help:    "Total reward per simulated episode",
			Buckets: prometheus.LinearBuckets(-500, 100, 11),
		},
	)

	mtxEpisodeDrawdown = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rl_episode_drawdown",
			Help:    "Max drawdown per simulated episode",
			Buckets: prometheus.LinearBuckets(0, 0.05, 11),
		},
	)
)

func init() {
	prometheus.MustRegister(mtxCycles, mtxCycleErrors, mtxOrders)
	prometheus.MustRegister(mtxEquity, mtxPosition, mtxAllocation)
	prometheus.MustRegister(mtxEpisodes, mtxEpisodeReward, mtxEpisodeDrawdown)
}

// Recorder implements domain.MetricsRecorder on the package collectors.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) ObserveCycle(c *domain.CycleRecord) {
	mtxCycles.WithLabelValues(string(c.Kind), strconv.FormatBool(c.Executed)).Inc()
	if c.Error != "" {
		return
	}
	mtxEquity.Set(c.Equity)
	mtxPosition.Set(c.LivePosition)
	mtxAllocation.Set(c.Allocation)
}

func (Recorder) ObserveOrder(venue string, o domain.OrderInstruction) {
	mtxOrders.WithLabelValues(venue, string(o.Side), strconv.FormatBool(o.ReduceOnly)).Inc()
}

func (Recorder) ObserveError(stage string) {
	mtxCycleErrors.WithLabelValues(stage).Inc()
}

func (Recorder) ObserveEpisode(ep *domain.EpisodeSummary) {
	mtxEpisodes.WithLabelValues(string(ep.Mode), strconv.FormatBool(ep.Breached)).Inc()
	mtxEpisodeReward.Observe(ep.TotalReward)
	mtxEpisodeDrawdown.Observe(ep.MaxDrawdown)
}

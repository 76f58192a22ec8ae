package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"github.com/vitos/crypto_trade_rl/internal/usecase"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Symbol   string      `yaml:"symbol"`
	Interval string      `yaml:"interval"`
	Mode     domain.Mode `yaml:"mode"`

	Venue    VenueConfig    `yaml:"venue"`
	Trading  TradingConfig  `yaml:"trading"`
	Reward   RewardConfig   `yaml:"reward"`
	Env      EnvConfig      `yaml:"env"`
	Live     LiveConfig     `yaml:"live"`
	Policy   PolicyConfig   `yaml:"policy"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Simulate SimulateConfig `yaml:"simulate"`
}

type VenueConfig struct {
	Name         string `yaml:"name"` // binance | bybit | paper
	Testnet      bool   `yaml:"testnet"`
	RESTEndpoint string `yaml:"rest_endpoint"`
	WSEndpoint   string `yaml:"ws_endpoint"`
	// Credentials normally come from the environment (.env); YAML values win when set.
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	// Paper venue only.
	PaperBalance float64 `yaml:"paper_balance"`
	PriceFeed    string  `yaml:"price_feed"` // binance | bybit
}

type TradingConfig struct {
	Leverage          int     `yaml:"leverage"`
	FeeRate           float64 `yaml:"fee_rate"`
	Threshold         float64 `yaml:"threshold"`
	RebalanceDeadband float64 `yaml:"rebalance_deadband"`
	FixedQuantity     float64 `yaml:"fixed_qty"`
	SafetyMargin      float64 `yaml:"safety_margin"`
	MaxCapitalUsage   float64 `yaml:"max_capital_usage"`
	DustFloorPct      float64 `yaml:"dust_floor_pct"`
	QtyPrecision      int     `yaml:"qty_precision"` // -1 asks the venue
}

type RewardConfig struct {
	Scaling            float64 `yaml:"scaling"`
	DrawdownBeta       float64 `yaml:"drawdown_beta"`
	Clip               float64 `yaml:"clip"`
	TerminalPenalty    float64 `yaml:"terminal_penalty"`
	CounterTrendFactor float64 `yaml:"counter_trend_factor"`
}

type EnvConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
	DrawdownFloor  float64 `yaml:"drawdown_floor"`
	WindowSize     int     `yaml:"window_size"`
}

type LiveConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
	SettlePause  time.Duration `yaml:"settle_pause"`
	Trigger      string        `yaml:"trigger"` // ticker | kline_ws
}

type PolicyConfig struct {
	Kind           string        `yaml:"kind"` // baseline | http | random
	URL            string        `yaml:"url"`
	Timeout        time.Duration `yaml:"timeout"`
	Allocation     float64       `yaml:"allocation"`
	Seed           int64         `yaml:"seed"`
	ObservationLen int           `yaml:"observation_len"` // vector length the policy expects
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type SimulateConfig struct {
	CSV     string `yaml:"csv"`
	Workers int    `yaml:"workers"`
}

// Default returns a config that trades nothing until a venue and symbol are chosen.
func Default() *Config {
	rc := usecase.DefaultReconcilerConfig()
	rw := usecase.DefaultRewardConfig()
	return &Config{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Mode:     domain.ModeDiscrete,
		Venue: VenueConfig{
			Name:         "paper",
			Testnet:      true,
			PaperBalance: 1000,
			PriceFeed:    "binance",
		},
		Trading: TradingConfig{
			Leverage:          rc.Leverage,
			FeeRate:           0.0004,
			Threshold:         0.1,
			RebalanceDeadband: 0.1,
			FixedQuantity:     rc.FixedQuantity,
			SafetyMargin:      rc.SafetyMargin,
			MaxCapitalUsage:   rc.MaxCapitalUsage,
			DustFloorPct:      rc.DustFloorPct,
			QtyPrecision:      int(rc.QtyPrecision),
		},
		Reward: RewardConfig{
			Scaling:            rw.Scaling,
			DrawdownBeta:       rw.DrawdownBeta,
			Clip:               rw.Clip,
			TerminalPenalty:    rw.TerminalPenalty,
			CounterTrendFactor: rw.CounterTrendFactor,
		},
		Env: EnvConfig{
			InitialBalance: 1000,
			DrawdownFloor:  usecase.DefaultDrawdownFloor,
			WindowSize:     500,
		},
		Live: LiveConfig{
			Interval:     usecase.DefaultDecisionInterval,
			ErrorBackoff: usecase.DefaultErrorBackoff,
			CycleTimeout: usecase.DefaultCycleTimeout,
			SettlePause:  usecase.DefaultSettlePause,
			Trigger:      "ticker",
		},
		Policy: PolicyConfig{
			Kind:           "baseline",
			Timeout:        5 * time.Second,
			Allocation:     1,
			ObservationLen: len(usecase.DefaultFeatureNames) + usecase.AccountFeatureCount,
		},
		Storage:  StorageConfig{Path: "rl_bot.db"},
		Server:   ServerConfig{Port: 8080},
		Logging:  LoggingConfig{Level: "info"},
		Simulate: SimulateConfig{Workers: 4},
	}
}

// Load reads path over the defaults, pulls credentials from .env and the process
// environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	// A missing .env is fine; real deployments export the variables.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	prefix := strings.ToUpper(c.Venue.Name)
	if c.Venue.APIKey == "" {
		c.Venue.APIKey = os.Getenv(prefix + "_API_KEY")
	}
	if c.Venue.APISecret == "" {
		c.Venue.APISecret = os.Getenv(prefix + "_API_SECRET")
	}
	if v := os.Getenv("POLICY_URL"); v != "" && c.Policy.URL == "" {
		c.Policy.URL = v
	}
}

// Validate rejects inconsistent settings. Every error wraps domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Symbol == "" {
		add("symbol is required")
	}
	if c.Mode != domain.ModeDiscrete && c.Mode != domain.ModeContinuous {
		add("mode must be discrete or continuous, got %q", c.Mode)
	}
	switch c.Venue.Name {
	case "binance", "bybit":
	case "paper":
		if c.Venue.PaperBalance <= 0 {
			add("venue.paper_balance must be positive")
		}
	default:
		add("venue.name must be binance, bybit or paper, got %q", c.Venue.Name)
	}

	t := c.Trading
	if t.Leverage <= 0 {
		add("trading.leverage must be positive")
	}
	if t.FeeRate < 0 || t.FeeRate >= 0.1 {
		add("trading.fee_rate %v outside [0, 0.1)", t.FeeRate)
	}
	if t.Threshold < 0 || t.Threshold >= 1 {
		add("trading.threshold %v outside [0, 1)", t.Threshold)
	}
	if t.RebalanceDeadband < 0 || t.RebalanceDeadband >= 2 {
		add("trading.rebalance_deadband %v outside [0, 2)", t.RebalanceDeadband)
	}
	if t.SafetyMargin <= 0 || t.SafetyMargin > 1 {
		add("trading.safety_margin %v outside (0, 1]", t.SafetyMargin)
	}
	if t.MaxCapitalUsage <= 0 || t.MaxCapitalUsage > 1 {
		add("trading.max_capital_usage %v outside (0, 1]", t.MaxCapitalUsage)
	}
	if t.DustFloorPct < 0 || t.DustFloorPct >= 1 {
		add("trading.dust_floor_pct %v outside [0, 1)", t.DustFloorPct)
	}
	if c.Mode == domain.ModeDiscrete && t.FixedQuantity <= 0 {
		add("trading.fixed_qty must be positive in discrete mode")
	}
	if t.QtyPrecision < -1 || t.QtyPrecision > 8 {
		add("trading.qty_precision %d outside [-1, 8]", t.QtyPrecision)
	}

	r := c.Reward
	if r.Scaling <= 0 {
		add("reward.scaling must be positive")
	}
	if r.DrawdownBeta <= 0 {
		add("reward.drawdown_beta must be positive")
	}
	if r.Clip <= 0 {
		add("reward.clip must be positive")
	}
	if r.CounterTrendFactor <= 0 || r.CounterTrendFactor > 1 {
		add("reward.counter_trend_factor %v outside (0, 1]", r.CounterTrendFactor)
	}

	if c.Env.InitialBalance <= 0 {
		add("env.initial_balance must be positive")
	}
	if c.Env.DrawdownFloor <= 0 || c.Env.DrawdownFloor >= 1 {
		add("env.drawdown_floor %v outside (0, 1)", c.Env.DrawdownFloor)
	}
	if c.Env.WindowSize <= 200 {
		add("env.window_size must exceed the 200-bar indicator warm-up")
	}

	if c.Live.Interval <= 0 {
		add("live.interval must be positive")
	}
	if c.Live.Trigger != "ticker" && c.Live.Trigger != "kline_ws" {
		add("live.trigger must be ticker or kline_ws, got %q", c.Live.Trigger)
	}

	switch c.Policy.Kind {
	case "baseline", "random":
	case "http":
		if c.Policy.URL == "" {
			add("policy.url is required for the http policy")
		}
	default:
		add("policy.kind must be baseline, http or random, got %q", c.Policy.Kind)
	}
	if c.Policy.ObservationLen <= 0 {
		add("policy.observation_len must be positive, got %d", c.Policy.ObservationLen)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) ResolverConfig() usecase.ResolverConfig {
	return usecase.ResolverConfig{
		Mode:              c.Mode,
		FeeRate:           c.Trading.FeeRate,
		Threshold:         c.Trading.Threshold,
		RebalanceDeadband: c.Trading.RebalanceDeadband,
	}
}

func (c *Config) RewardConfig() usecase.RewardConfig {
	return usecase.RewardConfig{
		Scaling:            c.Reward.Scaling,
		DrawdownBeta:       c.Reward.DrawdownBeta,
		Clip:               c.Reward.Clip,
		TerminalPenalty:    c.Reward.TerminalPenalty,
		CounterTrendFactor: c.Reward.CounterTrendFactor,
	}
}

func (c *Config) EnvConfig() usecase.EnvConfig {
	return usecase.EnvConfig{
		InitialBalance: c.Env.InitialBalance,
		DrawdownFloor:  c.Env.DrawdownFloor,
		ObservationLen: c.Policy.ObservationLen,
		Reward:         c.RewardConfig(),
		Resolver:       c.ResolverConfig(),
	}
}

// ReconcilerConfig uses precision when qty_precision is -1 (venue-reported).
func (c *Config) ReconcilerConfig(precision int) usecase.ReconcilerConfig {
	p := c.Trading.QtyPrecision
	if p < 0 {
		p = precision
	}
	return usecase.ReconcilerConfig{
		Mode:            c.Mode,
		FixedQuantity:   c.Trading.FixedQuantity,
		Leverage:        c.Trading.Leverage,
		SafetyMargin:    c.Trading.SafetyMargin,
		MaxCapitalUsage: c.Trading.MaxCapitalUsage,
		DustFloorPct:    c.Trading.DustFloorPct,
		QtyPrecision:    int32(p),
	}
}

func (c *Config) LiveSessionConfig() usecase.LiveSessionConfig {
	return usecase.LiveSessionConfig{
		Symbol:         c.Symbol,
		Leverage:       c.Trading.Leverage,
		Interval:       c.Live.Interval,
		ErrorBackoff:   c.Live.ErrorBackoff,
		CycleTimeout:   c.Live.CycleTimeout,
		ObservationLen: c.Policy.ObservationLen,
	}
}

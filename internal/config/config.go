package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeStream Mode = "stream"
	ModePaper  Mode = "paper"
)

type StopLossKind string

const (
	StopLossNone       StopLossKind = "none"
	StopLossPercentage StopLossKind = "percentage"
	StopLossATR        StopLossKind = "atr"
)

// StopLoss selects and parameterises the protective stop strategy. Take
// profit and reward:risk are unset when zero; the distance bounds are unset
// when nil, so an explicit 0 max pins the stop to entry.
type StopLoss struct {
	Kind            StopLossKind  `yaml:"kind"`
	StopLossPct     float64       `yaml:"stop_loss_pct"`
	TakeProfitPct   float64       `yaml:"take_profit_pct"`
	MinStopDistance *float64      `yaml:"min_stop_distance"`
	MaxStopDistance *float64      `yaml:"max_stop_distance"`
	ATRMultiplier   float64       `yaml:"atr_multiplier"`
	ATRPeriod       int           `yaml:"atr_period"`
	RewardRiskRatio float64       `yaml:"reward_risk_ratio"`
	CacheDuration   time.Duration `yaml:"cache_duration"`
	FallbackPct     float64       `yaml:"fallback_pct"`
}

type Config struct {
	Mode              Mode          `yaml:"mode"`
	Symbol            string        `yaml:"symbol"`
	Feed              string        `yaml:"feed"`
	BarsWindow        int           `yaml:"bars_window"`
	FastEMA           int           `yaml:"fast_ema"`
	SlowEMA           int           `yaml:"slow_ema"`
	MaxQty            int           `yaml:"max_qty"`
	MaxNotional       float64       `yaml:"max_notional"`
	Rebalance         bool          `yaml:"rebalance"`
	BuyingPowerUse    float64       `yaml:"buying_power_use"`
	Cooldown          time.Duration `yaml:"cooldown"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	PollSchedule      string        `yaml:"poll_schedule"`
	KillSwitch        bool          `yaml:"kill_switch"`
	ExtendedHours     bool          `yaml:"extended_hours"`
	OrderType         string        `yaml:"order_type"`
	TimeInForce       string        `yaml:"time_in_force"`
	DecisionsPath     string        `yaml:"decisions_path"`
	CheckpointPath    string        `yaml:"checkpoint_path"`
	PaperBaseURL      string        `yaml:"paper_base_url"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	LogLevel          string        `yaml:"log_level"`
	LogJSON           bool          `yaml:"log_json"`
	StopLoss          StopLoss      `yaml:"stop_loss"`
	APIKey            string        `yaml:"-"`
	APISecret         string        `yaml:"-"`
}

func defaults() Config {
	return Config{
		Mode:              ModeStream,
		BarsWindow:        50,
		FastEMA:           10,
		SlowEMA:           20,
		MaxQty:            1,
		BuyingPowerUse:    0.95,
		Cooldown:          120 * time.Second,
		ReconcileInterval: 10 * time.Second,
		PollSchedule:      "0 5 * * * 1-5",
		OrderType:         "market",
		TimeInForce:       "day",
		DecisionsPath:     "decisions.ndjson",
		CheckpointPath:    "checkpoint.json",
		PaperBaseURL:      "https://paper-api.alpaca.markets",
		MetricsAddr:       ":9090",
		LogLevel:          "info",
		StopLoss:          DefaultStopLoss(),
	}
}

func DefaultStopLoss() StopLoss {
	return StopLoss{
		Kind:          StopLossNone,
		StopLossPct:   0.05,
		ATRMultiplier: 2.0,
		ATRPeriod:     14,
		CacheDuration: 30 * time.Minute,
		FallbackPct:   0.05,
	}
}

// Load resolves configuration with precedence defaults < YAML file <
// environment < command-line flags.
func Load() (Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (Config, error) {
	if err := LoadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	path, err := configPath(args)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	fs := newFlagSet(&cfg, &path)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.Mode == ModeStream {
		if cfg.Symbol == "" {
			cfg.Symbol = "FAKEPACA"
		}
		if cfg.Feed == "" {
			cfg.Feed = "test"
		}
	}
	if cfg.Mode == ModePaper {
		if cfg.Symbol == "" {
			cfg.Symbol = "TQQQ"
		}
		if cfg.Feed == "" {
			cfg.Feed = "iex"
		}
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// configPath runs a throwaway parse to find --config before the real flags
// are bound with file and environment values as their defaults.
func configPath(args []string) (string, error) {
	scratch := defaults()
	var path string
	fs := newFlagSet(&scratch, &path)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return path, nil
}

func newFlagSet(cfg *Config, path *string) *flag.FlagSet {
	fs := flag.NewFlagSet("emabot", flag.ContinueOnError)
	mode := (*string)(&cfg.Mode)

	fs.StringVar(path, "config", *path, "path to YAML config file")
	fs.StringVar(mode, "mode", *mode, "run mode: stream or paper")
	fs.StringVar(&cfg.Symbol, "symbol", cfg.Symbol, "trading symbol")
	fs.StringVar(&cfg.Feed, "feed", cfg.Feed, "market data feed: iex, sip or test")
	fs.IntVar(&cfg.BarsWindow, "bars-window", cfg.BarsWindow, "number of closes kept for EMA calculation")
	fs.IntVar(&cfg.FastEMA, "fast-ema", cfg.FastEMA, "fast EMA period")
	fs.IntVar(&cfg.SlowEMA, "slow-ema", cfg.SlowEMA, "slow EMA period")
	fs.IntVar(&cfg.MaxQty, "max-qty", cfg.MaxQty, "max position size (0 = no cap, requires --rebalance)")
	fs.Float64Var(&cfg.MaxNotional, "max-notional", cfg.MaxNotional, "max notional per order (0 = no cap)")
	fs.BoolVar(&cfg.Rebalance, "rebalance", cfg.Rebalance, "on a buy signal sell other positions and size with buying power")
	fs.Float64Var(&cfg.BuyingPowerUse, "buying-power-use", cfg.BuyingPowerUse, "fraction of buying power used when rebalancing")
	fs.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "cooldown between trades")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "reconciliation interval")
	fs.StringVar(&cfg.PollSchedule, "poll-schedule", cfg.PollSchedule, "cron schedule (with seconds) for polling bars in paper mode")
	fs.BoolVar(&cfg.KillSwitch, "kill-switch", cfg.KillSwitch, "if true, never place orders")
	fs.BoolVar(&cfg.ExtendedHours, "extended-hours", cfg.ExtendedHours, "allow extended hours (limit+day only)")
	fs.StringVar(&cfg.OrderType, "order-type", cfg.OrderType, "order type: market or limit")
	fs.StringVar(&cfg.TimeInForce, "time-in-force", cfg.TimeInForce, "time in force: day or gtc")
	fs.StringVar(&cfg.DecisionsPath, "decisions-path", cfg.DecisionsPath, "path to decisions log")
	fs.StringVar(&cfg.CheckpointPath, "checkpoint-path", cfg.CheckpointPath, "path to checkpoint file")
	fs.StringVar(&cfg.PaperBaseURL, "paper-base-url", cfg.PaperBaseURL, "paper trading base URL")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address for the Prometheus endpoint (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit JSON logs")
	BindStopLossFlags(fs, &cfg.StopLoss)
	return fs
}

// BindStopLossFlags registers the stop-loss flags on fs using the current
// values of sl as defaults.
func BindStopLossFlags(fs *flag.FlagSet, sl *StopLoss) {
	kind := (*string)(&sl.Kind)
	fs.StringVar(kind, "stop-loss", *kind, "stop loss strategy: none, percentage or atr")
	fs.Float64Var(&sl.StopLossPct, "stop-loss-pct", sl.StopLossPct, "stop distance as a fraction of entry (0.001-0.5)")
	fs.Float64Var(&sl.TakeProfitPct, "take-profit-pct", sl.TakeProfitPct, "take profit as a fraction above entry (0 = none)")
	fs.Func("min-stop-distance", "minimum stop distance in currency (unset = none)", optionalFloat(&sl.MinStopDistance))
	fs.Func("max-stop-distance", "maximum stop distance in currency (unset = none)", optionalFloat(&sl.MaxStopDistance))
	fs.Float64Var(&sl.ATRMultiplier, "atr-multiplier", sl.ATRMultiplier, "ATR multiplier (0.5-5.0)")
	fs.IntVar(&sl.ATRPeriod, "atr-period", sl.ATRPeriod, "ATR period in hourly bars (5-50)")
	fs.Float64Var(&sl.RewardRiskRatio, "reward-risk", sl.RewardRiskRatio, "reward:risk ratio for the ATR take profit (0 = none)")
	fs.DurationVar(&sl.CacheDuration, "atr-cache", sl.CacheDuration, "how long a computed ATR is reused")
	fs.Float64Var(&sl.FallbackPct, "atr-fallback-pct", sl.FallbackPct, "stop percentage used when ATR is unavailable")
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")

	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Symbol = v
	}
	if v := os.Getenv("POLL_SCHEDULE"); v != "" {
		cfg.PollSchedule = v
	}
	if v, ok := os.LookupEnv("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	return ApplyStopLossEnv(&cfg.StopLoss)
}

// ApplyStopLossEnv overrides sl with any STOP_LOSS_* / ATR_* variables set.
func ApplyStopLossEnv(sl *StopLoss) error {
	if v := os.Getenv("STOP_LOSS_STRATEGY"); v != "" {
		sl.Kind = StopLossKind(v)
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"STOP_LOSS_PCT", &sl.StopLossPct},
		{"TAKE_PROFIT_PCT", &sl.TakeProfitPct},
		{"ATR_MULTIPLIER", &sl.ATRMultiplier},
		{"REWARD_RISK_RATIO", &sl.RewardRiskRatio},
		{"ATR_FALLBACK_PCT", &sl.FallbackPct},
	}
	for _, f := range floats {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = parsed
	}
	optionals := []struct {
		key string
		dst **float64
	}{
		{"MIN_STOP_DISTANCE", &sl.MinStopDistance},
		{"MAX_STOP_DISTANCE", &sl.MaxStopDistance},
	}
	for _, f := range optionals {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		if err := optionalFloat(f.dst)(v); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	if v := os.Getenv("ATR_PERIOD"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ATR_PERIOD: %w", err)
		}
		sl.ATRPeriod = parsed
	}
	if v := os.Getenv("ATR_CACHE_DURATION"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ATR_CACHE_DURATION: %w", err)
		}
		sl.CacheDuration = parsed
	}
	return nil
}

func optionalFloat(dst **float64) func(string) error {
	return func(v string) error {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = &parsed
		return nil
	}
}

// LoadDotEnvIfPresent loads path into the environment when it exists. A
// missing file is not an error; a malformed one is.
func LoadDotEnvIfPresent(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := loadDotEnv(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	return godotenv.Load(path)
}

func validate(cfg Config) error {
	if cfg.Mode != ModeStream && cfg.Mode != ModePaper {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		if cfg.Mode == ModePaper {
			return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required in paper mode")
		}
	}
	if cfg.FastEMA <= 1 {
		return fmt.Errorf("fast-ema must be > 1")
	}
	if cfg.SlowEMA <= cfg.FastEMA {
		return fmt.Errorf("slow-ema must be > fast-ema")
	}
	if cfg.BarsWindow < cfg.SlowEMA {
		return fmt.Errorf("bars-window must be >= slow-ema")
	}
	if cfg.MaxQty < 0 {
		return fmt.Errorf("max-qty must be >= 0")
	}
	if cfg.MaxQty == 0 && !cfg.Rebalance {
		return fmt.Errorf("max-qty must be > 0 unless rebalance sizing is enabled")
	}
	if cfg.MaxNotional < 0 {
		return fmt.Errorf("max-notional must be >= 0")
	}
	if cfg.BuyingPowerUse <= 0 || cfg.BuyingPowerUse > 1 {
		return fmt.Errorf("buying-power-use must be in (0, 1]")
	}
	if cfg.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile-interval must be > 0")
	}
	if cfg.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0")
	}
	if cfg.Mode == ModePaper && cfg.PollSchedule == "" {
		return fmt.Errorf("poll-schedule is required in paper mode")
	}
	return validateStopLoss(cfg.StopLoss)
}

// validateStopLoss only checks the selector; numeric ranges are enforced by
// the strategy constructors.
func validateStopLoss(sl StopLoss) error {
	switch sl.Kind {
	case StopLossNone, StopLossPercentage, StopLossATR:
		return nil
	case "":
		return errors.New("stop-loss must be one of none, percentage, atr")
	default:
		return fmt.Errorf("unsupported stop-loss strategy: %s", sl.Kind)
	}
}

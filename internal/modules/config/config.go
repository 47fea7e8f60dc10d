package config

import (
	"agent_trader/pkg/logger"
	"agent_trader/pkg/tracing"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	envPrefix         = "AGENT"
)

// Config: всё, что нужно ядру исполнения. Секреты переопределяются из окружения.
type Config struct {
	OKX       OKXConfig       `yaml:"okx"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Execution ExecutionConfig `yaml:"execution"`
	Runner    RunnerConfig    `yaml:"runner"`
	Journal   JournalConfig   `yaml:"journal"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Health    HealthConfig    `yaml:"health"`
	Logger    logger.Config   `yaml:"logger"`
	Tracing   tracing.Config  `yaml:"tracing"`
}

type OKXConfig struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`
	BaseURL    string `yaml:"base_url"`
	WSURL      string `yaml:"ws_url"`
	HedgeMode  bool   `yaml:"hedge_mode"` // только net, true отвергается Validate
	Simulated  bool   `yaml:"simulated"`  // x-simulated-trading: 1
}

type ExchangeConfig struct {
	MaxConcurrency    int64              `yaml:"max_concurrency"`
	CallTimeout       time.Duration      `yaml:"call_timeout"`
	MinGap            time.Duration      `yaml:"min_gap"`
	CooldownWindow    time.Duration      `yaml:"cooldown_window"`
	CooldownGap       time.Duration      `yaml:"cooldown_gap"`
	ConnectAttempts   uint               `yaml:"connect_attempts"`
	ConnectMaxBackoff time.Duration      `yaml:"connect_max_backoff"`
	FillsLookback     int                `yaml:"fills_lookback"`
	Slippage          float64            `yaml:"slippage"` // 0.01 = 1%; 0, чистый market
	TriggerTicks      map[string]float64 `yaml:"trigger_ticks"`
}

type ExecutionConfig struct {
	MinNotionalUSD     float64       `yaml:"min_notional_usd"`
	AutoCapLeverage    bool          `yaml:"auto_cap_leverage"`
	DefaultLeverage    float64       `yaml:"default_leverage"`
	MarginMode         string        `yaml:"margin_mode"`
	IsolatedOnly       []string      `yaml:"isolated_only"`
	DedupWindow        time.Duration `yaml:"dedup_window"`
	OrderDedupWindow   time.Duration `yaml:"order_dedup_window"`
	TriggerDedupWindow time.Duration `yaml:"trigger_dedup_window"`
	MaxOpenOrders      int           `yaml:"max_open_orders"`
	MaxAddsPerHour     int           `yaml:"max_adds_per_hour"`
	MinHoldTime        time.Duration `yaml:"min_hold_time"`
	ReentryCooldown    time.Duration `yaml:"reentry_cooldown"`
	BETolerance        float64       `yaml:"be_tolerance"`
	BEFeeBuffer        float64       `yaml:"be_fee_buffer"`
	FeedbackSize       int           `yaml:"feedback_size"`
}

type RunnerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	InboxSize    int           `yaml:"inbox_size"`
	WatchSymbols []string      `yaml:"watch_symbols"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	MaxConns       int32         `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	Channel  string        `yaml:"channel"`
	TTL      time.Duration `yaml:"ttl"`
}

type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// Default: значения, поверх которых декодируется yaml.
func Default() Config {
	return Config{
		OKX: OKXConfig{
			BaseURL: "https://www.okx.com",
			WSURL:   "wss://ws.okx.com:8443/ws/v5/public",
		},
		Exchange: ExchangeConfig{
			MaxConcurrency:    4,
			CallTimeout:       10 * time.Second,
			MinGap:            200 * time.Millisecond,
			CooldownWindow:    10 * time.Second,
			CooldownGap:       time.Second,
			ConnectAttempts:   5,
			ConnectMaxBackoff: 30 * time.Second,
			FillsLookback:     50,
		},
		Execution: ExecutionConfig{
			MinNotionalUSD:     10,
			AutoCapLeverage:    true,
			DefaultLeverage:    5,
			MarginMode:         "cross",
			DedupWindow:        30 * time.Second,
			OrderDedupWindow:   60 * time.Second,
			TriggerDedupWindow: 20 * time.Second,
			MaxOpenOrders:      4,
			MaxAddsPerHour:     3,
			MinHoldTime:        0,
			ReentryCooldown:    0,
			BETolerance:        1.0,
			BEFeeBuffer:        0.001,
			FeedbackSize:       10,
		},
		Runner: RunnerConfig{
			TickInterval: 30 * time.Second,
			InboxSize:    32,
		},
		Journal: JournalConfig{Path: "data/trades.json"},
		Postgres: PostgresConfig{
			MaxConns:       2,
			ConnectTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Key:     "agent_trader:snapshot",
			Channel: "agent_trader:snapshot",
			TTL:     5 * time.Minute,
		},
		Health: HealthConfig{Addr: ":8080"},
		Logger: logger.Config{Level: "info", Format: "json"},
	}
}

// NewConfig читает configs/$CONFIG_FILE (по умолчанию values_local.yaml) и накладывает env.
func NewConfig() (*Config, error) {
	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = "values_local.yaml"
	}
	dir := os.Getenv(configDirENV)
	if dir == "" {
		dir = "configs"
	}
	return Load(filepath.Join(dir, name))
}

// Load: то же самое для явного пути. Отсутствующий файл не ошибка: остаются дефолты и env.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, errors.Wrapf(err, "decode config %s", path)
		}
	case os.IsNotExist(err):
		logger.Warn("[CONFIG] %s not found, using defaults and env", path)
	default:
		return nil, errors.Wrapf(err, "open config %s", path)
	}

	applyEnv(&cfg, newEnv())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// старые имена переменных тоже понимаем
	_ = v.BindEnv("telegram.token", envPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("postgres.dsn", envPrefix+"_POSTGRES_DSN", "DATABASE_DSN")
	return v
}

func applyEnv(cfg *Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	str("okx.api_key", &cfg.OKX.APIKey)
	str("okx.api_secret", &cfg.OKX.APISecret)
	str("okx.passphrase", &cfg.OKX.Passphrase)
	str("okx.base_url", &cfg.OKX.BaseURL)
	str("okx.ws_url", &cfg.OKX.WSURL)
	str("telegram.token", &cfg.Telegram.Token)
	str("postgres.dsn", &cfg.Postgres.DSN)
	str("redis.addr", &cfg.Redis.Addr)
	str("redis.password", &cfg.Redis.Password)
	str("health.addr", &cfg.Health.Addr)
	str("journal.path", &cfg.Journal.Path)
	str("logger.level", &cfg.Logger.Level)

	if v.IsSet("okx.simulated") {
		cfg.OKX.Simulated = v.GetBool("okx.simulated")
	}
	if v.IsSet("telegram.chat_id") {
		cfg.Telegram.ChatID = v.GetInt64("telegram.chat_id")
	}
	if v.IsSet("runner.tick_interval") {
		if d := v.GetDuration("runner.tick_interval"); d > 0 {
			cfg.Runner.TickInterval = d
		}
	}
	if s := v.GetString("runner.watch_symbols"); s != "" {
		cfg.Runner.WatchSymbols = splitList(s)
	}
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToUpper(p))
	}
	return out
}

// Validate отсекает заведомо невозможные значения.
func (c *Config) Validate() error {
	switch {
	case c.Exchange.MaxConcurrency <= 0:
		return errors.New("exchange.max_concurrency must be > 0")
	case c.Exchange.CallTimeout <= 0:
		return errors.New("exchange.call_timeout must be > 0")
	case c.Runner.TickInterval <= 0:
		return errors.New("runner.tick_interval must be > 0")
	case c.Runner.InboxSize <= 0:
		return errors.New("runner.inbox_size must be > 0")
	case c.Execution.MinNotionalUSD < 0:
		return errors.New("execution.min_notional_usd must be >= 0")
	case c.Execution.BETolerance < 0:
		return errors.New("execution.be_tolerance must be >= 0")
	case c.Execution.BEFeeBuffer < 0 || c.Execution.BEFeeBuffer >= 0.1:
		return errors.New("execution.be_fee_buffer must be in [0, 0.1)")
	case c.Execution.MarginMode != "cross" && c.Execution.MarginMode != "isolated":
		return errors.Errorf("execution.margin_mode %q: want cross or isolated", c.Execution.MarginMode)
	case c.OKX.HedgeMode:
		// журнал и гейт ведут одну позицию на символ
		return errors.New("okx.hedge_mode is not supported: account must be in net position mode")
	}
	for sym, tick := range c.Exchange.TriggerTicks {
		if tick <= 0 {
			return errors.Errorf("exchange.trigger_ticks[%s] must be > 0", sym)
		}
	}
	return nil
}

// TriggerTick: переопределение тика для условных ордеров по символу, 0 если нет.
func (c *Config) TriggerTick(symbol string) float64 {
	if c.Exchange.TriggerTicks == nil {
		return 0
	}
	if t, ok := c.Exchange.TriggerTicks[strings.ToUpper(symbol)]; ok {
		return t
	}
	return 0
}

// IsIsolatedOnly: символ из списка isolated_only.
func (c *Config) IsIsolatedOnly(symbol string) bool {
	for _, s := range c.Execution.IsolatedOnly {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

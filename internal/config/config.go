// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging.
type App struct {
	Name        string
	Env         string
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Program pins the trading and lending program addresses. Empty values use the built-in ids.
type Program struct {
	ID               string `yaml:"id"`
	LendingProgramID string `yaml:"lending_program_id"`
}

// Market names the traded pair by symbol and mint.
type Market struct {
	Base      string `yaml:"base"`
	Quote     string `yaml:"quote"`
	BaseMint  string `yaml:"base_mint"`
	QuoteMint string `yaml:"quote_mint"`
}

// Flashloan configures the lending reserve. Empty addresses are generated at startup.
type Flashloan struct {
	Reserve         string `yaml:"reserve"`
	LendingMarket   string `yaml:"lending_market"`
	LiquiditySupply string `yaml:"liquidity_supply"`
	FeeBps          uint64 `yaml:"fee_bps"`
	Liquidity       uint64 `yaml:"liquidity"`
}

// Risk encodes guard-rails for how much a single request may do.
type Risk struct {
	MaxLoanAmount uint64 `yaml:"max_loan_amount"`
	MaxActions    int    `yaml:"max_actions"`
}

// Events configures where committed events are sent.
type Events struct {
	Buffer    int    `yaml:"buffer"`
	JSONLPath string `yaml:"jsonl_path"`
	Redis     Redis  `yaml:"redis"`
}

// Redis configures the optional event stream sink. Empty Addr disables it.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// Store configures the SQLite receipt journal.
type Store struct {
	Path            string        `yaml:"path"`
	InMemory        bool          `yaml:"in_memory"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Program   Program   `yaml:"program"`
	Market    Market    `yaml:"market"`
	Flashloan Flashloan `yaml:"flashloan"`
	Oracle    Oracle    `yaml:"oracle"`
	Risk      Risk      `yaml:"risk"`
	Events    Events    `yaml:"events"`
	Store     Store     `yaml:"store"`
	Wallet    Wallet    `yaml:"wallet"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Environment overrides applied by ApplyEnv.
const (
	EnvLogLevel    = "FLASHTRADE_LOG_LEVEL"
	EnvMetricsAddr = "FLASHTRADE_METRICS_ADDR"
	EnvStorePath   = "FLASHTRADE_STORE_PATH"
	EnvRPCURL      = "SOLANA_RPC_URL"
	EnvRedisAddr   = "REDIS_ADDR"
)

// ApplyEnv loads dotenv files (missing files are ignored) and overrides fields
// from the process environment.
func (c *Config) ApplyEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	if len(files) == 0 {
		_ = godotenv.Load() // best-effort
	}
	override(&c.App.LogLevel, EnvLogLevel)
	override(&c.App.MetricsAddr, EnvMetricsAddr)
	override(&c.Store.Path, EnvStorePath)
	override(&c.Oracle.RpcURL, EnvRPCURL)
	override(&c.Events.Redis.Addr, EnvRedisAddr)
}

func override(field *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*field = strings.TrimSpace(v)
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var err error
	if c.App.LogLevel != "" {
		if _, perr := zerolog.ParseLevel(strings.ToLower(c.App.LogLevel)); perr != nil {
			err = multierr.Append(err, fmt.Errorf("app.log_level %q is not a level", c.App.LogLevel))
		}
	}
	if f := strings.ToLower(c.App.LogFormat); f != "" && f != "json" && f != "console" {
		err = multierr.Append(err, fmt.Errorf("app.log_format must be json or console, got %q", c.App.LogFormat))
	}
	err = multierr.Append(err, optionalKey("program.id", c.Program.ID))
	err = multierr.Append(err, optionalKey("program.lending_program_id", c.Program.LendingProgramID))

	if c.Market.Base == "" || c.Market.Quote == "" {
		err = multierr.Append(err, errors.New("market.base and market.quote are required"))
	}
	err = multierr.Append(err, optionalKey("market.base_mint", c.Market.BaseMint))
	err = multierr.Append(err, optionalKey("market.quote_mint", c.Market.QuoteMint))
	if c.Market.BaseMint != "" && c.Market.BaseMint == c.Market.QuoteMint {
		err = multierr.Append(err, errors.New("market.base_mint and market.quote_mint must differ"))
	}

	if c.Flashloan.FeeBps > 10_000 {
		err = multierr.Append(err, errors.New("flashloan.fee_bps must be at most 10000"))
	}
	err = multierr.Append(err, optionalKey("flashloan.reserve", c.Flashloan.Reserve))
	err = multierr.Append(err, optionalKey("flashloan.lending_market", c.Flashloan.LendingMarket))
	err = multierr.Append(err, optionalKey("flashloan.liquidity_supply", c.Flashloan.LiquiditySupply))

	if c.Risk.MaxActions < 0 {
		err = multierr.Append(err, errors.New("risk.max_actions must not be negative"))
	}
	err = multierr.Append(err, c.Oracle.validate())

	if c.Events.Buffer < 0 {
		err = multierr.Append(err, errors.New("events.buffer must not be negative"))
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		err = multierr.Append(err, errors.New("store.path is required unless store.in_memory"))
	}
	if c.Store.MaxOpenConns < 0 || c.Store.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("store connection limits must not be negative"))
	}
	if c.Store.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("store.conn_max_lifetime must not be negative"))
	}
	return err
}

func optionalKey(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := solana.PublicKeyFromBase58(value); err != nil {
		return fmt.Errorf("%s: invalid address %q: %w", field, value, err)
	}
	return nil
}

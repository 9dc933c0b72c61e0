package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"llm-crypto-trader/internal/engine"
	"llm-crypto-trader/internal/eod"
	"llm-crypto-trader/internal/tradelog"
	"llm-crypto-trader/internal/types"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"
)

type Config struct {
	Mode string `yaml:"mode"`

	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Engine struct {
		Coin           string  `yaml:"coin"`
		Quote          string  `yaml:"quote"`
		Timeframe      string  `yaml:"timeframe"`
		CandleInterval string  `yaml:"candle_interval"`
		Amount         float64 `yaml:"amount"`
		Strategy       string  `yaml:"strategy"`
		Language       string  `yaml:"language"`
		AutoStart      bool    `yaml:"auto_start"`
	} `yaml:"engine"`

	Exchange struct {
		Name              string  `yaml:"name"`
		FeeRate           float64 `yaml:"fee_rate"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		PaperBalance      float64 `yaml:"paper_balance"`
	} `yaml:"exchange"`

	LLM struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		BaseURL        string  `yaml:"base_url"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float64 `yaml:"temperature"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"llm"`

	Storage struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`

	News struct {
		Enabled      bool `yaml:"enabled"`
		MaxArticles  int  `yaml:"max_articles"`
		CacheMinutes int  `yaml:"cache_minutes"`
	} `yaml:"news"`

	Telegram struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"telegram"`

	EOD struct {
		Enabled bool   `yaml:"enabled"`
		Cutoff  string `yaml:"cutoff"`
	} `yaml:"eod"`

	Logs struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"logs"`

	Secrets Secrets `yaml:"-"`
}

// Secrets come from the environment only, never from the YAML file.
type Secrets struct {
	BinanceAPIKey    string
	BinanceSecretKey string
	OpenAIAPIKey     string
	ClaudeAPIKey     string
	TelegramToken    string
	TelegramChatID   int64
	RedisURL         string
	DatabaseURL      string
}

// SecretsFromEnv reads the credential variables. A malformed chat id is an error.
func SecretsFromEnv() (Secrets, error) {
	s := Secrets{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ClaudeAPIKey:     os.Getenv("CLAUDE_API_KEY"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		RedisURL:         os.Getenv("REDIS_URL"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
	}
	if s.BinanceSecretKey == "" {
		s.BinanceSecretKey = os.Getenv("BINANCE_SECRET")
	}
	if s.ClaudeAPIKey == "" {
		s.ClaudeAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return s, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		s.TelegramChatID = id
	}
	return s, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	c.Mode = strings.ToUpper(c.Mode)
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Engine.Coin == "" {
		c.Engine.Coin = "BTC"
	}
	if c.Engine.Quote == "" {
		c.Engine.Quote = "USDT"
	}
	c.Engine.Coin = strings.ToUpper(c.Engine.Coin)
	c.Engine.Quote = strings.ToUpper(c.Engine.Quote)
	if c.Engine.Timeframe == "" {
		c.Engine.Timeframe = "5m"
	}
	if c.Engine.CandleInterval == "" {
		c.Engine.CandleInterval = c.Engine.Timeframe
	}
	if c.Engine.Amount == 0 {
		c.Engine.Amount = 100
	}
	if c.Engine.Strategy == "" {
		c.Engine.Strategy = string(types.StrategyRule)
	}
	c.Engine.Strategy = strings.ToLower(c.Engine.Strategy)
	if c.Engine.Language == "" {
		c.Engine.Language = "en"
	}
	if c.Exchange.Name == "" {
		c.Exchange.Name = "binance"
	}
	if c.Exchange.FeeRate == 0 {
		c.Exchange.FeeRate = 0.001
	}
	if c.Exchange.RequestsPerSecond == 0 {
		c.Exchange.RequestsPerSecond = 10
	}
	if c.Exchange.PaperBalance == 0 {
		c.Exchange.PaperBalance = 10000
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = tradelog.BackendFile
	}
	if c.News.MaxArticles == 0 {
		c.News.MaxArticles = 10
	}
	if c.News.CacheMinutes == 0 {
		c.News.CacheMinutes = 30
	}
	if c.EOD.Cutoff == "" {
		c.EOD.Cutoff = "23:55"
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = "logs"
	}
}

func (c *Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if err := ValidateEngineConfig(c.EngineConfig()); err != nil {
		return err
	}
	switch strings.ToLower(c.Storage.Backend) {
	case tradelog.BackendFile, tradelog.BackendMemory:
	case tradelog.BackendRedis:
		if c.Secrets.RedisURL == "" {
			return errors.New("storage.backend 'redis' needs REDIS_URL")
		}
	case tradelog.BackendPostgres:
		if c.Secrets.DatabaseURL == "" {
			return errors.New("storage.backend 'postgres' needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("storage.backend must be 'file', 'redis', 'postgres' or 'memory', got '%s'", c.Storage.Backend)
	}
	if c.Exchange.FeeRate < 0 || c.Exchange.FeeRate >= 0.1 {
		return fmt.Errorf("exchange.fee_rate must be in [0, 0.1), got %v", c.Exchange.FeeRate)
	}
	if c.Exchange.RequestsPerSecond < 0 {
		return fmt.Errorf("exchange.requests_per_second must not be negative, got %v", c.Exchange.RequestsPerSecond)
	}
	if c.Mode == ModeLive && (c.Secrets.BinanceAPIKey == "" || c.Secrets.BinanceSecretKey == "") {
		return errors.New("LIVE mode needs BINANCE_API_KEY and BINANCE_SECRET_KEY")
	}
	if c.Telegram.Enabled && (c.Secrets.TelegramToken == "" || c.Secrets.TelegramChatID == 0) {
		return errors.New("telegram.enabled needs TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}
	if _, err := eod.ParseCutoff(c.EOD.Cutoff); err != nil {
		return fmt.Errorf("eod.cutoff: %w", err)
	}
	if c.Logs.RetentionDays < 0 {
		return fmt.Errorf("logs.retention_days must not be negative, got %d", c.Logs.RetentionDays)
	}
	return nil
}

// ValidateEngineConfig checks a configuration before an engine is built from it.
func ValidateEngineConfig(ec types.EngineConfig) error {
	if ec.Coin == "" || ec.Quote == "" {
		return errors.New("engine.coin and engine.quote are required")
	}
	if ec.Amount <= 0 {
		return fmt.Errorf("engine.amount must be positive, got %v", ec.Amount)
	}
	if _, err := engine.ParseInterval(ec.Timeframe); err != nil {
		return fmt.Errorf("engine.timeframe: %w", err)
	}
	if _, err := engine.ParseInterval(ec.CandleInterval); err != nil {
		return fmt.Errorf("engine.candle_interval: %w", err)
	}
	if ec.Strategy != types.StrategyRule && ec.Strategy != types.StrategyLLM {
		return fmt.Errorf("engine.strategy must be 'rule' or 'llm', got '%s'", ec.Strategy)
	}
	return nil
}

// EngineConfig is the engine configuration the file describes.
func (c *Config) EngineConfig() types.EngineConfig {
	return types.EngineConfig{
		Coin:           c.Engine.Coin,
		Quote:          c.Engine.Quote,
		Timeframe:      c.Engine.Timeframe,
		CandleInterval: c.Engine.CandleInterval,
		Amount:         c.Engine.Amount,
		Model:          c.LLM.Model,
		Strategy:       types.StrategyKind(c.Engine.Strategy),
		Exchange:       c.Exchange.Name,
		Language:       c.Engine.Language,
		FeeRate:        c.Exchange.FeeRate,
	}
}

func (c *Config) DryRun() bool {
	return c.Mode == ModeDryRun
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// LLMAPIKey picks the key for the configured provider.
func (c *Config) LLMAPIKey() string {
	switch strings.ToLower(c.LLM.Provider) {
	case "claude", "anthropic":
		return c.Secrets.ClaudeAPIKey
	default:
		return c.Secrets.OpenAIAPIKey
	}
}

// Parse decodes YAML, fills defaults and reads secrets from the environment.
// It does not validate.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	secrets, err := SecretsFromEnv()
	if err != nil {
		return nil, err
	}
	c.Secrets = secrets
	return &c, nil
}

// LoadConfig reads path and validates the result. A missing file yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

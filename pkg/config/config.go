package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinLot is the smallest volume a terminal accepts.
const MinLot = 0.01

// Config holds the settings for the signal bridge. Values come from
// defaults, then an optional YAML file, then environment variables.
type Config struct {
	Port     string `yaml:"port"`
	Language string `yaml:"language"` // "en" or "zh"

	// Storage
	DBPath     string `yaml:"db_path"`
	SignalsDir string `yaml:"signals_dir"`

	// Chat intake and notifications
	BotToken         string `yaml:"bot_token"`
	AllowedChannelID string `yaml:"allowed_channel_id"`
	NotifyChatID     string `yaml:"notify_chat_id"`

	// Execution
	TradingMode   string        `yaml:"trading_mode"` // file, simulation, metaapi, bridge
	MT5Host       string        `yaml:"mt5_host"`
	MT5Port       int           `yaml:"mt5_port"`
	BridgeTimeout time.Duration `yaml:"bridge_timeout"`

	// Remote broker
	MetaAPIToken     string        `yaml:"metaapi_token"`
	MetaAPIAccountID string        `yaml:"metaapi_account_id"`
	BrokerAddr       string        `yaml:"broker_addr"`
	BrokerTimeout    time.Duration `yaml:"broker_timeout"`

	// OCR sidecar; empty disables image intake
	OCRAddr string `yaml:"ocr_addr"`

	// Sizing
	MaxTradeSize          float64 `yaml:"max_trade_size"`
	MinTradeSize          float64 `yaml:"min_trade_size"`
	RiskPercentage        float64 `yaml:"risk_percentage"`
	ReferenceStopDistance float64 `yaml:"reference_stop_distance"`

	// Simulation
	SimulationSuccessRate float64       `yaml:"simulation_success_rate"`
	SimulationDelay       time.Duration `yaml:"simulation_delay"`
	SimulationBalance     float64       `yaml:"simulation_balance"`

	// Pipeline
	QueueSize int `yaml:"queue_size"`

	// API
	JWTSecret      string  `yaml:"jwt_secret"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:                  "8080",
		Language:              "en",
		DBPath:                "./data/signal_bridge.db",
		SignalsDir:            "./trade_signals",
		TradingMode:           "file",
		MT5Host:               "localhost",
		MT5Port:               18812,
		BridgeTimeout:         5 * time.Second,
		BrokerTimeout:         10 * time.Second,
		MaxTradeSize:          0.1,
		MinTradeSize:          0.01,
		RiskPercentage:        2,
		ReferenceStopDistance: 50,
		SimulationSuccessRate: 0.95,
		SimulationDelay:       500 * time.Millisecond,
		SimulationBalance:     10000,
		QueueSize:             32,
		RateLimitRPS:          20,
		RateLimitBurst:        50,
	}
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := Default()
	if err := loadYAML(cfg, getEnv("CONFIG_FILE", "config.yaml")); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML overlays path onto cfg. A missing file is not an error.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Port = getEnv("PORT", c.Port)
	c.Language = getEnv("LANGUAGE", c.Language)

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	c.DBPath = getEnv("DB_PATH", getEnv("DATABASE_PATH", c.DBPath))
	c.SignalsDir = getEnv("SIGNALS_DIR", c.SignalsDir)

	c.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.BotToken)
	c.AllowedChannelID = getEnv("ALLOWED_CHANNEL_ID", c.AllowedChannelID)
	c.NotifyChatID = getEnv("NOTIFY_CHAT_ID", c.NotifyChatID)

	c.TradingMode = strings.ToLower(getEnv("TRADING_MODE", c.TradingMode))
	c.MT5Host = getEnv("MT5_HOST", c.MT5Host)
	c.MT5Port = getEnvInt("MT5_PORT", c.MT5Port)
	c.BridgeTimeout = getEnvDuration("BRIDGE_TIMEOUT", c.BridgeTimeout)

	c.MetaAPIToken = getEnv("METAAPI_TOKEN", c.MetaAPIToken)
	c.MetaAPIAccountID = getEnv("METAAPI_ACCOUNT_ID", c.MetaAPIAccountID)
	c.BrokerAddr = getEnv("BROKER_ADDR", c.BrokerAddr)
	c.BrokerTimeout = getEnvDuration("BROKER_TIMEOUT", c.BrokerTimeout)

	c.OCRAddr = getEnv("OCR_ADDR", c.OCRAddr)

	c.MaxTradeSize = getEnvFloat("MAX_TRADE_SIZE", c.MaxTradeSize)
	c.MinTradeSize = getEnvFloat("MIN_TRADE_SIZE", c.MinTradeSize)
	c.RiskPercentage = getEnvFloat("RISK_PERCENTAGE", c.RiskPercentage)
	c.ReferenceStopDistance = getEnvFloat("REFERENCE_STOP_DISTANCE", c.ReferenceStopDistance)

	c.SimulationSuccessRate = getEnvFloat("SIMULATION_SUCCESS_RATE", c.SimulationSuccessRate)
	c.SimulationDelay = getEnvDuration("SIMULATION_DELAY", c.SimulationDelay)
	c.SimulationBalance = getEnvFloat("SIMULATION_BALANCE", c.SimulationBalance)

	c.QueueSize = getEnvInt("QUEUE_SIZE", c.QueueSize)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst)
}

// Validate rejects settings the sizer and pipeline cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxTradeSize < MinLot {
		errs = append(errs, fmt.Errorf("MAX_TRADE_SIZE must be at least %v, got %v", MinLot, c.MaxTradeSize))
	}
	if c.MinTradeSize > c.MaxTradeSize {
		errs = append(errs, fmt.Errorf("MIN_TRADE_SIZE %v exceeds MAX_TRADE_SIZE %v", c.MinTradeSize, c.MaxTradeSize))
	}
	if c.RiskPercentage <= 0 || c.RiskPercentage > 100 {
		errs = append(errs, fmt.Errorf("RISK_PERCENTAGE must be in (0, 100], got %v", c.RiskPercentage))
	}
	if c.SimulationSuccessRate < 0 || c.SimulationSuccessRate > 1 {
		errs = append(errs, fmt.Errorf("SIMULATION_SUCCESS_RATE must be in [0, 1], got %v", c.SimulationSuccessRate))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_SIZE must be positive, got %d", c.QueueSize))
	}
	return errors.Join(errs...)
}

// HasRemoteCredentials reports whether the metaapi mode can be used: it
// needs the broker gateway address as well as the token and account id.
func (c *Config) HasRemoteCredentials() bool {
	return c.MetaAPIToken != "" && c.MetaAPIAccountID != "" && c.BrokerAddr != ""
}

// HasBot reports whether chat notifications can be sent.
func (c *Config) HasBot() bool {
	return c.BotToken != "" && c.NotifyTarget() != ""
}

// NotifyTarget is the chat that receives outcomes and alerts.
func (c *Config) NotifyTarget() string {
	if c.NotifyChatID != "" {
		return c.NotifyChatID
	}
	return c.AllowedChannelID
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("750ms") or bare milliseconds ("750").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

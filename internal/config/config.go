package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/romico/HomeSure-sub002/libs/config"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Enabled false runs the service on the in-process cache instead.
	Enabled bool
}

type KafkaTopics struct {
	OrdersCreated   string
	OrdersCancelled string
	TradesExecuted  string
	EscrowsCreated  string
	EscrowsResolved string
}

type KafkaConfig struct {
	Brokers []string
	Topics  KafkaTopics
	// Enabled false disables event publishing entirely.
	Enabled bool
}

type ChainConfig struct {
	RPCURL            string
	ContractAddress   string
	PrivateKey        string
	ChainID           int64
	Confirmations     uint64
	EstimateTimeout   time.Duration
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
	RequireTieredFees bool
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

type ComplianceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Config struct {
	App           base.AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Chain         ChainConfig
	Compliance    ComplianceConfig
	JWTSecret     string
	SweepInterval time.Duration
}

// Load layers config.yaml under HOMESURE_-prefixed environment variables.
func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("HOMESURE_CONFIG"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("HOMESURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("HOMESURE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.topics.orders_created", "trading.orders.created")
	v.SetDefault("kafka.topics.orders_cancelled", "trading.orders.cancelled")
	v.SetDefault("kafka.topics.trades_executed", "trading.trades.executed")
	v.SetDefault("kafka.topics.escrows_created", "trading.escrows.created")
	v.SetDefault("kafka.topics.escrows_resolved", "trading.escrows.resolved")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("chain.rpc_url", "http://localhost:8545")
	v.SetDefault("chain.chain_id", 1337)
	v.SetDefault("chain.confirmations", 1)
	v.SetDefault("chain.max_retries", 3)
	v.SetDefault("compliance.base_url", "http://localhost:8086")
	v.SetDefault("sweep_interval", "1m")

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     envString("DB_HOST", envString("POSTGRES_HOST", "localhost")),
			Port:     envInt("DB_PORT", envInt("POSTGRES_PORT", 5432)),
			Name:     envString("DB_NAME", envString("POSTGRES_DB", "homesure_trading")),
			User:     envString("DB_USER", envString("POSTGRES_USER", "homesure")),
			Password: envString("DB_PASSWORD", envString("POSTGRES_PASSWORD", "homesure")),
			SSLMode:  envString("DB_SSLMODE", envString("POSTGRES_SSLMODE", "disable")),
		},
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", v.GetString("redis.addr")),
			Password: envString("REDIS_PASSWORD", v.GetString("redis.password")),
			DB:       envInt("REDIS_DB", v.GetInt("redis.db")),
			Enabled:  envBool("REDIS_ENABLED", v.GetBool("redis.enabled")),
		},
		Kafka: KafkaConfig{
			Brokers: envCSV("KAFKA_BROKERS", v.GetStringSlice("kafka.brokers")),
			Enabled: envBool("KAFKA_ENABLED", v.GetBool("kafka.enabled")),
			Topics: KafkaTopics{
				OrdersCreated:   envString("KAFKA_ORDERS_CREATED_TOPIC", v.GetString("kafka.topics.orders_created")),
				OrdersCancelled: envString("KAFKA_ORDERS_CANCELLED_TOPIC", v.GetString("kafka.topics.orders_cancelled")),
				TradesExecuted:  envString("KAFKA_TRADES_TOPIC", v.GetString("kafka.topics.trades_executed")),
				EscrowsCreated:  envString("KAFKA_ESCROWS_CREATED_TOPIC", v.GetString("kafka.topics.escrows_created")),
				EscrowsResolved: envString("KAFKA_ESCROWS_RESOLVED_TOPIC", v.GetString("kafka.topics.escrows_resolved")),
			},
		},
		Chain: ChainConfig{
			RPCURL:            envString("CHAIN_RPC_URL", v.GetString("chain.rpc_url")),
			ContractAddress:   envString("CHAIN_CONTRACT_ADDRESS", v.GetString("chain.contract_address")),
			PrivateKey:        envString("CHAIN_PRIVATE_KEY", v.GetString("chain.private_key")),
			ChainID:           int64(envInt("CHAIN_ID", v.GetInt("chain.chain_id"))),
			Confirmations:     uint64(envInt("CHAIN_CONFIRMATIONS", v.GetInt("chain.confirmations"))),
			EstimateTimeout:   envDuration("CHAIN_ESTIMATE_TIMEOUT", v.GetDuration("chain.estimate_timeout")),
			ConfirmTimeout:    envDuration("CHAIN_CONFIRM_TIMEOUT", v.GetDuration("chain.confirm_timeout")),
			PollInterval:      envDuration("CHAIN_POLL_INTERVAL", v.GetDuration("chain.poll_interval")),
			RequireTieredFees: envBool("CHAIN_REQUIRE_TIERED_FEES", v.GetBool("chain.require_tiered_fees")),
			MaxRetries:        envInt("CHAIN_MAX_RETRIES", v.GetInt("chain.max_retries")),
			InitialBackoff:    envDuration("CHAIN_INITIAL_BACKOFF", v.GetDuration("chain.initial_backoff")),
			MaxBackoff:        envDuration("CHAIN_MAX_BACKOFF", v.GetDuration("chain.max_backoff")),
		},
		Compliance: ComplianceConfig{
			BaseURL: envString("COMPLIANCE_BASE_URL", v.GetString("compliance.base_url")),
			APIKey:  envString("COMPLIANCE_API_KEY", v.GetString("compliance.api_key")),
			Timeout: envDuration("COMPLIANCE_TIMEOUT", v.GetDuration("compliance.timeout")),
		},
		JWTSecret:     envString("JWT_SECRET", v.GetString("jwt_secret")),
		SweepInterval: envDuration("SWEEP_INTERVAL", v.GetDuration("sweep_interval")),
	}

	if cfg.Chain.ContractAddress == "" {
		return nil, fmt.Errorf("chain contract address required")
	}
	if cfg.Chain.PrivateKey == "" {
		return nil, fmt.Errorf("chain private key required")
	}
	if cfg.Chain.ChainID <= 0 {
		return nil, fmt.Errorf("chain id must be positive")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Compliance.BaseURL == "" {
		return nil, fmt.Errorf("compliance base url required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv("HOMESURE_" + key); v != "" {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv("HOMESURE_" + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv("HOMESURE_" + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv("HOMESURE_" + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envCSV(key string, def []string) []string {
	raw := os.Getenv("HOMESURE_" + key)
	if raw == "" {
		raw = os.Getenv(key)
	}
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

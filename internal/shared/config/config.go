package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RabbitMQ    RabbitMQConfig    `mapstructure:"rabbitmq"`
	Installment InstallmentConfig `mapstructure:"installment"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// OperatorUserIDs may approve refunds. Empty disables back-office routes.
	OperatorUserIDs []string `mapstructure:"operator_user_ids"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration. An empty address disables the
// settlement cache and idempotency replay.
type RedisConfig struct {
	Address       string        `mapstructure:"address"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	SettlementTTL time.Duration `mapstructure:"settlement_ttl"`
}

// RabbitMQConfig holds broker configuration. An empty URL disables publishing.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// InstallmentConfig holds plan and settlement configuration.
type InstallmentConfig struct {
	// FeeRates maps a period count to its fee percentage, e.g. "3": "1.5".
	FeeRates      map[string]string `mapstructure:"fee_rates"`
	MinAmount     int64             `mapstructure:"min_amount"`
	NotifyBaseURL string            `mapstructure:"notify_base_url"`
	Subject       string            `mapstructure:"subject"`
}

// OutboxConfig holds outbox relay configuration.
type OutboxConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	BatchSize  int           `mapstructure:"batch_size"`
	Lease      time.Duration `mapstructure:"lease"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// GatewayConfig holds payment gateway configuration.
type GatewayConfig struct {
	Alipay  AlipayConfig  `mapstructure:"alipay"`
	Wechat  WechatConfig  `mapstructure:"wechat"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// AlipayConfig holds Alipay credentials. An empty app id disables Alipay.
type AlipayConfig struct {
	AppID           string `mapstructure:"app_id"`
	PrivateKey      string `mapstructure:"private_key"`
	AlipayPublicKey string `mapstructure:"alipay_public_key"`
	IsProd          bool   `mapstructure:"is_prod"`
}

// WechatConfig holds WeChat Pay credentials. An empty mch id disables WeChat Pay.
type WechatConfig struct {
	AppID                 string `mapstructure:"app_id"`
	MchID                 string `mapstructure:"mch_id"`
	APIKeyV3              string `mapstructure:"api_key_v3"`
	SerialNo              string `mapstructure:"serial_no"`
	PrivateKey            string `mapstructure:"private_key"`
	WechatPublicKeySerial string `mapstructure:"wechat_public_key_serial"`
	WechatPublicKey       string `mapstructure:"wechat_public_key"`
	IsProd                bool   `mapstructure:"is_prod"`
}

// BreakerConfig holds circuit breaker settings for gateway calls.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/shopcore")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("SHOPCORE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Secrets are never read from the config file when set in the environment.
	if password := os.Getenv("SHOPCORE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("SHOPCORE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if url := os.Getenv("SHOPCORE_RABBITMQ_URL"); url != "" {
		cfg.RabbitMQ.URL = url
	}
	if key := os.Getenv("SHOPCORE_ALIPAY_PRIVATE_KEY"); key != "" {
		cfg.Gateway.Alipay.PrivateKey = key
	}
	if key := os.Getenv("SHOPCORE_WECHAT_PRIVATE_KEY"); key != "" {
		cfg.Gateway.Wechat.PrivateKey = key
	}
	if key := os.Getenv("SHOPCORE_WECHAT_API_KEY_V3"); key != "" {
		cfg.Gateway.Wechat.APIKeyV3 = key
	}
	if ids := os.Getenv("SHOPCORE_OPERATOR_USER_IDS"); ids != "" {
		cfg.Server.OperatorUserIDs = strings.Split(ids, ",")
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "shopcore")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.settlement_ttl", 24*time.Hour)

	// RabbitMQ defaults
	v.SetDefault("rabbitmq.exchange", "order_events")

	// Installment defaults
	v.SetDefault("installment.fee_rates", map[string]string{
		"3":  "1.5",
		"6":  "1.0",
		"12": "0.8",
	})
	v.SetDefault("installment.min_amount", 10000)
	v.SetDefault("installment.notify_base_url", "http://localhost:8080")
	v.SetDefault("installment.subject", "ShopCore")

	// Outbox defaults
	v.SetDefault("outbox.interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.lease", 30*time.Second)
	v.SetDefault("outbox.max_retries", 10)

	// Gateway defaults
	v.SetDefault("gateway.breaker.failure_threshold", 5)
	v.SetDefault("gateway.breaker.interval", 60*time.Second)
	v.SetDefault("gateway.breaker.timeout", 30*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

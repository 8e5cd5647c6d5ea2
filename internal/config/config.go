package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port                   int    `mapstructure:"port"`
	Mode                   string `mapstructure:"mode"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	NodeID                 int64  `mapstructure:"node_id"`
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig selects the gorm dialector. DSN, when set, is used verbatim;
// otherwise it is assembled from the host fields for mysql and postgres.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
	Seed         bool   `mapstructure:"seed"`
}

type RedisConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	LockTTLSeconds  int    `mapstructure:"lock_ttl_seconds"`
	LockRetryMillis int    `mapstructure:"lock_retry_millis"`
	LockMaxRetries  int    `mapstructure:"lock_max_retries"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Wallet       string `mapstructure:"wallet"`
	Order        string `mapstructure:"order"`
	Registration string `mapstructure:"registration"`
	Payment      string `mapstructure:"payment"`
}

type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	Issuer        string `mapstructure:"issuer"`
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`
	AdminRole     string `mapstructure:"admin_role"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GatewayConfig struct {
	Secret           string `mapstructure:"secret"`
	RequireSignature bool   `mapstructure:"require_signature"`
	Currency         string `mapstructure:"currency"`
}

type BusinessConfig struct {
	WelcomeBonus          int64 `mapstructure:"welcome_bonus"`
	MaxAmount             int64 `mapstructure:"max_amount"`
	OrderTimeoutMinutes   int   `mapstructure:"order_timeout_minutes"`
	PaymentTimeoutMinutes int   `mapstructure:"payment_timeout_minutes"`
	MaxRetryCount         int   `mapstructure:"max_retry_count"`
	CheckoutTimeoutSecs   int   `mapstructure:"checkout_timeout_seconds"`
	JobBatchSize          int   `mapstructure:"job_batch_size"`
	AuditIntervalMinutes  int   `mapstructure:"audit_interval_minutes"`
}

func (b BusinessConfig) OrderTimeout() time.Duration {
	return time.Duration(b.OrderTimeoutMinutes) * time.Minute
}

func (b BusinessConfig) PaymentTimeout() time.Duration {
	return time.Duration(b.PaymentTimeoutMinutes) * time.Minute
}

func (b BusinessConfig) CheckoutTimeout() time.Duration {
	return time.Duration(b.CheckoutTimeoutSecs) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout_seconds", 5)
	v.SetDefault("server.node_id", 1)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.name", "ignitia")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.seed", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl_seconds", 30)
	v.SetDefault("redis.lock_retry_millis", 100)
	v.SetDefault("redis.lock_max_retries", 30)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.wallet", "ignitia.wallet")
	v.SetDefault("kafka.topic.order", "ignitia.order")
	v.SetDefault("kafka.topic.registration", "ignitia.registration")
	v.SetDefault("kafka.topic.payment", "ignitia.payment")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "ignitia")
	v.SetDefault("auth.token_ttl_hours", 24)
	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("gateway.secret", "")
	v.SetDefault("gateway.require_signature", false)
	v.SetDefault("gateway.currency", "INR")

	v.SetDefault("business.welcome_bonus", 2000)
	v.SetDefault("business.max_amount", 1000000)
	v.SetDefault("business.order_timeout_minutes", 15)
	v.SetDefault("business.payment_timeout_minutes", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.checkout_timeout_seconds", 10)
	v.SetDefault("business.job_batch_size", 100)
	v.SetDefault("business.audit_interval_minutes", 10)
}

// LoadConfig reads configPath (yaml) on top of defaults. A missing file is not
// an error; every key can be overridden by IGNITIA_<SECTION>_<KEY> variables,
// and a .env file in the working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("IGNITIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Business.WelcomeBonus < 0 {
		return fmt.Errorf("business.welcome_bonus must not be negative")
	}
	if c.Business.MaxAmount <= 0 {
		return fmt.Errorf("business.max_amount must be positive")
	}
	if c.Business.WelcomeBonus > c.Business.MaxAmount {
		return fmt.Errorf("business.welcome_bonus must not exceed business.max_amount")
	}
	if c.Business.MaxRetryCount <= 0 {
		return fmt.Errorf("business.max_retry_count must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

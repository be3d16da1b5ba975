// Package config holds the environment-driven configuration structs for
// every external dependency Cockpit talks to. The Default()/LoadFromEnv()
// pair on each struct follows the shape of kubernaut's
// internal/database.Config (DefaultConfig + LoadFromEnv, tolerant of
// missing or malformed env vars by falling back to the default).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "cockpit",
		Database:        "cockpit",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func (c *DatabaseConfig) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		c.SSLMode = v
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig configures the broker / result-store / agent-bus connection.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     20,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (c *RedisConfig) LoadFromEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.DB = db
		}
	}
}

// NautobotConfig configures the Nautobot gateway.
type NautobotConfig struct {
	URL      string
	Token    string
	VerifyTLS bool
	CacheTTL time.Duration
}

func DefaultNautobotConfig() *NautobotConfig {
	return &NautobotConfig{VerifyTLS: true, CacheTTL: 30 * time.Minute}
}

func (c *NautobotConfig) LoadFromEnv() {
	if v := os.Getenv("NAUTOBOT_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("NAUTOBOT_TOKEN"); v != "" {
		c.Token = v
	}
}

// CheckMKConfig configures the CheckMK gateway.
type CheckMKConfig struct {
	URL      string
	Site     string
	Username string
	Password string
}

func DefaultCheckMKConfig() *CheckMKConfig { return &CheckMKConfig{} }

func (c *CheckMKConfig) LoadFromEnv() {
	if v := os.Getenv("CHECKMK_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("CHECKMK_SITE"); v != "" {
		c.Site = v
	}
	if v := os.Getenv("CHECKMK_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("CHECKMK_PASSWORD"); v != "" {
		c.Password = v
	}
}

// AuthConfig configures JWT issuance.
type AuthConfig struct {
	SecretKey     string
	AccessTTL     time.Duration
	RefreshWindow time.Duration
}

func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{AccessTTL: 15 * time.Minute, RefreshWindow: 24 * time.Hour}
}

func (c *AuthConfig) LoadFromEnv() {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.SecretKey = v
	}
}

// Validate fails fast if SECRET_KEY is empty.
func (c *AuthConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY must be set and non-empty")
	}
	return nil
}

// Load assembles every config struct from the environment in one call,
// used by every cmd/ entrypoint.
type Config struct {
	Database *DatabaseConfig
	Redis    *RedisConfig
	Nautobot *NautobotConfig
	CheckMK  *CheckMKConfig
	Auth     *AuthConfig
}

func Load() (*Config, error) {
	c := &Config{
		Database: DefaultDatabaseConfig(),
		Redis:    DefaultRedisConfig(),
		Nautobot: DefaultNautobotConfig(),
		CheckMK:  DefaultCheckMKConfig(),
		Auth:     DefaultAuthConfig(),
	}
	c.Database.LoadFromEnv()
	c.Redis.LoadFromEnv()
	c.Nautobot.LoadFromEnv()
	c.CheckMK.LoadFromEnv()
	c.Auth.LoadFromEnv()

	if err := c.Auth.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

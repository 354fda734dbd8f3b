package utils

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// MarketDataConfig holds the price provider configuration
type MarketDataConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// SchedulerConfig holds the background job configuration
type SchedulerConfig struct {
	SnapshotCron string `mapstructure:"snapshot_cron"` // nightly snapshot sweep
	PriceCron    string `mapstructure:"price_cron"`    // market data refresh
	QueueSize    int    `mapstructure:"queue_size"`    // backfill queue capacity
	Workers      int    `mapstructure:"workers"`       // concurrent backfill workers
}

// Config holds all configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	LogLevel   string           `mapstructure:"log_level"`
}

// BuildDSN builds the database connection string
func (c *Config) BuildDSN() {
	c.Database.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// RequestTimeout returns the market data request timeout as a duration.
func (c *MarketDataConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AddConfigPath(".")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("scheduler.snapshot_cron", "30 0 * * *")
	viper.SetDefault("scheduler.price_cron", "0 18 * * 1-5")
	viper.SetDefault("scheduler.queue_size", 256)
	viper.SetDefault("scheduler.workers", 4)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build the DSN string
	config.BuildDSN()

	return &config, nil
}

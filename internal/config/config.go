package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/smartdevs17/escrowd/pkg/utils"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Chain         ChainConfig        `mapstructure:"chain"`
	Fees          FeeConfig          `mapstructure:"fees"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ChainConfig contains settlement anchor configuration
type ChainConfig struct {
	Mode           string        `mapstructure:"mode"` // local, rpc
	NodeURL        string        `mapstructure:"node_url"`
	NetworkID      int           `mapstructure:"network_id"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// FeeConfig contains release fee configuration
type FeeConfig struct {
	FeePercent  int    `mapstructure:"fee_percent"`
	FeeWallet   string `mapstructure:"fee_wallet"`
	BurnAddress string `mapstructure:"burn_address"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	RetentionDays    int           `mapstructure:"retention_days"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled             bool            `mapstructure:"enabled"`
	QueueSize           int             `mapstructure:"queue_size"`
	Workers             int             `mapstructure:"workers"`
	RetryAttempts       int             `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration   `mapstructure:"retry_delay"`
	NotificationTimeout time.Duration   `mapstructure:"notification_timeout"`
	Channels            []ChannelConfig `mapstructure:"channels"`
}

// ChannelConfig declares one notification channel
type ChannelConfig struct {
	Name    string            `mapstructure:"name"`
	Type    string            `mapstructure:"type"` // webhook, log
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	EnableMetrics   bool          `mapstructure:"enable_metrics"`
	EnableHealth    bool          `mapstructure:"enable_health"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("ESCROWD")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if nodeURL := os.Getenv("ESCROWD_NODE_URL"); nodeURL != "" {
		config.Chain.NodeURL = nodeURL
		config.Chain.Mode = "rpc"
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "escrowd")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Chain defaults: local anchoring so the service runs standalone
	viper.SetDefault("chain.mode", "local")
	viper.SetDefault("chain.node_url", "")
	viper.SetDefault("chain.network_id", 31)
	viper.SetDefault("chain.request_timeout", "30s")
	viper.SetDefault("chain.retry_attempts", 3)
	viper.SetDefault("chain.retry_delay", "5s")

	// Fee defaults: 10% total, split evenly between fee wallet and burn
	viper.SetDefault("fees.fee_percent", 10)
	viper.SetDefault("fees.fee_wallet", "0x00000000000000000000000000000000000000fe")
	viper.SetDefault("fees.burn_address", "0x000000000000000000000000000000000000dead")

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/escrowd.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")
	viper.SetDefault("storage.retention_days", 0)

	// Notification defaults
	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.queue_size", 100)
	viper.SetDefault("notifications.workers", 2)
	viper.SetDefault("notifications.retry_attempts", 3)
	viper.SetDefault("notifications.retry_delay", "10s")
	viper.SetDefault("notifications.notification_timeout", "30s")

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)
	viper.SetDefault("server.rate_limit_per_sec", 50)
	viper.SetDefault("server.rate_limit_burst", 100)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.Mode != "local" && c.Chain.Mode != "rpc" {
		return fmt.Errorf("chain mode must be local or rpc, got %q", c.Chain.Mode)
	}
	if c.Chain.Mode == "rpc" && c.Chain.NodeURL == "" {
		return fmt.Errorf("chain node URL is required in rpc mode")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Fees.FeePercent < 0 || c.Fees.FeePercent > 100 {
		return fmt.Errorf("fee percent must be between 0 and 100")
	}
	if !utils.IsValidAddress(c.Fees.FeeWallet) {
		return fmt.Errorf("fee wallet is not a valid address")
	}
	if !utils.IsValidAddress(c.Fees.BurnAddress) {
		return fmt.Errorf("burn address is not a valid address")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}
	return nil
}

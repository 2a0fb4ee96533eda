package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/logistics-console/internal/domain/doctype"
	"github.com/garyjia/logistics-console/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig     `mapstructure:"server"`
	Backend       BackendConfig    `mapstructure:"backend"`
	Database      DatabaseConfig   `mapstructure:"database"`
	Lark          LarkConfig       `mapstructure:"lark"`
	Export        ExportConfig     `mapstructure:"export"`
	Metrics       MetricsConfig    `mapstructure:"metrics"`
	References    ReferencesConfig `mapstructure:"references"`
	Logger        LoggerConfig     `mapstructure:"logger"`
	DocumentTypes []doctype.Config `mapstructure:"document_types"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Mode               string        `mapstructure:"mode"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
}

// BackendConfig holds the REST backend connection
type BackendConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// DatabaseConfig holds the local sqlite store configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyRetries     int           `mapstructure:"busy_retries"`
}

// LarkConfig holds the approval notification settings
type LarkConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	AppID     string        `mapstructure:"app_id"`
	AppSecret string        `mapstructure:"app_secret"`
	ChatID    string        `mapstructure:"chat_id"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ExportConfig holds where archived spreadsheets go
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// MetricsConfig holds prometheus settings
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Path        string `mapstructure:"path"`
	Environment string `mapstructure:"environment"`
}

// ReferencesConfig tunes lookup loading
type ReferencesConfig struct {
	LoadConcurrency int `mapstructure:"load_concurrency"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
	Sampling   bool   `mapstructure:"sampling"`
}

// Load reads configPath, then the environment. A .env file next to the
// working directory is loaded first when present. An empty configPath uses
// defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := gotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.session_idle_timeout", 30*time.Minute)
	v.SetDefault("server.sweep_interval", time.Minute)

	// Backend defaults
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("backend.user_agent", "logistics-console/1.0")

	// Database defaults
	v.SetDefault("database.path", "data/console.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.busy_retries", 3)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.chat_id", "")
	v.SetDefault("lark.base_url", "")
	v.SetDefault("lark.timeout", 10*time.Second)

	v.SetDefault("export.dir", "data/exports")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.environment", "development")

	v.SetDefault("references.load_concurrency", 4)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the variables that do not follow the key naming
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("backend.base_url", "CONSOLE_BACKEND_URL")
	_ = v.BindEnv("database.path", "CONSOLE_DB_PATH")
	_ = v.BindEnv("server.port", "CONSOLE_PORT")
	_ = v.BindEnv("lark.enabled", "LARK_ENABLED")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.chat_id", "LARK_CHAT_ID")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if err := utils.ValidateBaseURL(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.SessionIdleTimeout <= 0 {
		return fmt.Errorf("server.session_idle_timeout must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
		if c.Lark.ChatID == "" {
			return fmt.Errorf("lark.chat_id is required when lark is enabled")
		}
	}

	for i, dt := range c.DocumentTypes {
		if dt.Name == "" {
			return fmt.Errorf("document_types[%d].name is required", i)
		}
	}
	return nil
}

// Registry returns the default document types with the configured overrides applied
func (c *Config) Registry() (*doctype.Registry, error) {
	registry := doctype.DefaultRegistry()
	if err := registry.Override(c.DocumentTypes); err != nil {
		return nil, fmt.Errorf("document_types: %w", err)
	}
	return registry, nil
}

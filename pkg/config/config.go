package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config global configuration
// Loaded once at startup and passed explicitly; never mutated afterwards.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	K8s          K8sConfig          `yaml:"k8s"`
	Heroku       HerokuConfig       `yaml:"heroku"`
	Logger       LoggerConfig       `yaml:"logger"`
	Notification NotificationConfig `yaml:"notification"`
	Providers    ProvidersConfig    `yaml:"providers"`
	AutoScaler   AutoScalerConfig   `yaml:"autoscaler"`
	Scaling      ScalingConfig      `yaml:"scaling"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for trigger hooks (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration, shared by the poll lock and the asynq metrics provider
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration for the delayed jobs table
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"` // jobs table name, default delayed_jobs
}

// DSN builds the go-sql-driver DSN
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// K8sConfig K8s fleet configuration
type K8sConfig struct {
	Namespace        string `yaml:"namespace"`
	Kubeconfig       string `yaml:"kubeconfig"`        // optional, in-cluster config is tried first
	DeploymentPrefix string `yaml:"deployment_prefix"` // deployment name = prefix + queue type
}

// HerokuConfig platform API fleet configuration
type HerokuConfig struct {
	AppName string `yaml:"app_name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// NotificationConfig notification configuration
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"`
}

// ProvidersConfig providers configuration
type ProvidersConfig struct {
	Metrics string `yaml:"metrics"` // Queue metrics provider: mysql, asynq
	Fleet   string `yaml:"fleet"`   // Fleet provider: k8s, heroku
}

// AutoScalerConfig trigger handling configuration
type AutoScalerConfig struct {
	Async        bool `yaml:"async"`         // dispatch hook triggers in the background
	PollInterval int  `yaml:"poll_interval"` // seconds between full re-evaluations, 0 disables polling
	RecentEvents int  `yaml:"recent_events"` // size of the in-memory event ring
}

// PollDuration returns the poll interval as a duration
func (c AutoScalerConfig) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// Load reads and validates the configuration file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	validateAndApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init loads configuration from CONFIG_PATH (default config/config.yaml)
func Init() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	return Load(configPath)
}

const (
	defaultPort         = 8080
	defaultMode         = "release"
	defaultLogLevel     = "info"
	defaultLogOutput    = "console"
	defaultJobsTable    = "delayed_jobs"
	defaultNamespace    = "default"
	defaultHerokuURL    = "https://api.heroku.com"
	defaultHerokuTO     = 30
	defaultRecentEvents = 50
)

// validateAndApplyDefaults fills zero and invalid ambient values with defaults.
// Scaling policy values are never defaulted; they are validated instead.
func validateAndApplyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = defaultMode
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = defaultLogLevel
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = defaultLogOutput
	}
	if cfg.MySQL.Table == "" {
		cfg.MySQL.Table = defaultJobsTable
	}
	if cfg.K8s.Namespace == "" {
		cfg.K8s.Namespace = defaultNamespace
	}
	if cfg.Heroku.BaseURL == "" {
		cfg.Heroku.BaseURL = defaultHerokuURL
	}
	if cfg.Heroku.Timeout <= 0 {
		cfg.Heroku.Timeout = defaultHerokuTO
	}
	if cfg.AutoScaler.PollInterval < 0 {
		cfg.AutoScaler.PollInterval = 0
	}
	if cfg.AutoScaler.RecentEvents <= 0 {
		cfg.AutoScaler.RecentEvents = defaultRecentEvents
	}
	if cfg.Providers.Metrics == "" {
		cfg.Providers.Metrics = "mysql"
	}
	if cfg.Providers.Fleet == "" {
		cfg.Providers.Fleet = "k8s"
	}
}

// Validate checks everything that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Providers.Metrics {
	case "mysql", "asynq":
	default:
		return fmt.Errorf("unsupported metrics provider: %s", c.Providers.Metrics)
	}
	switch c.Providers.Fleet {
	case "k8s", "kubernetes", "heroku":
	default:
		return fmt.Errorf("unsupported fleet provider: %s", c.Providers.Fleet)
	}
	if c.Logger.Output != "console" && c.Logger.File.Path == "" {
		return fmt.Errorf("logger.file.path is required for output %q", c.Logger.Output)
	}
	if c.Providers.Fleet == "heroku" && c.Heroku.AppName == "" {
		return fmt.Errorf("heroku.app_name is required for the heroku fleet provider")
	}

	if _, err := c.Scaling.Policy(); err != nil {
		return fmt.Errorf("invalid scaling policy: %w", err)
	}
	return nil
}

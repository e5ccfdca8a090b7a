package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"sheetsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Google     GoogleConfig     `yaml:"google"`
	Sync       SyncSection      `yaml:"sync"`
	API        APIConfig        `yaml:"api"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type GoogleConfig struct {
	CredentialsFile string            `yaml:"credentials_file"`
	RateLimit       RateLimitSettings `yaml:"rate_limit"`
}

// SyncSection mirrors models.SyncConfig with direction and frequency kept as
// text until Validate parses them.
type SyncSection struct {
	Enabled   bool   `yaml:"enabled"`
	Direction string `yaml:"direction"`
	Frequency string `yaml:"frequency"`
	AutoRun   bool   `yaml:"auto_run"`
}

type APIConfig struct {
	Enabled   bool              `yaml:"enabled"`
	HTTP      APIHTTPConfig     `yaml:"http"`
	Auth      APIAuthConfig     `yaml:"auth"`
	RateLimit RateLimitSettings `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type RateLimitSettings struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RedisConfig struct {
	Address     string `yaml:"address"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
	SnapshotKey string `yaml:"snapshot_key"`
	SnapshotTTL int    `yaml:"snapshot_ttl"` // seconds
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks the settings the daemon cannot start without. Sync
// direction and frequency errors carry the ConfigurationError code.
func (c *Config) Validate() error {
	if c.Google.CredentialsFile == "" {
		return errors.New("google credentials file is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.Auth.Enabled && c.API.HTTP.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth is enabled but no api keys are configured")
	}
	_, err := c.SyncConfig()
	return err
}

// SyncConfig converts the sync section into the engine configuration.
func (c *Config) SyncConfig() (models.SyncConfig, error) {
	direction, err := models.ParseDirection(c.Sync.Direction)
	if err != nil {
		return models.SyncConfig{}, err
	}
	frequency, err := models.ParseFrequency(c.Sync.Frequency)
	if err != nil {
		return models.SyncConfig{}, err
	}
	return models.SyncConfig{
		Enabled:   c.Sync.Enabled,
		Direction: direction,
		Frequency: frequency,
		AutoRun:   c.Sync.AutoRun,
	}, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "sheetsync"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	defaults := models.DefaultSyncConfig()
	if c.Sync.Direction == "" {
		c.Sync.Direction = string(defaults.Direction)
	}
	if c.Sync.Frequency == "" {
		c.Sync.Frequency = string(defaults.Frequency)
	}

	if c.Google.RateLimit.RPS == 0 {
		c.Google.RateLimit.RPS = models.DefaultSheetsRPS
	}
	if c.Google.RateLimit.Burst == 0 {
		c.Google.RateLimit.Burst = models.DefaultSheetsBurst
	}

	if c.Redis.SnapshotKey == "" {
		c.Redis.SnapshotKey = models.DefaultSnapshotKey
	}
	if c.Redis.SnapshotTTL == 0 {
		c.Redis.SnapshotTTL = models.DefaultSnapshotTTL
	}
}

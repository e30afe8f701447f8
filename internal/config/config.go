package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Storage  StorageConfig   `yaml:"storage"`
	Database DatabaseConfig  `yaml:"database"`
	Printing PrintingConfig  `yaml:"printing"`
	Display  DisplayConfig   `yaml:"display"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
	RateLimit    int           `yaml:"rate_limit"`
	RateWindow   time.Duration `yaml:"rate_window"`
}

type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	// FallbackRetention is how long a file handed to the fallback browser
	// stays on disk before it is removed.
	FallbackRetention time.Duration `yaml:"fallback_retention"`
}

// DatabaseConfig points at the sqlite file holding operator settings and
// daily print counters. An empty path disables both.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ExecutorConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

type PrintingConfig struct {
	Primary         ExecutorConfig `yaml:"primary"`
	Fallback        ExecutorConfig `yaml:"fallback"`
	PrimaryTimeout  time.Duration  `yaml:"primary_timeout"`
	FallbackReap    time.Duration  `yaml:"fallback_reap_timeout"`
	SerializeDevice bool           `yaml:"serialize_device"`
}

type DisplayConfig struct {
	Title           string        `yaml:"title"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// MQTTConfig publishes kiosk events to a broker. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Minute,
			MaxUploadMB:  64,
			RateLimit:    30,
			RateWindow:   time.Minute,
		},
		Storage: StorageConfig{
			UploadDir:         "./data/temp_files",
			FallbackRetention: 2 * time.Minute,
		},
		Database: DatabaseConfig{
			Path: "./data/printconnect.db",
		},
		Printing: PrintingConfig{
			Primary: ExecutorConfig{
				Path: `C:\kiosk_project\SumatraPDF.exe`,
				Args: []string{"-print-to-default", "-silent", "-exit-on-print", "{file}"},
			},
			Fallback: ExecutorConfig{
				Path: `C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
				Args: []string{"--kiosk-printing", "--print-to-default", "{file}"},
			},
			PrimaryTimeout: 20 * time.Second,
			FallbackReap:   2 * time.Minute,
		},
		Display: DisplayConfig{
			Title:           "PRINT CONNECT",
			RefreshInterval: 3 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:    "printconnect",
			TopicPrefix: "printconnect",
			QoS:         1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaults()
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with PRINTCONNECT_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PRINTCONNECT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTCONNECT_UPLOAD_DIR"); v != "" {
		c.Storage.UploadDir = v
	}

	if v, ok := os.LookupEnv("PRINTCONNECT_DB_PATH"); ok {
		c.Database.Path = v
	}

	if v := os.Getenv("PRINTCONNECT_PRIMARY_PATH"); v != "" {
		c.Printing.Primary.Path = v
	}

	if v := os.Getenv("PRINTCONNECT_FALLBACK_PATH"); v != "" {
		c.Printing.Fallback.Path = v
	}

	if v := os.Getenv("PRINTCONNECT_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}

	if v := os.Getenv("PRINTCONNECT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("max upload size must be at least 1 MB")
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must be non-negative")
	}

	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("rate window must be positive when rate limiting is enabled")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("storage upload dir is required")
	}

	if c.Storage.FallbackRetention < 0 {
		return fmt.Errorf("fallback retention must be non-negative")
	}

	if c.Printing.Primary.Path == "" {
		return fmt.Errorf("primary executor path is required")
	}

	if c.Printing.Fallback.Path == "" {
		return fmt.Errorf("fallback executor path is required")
	}

	if c.Printing.PrimaryTimeout <= 0 {
		return fmt.Errorf("primary timeout must be positive")
	}

	if c.Printing.FallbackReap < 0 {
		return fmt.Errorf("fallback reap timeout must be non-negative")
	}

	if c.Display.RefreshInterval < time.Second {
		return fmt.Errorf("display refresh interval must be at least 1s")
	}

	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt topic prefix is required")
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Printing.PrimaryTimeout != 20*time.Second {
		t.Errorf("Expected primary timeout 20s, got %v", cfg.Printing.PrimaryTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate, got %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	content := `
server:
  port: 8081
printing:
  primary:
    path: /usr/bin/lp
    args: ["{file}"]
  primary_timeout: 5s
  serialize_device: true
webhooks:
  - name: ops
    url: http://localhost:9000/hook
    events: [batch_failed]
logging:
  level: debug
  format: text
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("Expected port 8081, got %d", cfg.Server.Port)
	}
	if cfg.Printing.Primary.Path != "/usr/bin/lp" {
		t.Errorf("Expected primary path /usr/bin/lp, got %s", cfg.Printing.Primary.Path)
	}
	if cfg.Printing.PrimaryTimeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", cfg.Printing.PrimaryTimeout)
	}
	if !cfg.Printing.SerializeDevice {
		t.Error("Expected serialize_device to be true")
	}
	// untouched sections keep their defaults
	if cfg.Printing.Fallback.Path == "" {
		t.Error("Expected fallback path default to survive partial override")
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "batch_failed" {
		t.Errorf("Unexpected webhooks: %+v", cfg.Webhooks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PRINTCONNECT_PORT", "9999")
	t.Setenv("PRINTCONNECT_UPLOAD_DIR", "/tmp/uploads")
	t.Setenv("PRINTCONNECT_DB_PATH", "")
	t.Setenv("PRINTCONNECT_LOG_LEVEL", "warn")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Storage.UploadDir != "/tmp/uploads" {
		t.Errorf("Expected upload dir override, got %s", cfg.Storage.UploadDir)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Expected empty db path to disable database, got %s", cfg.Database.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"no upload dir", func(c *Config) { c.Storage.UploadDir = "" }, "upload dir"},
		{"no primary", func(c *Config) { c.Printing.Primary.Path = "" }, "primary executor"},
		{"no fallback", func(c *Config) { c.Printing.Fallback.Path = "" }, "fallback executor"},
		{"zero timeout", func(c *Config) { c.Printing.PrimaryTimeout = 0 }, "primary timeout"},
		{"fast refresh", func(c *Config) { c.Display.RefreshInterval = 100 * time.Millisecond }, "refresh interval"},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{Name: "x"}} }, "url is required"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"rate window", func(c *Config) { c.Server.RateWindow = 0 }, "rate window"},
		{"mqtt qos", func(c *Config) { c.MQTT.Broker = "localhost:1883"; c.MQTT.QoS = 3 }, "mqtt qos"},
		{"negative retention", func(c *Config) { c.Storage.FallbackRetention = -time.Second }, "fallback retention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

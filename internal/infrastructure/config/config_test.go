package config

import (
	"os"
	"path/filepath"
	"testing"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "0.0.0.0"
  port: 9090
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
storage:
  firmware_dir: "/tmp/firmware"
  public_base_url: "http://updates.example:9090/"
auth:
  admin_password: "hunter2hunter2"
  jwt_secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.WebSocket.Path != "/ws/device" {
		t.Errorf("WebSocket.Path = %q, want default /ws/device", cfg.WebSocket.Path)
	}
	if got := cfg.PublicBaseURL(); got != "http://updates.example:9090" {
		t.Errorf("PublicBaseURL() = %q, want trailing slash stripped", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
auth:
  admin_password: "from-file"
  jwt_secret: "test-secret-key-at-least-32-chars!"
`
	t.Setenv("OTACORE_ADMIN_PASSWORD", "from-env")
	t.Setenv("OTACORE_SERVER_PORT", "7070")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.AdminPassword != "from-env" {
		t.Errorf("AdminPassword = %q, want env override", cfg.Auth.AdminPassword)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Auth.AdminPassword = "hunter2hunter2"
		cfg.Auth.JWTSecret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"missing admin password", func(c *Config) { c.Auth.AdminPassword = "" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"missing firmware dir", func(c *Config) { c.Storage.FirmwareDir = "" }, true},
		{"missing websocket path", func(c *Config) { c.WebSocket.Path = "" }, true},
		{"bad mqtt qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }, true},
		{"influxdb enabled without url", func(c *Config) { c.InfluxDB.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublicBaseURL_Fallback(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Host = "10.0.0.5"
	cfg.Server.Port = 8080

	if got := cfg.PublicBaseURL(); got != "http://10.0.0.5:8080" {
		t.Errorf("PublicBaseURL() = %q, want listener fallback", got)
	}
}

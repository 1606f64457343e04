package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

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
site:
  id: "wh1"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
  qos: 1
ptl:
  reconnect_delay: 3s
  resend_age: 1500ms
  log_capacity: 100
  endpoints:
    - ip: "192.168.1.222"
      port: 16
      units:
        - location: "A-01"
          shelf: "SHELF"
          shelf_type: 1
          node_id: "001"
          channel_id: "1"
          type: 1
mode:
  name: picking
  picking:
    enable_function_key: true
external:
  url: "http://onion.local/api/"
  client: "ACME"
jobs:
  redelivery_interval: 30s
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "wh1" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "wh1")
	}
	if cfg.PTL.ReconnectDelay != 3*time.Second {
		t.Errorf("PTL.ReconnectDelay = %v, want 3s", cfg.PTL.ReconnectDelay)
	}
	if cfg.PTL.ResendAge != 1500*time.Millisecond {
		t.Errorf("PTL.ResendAge = %v, want 1.5s", cfg.PTL.ResendAge)
	}
	if cfg.PTL.ResendInterval != time.Second {
		t.Errorf("PTL.ResendInterval = %v, want default 1s", cfg.PTL.ResendInterval)
	}
	if len(cfg.PTL.Endpoints) != 1 || cfg.PTL.Endpoints[0].Units[0].Location != "A-01" {
		t.Errorf("PTL.Endpoints = %+v", cfg.PTL.Endpoints)
	}
	if !cfg.Mode.Picking.EnableFunctionKey || cfg.Mode.Picking.EnableAddKey {
		t.Errorf("Mode.Picking = %+v", cfg.Mode.Picking)
	}
	if cfg.External.TimeoutMS != 2000 || cfg.External.EventName != "PickingPTLConfirm" {
		t.Errorf("External defaults lost: %+v", cfg.External)
	}
	if cfg.Jobs.RedeliveryInterval != 30*time.Second {
		t.Errorf("Jobs.RedeliveryInterval = %v, want 30s", cfg.Jobs.RedeliveryInterval)
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

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
mode:
  name: game
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.External.URL = "http://onion.local/"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid picking", func(*Config) {}, ""},
		{"valid game without external", func(c *Config) {
			c.Mode.Name = ModeGame
			c.External.URL = ""
		}, ""},
		{"missing site ID", func(c *Config) { c.Site.ID = "" }, "site.id"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"zero log capacity", func(c *Config) { c.PTL.LogCapacity = 0 }, "ptl.log_capacity"},
		{"zero resend age", func(c *Config) { c.PTL.ResendAge = 0 }, "ptl.resend_age"},
		{"endpoint without ip", func(c *Config) { c.PTL.Endpoints = []EndpointConfig{{Port: 16}} }, "ptl.endpoints[0]"},
		{"unknown mode", func(c *Config) { c.Mode.Name = "sorting" }, "mode.name"},
		{"picking without external url", func(c *Config) { c.External.URL = " " }, "external.url"},
		{"negative timeout", func(c *Config) { c.External.TimeoutMS = -1 }, "external.timeout_ms"},
		{"negative redelivery", func(c *Config) { c.Jobs.RedeliveryInterval = -time.Second }, "jobs.redelivery_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"site.id", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("PTL_DATABASE_PATH", "/custom/path.db")
	t.Setenv("PTL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("PTL_MQTT_PORT", "8883")
	t.Setenv("PTL_MQTT_PASSWORD", "testpass")
	t.Setenv("PTL_API_PORT", "not-a-number")
	t.Setenv("PTL_MODE", "game")
	t.Setenv("PTL_EXTERNAL_URL", "http://erp.local/")
	t.Setenv("PTL_EXTERNAL_HTTP_PASSWORD", "secret")
	t.Setenv("PTL_EXTERNAL_TIMEOUT_MS", "750")

	applyEnvOverrides(cfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Broker.Port", cfg.MQTT.Broker.Port, 8883},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Port", cfg.API.Port, 8080},
		{"Mode.Name", cfg.Mode.Name, "game"},
		{"External.URL", cfg.External.URL, "http://erp.local/"},
		{"External.HTTPPassword", cfg.External.HTTPPassword, "secret"},
		{"External.TimeoutMS", cfg.External.TimeoutMS, 750},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("custom.yaml"); got != "custom.yaml" {
		t.Errorf("ResolvePath(flag) = %q", got)
	}

	t.Setenv("PTL_CONFIG", "/etc/ptl/config.yaml")
	if got := ResolvePath(""); got != "/etc/ptl/config.yaml" {
		t.Errorf("ResolvePath(env) = %q", got)
	}

	t.Setenv("PTL_CONFIG", "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("ResolvePath() = %q, want %q", got, DefaultPath)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.PTL.ReconnectDelay != 10*time.Second {
		t.Errorf("defaultConfig PTL.ReconnectDelay = %v, want 10s", cfg.PTL.ReconnectDelay)
	}
	if cfg.PTL.LogCapacity != 500 {
		t.Errorf("defaultConfig PTL.LogCapacity = %d, want 500", cfg.PTL.LogCapacity)
	}
	if cfg.Mode.Name != ModePicking {
		t.Errorf("defaultConfig Mode.Name = %q", cfg.Mode.Name)
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "PTL_"

// DefaultPath is used when neither --config nor PTL_CONFIG is set.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for PTL Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	PTL       PTLConfig       `yaml:"ptl"`
	Mode      ModeConfig      `yaml:"mode"`
	External  ExternalConfig  `yaml:"external"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SiteConfig identifies the installation. ID is used in MQTT topics.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// PTLConfig contains controller link and acknowledgement settings.
type PTLConfig struct {
	// ReconnectDelay is the fixed wait between connection attempts.
	// Default: 10s
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// ConnectTimeout bounds a single dial. Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// WriteTimeout bounds a single write. Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ResendInterval is how often un-acked displays are checked. Default: 1s
	ResendInterval time.Duration `yaml:"resend_interval"`

	// ResendAge is how long a display may wait for its ack. Default: 1s
	ResendAge time.Duration `yaml:"resend_age"`

	// LogCapacity bounds each in-memory message log. Default: 500
	LogCapacity int `yaml:"log_capacity"`

	// Endpoints seeds the topology when the database holds none.
	Endpoints []EndpointConfig `yaml:"endpoints,omitempty"`
}

// EndpointConfig is a controller and its units, used for bootstrapping.
type EndpointConfig struct {
	IP    string       `yaml:"ip"`
	Port  int          `yaml:"port"`
	Units []UnitConfig `yaml:"units"`
}

// UnitConfig is one unit of a bootstrap endpoint.
type UnitConfig struct {
	Location  string `yaml:"location"`
	Shelf     string `yaml:"shelf"`
	ShelfType int    `yaml:"shelf_type"`
	NodeID    string `yaml:"node_id"`
	ChannelID string `yaml:"channel_id"`
	Type      int    `yaml:"type"`
}

// ModeConfig selects the control policy.
type ModeConfig struct {
	// Name is "picking" or "game".
	Name    string        `yaml:"name"`
	Picking PickingConfig `yaml:"picking"`
}

// PickingConfig toggles the optional picking keys.
type PickingConfig struct {
	EnableAddKey      bool `yaml:"enable_add_key"`
	EnableSubKey      bool `yaml:"enable_sub_key"`
	EnableFunctionKey bool `yaml:"enable_function_key"`
}

// ExternalConfig is the order-management system confirmations go to.
type ExternalConfig struct {
	URL          string `yaml:"url"`
	EventName    string `yaml:"event_name"`
	Client       string `yaml:"client"`
	UserID       string `yaml:"user_id"`
	HTTPUser     string `yaml:"http_user"`
	HTTPPassword string `yaml:"http_password"`
	TimeoutMS    int    `yaml:"timeout_ms"`
}

// JobsConfig contains background job schedules.
type JobsConfig struct {
	// RedeliveryInterval is how often failed confirmations are retried.
	// Zero disables the job. Default: 1m
	RedeliveryInterval time.Duration `yaml:"redelivery_interval"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Valid mode names.
const (
	ModePicking = "picking"
	ModeGame    = "game"
)

// ResolvePath picks the config file: the flag value, then PTL_CONFIG, then
// DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PTL_SECTION_KEY
// For example: PTL_DATABASE_PATH, PTL_EXTERNAL_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "default",
			Name:     "PTL",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/ptl.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ptl-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		PTL: PTLConfig{
			ReconnectDelay: 10 * time.Second,
			ConnectTimeout: 5 * time.Second,
			WriteTimeout:   5 * time.Second,
			ResendInterval: time.Second,
			ResendAge:      time.Second,
			LogCapacity:    500,
		},
		Mode: ModeConfig{
			Name: ModePicking,
		},
		External: ExternalConfig{
			EventName: "PickingPTLConfirm",
			TimeoutMS: 2000,
		},
		Jobs: JobsConfig{
			RedeliveryInterval: time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Site.ID, "SITE_ID")
	setString(&cfg.Database.Path, "DATABASE_PATH")

	// MQTT
	setString(&cfg.MQTT.Broker.Host, "MQTT_HOST")
	setInt(&cfg.MQTT.Broker.Port, "MQTT_PORT")
	setString(&cfg.MQTT.Auth.Username, "MQTT_USERNAME")
	setString(&cfg.MQTT.Auth.Password, "MQTT_PASSWORD")

	// API
	setString(&cfg.API.Host, "API_HOST")
	setInt(&cfg.API.Port, "API_PORT")

	setString(&cfg.InfluxDB.Token, "INFLUXDB_TOKEN")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Mode.Name, "MODE")

	// External system credentials belong in the environment.
	setString(&cfg.External.URL, "EXTERNAL_URL")
	setString(&cfg.External.HTTPUser, "EXTERNAL_HTTP_USER")
	setString(&cfg.External.HTTPPassword, "EXTERNAL_HTTP_PASSWORD")
	setInt(&cfg.External.TimeoutMS, "EXTERNAL_TIMEOUT_MS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

// setInt ignores values that do not parse; Validate reports the result.
func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.PTL.LogCapacity < 1 {
		errs = append(errs, "ptl.log_capacity must be positive")
	}
	if c.PTL.ResendInterval <= 0 || c.PTL.ResendAge <= 0 {
		errs = append(errs, "ptl.resend_interval and ptl.resend_age must be positive")
	}
	for i, ep := range c.PTL.Endpoints {
		if ep.IP == "" || ep.Port < 1 || ep.Port > 65535 {
			errs = append(errs, fmt.Sprintf("ptl.endpoints[%d] needs an ip and a port between 1 and 65535", i))
		}
	}

	switch c.Mode.Name {
	case ModePicking:
		// Confirmations cannot be delivered without the external system.
		if strings.TrimSpace(c.External.URL) == "" {
			errs = append(errs, "external.url is required in picking mode (set PTL_EXTERNAL_URL)")
		}
	case ModeGame:
	default:
		errs = append(errs, fmt.Sprintf("mode.name must be %q or %q", ModePicking, ModeGame))
	}

	if c.External.TimeoutMS < 0 {
		errs = append(errs, "external.timeout_ms must not be negative")
	}
	if c.Jobs.RedeliveryInterval < 0 {
		errs = append(errs, "jobs.redelivery_interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

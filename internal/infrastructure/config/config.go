package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the garage bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Garage    GarageConfig    `yaml:"garage"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	HomeKit   HomeKitConfig   `yaml:"homekit"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies this installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GarageConfig describes the HTTP-controlled garage door device.
//
// Profile-specific rules (required endpoints, OAuth credentials, open-loop
// timing) are checked by garage.NewSetup, which owns the device vocabulary.
type GarageConfig struct {
	// Name is the door accessory name. Required.
	Name string `yaml:"name"`

	// LightName enables the light sub-accessory when set.
	LightName string `yaml:"light_name"`

	HTTP  DeviceHTTPConfig `yaml:"http"`
	OAuth OAuthConfig      `yaml:"oauth"`
	API   DeviceAPIConfig  `yaml:"api"`
}

// DeviceHTTPConfig holds transport settings for the device.
type DeviceHTTPConfig struct {
	SSL  bool   `yaml:"ssl"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// StatusPollMilliseconds is the poll interval. Default: 4000
	StatusPollMilliseconds int `yaml:"status_poll_ms"`

	// RequestTimeoutMilliseconds bounds each device request. Default: 10000
	RequestTimeoutMilliseconds int `yaml:"request_timeout_ms"`

	// HeaderName/HeaderValue add one static header to every request.
	HeaderName  string `yaml:"header_name"`
	HeaderValue string `yaml:"header_value"`
}

// OAuthConfig holds OAuth1 request-signing credentials.
type OAuthConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SignatureMethod string `yaml:"signature_method"`
	ConsumerKey     string `yaml:"consumer_key"`
	ConsumerSecret  string `yaml:"consumer_secret"`
	Token           string `yaml:"token"`
	TokenSecret     string `yaml:"token_secret"`
}

// DeviceAPIConfig selects the API profile and its endpoints.
type DeviceAPIConfig struct {
	// Type is "vendor" (HttpGarageDoorController), "json" or "generic".
	Type string `yaml:"type"`

	// DoorOperationSeconds is required when no door state endpoint exists.
	DoorOperationSeconds int `yaml:"door_operation_seconds"`

	Door  DoorAPIConfig  `yaml:"door"`
	Light LightAPIConfig `yaml:"light"`
}

// EndpointConfig is one device operation.
type EndpointConfig struct {
	Method string `yaml:"method"`
	URL    string `yaml:"url"`

	// SuccessContent is the body substring expected by the generic profile.
	SuccessContent string `yaml:"success_content"`
}

// DoorAPIConfig holds the door endpoints and response field names.
type DoorAPIConfig struct {
	Open         EndpointConfig `yaml:"open"`
	Close        EndpointConfig `yaml:"close"`
	State        EndpointConfig `yaml:"state"`
	SuccessField string         `yaml:"success_field"`
	StateField   string         `yaml:"state_field"`
}

// LightAPIConfig holds the light endpoints and response field names.
type LightAPIConfig struct {
	On           EndpointConfig `yaml:"on"`
	Off          EndpointConfig `yaml:"off"`
	State        EndpointConfig `yaml:"state"`
	SuccessField string         `yaml:"success_field"`
	StateField   string         `yaml:"state_field"`
}

// DatabaseConfig contains SQLite event history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes history older than this. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// DeviceID is the topic segment identifying this door on the bus.
	DeviceID string `yaml:"device_id"`

	// HealthInterval is the health publish period in seconds.
	HealthInterval int `yaml:"health_interval"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
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
}

// RateLimitConfig throttles command endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// HomeKitConfig contains HomeKit accessory server settings.
type HomeKitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Pin         string `yaml:"pin"`
	Addr        string `yaml:"addr"`
	StoragePath string `yaml:"storage_path"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GARAGE_SECTION_KEY
// For example: GARAGE_DEVICE_HOST, GARAGE_MQTT_PASSWORD
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
			ID:   "site-001",
			Name: "Home",
		},
		Garage: GarageConfig{
			HTTP: DeviceHTTPConfig{
				Port:                       80,
				StatusPollMilliseconds:     4000,
				RequestTimeoutMilliseconds: 10000,
			},
			OAuth: OAuthConfig{
				SignatureMethod: "HMAC-SHA1",
			},
		},
		Database: DatabaseConfig{
			Path:          "./data/garage.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "garage-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			DeviceID:       "garage-door",
			HealthInterval: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             5,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		HomeKit: HomeKitConfig{
			Pin:         "00102003",
			Addr:        ":51826",
			StoragePath: "./data/homekit",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GARAGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("GARAGE_DEVICE_HOST"); v != "" {
		cfg.Garage.HTTP.Host = v
	}
	if v := os.Getenv("GARAGE_DEVICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Garage.HTTP.Port = port
		}
	}
	if v := os.Getenv("GARAGE_OAUTH_CONSUMER_SECRET"); v != "" {
		cfg.Garage.OAuth.ConsumerSecret = v
	}
	if v := os.Getenv("GARAGE_OAUTH_TOKEN_SECRET"); v != "" {
		cfg.Garage.OAuth.TokenSecret = v
	}

	// Database
	if v := os.Getenv("GARAGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GARAGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GARAGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GARAGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GARAGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// HomeKit
	if v := os.Getenv("GARAGE_HOMEKIT_PIN"); v != "" {
		cfg.HomeKit.Pin = v
	}

	// InfluxDB
	if v := os.Getenv("GARAGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Device profile rules are left to garage.NewSetup; this covers the
// surrounding services and the fields every profile needs.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Garage.Name == "" {
		errs = append(errs, "garage.name is required")
	}
	if c.Garage.HTTP.StatusPollMilliseconds <= 0 {
		errs = append(errs, "garage.http.status_poll_ms must be positive")
	}
	if c.Garage.HTTP.RequestTimeoutMilliseconds <= 0 {
		errs = append(errs, "garage.http.request_timeout_ms must be positive")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.DeviceID == "" {
		errs = append(errs, "mqtt.device_id is required when mqtt is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "api.rate_limit.requests_per_minute must be positive when enabled")
	}

	// HomeKit setup codes are eight digits.
	if c.HomeKit.Enabled {
		if len(c.HomeKit.Pin) != 8 || strings.Trim(c.HomeKit.Pin, "0123456789") != "" {
			errs = append(errs, "homekit.pin must be exactly 8 digits")
		}
		if c.HomeKit.StoragePath == "" {
			errs = append(errs, "homekit.storage_path is required when homekit is enabled")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the device poll interval as a Duration.
func (g GarageConfig) PollInterval() time.Duration {
	return time.Duration(g.HTTP.StatusPollMilliseconds) * time.Millisecond
}

// RequestTimeout returns the per-request device timeout as a Duration.
func (g GarageConfig) RequestTimeout() time.Duration {
	return time.Duration(g.HTTP.RequestTimeoutMilliseconds) * time.Millisecond
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

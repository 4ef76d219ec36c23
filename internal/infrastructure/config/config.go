package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host tzdata

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when GRAYLOGIC_CONFIG is unset.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for the appliance bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Appliances AppliancesConfig `yaml:"appliances"`
}

// SiteConfig contains site-specific information.
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

// APITimeoutConfig contains HTTP timeout settings.
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// AppliancesConfig contains the appliance bridge settings and the list of
// managed appliances.
type AppliancesConfig struct {
	// BridgeID identifies this bridge in health messages.
	BridgeID string `yaml:"bridge_id"`

	// HealthInterval is the health publish period in seconds.
	HealthInterval int `yaml:"health_interval"`

	// ProgramFetchDelay is the delay in seconds between lifecycle entry
	// and the available-programs request.
	ProgramFetchDelay int `yaml:"program_fetch_delay"`

	// MaxRecentEvents bounds each device's recent event log. 0 disables it.
	MaxRecentEvents int `yaml:"max_recent_events"`

	// PersistState restores device state from the database on start.
	PersistState bool `yaml:"persist_state"`

	// HistoryRetention is the snapshot history retention in hours.
	// 0 keeps history forever.
	HistoryRetention int `yaml:"history_retention"`

	Devices []ApplianceConfig `yaml:"devices"`
}

// ApplianceConfig describes one managed appliance.
type ApplianceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Type is "dryer" or "hood".
	Type string `yaml:"type"`

	// HaID is the cloud appliance identifier. Defaults to ID.
	HaID string `yaml:"ha_id"`

	// Timezone overrides site.timezone for end time rendering.
	Timezone string `yaml:"timezone,omitempty"`

	// MaxRecentEvents overrides appliances.max_recent_events when set.
	MaxRecentEvents *int `yaml:"max_recent_events,omitempty"`
}

// Supported appliance types.
var applianceTypes = map[string]bool{
	"dryer": true,
	"hood":  true,
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/appliances.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-appliances",
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
			Port: 8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "graylogic",
			Bucket:        "appliances",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Appliances: AppliancesConfig{
			BridgeID:          "homeconnect-01",
			HealthInterval:    30,
			ProgramFetchDelay: 10,
			MaxRecentEvents:   20,
			PersistState:      true,
			HistoryRetention:  24 * 7,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Appliances
	if v := os.Getenv("GRAYLOGIC_APPLIANCES_BRIDGE_ID"); v != "" {
		cfg.Appliances.BridgeID = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a known time zone", c.Site.Timezone))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Appliances.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (a *AppliancesConfig) validate() []string {
	var errs []string

	if a.BridgeID == "" {
		errs = append(errs, "appliances.bridge_id is required")
	}
	if a.HealthInterval < 0 {
		errs = append(errs, "appliances.health_interval must not be negative")
	}
	if a.ProgramFetchDelay < 0 {
		errs = append(errs, "appliances.program_fetch_delay must not be negative")
	}
	if a.MaxRecentEvents < 0 {
		errs = append(errs, "appliances.max_recent_events must not be negative")
	}
	if a.HistoryRetention < 0 {
		errs = append(errs, "appliances.history_retention must not be negative")
	}

	ids := make(map[string]bool, len(a.Devices))
	refs := make(map[string]bool, len(a.Devices))
	for i, d := range a.Devices {
		field := fmt.Sprintf("appliances.devices[%d]", i)
		if d.ID == "" {
			errs = append(errs, field+".id is required")
		} else if ids[d.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", field, d.ID))
		}
		ids[d.ID] = true

		if ref := d.Ref(); ref != "" {
			if refs[ref] {
				errs = append(errs, fmt.Sprintf("%s.ha_id %q is duplicated", field, ref))
			}
			refs[ref] = true
		}

		if !applianceTypes[strings.ToLower(d.Type)] {
			errs = append(errs, fmt.Sprintf("%s.type %q must be dryer or hood", field, d.Type))
		}
		if d.Timezone != "" {
			if _, err := time.LoadLocation(d.Timezone); err != nil {
				errs = append(errs, fmt.Sprintf("%s.timezone %q is not a known time zone", field, d.Timezone))
			}
		}
		if d.MaxRecentEvents != nil && *d.MaxRecentEvents < 0 {
			errs = append(errs, field+".max_recent_events must not be negative")
		}
	}

	return errs
}

// Ref returns the cloud appliance identifier, falling back to the device ID.
func (d ApplianceConfig) Ref() string {
	if d.HaID != "" {
		return d.HaID
	}
	return d.ID
}

// Location resolves the device time zone, falling back to siteTZ and then
// to time.Local.
func (d ApplianceConfig) Location(siteTZ string) *time.Location {
	for _, name := range []string{d.Timezone, siteTZ} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.Local
}

// RecentEventsLimit returns the device override when set, otherwise the
// bridge-wide limit.
func (a *AppliancesConfig) RecentEventsLimit(d ApplianceConfig) int {
	if d.MaxRecentEvents != nil {
		return *d.MaxRecentEvents
	}
	return a.MaxRecentEvents
}

// GetHealthInterval returns the health publish period as a Duration.
func (a *AppliancesConfig) GetHealthInterval() time.Duration {
	return time.Duration(a.HealthInterval) * time.Second
}

// GetProgramFetchDelay returns the program fetch delay as a Duration.
func (a *AppliancesConfig) GetProgramFetchDelay() time.Duration {
	return time.Duration(a.ProgramFetchDelay) * time.Second
}

// GetHistoryRetention returns the snapshot history retention as a Duration.
func (a *AppliancesConfig) GetHistoryRetention() time.Duration {
	return time.Duration(a.HistoryRetention) * time.Hour
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// Path returns the config file path from GRAYLOGIC_CONFIG, or the default.
func Path() string {
	if v := os.Getenv("GRAYLOGIC_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

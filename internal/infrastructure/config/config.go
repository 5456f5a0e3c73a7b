package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// minSecretLength is the shortest accepted signing secret.
const minSecretLength = 32

// Config is the root configuration structure for identityd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Events   EventsConfig   `yaml:"events"`
}

// ServiceConfig identifies this instance.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// StoreConfig selects the account store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// DatabaseConfig contains SQLite database settings.
// SQLite also holds the audit log whenever the store driver is sqlite or redis.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
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

// MQTTConfig contains MQTT broker connection settings.
// Session events are published only when Enabled is true.
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

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains token signing settings.
// TTLs are in seconds.
type JWTConfig struct {
	BearerSecret  string `yaml:"bearer_secret"`
	RefreshSecret string `yaml:"refresh_secret"`
	BearerTTL     int    `yaml:"bearer_ttl"`
	RefreshTTL    int    `yaml:"refresh_ttl"`
}

// EventsConfig contains session event dispatch settings.
type EventsConfig struct {
	BufferSize int  `yaml:"buffer_size"`
	Audit      bool `yaml:"audit"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading process:
//  1. Start with defaults
//  2. Overlay values from the YAML file
//  3. Apply IDENTITY_* environment variables
//  4. Validate
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
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
		Service: ServiceConfig{
			Name: "identityd",
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
		Database: DatabaseConfig{
			Path:        "./data/identity.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Redis: RedisConfig{
			Addrs:     []string{"localhost:6379"},
			KeyPrefix: "identity",
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
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "identityd",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
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
		Security: SecurityConfig{
			JWT: JWTConfig{
				BearerTTL:  600,
				RefreshTTL: 86400,
			},
		},
		Events: EventsConfig{
			BufferSize: 256,
			Audit:      true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IDENTITY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IDENTITY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}

	// Database
	if v := os.Getenv("IDENTITY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("IDENTITY_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}

	// Redis
	if v := os.Getenv("IDENTITY_REDIS_ADDRS"); v != "" {
		cfg.Redis.Addrs = splitList(v)
	}
	if v := os.Getenv("IDENTITY_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// MQTT
	if v := os.Getenv("IDENTITY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("IDENTITY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IDENTITY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("IDENTITY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("IDENTITY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("IDENTITY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Signing secrets belong in the environment, not the config file.
	if v := os.Getenv("IDENTITY_JWT_BEARER_SECRET"); v != "" {
		cfg.Security.JWT.BearerSecret = v
	}
	if v := os.Getenv("IDENTITY_JWT_REFRESH_SECRET"); v != "" {
		cfg.Security.JWT.RefreshSecret = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite store")
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, "postgres.dsn is required for the postgres store (set IDENTITY_POSTGRES_DSN)")
		}
	case DriverRedis:
		if len(c.Redis.Addrs) == 0 {
			errs = append(errs, "redis.addrs is required for the redis store")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite, postgres or redis, got %q", c.Store.Driver))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	jwt := c.Security.JWT
	if jwt.BearerSecret == "" {
		errs = append(errs, "security.jwt.bearer_secret is required (set IDENTITY_JWT_BEARER_SECRET)")
	} else if len(jwt.BearerSecret) < minSecretLength {
		errs = append(errs, "security.jwt.bearer_secret must be at least 32 characters")
	}
	if jwt.RefreshSecret == "" {
		errs = append(errs, "security.jwt.refresh_secret is required (set IDENTITY_JWT_REFRESH_SECRET)")
	} else if len(jwt.RefreshSecret) < minSecretLength {
		errs = append(errs, "security.jwt.refresh_secret must be at least 32 characters")
	}
	if jwt.BearerSecret != "" && jwt.BearerSecret == jwt.RefreshSecret {
		errs = append(errs, "security.jwt.bearer_secret and refresh_secret must differ")
	}
	if jwt.BearerTTL <= 0 || jwt.RefreshTTL <= 0 {
		errs = append(errs, "security.jwt ttls must be positive")
	}

	if c.Events.BufferSize < 1 {
		errs = append(errs, "events.buffer_size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// PostgresConnMaxLifetime returns the pool connection lifetime as a Duration.
func (c *Config) PostgresConnMaxLifetime() time.Duration {
	return time.Duration(c.Postgres.ConnMaxLifetime) * time.Second
}

// BearerTTL returns the default bearer token lifetime.
func (c *Config) BearerTTL() time.Duration {
	return time.Duration(c.Security.JWT.BearerTTL) * time.Second
}

// RefreshTTL returns the default refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.Security.JWT.RefreshTTL) * time.Second
}

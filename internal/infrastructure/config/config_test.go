package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testBearerSecret  = "bearer-secret-at-least-32-chars!!"
	testRefreshSecret = "refresh-secret-at-least-32-chars!"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.BearerSecret = testBearerSecret
	cfg.Security.JWT.RefreshSecret = testRefreshSecret
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
store:
  driver: "redis"
redis:
  addrs: ["cache:6379"]
  key_prefix: "test"
api:
  host: "127.0.0.1"
  port: 9090
security:
  jwt:
    bearer_secret: "bearer-secret-at-least-32-chars!!"
    refresh_secret: "refresh-secret-at-least-32-chars!"
    bearer_ttl: 300
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != DriverRedis {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverRedis)
	}
	if len(cfg.Redis.Addrs) != 1 || cfg.Redis.Addrs[0] != "cache:6379" {
		t.Errorf("Redis.Addrs = %v, want [cache:6379]", cfg.Redis.Addrs)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.BearerTTL() != 300*time.Second {
		t.Errorf("BearerTTL() = %v, want 5m", cfg.BearerTTL())
	}
	// Unset values keep their defaults.
	if cfg.RefreshTTL() != 24*time.Hour {
		t.Errorf("RefreshTTL() = %v, want 24h", cfg.RefreshTTL())
	}
	if cfg.PostgresConnMaxLifetime() != 5*time.Minute {
		t.Errorf("PostgresConnMaxLifetime() = %v, want 5m", cfg.PostgresConnMaxLifetime())
	}
	if cfg.Events.BufferSize != 256 {
		t.Errorf("Events.BufferSize = %d, want 256", cfg.Events.BufferSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
store:
  driver: "mongo"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"store.driver", "bearer_secret", "refresh_secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestLoad_EnvSecrets(t *testing.T) {
	t.Setenv("IDENTITY_JWT_BEARER_SECRET", testBearerSecret)
	t.Setenv("IDENTITY_JWT_REFRESH_SECRET", testRefreshSecret)

	cfg, err := Load(writeConfig(t, "service:\n  name: \"identityd-test\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "identityd-test" {
		t.Errorf("Service.Name = %q, want identityd-test", cfg.Service.Name)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"postgres with dsn", func(c *Config) {
			c.Store.Driver = DriverPostgres
			c.Postgres.DSN = "postgres://localhost/identity"
		}, false},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, true},
		{"redis without addrs", func(c *Config) {
			c.Store.Driver = DriverRedis
			c.Redis.Addrs = nil
		}, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"missing bearer secret", func(c *Config) { c.Security.JWT.BearerSecret = "" }, true},
		{"short refresh secret", func(c *Config) { c.Security.JWT.RefreshSecret = "short" }, true},
		{"identical secrets", func(c *Config) { c.Security.JWT.RefreshSecret = testBearerSecret }, true},
		{"zero bearer ttl", func(c *Config) { c.Security.JWT.BearerTTL = 0 }, true},
		{"zero buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := APIConfig{
		Timeouts: APITimeoutConfig{
			Read:  30,
			Write: 45,
			Idle:  60,
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

	t.Setenv("IDENTITY_STORE_DRIVER", "postgres")
	t.Setenv("IDENTITY_DATABASE_PATH", "/custom/path.db")
	t.Setenv("IDENTITY_POSTGRES_DSN", "postgres://db/identity")
	t.Setenv("IDENTITY_REDIS_ADDRS", "r1:6379, r2:6379,")
	t.Setenv("IDENTITY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("IDENTITY_MQTT_USERNAME", "testuser")
	t.Setenv("IDENTITY_API_HOST", "192.168.1.1")
	t.Setenv("IDENTITY_API_PORT", "8443")
	t.Setenv("IDENTITY_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("IDENTITY_JWT_BEARER_SECRET", "bearer")
	t.Setenv("IDENTITY_JWT_REFRESH_SECRET", "refresh")

	applyEnvOverrides(cfg)

	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverPostgres)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Postgres.DSN != "postgres://db/identity" {
		t.Errorf("Postgres.DSN = %q", cfg.Postgres.DSN)
	}
	if len(cfg.Redis.Addrs) != 2 || cfg.Redis.Addrs[1] != "r2:6379" {
		t.Errorf("Redis.Addrs = %v, want [r1:6379 r2:6379]", cfg.Redis.Addrs)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 8443 {
		t.Errorf("API.Port = %d, want 8443", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.BearerSecret != "bearer" || cfg.Security.JWT.RefreshSecret != "refresh" {
		t.Errorf("JWT secrets = %q/%q", cfg.Security.JWT.BearerSecret, cfg.Security.JWT.RefreshSecret)
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("IDENTITY_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("defaultConfig Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.Security.JWT.BearerTTL != 600 || cfg.Security.JWT.RefreshTTL != 86400 {
		t.Errorf("defaultConfig TTLs = %d/%d, want 600/86400",
			cfg.Security.JWT.BearerTTL, cfg.Security.JWT.RefreshTTL)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	// Secrets have no default, so the defaults alone do not validate.
	if err := cfg.Validate(); err == nil {
		t.Error("defaultConfig should fail validation without secrets")
	}
}

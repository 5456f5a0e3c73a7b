package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
)

const (
	testBearerSecret  = "bearer-secret-at-least-32-chars!!"
	testRefreshSecret = "refresh-secret-at-least-32-chars!"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "identityd.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// testConfig returns a valid sqlite configuration rooted in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Store.Driver = config.DriverSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "identity.db")
	cfg.Database.WALMode = true
	cfg.Database.BusyTimeout = 5
	cfg.Redis.KeyPrefix = "identity-test"
	cfg.Events.Audit = true
	return cfg
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("IDENTITY_CONFIG", "/nonexistent/path/identityd.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingSecrets(t *testing.T) {
	t.Setenv("IDENTITY_CONFIG", writeConfig(t, "store:\n  driver: sqlite\n"))

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail without signing secrets")
	}
	if !strings.Contains(err.Error(), "bearer_secret") {
		t.Errorf("error %q should mention bearer_secret", err)
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	t.Setenv("IDENTITY_CONFIG", writeConfig(t, fmt.Sprintf(`
store:
  driver: sqlite
database:
  path: %q
api:
  host: "127.0.0.1"
  port: %d
logging:
  level: error
security:
  jwt:
    bearer_secret: %q
    refresh_secret: %q
`, filepath.Join(t.TempDir(), "identity.db"), port, testBearerSecret, testRefreshSecret)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() = %v, want nil on clean shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestOpenStores_SQLite(t *testing.T) {
	cfg := testConfig(t)

	st, err := openStores(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}
	defer st.close(logging.Discard())

	if _, ok := st.accounts.(*auth.SQLiteAccountRepository); !ok {
		t.Errorf("accounts = %T, want *auth.SQLiteAccountRepository", st.accounts)
	}
	if err := st.health.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
}

func TestOpenStores_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Redis.Addrs = []string{mr.Addr()}

	st, err := openStores(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}
	defer st.close(logging.Discard())

	if _, ok := st.accounts.(*auth.RedisAccountRepository); !ok {
		t.Errorf("accounts = %T, want *auth.RedisAccountRepository", st.accounts)
	}
	if st.audit == nil {
		t.Error("redis driver should keep an SQLite audit store")
	}
	if err := st.health.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}

	mr.Close()
	if err := st.health.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail once redis is gone")
	}
}

func TestOpenStores_BadDatabasePath(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}
	cfg.Database.Path = filepath.Join(blocker, "identity.db")

	if _, err := openStores(context.Background(), cfg, logging.Discard()); err == nil {
		t.Error("openStores() should fail when the database directory cannot be created")
	}
}

func TestBuildSinks(t *testing.T) {
	cfg := testConfig(t)
	st, err := openStores(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("openStores() error = %v", err)
	}
	defer st.close(logging.Discard())

	sinks, closeSinks, err := buildSinks(cfg, st.audit, logging.Discard())
	if err != nil {
		t.Fatalf("buildSinks() error = %v", err)
	}
	closeSinks()
	if len(sinks) != 1 || sinks[0].Name() != "audit" {
		t.Errorf("sinks = %v, want only the audit sink", sinks)
	}

	cfg.Events.Audit = false
	sinks, closeSinks, err = buildSinks(cfg, st.audit, logging.Discard())
	if err != nil {
		t.Fatalf("buildSinks() error = %v", err)
	}
	closeSinks()
	if len(sinks) != 0 {
		t.Errorf("sinks = %d, want none with audit disabled", len(sinks))
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("IDENTITY_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("IDENTITY_CONFIG", "/etc/identityd.yaml")
	if got := getConfigPath(); got != "/etc/identityd.yaml" {
		t.Errorf("getConfigPath() = %q, want /etc/identityd.yaml", got)
	}
}

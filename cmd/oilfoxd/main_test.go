package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/oilfox-bridge/internal/api"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/config"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/database"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
	"github.com/nerrad567/oilfox-bridge/internal/tank"
	"github.com/nerrad567/oilfox-bridge/migrations"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("OILFOXD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails validation on an empty path.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("OILFOXD_CONFIG", writeConfig(t, `
database:
  path: ""
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
influxdb:
  enabled: false
logging:
  level: error
  format: text
`))
	t.Setenv("OILFOXD_DATABASE_PATH", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_BrokerUnavailable verifies run fails when MQTT cannot be reached.
func TestRun_BrokerUnavailable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OILFOXD_CONFIG", writeConfig(t, `
database:
  path: "`+filepath.Join(dir, "oilfoxd.db")+`"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "oilfoxd-test"
influxdb:
  enabled: false
logging:
  level: error
  format: text
oilfox:
  enabled: false
`))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a broker")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("OILFOXD_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("OILFOXD_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("not connected") })

	if err := healthCheck(context.Background(), map[string]api.HealthChecker{
		"database": ok,
		"mqtt":     ok,
	}); err != nil {
		t.Errorf("healthCheck() without influxdb error = %v", err)
	}

	err := healthCheck(context.Background(), map[string]api.HealthChecker{
		"database": ok,
		"mqtt":     down,
		"influxdb": down,
	})
	if err == nil || err.Error() != "mqtt: not connected" {
		t.Errorf("healthCheck() error = %v, want the first failure", err)
	}
}

func TestPruneHistory(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "prune.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := tank.NewSQLiteRepository(db.DB)
	now := time.Now().UTC()
	for _, started := range []time.Time{now.Add(-60 * 24 * time.Hour), now.Add(-time.Hour)} {
		if err := repo.RecordPoll(ctx, &tank.PollRecord{Trigger: "scheduled", StartedAt: started, Outcome: "ok"}); err != nil {
			t.Fatalf("RecordPoll() error = %v", err)
		}
	}

	cfg := &config.Config{Retention: config.RetentionConfig{ReadingsDays: 730, PollLogDays: 30}}
	pruneHistory(ctx, cfg, repo, logging.Default())

	polls, err := repo.RecentPolls(ctx, 10)
	if err != nil {
		t.Fatalf("RecentPolls() error = %v", err)
	}
	if len(polls) != 1 {
		t.Errorf("polls after prune = %d, want 1", len(polls))
	}

	// Zero retention keeps everything.
	pruneHistory(ctx, &config.Config{}, repo, logging.Default())
	if polls, _ = repo.RecentPolls(ctx, 10); len(polls) != 1 {
		t.Errorf("polls after zero retention = %d, want 1", len(polls))
	}
}

func TestHealthWill(t *testing.T) {
	will, err := healthWill("garage")
	if err != nil {
		t.Fatalf("healthWill() error = %v", err)
	}

	if will.Topic != "oilfox/health/garage" {
		t.Errorf("Topic = %q, want the bridge health topic", will.Topic)
	}
	if will.QoS != 1 {
		t.Errorf("QoS = %d, want 1", will.QoS)
	}

	var msg oilfox.HealthMessage
	if err := json.Unmarshal(will.Payload, &msg); err != nil {
		t.Fatalf("payload is not a health message: %v", err)
	}
	if msg.Status != oilfox.HealthOffline || msg.Bridge != "garage" {
		t.Errorf("payload = %+v, want offline for garage", msg)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Addr != ":3000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":3000")
	}
	if cfg.Gateway.SendBuffer != 64 {
		t.Errorf("Gateway.SendBuffer = %d, want 64", cfg.Gateway.SendBuffer)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if len(cfg.Scheduler.Tasks) != 1 || cfg.Scheduler.Tasks[0].Action != "ping_connections" {
		t.Errorf("expected default keepalive task, got %+v", cfg.Scheduler.Tasks)
	}
	if !cfg.Audit.Enabled || cfg.Audit.Path == "" {
		t.Errorf("expected audit trail enabled by default, got %+v", cfg.Audit)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent-chrysalis-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.WriteTimeout != 5*time.Second {
		t.Errorf("expected defaults, got WriteTimeout=%v", cfg.Gateway.WriteTimeout)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chrysalis.yaml")
	content := `
server:
  addr: "127.0.0.1:8080"
  allowed_origins: ["https://hq.example"]
database:
  path: "/var/lib/chrysalis/missions.db"
  circuit_breaker:
    enabled: true
    max_failures: 3
    timeout: 10s
gateway:
  send_buffer: 128
scheduler:
  enabled: true
  tasks:
    - name: keepalive
      schedule: "@every 15s"
      action: ping_connections
logger:
  level: "debug"
  format: "json"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://hq.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.CircuitBreaker.MaxFailures != 3 {
		t.Errorf("MaxFailures = %d, want 3", cfg.Database.CircuitBreaker.MaxFailures)
	}
	if cfg.Database.CircuitBreaker.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Database.CircuitBreaker.Timeout)
	}
	if cfg.Gateway.SendBuffer != 128 {
		t.Errorf("SendBuffer = %d, want 128", cfg.Gateway.SendBuffer)
	}
	// Unset fields keep their defaults.
	if cfg.Gateway.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want default 5s", cfg.Gateway.WriteTimeout)
	}
	if cfg.Scheduler.Tasks[0].Schedule != "@every 15s" {
		t.Errorf("Schedule = %q", cfg.Scheduler.Tasks[0].Schedule)
	}
	if cfg.Logger.Format != "json" {
		t.Errorf("Logger.Format = %q", cfg.Logger.Format)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadRejectsWorldWritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrysalis.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected permissions error")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrysalis.yaml")
	if err := os.WriteFile(path, []byte("gateway:\n  send_buffer: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "gateway.send_buffer")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("CHRYSALIS_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("CHRYSALIS_LOGGER_LEVEL", "warn")
	t.Setenv("CHRYSALIS_TRACER_ENABLED", "true")
	t.Setenv("CHRYSALIS_TRACER_EXPORTER", "stdout")
	t.Setenv("CHRYSALIS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CHRYSALIS_KEEPALIVE_SCHEDULE", "10s")
	t.Setenv("CHRYSALIS_RATE_LIMIT_RPM", "120")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Server.Addr != ":4000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":4000")
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	if !cfg.Tracer.Enabled || cfg.Tracer.Exporter != "stdout" {
		t.Errorf("Tracer = %+v", cfg.Tracer)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Scheduler.Tasks[0].Schedule != "10s" {
		t.Errorf("keepalive schedule = %q", cfg.Scheduler.Tasks[0].Schedule)
	}
	if cfg.RateLimit.RequestsPerMin != 120 {
		t.Errorf("RequestsPerMin = %d", cfg.RateLimit.RequestsPerMin)
	}
}

func TestEnvServerAddrWinsOverPort(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("CHRYSALIS_SERVER_ADDR", "0.0.0.0:5000")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Server.Addr != "0.0.0.0:5000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a , b,c ", ",")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

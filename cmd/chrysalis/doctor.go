package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chrysalis/internal/adapter/store"
	"chrysalis/internal/infra/config"
	"chrysalis/internal/usecase/scheduling"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Database", Fn: checkDatabase},
		{Name: "Listen address", Fn: checkListenAddr},
		{Name: "Scheduled tasks", Fn: checkSchedules},
	}

	fmt.Println("chrysalis doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config loaded. A missing file only
// warns because defaults and env overrides are enough to run.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and CHRYSALIS_* environment variables",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkDatabase opens the configured SQLite file and pings it.
func checkDatabase(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	path := cfg.Database.Path
	st, err := store.NewSQLiteStore(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open %s: %v", path, err),
			Fix:     fmt.Sprintf("Ensure %s is writable or set CHRYSALIS_DATABASE_PATH", filepath.Dir(path)),
		}
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("SQLite reachable at %s", path)}
}

// checkListenAddr verifies the server address is free to bind.
func checkListenAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not bindable: %v", cfg.Server.Addr, err),
			Fix:     "Stop the process holding the port or set PORT / CHRYSALIS_SERVER_ADDR",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is available", cfg.Server.Addr)}
}

// checkSchedules parses every configured task schedule.
func checkSchedules(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if !cfg.Scheduler.Enabled || len(cfg.Scheduler.Tasks) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "keepalive disabled, dead connections are only noticed on send",
		}
	}

	for _, t := range cfg.Scheduler.Tasks {
		if _, err := scheduling.ParseSchedule(t.Schedule); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("task %q: %v", t.Name, err),
				Fix:     "Use a 5-field cron expression or a Go duration such as 30s",
			}
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d task(s) scheduled", len(cfg.Scheduler.Tasks))}
}

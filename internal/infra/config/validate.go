package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateDatabase(cfg, ve)
	validateGateway(cfg, ve)
	validateRateLimit(cfg, ve)
	validateScheduler(cfg, ve)
	validateAudit(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr is required")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is not a valid host:port", cfg.Server.Addr)
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		ve.Add("server.read_header_timeout must be > 0")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		ve.Add("server.shutdown_timeout must be > 0")
	}
}

func validateDatabase(cfg *Config, ve *ValidationError) {
	if cfg.Database.Path == "" {
		ve.Add("database.path is required")
	}
	cb := cfg.Database.CircuitBreaker
	if !cb.Enabled {
		return
	}
	if cb.MaxFailures == 0 {
		ve.Add("database.circuit_breaker.max_failures must be > 0 when enabled")
	}
	if cb.Timeout <= 0 {
		ve.Add("database.circuit_breaker.timeout must be > 0 when enabled")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if cfg.Gateway.SendBuffer <= 0 {
		ve.Add("gateway.send_buffer must be > 0")
	}
	if cfg.Gateway.WriteTimeout <= 0 {
		ve.Add("gateway.write_timeout must be > 0")
	}
}

func validateRateLimit(cfg *Config, ve *ValidationError) {
	if !cfg.RateLimit.Enabled {
		return
	}
	if cfg.RateLimit.RequestsPerMin <= 0 {
		ve.Add("rate_limit.requests_per_min must be > 0 when enabled")
	}
	if cfg.RateLimit.BurstSize <= 0 {
		ve.Add("rate_limit.burst_size must be > 0 when enabled")
	}
}

var validActions = map[string]bool{"ping_connections": true}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		}
		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
		}
		if t.Action == "" {
			ve.Add("scheduler.tasks[%d].action is required", i)
		} else if !validActions[t.Action] {
			ve.Add("scheduler.tasks[%d].action %q is unknown", i, t.Action)
		}
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path is required when enabled")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chrysalis/internal/adapter/audit"
	"chrysalis/internal/adapter/gateway"
	"chrysalis/internal/adapter/store"
	"chrysalis/internal/domain"
	"chrysalis/internal/infra/config"
	"chrysalis/internal/infra/logger"
	"chrysalis/internal/infra/middleware"
	"chrysalis/internal/infra/tracer"
	"chrysalis/internal/usecase"
	"chrysalis/internal/usecase/eventbus"
	"chrysalis/internal/usecase/scheduling"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "doctor":
			if err := runDoctor(); err != nil {
				fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
				os.Exit(1)
			}
			return
		}
		if !strings.HasPrefix(os.Args[1], "-") {
			fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'chrysalis --help' for usage information.\n", os.Args[1])
			os.Exit(1)
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`chrysalis - mission tracking backend with real-time agent notifications

USAGE:
    chrysalis [COMMAND] [FLAGS]

COMMANDS:
    doctor      Run health checks on your setup

    (no command) - Serve the REST API and WebSocket gateway

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (optional)
    Environment: CHRYSALIS_* variables override config, PORT sets the listen port`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("CHRYSALIS_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Store
	sqlite, err := store.NewSQLiteStore(cfg.Database.Path, logger.Component(log, "store"))
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer sqlite.Close()

	var st domain.Store = sqlite
	var breaker gateway.BreakerReporter
	if cfg.Database.CircuitBreaker.Enabled {
		bs := store.NewBreakerStore(sqlite, cfg.Database.CircuitBreaker, logger.Component(log, "store"))
		st, breaker = bs, bs
	}

	// 4. Event bus
	bus := eventbus.New(logger.Component(log, "eventbus"))
	defer bus.Close()

	// 5. Audit trail
	if cfg.Audit.Enabled {
		maxSize, err := audit.ParseSize(cfg.Audit.MaxSize)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		trail, err := audit.NewFileTrail(cfg.Audit.Path, maxSize)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer func() {
			// Drain in-flight bus handlers before the file goes away.
			bus.Close()
			trail.Close()
		}()
		audit.Attach(bus, trail, logger.Component(log, "audit"))
	}

	// 6. Real-time channel and mission services
	gwLog := logger.Component(log, "gateway")
	registry := gateway.NewRegistry()
	dispatcher := gateway.NewDispatcher(registry, bus, gwLog)

	svcLog := logger.Component(log, "missions")
	missions := usecase.NewMissionManager(st, dispatcher, bus, svcLog)
	steps := usecase.NewStepCoordinator(st, missions, dispatcher, bus, svcLog)
	reports := usecase.NewReportCoordinator(st, missions, dispatcher, bus, svcLog)

	srv := gateway.NewServer(registry, bus, cfg.Server, cfg.Gateway, gwLog)
	srv.Use(
		middleware.RequestLogger(logger.Component(log, "http")),
		middleware.SecurityHeaders,
		middleware.CORS(cfg.Server.AllowedOrigins),
	)
	if cfg.RateLimit.Enabled {
		srv.Use(middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: cfg.RateLimit.RequestsPerMin,
			BurstSize:      cfg.RateLimit.BurstSize,
			TrustedProxies: cfg.Server.TrustedProxies,
			Exempt:         rateLimitExempt,
		}))
	}
	gateway.RegisterRESTHandlers(srv, gateway.HandlerDeps{
		Missions: missions,
		Steps:    steps,
		Reports:  reports,
		Store:    st,
		Breaker:  breaker,
		Bus:      bus,
		Logger:   gwLog,
	})

	// 7. Keepalive scheduler
	var sched *scheduling.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduling.NewScheduler(logger.Component(log, "scheduler"))
		sched.RegisterAction(scheduling.ActionPingConnections, srv.PingAll)
		if err := sched.LoadTasks(cfg.Scheduler.Tasks); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer sched.Stop()
	}

	log.Info("chrysalis starting",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Path,
		"circuit_breaker", cfg.Database.CircuitBreaker.Enabled,
		"rate_limit", cfg.RateLimit.Enabled,
		"scheduled_tasks", len(cfg.Scheduler.Tasks),
		"audit", cfg.Audit.Enabled,
	)

	// 8. Serve until signalled
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
		defer stop()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("gateway shutdown error", "error", err)
		}
		<-errCh
	}
	log.Info("chrysalis stopped")
	return nil
}

// rateLimitExempt keeps the WebSocket upgrade and health probes outside the
// per-client budget.
func rateLimitExempt(r *http.Request) bool {
	return r.URL.Path == "/ws" || strings.HasPrefix(r.URL.Path, "/health")
}


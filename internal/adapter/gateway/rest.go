package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"chrysalis/internal/domain"
	"chrysalis/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes the store circuit breaker state.
type BreakerReporter interface {
	State() gobreaker.State
}

// publishedCounter is implemented by event buses that count what they carry.
type publishedCounter interface {
	Published() map[domain.EventType]uint64
}

// HandlerDeps holds dependencies needed by the REST handlers.
type HandlerDeps struct {
	Missions *usecase.MissionManager
	Steps    *usecase.StepCoordinator
	Reports  *usecase.ReportCoordinator
	Store    Pinger
	Breaker  BreakerReporter // can be nil (breaker disabled)
	Bus      domain.EventBus // can be nil
	Logger   *slog.Logger
}

// RegisterRESTHandlers registers every HTTP route on s and returns the
// metrics collector feeding GET /metrics.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	startTime := time.Now()
	metrics := NewMetrics(deps.Bus)

	registerMissionRoutes(s, deps)
	registerStepRoutes(s, deps)
	registerReportRoutes(s, deps)

	s.RegisterHTTPRoute("GET /health", healthHandler(deps, s.registry, startTime))
	s.RegisterHTTPRoute("GET /health/readiness", readinessHandler(deps))
	s.RegisterHTTPRoute("GET /health/liveness", livenessHandler())
	s.RegisterHTTPRoute("GET /agents", agentsHandler(s.registry))
	s.RegisterHTTPRoute("GET /metrics", metricsHandler(deps, s.registry, startTime, metrics))
	return metrics
}

// errorBody is the JSON shape of every failed REST call.
type errorBody struct {
	StatusCode int              `json:"statusCode"`
	Error      string           `json:"error"`
	Message    string           `json:"message"`
	Code       domain.ErrorCode `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusOf(err)
	msg := errorMessage(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    msg,
		Code:       domain.ErrorCodeOf(err),
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var subsystemNames = map[string]string{
	domain.SubSystemMission: "Mission",
	domain.SubSystemStep:    "Step",
	domain.SubSystemReport:  "Field report",
}

// errorMessage renders err for clients without operation prefixes.
func errorMessage(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}
	if errors.Is(de, domain.ErrNotFound) {
		name := subsystemNames[de.SubSystem]
		if name == "" {
			name = "Resource"
		}
		return fmt.Sprintf("%s with ID %q not found", name, de.Detail)
	}
	if de.Detail != "" {
		return de.Detail
	}
	return de.Err.Error()
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, subsystem string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		detail := "malformed JSON body: " + err.Error()
		if errors.Is(err, io.EOF) {
			detail = "request body is required"
		}
		return domain.NewSubSystemError(subsystem, "gateway.decode", domain.ErrInvalidInput, detail)
	}
	return nil
}

var deletedBody = map[string]bool{"deleted": true}

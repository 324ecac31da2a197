package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/sourcegraph/conc/pool"

	apperrors "github.com/volscan/volscan/internal/errors"
	"github.com/volscan/volscan/internal/metrics"
)

// Check results.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
)

// Probe names. The aggregate probe has no name on the route.
const (
	ProbeAggregate = "aggregate"
	ProbeLive      = "live"
	ProbeReady     = "ready"
	ProbeStartup   = "startup"
)

var probeTimeouts = map[string]time.Duration{
	ProbeAggregate: 5 * time.Second,
	ProbeLive:      2 * time.Second,
	ProbeReady:     5 * time.Second,
	ProbeStartup:   3 * time.Second,
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is the body of the /health/{probe} endpoints.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker is implemented by anything the server depends on.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// HealthManager runs the registered checks for each probe.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
	now      func() time.Time
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
		now:      time.Now,
	}
}

// RegisterChecker adds or replaces a named check.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// runHealthChecks runs every check concurrently. A check that fails after
// the probe deadline passed is reported as a timeout rather than a failure.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]HealthChecker, len(names))
	for i, name := range names {
		checkers[i] = hm.checkers[name]
	}
	hm.mu.RUnlock()

	results := make([]string, len(names))
	p := pool.New().WithMaxGoroutines(max(1, len(names)))
	for i := range names {
		p.Go(func() {
			err := checkers[i].CheckHealth(ctx)
			switch {
			case err == nil:
				results[i] = statusHealthy
			case ctx.Err() != nil || stderrors.Is(err, context.DeadlineExceeded):
				results[i] = statusTimeout
			default:
				results[i] = statusUnhealthy
			}
		})
	}
	p.Wait()

	checks := make(map[string]string, len(names))
	for i, name := range names {
		checks[name] = results[i]
	}
	return checks
}

// determineOverallStatus folds check results: any failure is unhealthy, any
// timeout or degraded check is degraded.
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	overall := statusHealthy
	for _, status := range checks {
		switch status {
		case statusUnhealthy:
			return statusUnhealthy
		case statusDegraded, statusTimeout:
			overall = statusDegraded
		}
	}
	return overall
}

// Handler returns the handler for a probe. The liveness probe only reports
// that the process serves requests and runs no checks.
func (hm *HealthManager) Handler(probe string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks, status, ok := hm.evaluate(w, r, probe)
		if !ok {
			return
		}
		if probe == ProbeAggregate {
			writeJSON(w, http.StatusOK, HealthResponse{
				Status:    status,
				Version:   hm.version,
				Timestamp: hm.now().UTC().Format(time.RFC3339),
				Checks:    checks,
			})
			return
		}
		writeJSON(w, http.StatusOK, ProbeResponse{Status: status, Timestamp: hm.now().UTC()})
	}
}

func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.Handler(ProbeAggregate)(w, r)
}

func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.Handler(ProbeLive)(w, r)
}

func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.Handler(ProbeReady)(w, r)
}

func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.Handler(ProbeStartup)(w, r)
}

// evaluate runs the checks for a probe and answers 503 when unhealthy.
func (hm *HealthManager) evaluate(w http.ResponseWriter, r *http.Request, probe string) (map[string]string, string, bool) {
	if probe == ProbeLive {
		metrics.RecordHealthCheck(probe, true, 0)
		return nil, statusHealthy, true
	}

	timeout, ok := probeTimeouts[probe]
	if !ok {
		timeout = probeTimeouts[ProbeAggregate]
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	start := time.Now()
	checks := hm.runHealthChecks(ctx)
	status := hm.determineOverallStatus(checks)
	metrics.RecordHealthCheck(probe, status != statusUnhealthy, time.Since(start))

	if status == statusUnhealthy {
		message := probe + " probe failed"
		if probe == ProbeAggregate {
			message = "aggregate health check failed"
		}
		respondWithError(w, r, healthEnvelope(message, probe, status, checks))
		return nil, status, false
	}
	return checks, status, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// healthEnvelope builds the 503 envelope listing the failing checks.
func healthEnvelope(message, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	details := map[string]any{"probe": probe, "status": status}
	if len(checks) > 0 {
		details["checks"] = checks
	}

	failing := make([]string, 0, len(checks))
	for name, result := range checks {
		if result != statusHealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message).WithDetails(details)
	if len(failing) > 0 {
		envelope, _ = envelope.WithContext(map[string]any{"probe": probe, "failing_checks": failing})
	}
	return envelope
}

var (
	healthMu            sync.RWMutex
	globalHealthManager *HealthManager
)

// InitHealthManager installs the manager used by the probe routes.
func InitHealthManager(version string) {
	healthMu.Lock()
	defer healthMu.Unlock()
	globalHealthManager = NewHealthManager(version)
}

func GetHealthManager() *HealthManager {
	healthMu.RLock()
	defer healthMu.RUnlock()
	return globalHealthManager
}

// Probe routes a probe to the installed manager, answering 503 until one
// is installed.
func Probe(probe string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hm := GetHealthManager(); hm != nil {
			hm.Handler(probe)(w, r)
			return
		}
		respondWithError(w, r, healthEnvelope("health manager not initialized", probe, "unknown", nil))
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

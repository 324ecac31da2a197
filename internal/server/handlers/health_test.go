package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(context.Context) error {
	return s.err
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestHealthHandlerReportsChecks(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.now = func() time.Time { return time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC) }
	manager.RegisterChecker("store", stubChecker{})
	manager.RegisterChecker("client", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "2026-10-15T14:00:00Z", resp.Timestamp)
	assert.Equal(t, map[string]string{"store": "healthy", "client": "healthy"}, resp.Checks)
}

func TestHealthHandlerFailsWhenACheckFails(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", stubChecker{err: errors.New("locked")})
	manager.RegisterChecker("client", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	assert.Equal(t, "aggregate health check failed", body.Error.Message)
	checks, ok := body.Error.Details["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unhealthy", checks["store"])
	assert.Equal(t, "healthy", checks["client"])
}

func TestChecksRunConcurrently(t *testing.T) {
	manager := NewHealthManager("dev")
	var running atomic.Int32
	release := make(chan struct{})
	for _, name := range []string{"a", "b", "c"} {
		manager.RegisterChecker(name, CheckFunc(func(ctx context.Context) error {
			if running.Add(1) == 3 {
				close(release)
			}
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
	}

	checks := manager.runHealthChecks(context.Background())
	assert.Equal(t, map[string]string{"a": "healthy", "b": "healthy", "c": "healthy"}, checks)
}

func TestSlowCheckIsReportedAsTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("fred", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	checks := manager.runHealthChecks(ctx)
	assert.Equal(t, "timeout", checks["fred"])
	assert.Equal(t, "degraded", manager.determineOverallStatus(checks))
}

func TestDetermineOverallStatus(t *testing.T) {
	manager := NewHealthManager("dev")
	assert.Equal(t, "healthy", manager.determineOverallStatus(nil))
	assert.Equal(t, "degraded", manager.determineOverallStatus(map[string]string{"a": "healthy", "b": "timeout"}))
	assert.Equal(t, "unhealthy", manager.determineOverallStatus(map[string]string{"a": "timeout", "b": "unhealthy"}))
}

func TestProbeHandlers(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", CheckFunc(func(context.Context) error { return errors.New("locked") }))

	rec := httptest.NewRecorder()
	manager.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ready probe failed", body.Error.Message)
	assert.Equal(t, "ready", body.Error.Details["probe"])

	// Liveness does not depend on the store.
	rec = httptest.NewRecorder()
	manager.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var probe ProbeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&probe))
	assert.Equal(t, "healthy", probe.Status)

	rec = httptest.NewRecorder()
	manager.StartupHandler(rec, httptest.NewRequest(http.MethodGet, "/health/startup", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProbeWithoutManager(t *testing.T) {
	healthMu.Lock()
	saved := globalHealthManager
	globalHealthManager = nil
	healthMu.Unlock()
	t.Cleanup(func() {
		healthMu.Lock()
		globalHealthManager = saved
		healthMu.Unlock()
	})

	rec := httptest.NewRecorder()
	Probe(ProbeReady)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	InitHealthManager("dev")
	rec = httptest.NewRecorder()
	Probe(ProbeReady)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

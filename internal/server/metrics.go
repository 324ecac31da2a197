package server

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/config"
	apperrors "github.com/volscan/volscan/internal/errors"
	"github.com/volscan/volscan/internal/metrics"
	"github.com/volscan/volscan/internal/observability"
)

const prometheusContentType = "text/plain; version=0.0.4"

// hopHeaders are not copied from the exporter response.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// handleMetrics serves GET /metrics. Bucket and uptime gauges are refreshed
// first, then the exporter output is relayed so one port serves everything.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	if s.client != nil && s.client.Buckets != nil {
		metrics.PublishBuckets(s.client.Buckets.Snapshot())
	}
	metrics.PublishUptime(s.started, time.Now())

	fallback := 0
	if cfg := config.GetConfig(); cfg != nil {
		fallback = cfg.Metrics.Port
	}
	url := observability.ScrapeURL(fallback)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.NewInternalError("Unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := s.scraper.Do(req)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapExternalService(r.Context(), err, "Prometheus exporter unavailable at "+url))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for key, values := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", prometheusContentType)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		observability.Active(config.AppName).Warn("Failed to relay metrics", zap.Error(err))
	}
}

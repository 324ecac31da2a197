package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/volscan/volscan/internal/core"
	apperrors "github.com/volscan/volscan/internal/errors"
)

// maxExchangeLimit caps the limit query parameter of /exchanges.
const maxExchangeLimit = 500

// BucketSource exposes live bucket state.
type BucketSource interface {
	Snapshot() []core.BucketSnapshot
}

// ExchangeSource lists journaled exchanges, newest first.
type ExchangeSource interface {
	RecentExchanges(ctx context.Context, workloadType string, limit int, failedOnly bool) ([]core.Exchange, error)
}

// WorkloadRunner executes a named workload profile.
type WorkloadRunner interface {
	Resolve(name string) (core.Workload, error)
	Execute(ctx context.Context, w core.Workload) (*core.Response, error)
}

// ClientHandlers serves the client admin endpoints. Nil sources answer 503.
type ClientHandlers struct {
	Buckets   BucketSource
	Exchanges ExchangeSource
	Runner    WorkloadRunner
}

// BucketsResponse lists bucket snapshots.
type BucketsResponse struct {
	Buckets []core.BucketSnapshot `json:"buckets"`
}

// ExchangesResponse lists journal entries.
type ExchangesResponse struct {
	Exchanges []core.Exchange `json:"exchanges"`
}

// WorkloadResponse is the outcome of POST /workloads/{name}.
type WorkloadResponse struct {
	Workload string            `json:"workload"`
	Status   int               `json:"status"`
	Message  string            `json:"message,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     json.RawMessage   `json:"body,omitempty"`
	Text     string            `json:"text,omitempty"`
}

// BucketsHandler handles GET /buckets.
func (h *ClientHandlers) BucketsHandler(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Buckets == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("client is not configured"))
		return
	}
	snapshots := h.Buckets.Snapshot()
	if typ := strings.TrimSpace(r.URL.Query().Get("type")); typ != "" {
		filtered := snapshots[:0]
		for _, s := range snapshots {
			if string(s.Type) == typ {
				filtered = append(filtered, s)
			}
		}
		snapshots = filtered
	}
	writeJSON(w, http.StatusOK, BucketsResponse{Buckets: snapshots})
}

// ExchangesHandler handles GET /exchanges?type=&limit=&failed=.
func (h *ClientHandlers) ExchangesHandler(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Exchanges == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("exchange journal is not configured"))
		return
	}

	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "limit must be a positive integer"))
			return
		}
		limit = min(value, maxExchangeLimit)
	}
	failed := false
	if raw := strings.TrimSpace(query.Get("failed")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "failed must be a boolean"))
			return
		}
		failed = value
	}

	exchanges, err := h.Exchanges.RecentExchanges(r.Context(), strings.TrimSpace(query.Get("type")), limit, failed)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list exchanges"))
		return
	}
	writeJSON(w, http.StatusOK, ExchangesResponse{Exchanges: exchanges})
}

// WorkloadHandler handles POST /workloads/{name}.
func (h *ClientHandlers) WorkloadHandler(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Runner == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("client is not configured"))
		return
	}

	name := chi.URLParam(r, "name")
	workload, err := h.Runner.Resolve(name)
	if err != nil {
		respondWithError(w, r, apperrors.NewNotFoundError(err.Error()))
		return
	}

	resp, err := h.Runner.Execute(r.Context(), workload)
	if err != nil {
		respondWithError(w, r, apperrors.FromClientError(r.Context(), err))
		return
	}

	out := WorkloadResponse{
		Workload: name,
		Status:   resp.Status,
		Message:  core.StatusMessage(resp.Status),
		Headers:  resp.Headers,
	}
	if json.Valid(resp.Body) {
		out.Body = json.RawMessage(resp.Body)
	} else if len(resp.Body) > 0 {
		out.Text = string(resp.Body)
	}
	writeJSON(w, http.StatusOK, out)
}

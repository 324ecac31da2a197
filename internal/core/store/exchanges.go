package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/volscan/volscan/internal/core"
)

// DefaultExchangeLimit bounds ListExchanges when no limit is given.
const DefaultExchangeLimit = 50

// ExchangeQuery filters the exchange journal.
type ExchangeQuery struct {
	Type   string
	Limit  int
	Failed bool
}

// RecordExchange appends one exchange to the journal.
func (s *Store) RecordExchange(ctx context.Context, ex core.Exchange) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(ex.ID) == "" {
		return errors.New("exchange id is required")
	}

	startedAt := ex.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var label, errText sql.NullString
	if ex.Label != "" {
		label = sql.NullString{String: ex.Label, Valid: true}
	}
	if ex.Error != "" {
		errText = sql.NullString{String: ex.Error, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO exchanges (
			id, workload_type, method, url, label, status, reconnects,
			rate_limit_retries, redirects, waited_ms, duration_ms, error, started_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ex.ID, string(ex.Type), string(ex.Method), ex.URL, label, ex.Status, ex.Reconnects,
		ex.RateLimitRetries, ex.Redirects, ex.Waited.Milliseconds(), ex.Duration.Milliseconds(),
		errText, startedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// ListExchanges returns the most recent exchanges first.
func (s *Store) ListExchanges(ctx context.Context, q ExchangeQuery) ([]core.Exchange, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultExchangeLimit
	}

	var (
		conditions []string
		args       []any
	)
	if t := strings.TrimSpace(q.Type); t != "" {
		conditions = append(conditions, "workload_type = ?")
		args = append(args, t)
	}
	if q.Failed {
		conditions = append(conditions, "(error IS NOT NULL OR status NOT IN (200, 201, 204))")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, workload_type, method, url, label, status, reconnects,
			rate_limit_retries, redirects, waited_ms, duration_ms, error, started_at
		FROM exchanges
		%s
		ORDER BY started_at DESC, id
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	out := []core.Exchange{}
	for rows.Next() {
		var (
			ex           core.Exchange
			workloadType string
			method       string
			label        sql.NullString
			errText      sql.NullString
			waitedMs     int64
			durationMs   int64
			startedAt    int64
		)
		if err := rows.Scan(&ex.ID, &workloadType, &method, &ex.URL, &label, &ex.Status, &ex.Reconnects,
			&ex.RateLimitRetries, &ex.Redirects, &waitedMs, &durationMs, &errText, &startedAt); err != nil {
			return nil, fmt.Errorf("scan exchanges: %w", err)
		}
		ex.Type = core.WorkloadType(workloadType)
		ex.Method = core.Method(method)
		ex.Label = label.String
		ex.Error = errText.String
		ex.Waited = time.Duration(waitedMs) * time.Millisecond
		ex.Duration = time.Duration(durationMs) * time.Millisecond
		ex.StartedAt = time.UnixMilli(startedAt).UTC()
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	return out, nil
}

// PruneExchanges deletes journal entries older than cutoff.
func (s *Store) PruneExchanges(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	result, err := s.DB.ExecContext(ctx, `DELETE FROM exchanges WHERE started_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune exchanges: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune exchanges: %w", err)
	}
	return affected, nil
}

// RecentExchanges is ListExchanges with positional filters.
func (s *Store) RecentExchanges(ctx context.Context, workloadType string, limit int, failedOnly bool) ([]core.Exchange, error) {
	return s.ListExchanges(ctx, ExchangeQuery{Type: workloadType, Limit: limit, Failed: failedOnly})
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/volscan/volscan/internal/core"
)

// ErrEmptyBucketQuery is returned when a query selects nothing explicitly.
var ErrEmptyBucketQuery = errors.New("must specify --all, --type, or --prefix")

// BucketEntry is a persisted bucket as listed by the rate-limit commands.
type BucketEntry struct {
	Type     core.WorkloadType
	Snapshot core.BucketSnapshot
}

// BucketQuery selects persisted buckets by exact type, type prefix, or all.
type BucketQuery struct {
	All    bool
	Type   string
	Prefix string
}

func (q BucketQuery) Validate() error {
	_, _, err := q.filter()
	return err
}

// filter returns the WHERE clause for the query. Type wins over Prefix.
func (q BucketQuery) filter() (string, []any, error) {
	switch {
	case q.All:
		return "", nil, nil
	case strings.TrimSpace(q.Type) != "":
		return "WHERE workload_type = ?", []any{strings.TrimSpace(q.Type)}, nil
	case strings.TrimSpace(q.Prefix) != "":
		return "WHERE workload_type LIKE ? ESCAPE '\\'", []any{escapeLike(strings.TrimSpace(q.Prefix)) + "%"}, nil
	default:
		return "", nil, ErrEmptyBucketQuery
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ListBuckets returns the selected buckets ordered by workload type.
func (s *Store) ListBuckets(ctx context.Context, q BucketQuery) ([]BucketEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	where, args, err := q.filter()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM buckets %s ORDER BY workload_type", bucketColumns, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	entries := []BucketEntry{}
	for rows.Next() {
		snapshot, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		entries = append(entries, BucketEntry{Type: snapshot.Type, Snapshot: snapshot})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return entries, nil
}

// CountBuckets reports how many buckets a reset would remove.
func (s *Store) CountBuckets(ctx context.Context, q BucketQuery) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	where, args, err := q.filter()
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM buckets "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count buckets: %w", err)
	}
	return count, nil
}

// ResetBuckets deletes the selected buckets so the next run starts from the
// configured defaults.
func (s *Store) ResetBuckets(ctx context.Context, q BucketQuery) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	where, args, err := q.filter()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, "DELETE FROM buckets "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset buckets: %w", err)
	}
	return result.RowsAffected()
}

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

const bucketColumns = `workload_type, bucket_id, remaining, reset_after_ms, sampled_at, special, spacing_ms, must_wait`

// GetBucket returns stored bucket state for a workload type.
func (s *Store) GetBucket(ctx context.Context, t core.WorkloadType) (*core.BucketSnapshot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(string(t))
	if key == "" {
		return nil, errors.New("workload type is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT `+bucketColumns+`
		FROM buckets
		WHERE workload_type = ?
	`, key)

	snapshot, err := scanBucket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch bucket: %w", err)
	}
	return &snapshot, nil
}

// LoadBuckets returns every stored bucket ordered by workload type.
func (s *Store) LoadBuckets(ctx context.Context) ([]core.BucketSnapshot, error) {
	entries, err := s.ListBuckets(ctx, BucketQuery{All: true})
	if err != nil {
		return nil, err
	}
	out := make([]core.BucketSnapshot, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Snapshot)
	}
	return out, nil
}

// SaveBucket persists bucket state for a workload type.
func (s *Store) SaveBucket(ctx context.Context, snapshot core.BucketSnapshot) error {
	if err := s.ready(); err != nil {
		return err
	}

	key := strings.TrimSpace(string(snapshot.Type))
	if key == "" {
		return errors.New("workload type is required")
	}

	sampledAt := snapshot.SampledAt
	if sampledAt.IsZero() {
		sampledAt = time.Now()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO buckets (`+bucketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workload_type) DO UPDATE SET
			bucket_id = excluded.bucket_id,
			remaining = excluded.remaining,
			reset_after_ms = excluded.reset_after_ms,
			sampled_at = excluded.sampled_at,
			special = excluded.special,
			spacing_ms = excluded.spacing_ms,
			must_wait = excluded.must_wait
	`, key,
		snapshot.BucketID,
		snapshot.Remaining,
		snapshot.ResetAfter.Milliseconds(),
		sampledAt.UTC().UnixMilli(),
		boolToInt(snapshot.Special),
		snapshot.Spacing.Milliseconds(),
		boolToInt(snapshot.MustWait),
	)
	if err != nil {
		return fmt.Errorf("store bucket: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(row rowScanner) (core.BucketSnapshot, error) {
	var (
		workloadType string
		bucketID     string
		remaining    int64
		resetAfterMs int64
		sampledAt    int64
		special      int
		spacingMs    int64
		mustWait     int
	)
	if err := row.Scan(&workloadType, &bucketID, &remaining, &resetAfterMs, &sampledAt, &special, &spacingMs, &mustWait); err != nil {
		return core.BucketSnapshot{}, err
	}
	return core.BucketSnapshot{
		Type:       core.WorkloadType(workloadType),
		BucketID:   bucketID,
		Remaining:  remaining,
		ResetAfter: time.Duration(resetAfterMs) * time.Millisecond,
		SampledAt:  time.UnixMilli(sampledAt).UTC(),
		Special:    special != 0,
		Spacing:    time.Duration(spacingMs) * time.Millisecond,
		MustWait:   mustWait != 0,
	}, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

package repo

import (
	"context"
	"fmt"
	"time"

	"portraits/internal/domain"
	"portraits/internal/infra"
	"portraits/internal/sqlinline"
)

// RateLimitRepositoryPG implements domain.RateLimitRepository on PostgreSQL.
type RateLimitRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewRateLimitRepository creates a rate-limit counter repository.
func NewRateLimitRepository(sql infra.SQLExecutor) *RateLimitRepositoryPG {
	return &RateLimitRepositoryPG{sql: sql}
}

// BucketKey composes the unique counter row key: hashed identity, endpoint
// and the minute-floored window start.
func BucketKey(identityHash, endpoint string, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%d", identityHash, endpoint, windowStart.Unix())
}

// Increment adds one request to the current minute bucket. The upsert is
// atomic under concurrent callers: conflicting inserts add onto the existing
// count instead of racing it.
func (r *RateLimitRepositoryPG) Increment(ctx context.Context, identityHash, endpoint string, windowStart time.Time) error {
	key := BucketKey(identityHash, endpoint, windowStart)
	_, err := r.sql.Exec(ctx, sqlinline.QIncrementRateBucket, key, identityHash, endpoint, windowStart)
	return err
}

// WindowSum returns the total request count for the identity/endpoint pair
// across buckets whose window start falls within [since, now].
func (r *RateLimitRepositoryPG) WindowSum(ctx context.Context, identityHash, endpoint string, since time.Time) (int, error) {
	var sum int
	if err := r.sql.QueryRow(ctx, sqlinline.QSumRateWindow, identityHash, endpoint, since).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// DeleteOlderThan garbage-collects buckets past the grace cutoff.
func (r *RateLimitRepositoryPG) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteOldRateBuckets, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.RateLimitRepository = (*RateLimitRepositoryPG)(nil)

package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for portrait jobs. FinalizeSuccess and
// FinalizeFailure are conditional writes: they only take effect while the job
// is still non-terminal and report whether the update was applied, so a late
// finalizer racing a sweep is a no-op rather than an overwrite.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	TransitionProcessing(ctx context.Context, jobID string) error
	FinalizeSuccess(ctx context.Context, jobID, previewKey, hdKey string) (bool, error)
	FinalizeFailure(ctx context.Context, jobID, message string) (bool, error)
	GetByID(ctx context.Context, jobID string) (*Job, error)

	CountActive(ctx context.Context, since time.Time) (int, error)
	CountActiveForUser(ctx context.Context, userID string, since time.Time) (int, error)
	SweepStale(ctx context.Context, olderThan time.Time, message string) (int64, error)
}

// RateLimitRepository persists sliding-window request counters. Increment
// must be atomic under concurrent callers (upsert with add-on-conflict).
type RateLimitRepository interface {
	WindowSum(ctx context.Context, identityHash, endpoint string, since time.Time) (int, error)
	Increment(ctx context.Context, identityHash, endpoint string, windowStart time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Blocklist tracks temporarily blocked source identities.
type Blocklist interface {
	IsBlocked(ctx context.Context, identityHash string) (bool, error)
	Block(ctx context.Context, identityHash, reason string, duration time.Duration) error
}

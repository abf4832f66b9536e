package repo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestBucketKey(t *testing.T) {
	windowStart := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	got := BucketKey("abcd1234", "portraits.create", windowStart)
	want := "abcd1234:portraits.create:1773480360"
	if got != want {
		t.Fatalf("BucketKey = %q, want %q", got, want)
	}
}

func TestIncrementUsesAtomicUpsert(t *testing.T) {
	sql := &stubSQL{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	r := NewRateLimitRepository(sql)

	windowStart := time.Now().Truncate(time.Minute)
	if err := r.Increment(context.Background(), "hash", "portraits.create", windowStart); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	query := sql.queries[0]
	if !strings.Contains(query, "on conflict (bucket_key)") {
		t.Fatal("increment statement is not an upsert")
	}
	if !strings.Contains(query, "do update set count = rate_limit_counters.count + 1") {
		t.Fatal("conflict branch does not add onto the stored count")
	}
	if got := sql.args[0][0]; got != BucketKey("hash", "portraits.create", windowStart) {
		t.Fatalf("bucket key arg = %v", got)
	}
}

func TestDeleteOlderThanReportsCount(t *testing.T) {
	sql := &stubSQL{execTag: pgconn.NewCommandTag("DELETE 42")}
	r := NewRateLimitRepository(sql)

	n, err := r.DeleteOlderThan(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 42 {
		t.Fatalf("deleted = %d, want 42", n)
	}
}

package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/keymeterhq/keymeter/internal/kv"
)

// --- Put ---

func TestPut_StoresRecordWithDeadline(t *testing.T) {
	repo, ms, clock := newTestRepo(t)
	ctx := context.Background()

	var gotKey string
	var gotTTL time.Duration
	var gotValue []byte
	ms.setWithTTLFn = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		gotKey, gotValue, gotTTL = key, value, ttl
		return nil
	}

	if err := repo.Put(ctx, testReport(t), 10*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "keymeter:report:latest" {
		t.Errorf("unexpected key: %s", gotKey)
	}
	if gotTTL != 10*time.Minute {
		t.Errorf("expected ttl 10m, got %v", gotTTL)
	}

	var c cachedReport
	if err := json.Unmarshal(gotValue, &c); err != nil {
		t.Fatalf("stored record is not valid JSON: %v", err)
	}
	want := clock.Now().Add(10 * time.Minute).UnixMilli()
	if c.ExpiresAt != want {
		t.Errorf("expected expires_at %d, got %d", want, c.ExpiresAt)
	}
}

func TestPut_StoreError(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ctx := context.Background()

	ms.setWithTTLFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		return errors.New("connection lost")
	}

	if err := repo.Put(ctx, testReport(t), time.Minute); err == nil {
		t.Fatal("expected error on SET failure")
	}
}

// --- Get ---

func TestGet_FreshRecord(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ctx := context.Background()

	var stored []byte
	ms.setWithTTLFn = func(_ context.Context, _ string, value []byte, _ time.Duration) error {
		stored = value
		return nil
	}
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		if key != "keymeter:report:latest" {
			t.Errorf("unexpected key: %s", key)
		}
		return stored, nil
	}

	want := testReport(t)
	if err := repo.Put(ctx, want, 10*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := repo.Get(ctx)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.GeneratedAt() != want.GeneratedAt() {
		t.Errorf("expected generated_at %q, got %q", want.GeneratedAt(), got.GeneratedAt())
	}
	if got.KeyCount() != 2 {
		t.Errorf("expected 2 results, got %d", got.KeyCount())
	}
	if got.Totals().Remaining() != 400 {
		t.Errorf("expected remaining 400, got %v", got.Totals().Remaining())
	}
	first := got.Results()[0]
	if first.ID() != "cred-1" || !first.OK() || first.Used() != 100 {
		t.Errorf("unexpected first result: %+v", first)
	}
	second := got.Results()[1]
	if second.OK() || second.Message() != "HTTP 401" {
		t.Errorf("unexpected second result: %+v", second)
	}
}

func TestGet_RepeatedReadsIdentical(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ctx := context.Background()

	var stored []byte
	ms.setWithTTLFn = func(_ context.Context, _ string, value []byte, _ time.Duration) error {
		stored = value
		return nil
	}
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) { return stored, nil }

	if err := repo.Put(ctx, testReport(t), 10*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, ok := repo.Get(ctx)
	if !ok {
		t.Fatal("expected cache hit")
	}
	second, ok := repo.Get(ctx)
	if !ok {
		t.Fatal("expected cache hit")
	}

	a, _ := json.Marshal(reportToCache(first, 0))
	b, _ := json.Marshal(reportToCache(second, 0))
	if string(a) != string(b) {
		t.Errorf("repeated reads differ:\n%s\n%s", a, b)
	}
}

func TestGet_MissWhenAbsent(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ctx := context.Background()

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, kv.ErrKeyNotFound
	}

	if _, ok := repo.Get(ctx); ok {
		t.Fatal("expected cache miss for absent key")
	}
}

func TestGet_MissWhenUndecodable(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ctx := context.Background()

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte("not json"), nil
	}

	if _, ok := repo.Get(ctx); ok {
		t.Fatal("expected cache miss for undecodable record")
	}
}

func TestGet_MissWhenExpired(t *testing.T) {
	repo, ms, clock := newTestRepo(t)
	ctx := context.Background()

	var stored []byte
	ms.setWithTTLFn = func(_ context.Context, _ string, value []byte, _ time.Duration) error {
		stored = value
		return nil
	}
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) { return stored, nil }

	if err := repo.Put(ctx, testReport(t), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, ok := repo.Get(ctx); !ok {
		t.Fatal("expected hit before the deadline")
	}

	clock.Advance(time.Second)
	if _, ok := repo.Get(ctx); ok {
		t.Fatal("expected miss at the deadline")
	}
}

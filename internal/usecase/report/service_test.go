package report

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/keymeterhq/keymeter/internal/domain"
	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

// --- Mocks ---

type mockCreds struct {
	list      []domcred.Credential
	listErr   error
	getResult domcred.Credential
	getErr    error
}

func (m *mockCreds) List(_ context.Context) ([]domcred.Credential, error) {
	return m.list, m.listErr
}

func (m *mockCreds) Get(_ context.Context, _ string) (domcred.Credential, error) {
	return m.getResult, m.getErr
}

type mockFetcher struct {
	results map[string]domreport.Result
	calls   atomic.Int32
}

func (m *mockFetcher) Fetch(_ context.Context, cred domcred.Credential) domreport.Result {
	m.calls.Add(1)
	return m.results[cred.ID()]
}

type mockCache struct {
	getResult domreport.Report
	getOK     bool
	putReport domreport.Report
	putTTL    time.Duration
	putCalled bool
	putErr    error
}

func (m *mockCache) Get(_ context.Context) (domreport.Report, bool) {
	return m.getResult, m.getOK
}

func (m *mockCache) Put(_ context.Context, rep domreport.Report, ttl time.Duration) error {
	m.putCalled = true
	m.putReport = rep
	m.putTTL = ttl
	return m.putErr
}

func makeCred(id string) domcred.Credential {
	return domcred.Reconstruct(id, "fk-secret-"+id, 1700000000000)
}

func newTestService(t *testing.T, creds *mockCreds, fetcher *mockFetcher, cache *mockCache) (*Service, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	cfg := &Config{Concurrency: 2, BatchDelay: 0, CacheTTL: 10 * time.Minute}
	svc := New(creds, fetcher, cache, cfg, zap.NewNop()).WithClock(clock)
	return svc, clock
}

// --- GetReport ---

func TestGetReport_CacheHit(t *testing.T) {
	cached := domreport.New("2024-01-15 10:00:00", domreport.NewTotals(1, 2, 1), nil)
	fetcher := &mockFetcher{}
	cache := &mockCache{getResult: cached, getOK: true}
	svc, _ := newTestService(t, &mockCreds{list: []domcred.Credential{makeCred("a")}}, fetcher, cache)

	rep, err := svc.GetReport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.GeneratedAt() != "2024-01-15 10:00:00" {
		t.Errorf("expected the cached report, got %q", rep.GeneratedAt())
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("expected no upstream calls on cache hit, got %d", fetcher.calls.Load())
	}
	if cache.putCalled {
		t.Error("expected no cache write on cache hit")
	}
}

func TestGetReport_CacheMissRecomputes(t *testing.T) {
	creds := &mockCreds{list: []domcred.Credential{makeCred("a")}}
	fetcher := &mockFetcher{results: map[string]domreport.Result{
		"a": domreport.NewSuccess("a", "fk-s...t-a", "2024-01-01", "2024-02-01", 100, 500, 0.2),
	}}
	cache := &mockCache{}
	svc, _ := newTestService(t, creds, fetcher, cache)

	rep, err := svc.GetReport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.KeyCount() != 1 {
		t.Errorf("expected 1 result, got %d", rep.KeyCount())
	}
	if !cache.putCalled {
		t.Fatal("expected the report to be cached")
	}
	if cache.putTTL != 10*time.Minute {
		t.Errorf("expected ttl 10m, got %v", cache.putTTL)
	}
}

// --- Recompute ---

func TestRecompute_OrdersAndTotals(t *testing.T) {
	creds := &mockCreds{list: []domcred.Credential{makeCred("a"), makeCred("b"), makeCred("c")}}
	fetcher := &mockFetcher{results: map[string]domreport.Result{
		"a": domreport.NewSuccess("a", "fk-a", "2024-01-01", "2024-02-01", 100, 500, 0.2),
		"b": domreport.NewFailure("b", "fk-b", "HTTP 401"),
		"c": domreport.NewSuccess("c", "fk-c", "2024-01-01", "2024-02-01", 500, 500, 1.0),
	}}
	cache := &mockCache{}
	svc, clock := newTestService(t, creds, fetcher, cache)

	rep, err := svc.Recompute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rep.KeyCount() != 3 {
		t.Fatalf("expected 3 results, got %d", rep.KeyCount())
	}
	results := rep.Results()
	if results[0].ID() != "a" || results[1].ID() != "c" || results[2].ID() != "b" {
		t.Errorf("expected order a, c, b; got %s, %s, %s",
			results[0].ID(), results[1].ID(), results[2].ID())
	}

	totals := rep.Totals()
	if totals.Used() != 600 || totals.Allowance() != 1000 || totals.Remaining() != 400 {
		t.Errorf("unexpected totals: used=%v allowance=%v remaining=%v",
			totals.Used(), totals.Allowance(), totals.Remaining())
	}

	want := clock.Now().In(reportTimezone).Format(generatedAtLayout)
	if rep.GeneratedAt() != want {
		t.Errorf("expected generated_at %q, got %q", want, rep.GeneratedAt())
	}
}

func TestRecompute_StableTies(t *testing.T) {
	// Both credentials have 400 remaining; input order must hold.
	creds := &mockCreds{list: []domcred.Credential{makeCred("a"), makeCred("c")}}
	fetcher := &mockFetcher{results: map[string]domreport.Result{
		"a": domreport.NewSuccess("a", "fk-a", "N/A", "N/A", 100, 500, 0.2),
		"c": domreport.NewSuccess("c", "fk-c", "N/A", "N/A", 200, 600, 0.33),
	}}
	svc, _ := newTestService(t, creds, fetcher, &mockCache{})

	rep, err := svc.Recompute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results := rep.Results()
	if results[0].ID() != "a" || results[1].ID() != "c" {
		t.Errorf("expected tie to keep input order a, c; got %s, %s",
			results[0].ID(), results[1].ID())
	}
}

func TestRecompute_NoCredentials(t *testing.T) {
	fetcher := &mockFetcher{}
	cache := &mockCache{}
	svc, _ := newTestService(t, &mockCreds{}, fetcher, cache)

	rep, err := svc.Recompute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("expected no upstream calls, got %d", fetcher.calls.Load())
	}
	if rep.KeyCount() != 0 {
		t.Errorf("expected empty report, got %d results", rep.KeyCount())
	}
	totals := rep.Totals()
	if totals.Used() != 0 || totals.Allowance() != 0 || totals.Remaining() != 0 {
		t.Errorf("expected zero totals, got %+v", totals)
	}
	if rep.GeneratedAt() == "" {
		t.Error("expected a generation timestamp")
	}
	if !cache.putCalled {
		t.Error("expected the empty report to be cached")
	}
}

func TestRecompute_ListError(t *testing.T) {
	listErr := errors.New("kv: connection refused")
	fetcher := &mockFetcher{}
	svc, _ := newTestService(t, &mockCreds{listErr: listErr}, fetcher, &mockCache{})

	_, err := svc.Recompute(context.Background())
	if !errors.Is(err, listErr) {
		t.Fatalf("expected list error wrapped, got %v", err)
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("expected no upstream calls, got %d", fetcher.calls.Load())
	}
}

func TestRecompute_CacheWriteFailureStillServes(t *testing.T) {
	creds := &mockCreds{list: []domcred.Credential{makeCred("a")}}
	fetcher := &mockFetcher{results: map[string]domreport.Result{
		"a": domreport.NewSuccess("a", "fk-a", "N/A", "N/A", 1, 2, 0.5),
	}}
	cache := &mockCache{putErr: errors.New("kv: connection refused")}
	svc, _ := newTestService(t, creds, fetcher, cache)

	rep, err := svc.Recompute(context.Background())
	if err != nil {
		t.Fatalf("expected the report despite the cache failure, got %v", err)
	}
	if rep.KeyCount() != 1 {
		t.Errorf("expected 1 result, got %d", rep.KeyCount())
	}
}

// --- RefreshOne ---

func TestRefreshOne(t *testing.T) {
	creds := &mockCreds{getResult: makeCred("a")}
	fetcher := &mockFetcher{results: map[string]domreport.Result{
		"a": domreport.NewSuccess("a", "fk-a", "N/A", "N/A", 10, 100, 0.1),
	}}
	cache := &mockCache{}
	svc, _ := newTestService(t, creds, fetcher, cache)

	res, err := svc.RefreshOne(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ID() != "a" || res.Used() != 10 {
		t.Errorf("unexpected result: id=%s used=%v", res.ID(), res.Used())
	}
	if cache.putCalled {
		t.Error("expected RefreshOne to leave the cache alone")
	}
}

func TestRefreshOne_NotFound(t *testing.T) {
	creds := &mockCreds{getErr: domain.ErrNotFound}
	svc, _ := newTestService(t, creds, &mockFetcher{}, &mockCache{})

	_, err := svc.RefreshOne(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// --- Poller ---

type countingRecomputer struct {
	calls atomic.Int32
}

func (c *countingRecomputer) Recompute(_ context.Context) (domreport.Report, error) {
	c.calls.Add(1)
	return domreport.Report{}, nil
}

func TestPoller_RecomputesOnInterval(t *testing.T) {
	rec := &countingRecomputer{}
	p := NewPoller(rec, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done

	// One priming call plus at least two ticks.
	if got := rec.calls.Load(); got < 3 {
		t.Errorf("expected at least 3 recomputes, got %d", got)
	}
}

func TestPoller_StopsOnCancel(t *testing.T) {
	rec := &countingRecomputer{}
	p := NewPoller(rec, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}

package reportcache

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

const testPrefix = "keymeter:"

// mockStore implements the store interface via function fields.
type mockStore struct {
	getFn        func(ctx context.Context, key string) ([]byte, error)
	setWithTTLFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setWithTTLFn != nil {
		return m.setWithTTLFn(ctx, key, value, ttl)
	}
	return nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore, *quartz.Mock) {
	t.Helper()
	ms := &mockStore{}
	clock := quartz.NewMock(t)
	repo := New(ms, testPrefix, zap.NewNop()).WithClock(clock)
	return repo, ms, clock
}

func testReport(t *testing.T) domreport.Report {
	t.Helper()
	results := []domreport.Result{
		domreport.NewSuccess("cred-1", "fk-a...890", "2024-01-01", "2024-02-01", 100, 500, 0.2),
		domreport.NewFailure("cred-2", "fk-b...891", "HTTP 401"),
	}
	totals := domreport.NewTotals(100, 500, 400)
	return domreport.New("2024-01-15 10:00:00", totals, results)
}

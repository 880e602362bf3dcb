package keys

import (
	"context"
	"testing"

	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
)

const testPrefix = "keymeter:"

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getFn      func(ctx context.Context, key string) ([]byte, error)
	getMultiFn func(ctx context.Context, keys []string) ([][]byte, error)
	setFn      func(ctx context.Context, key string, value []byte) error
	delFn      func(ctx context.Context, key string) error
	existsFn   func(ctx context.Context, key string) (bool, error)
	scanFn     func(ctx context.Context, pattern string) ([]string, error)
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) GetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	if m.getMultiFn != nil {
		return m.getMultiFn(ctx, keys)
	}
	return nil, nil
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, testPrefix)
	return repo, ms
}

func testCredential(t *testing.T) domcred.Credential {
	t.Helper()
	return domcred.Reconstruct("cred-1", "fk-secret-value-0123456789", 1700000000000)
}

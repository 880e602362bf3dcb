package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/keymeterhq/keymeter/internal/domain"
	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
	authuc "github.com/keymeterhq/keymeter/internal/usecase/auth"
	healthuc "github.com/keymeterhq/keymeter/internal/usecase/health"
	keysuc "github.com/keymeterhq/keymeter/internal/usecase/keys"
	reportuc "github.com/keymeterhq/keymeter/internal/usecase/report"
)

// fakeKeyStore is an in-memory credential store shared by the report and
// key services in handler tests.
type fakeKeyStore struct {
	creds   []domcred.Credential
	listErr error
}

func (f *fakeKeyStore) List(_ context.Context) ([]domcred.Credential, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domcred.Credential(nil), f.creds...), nil
}

func (f *fakeKeyStore) Get(_ context.Context, id string) (domcred.Credential, error) {
	for _, c := range f.creds {
		if c.ID() == id {
			return c, nil
		}
	}
	return domcred.Credential{}, domain.ErrNotFound
}

func (f *fakeKeyStore) Add(_ context.Context, cred domcred.Credential) error {
	f.creds = append(f.creds, cred)
	return nil
}

func (f *fakeKeyStore) Delete(_ context.Context, id string) error {
	for i, c := range f.creds {
		if c.ID() == id {
			f.creds = append(f.creds[:i], f.creds[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeKeyStore) Exists(_ context.Context, secret string) (bool, error) {
	for _, c := range f.creds {
		if c.Secret() == secret {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeKeyStore) Count(_ context.Context) (int, error) {
	return len(f.creds), nil
}

type mockFetcher struct {
	results map[string]domreport.Result
	calls   atomic.Int32
}

func (m *mockFetcher) Fetch(_ context.Context, cred domcred.Credential) domreport.Result {
	m.calls.Add(1)
	if res, ok := m.results[cred.ID()]; ok {
		return res
	}
	return domreport.NewSuccess(cred.ID(), cred.Masked(), "2024-01-01", "2024-02-01", 100, 500, 0.2)
}

type fakeCache struct {
	rep    *domreport.Report
	putErr error
}

func (f *fakeCache) Get(_ context.Context) (domreport.Report, bool) {
	if f.rep == nil {
		return domreport.Report{}, false
	}
	return *f.rep, true
}

func (f *fakeCache) Put(_ context.Context, rep domreport.Report, _ time.Duration) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.rep = &rep
	return nil
}

// mockSessions mints a single fixed token.
type mockSessions struct {
	tokens map[string]bool
}

func (m *mockSessions) Create(_ context.Context, _ time.Duration) (string, error) {
	if m.tokens == nil {
		m.tokens = make(map[string]bool)
	}
	m.tokens["tok-1"] = true
	return "tok-1", nil
}

func (m *mockSessions) Validate(_ context.Context, token string) (bool, error) {
	return m.tokens[token], nil
}

func (m *mockSessions) Delete(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockUpstreamChecker struct {
	err error
}

func (m *mockUpstreamChecker) Reachable(_ context.Context) error { return m.err }

type testEnv struct {
	server  *Server
	store   *fakeKeyStore
	fetcher *mockFetcher
	cache   *fakeCache
}

// newTestServer builds a server over in-memory fakes with auth disabled.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	return newTestServerWithHash(t, "")
}

// newTestServerWithHash builds a server whose auth service verifies the
// given bcrypt hash.
func newTestServerWithHash(t *testing.T, passwordHash string) *testEnv {
	t.Helper()

	store := &fakeKeyStore{}
	fetcher := &mockFetcher{}
	cache := &fakeCache{}
	logger := zap.NewNop()

	reports := reportuc.New(store, fetcher, cache, &reportuc.Config{
		Concurrency: 2,
		CacheTTL:    10 * time.Minute,
	}, logger).WithClock(quartz.NewMock(t))

	keys := keysuc.New(store, nil, reports, logger)
	auth := authuc.New(passwordHash, &mockSessions{}, time.Hour, logger)
	health := healthuc.New(&mockDBPinger{}, &mockUpstreamChecker{})

	return &testEnv{
		server:  NewServer(reports, keys, auth, health, logger),
		store:   store,
		fetcher: fetcher,
		cache:   cache,
	}
}

func testHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(h)
}

func makeCred(id string) domcred.Credential {
	return domcred.Reconstruct(id, "fk-secret-"+id, 1700000000000)
}

func newRequest(method, target, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, target, http.NoBody)
	}
	return httptest.NewRequest(method, target, strings.NewReader(body))
}

// serveReq routes a request through the full route table.
func serveReq(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	s.Routes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

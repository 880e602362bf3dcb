package keymeter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/keymeterhq/keymeter/internal/crypto"
	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
	"github.com/keymeterhq/keymeter/internal/kv"
	kvRedis "github.com/keymeterhq/keymeter/internal/kv/redis"
	keysrepo "github.com/keymeterhq/keymeter/internal/repository/keys"
	"github.com/keymeterhq/keymeter/internal/repository/reportcache"
	"github.com/keymeterhq/keymeter/internal/transport/factory"
	healthuc "github.com/keymeterhq/keymeter/internal/usecase/health"
	keysuc "github.com/keymeterhq/keymeter/internal/usecase/keys"
	reportuc "github.com/keymeterhq/keymeter/internal/usecase/report"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultUpstreamURL      = "https://app.factory.ai/api/organization/usage"
	defaultUpstreamTimeout  = 30 * time.Second
	defaultKeyPrefix        = "keymeter:"
	defaultConcurrency      = 10
	defaultBatchDelay       = 100 * time.Millisecond
	defaultCacheTTL         = 10 * time.Minute
)

// Internal interfaces so tests can substitute the use-case layer.
type keysUseCase interface {
	Add(ctx context.Context, secret string) (domcred.Credential, error)
	Import(ctx context.Context, secrets []string) (keysuc.ImportSummary, error)
	Delete(ctx context.Context, id string) error
	BatchDelete(ctx context.Context, ids []string) (keysuc.DeleteSummary, error)
	List(ctx context.Context) ([]domcred.Credential, error)
	Count(ctx context.Context) (int, error)
}

type reportUseCase interface {
	GetReport(ctx context.Context) (domreport.Report, error)
	Recompute(ctx context.Context) (domreport.Report, error)
	RefreshOne(ctx context.Context, id string) (domreport.Result, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the keymeter SDK entry point.
type Client struct {
	store     kv.Store
	keySvc    keysUseCase
	reportSvc reportUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a keymeter Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix:       defaultKeyPrefix,
		upstreamURL:     defaultUpstreamURL,
		upstreamTimeout: defaultUpstreamTimeout,
		concurrency:     defaultConcurrency,
		batchDelay:      defaultBatchDelay,
		cacheTTL:        defaultCacheTTL,
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("keymeter: database address required (use WithRedis)")
	}

	store, err := kvRedis.NewStore(kvRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("keymeter: create redis store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("keymeter: database not ready: %w", err)
	}

	c, err := wireClient(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(store kv.Store, cfg *clientConfig) (*Client, error) {
	var cipher *crypto.Cipher
	if cfg.encryptionKey != "" {
		var err error
		cipher, err = crypto.NewCipher(cfg.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("keymeter: create cipher: %w", err)
		}
	}

	// Internal services log through zap; the SDK surface observes
	// operations itself (slog + optional prometheus).
	nop := zap.NewNop()

	keyRepo := keysrepo.New(store, cfg.keyPrefix).WithCipher(cipher)
	cacheRepo := reportcache.New(store, cfg.keyPrefix, nop)

	fetcher := factory.NewClient(&factory.Config{
		URL:     cfg.upstreamURL,
		Timeout: cfg.upstreamTimeout,
		Logger:  nop,
	})

	reportSvc := reportuc.New(keyRepo, fetcher, cacheRepo, &reportuc.Config{
		Concurrency: cfg.concurrency,
		BatchDelay:  cfg.batchDelay,
		CacheTTL:    cfg.cacheTTL,
	}, nop)
	keySvc := keysuc.New(keyRepo, nil, reportSvc, nop)
	healthSvc := healthuc.New(store, fetcher)

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:     store,
		keySvc:    keySvc,
		reportSvc: reportSvc,
		healthSvc: healthSvc,
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Keys returns the credential management service.
func (c *Client) Keys() *KeyService {
	return &KeyService{svc: c.keySvc, obs: c.obs}
}

// Report returns the usage report service.
func (c *Client) Report() *ReportService {
	return &ReportService{svc: c.reportSvc, obs: c.obs}
}

package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/keymeterhq/keymeter/internal/domain"
)

// Prober verifies that a credential can authenticate against an
// OpenAI-compatible API before it is stored. The check uses ListModels,
// a free endpoint.
type Prober struct {
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// Config holds the probe endpoint settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewProber creates a credential prober.
func NewProber(cfg *Config) *Prober {
	return &Prober{
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Probe authenticates with the secret and lists models. A 401 or 403
// maps to domain.ErrInvalidCredential; other failures come back as
// provider errors.
func (p *Prober) Probe(ctx context.Context, secret string) error {
	clientCfg := openai.DefaultConfig(secret)
	clientCfg.BaseURL = p.baseURL
	clientCfg.HTTPClient = &http.Client{Timeout: p.timeout}
	client := openai.NewClientWithConfig(clientCfg)

	if _, err := client.ListModels(ctx); err != nil {
		if status, ok := statusOf(err); ok && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
			return fmt.Errorf("probe rejected credential (status %d): %w", status, domain.ErrInvalidCredential)
		}
		return fmt.Errorf("probe models: %w", err)
	}
	return nil
}

// statusOf extracts the HTTP status from go-openai error types.
func statusOf(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

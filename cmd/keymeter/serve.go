package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keymeterhq/keymeter/internal/config"
	"github.com/keymeterhq/keymeter/internal/crypto"
	kvRedis "github.com/keymeterhq/keymeter/internal/kv/redis"
	logpkg "github.com/keymeterhq/keymeter/internal/logger"
	"github.com/keymeterhq/keymeter/internal/metrics"
	keysrepo "github.com/keymeterhq/keymeter/internal/repository/keys"
	"github.com/keymeterhq/keymeter/internal/repository/reportcache"
	sessionrepo "github.com/keymeterhq/keymeter/internal/repository/session"
	chiTransport "github.com/keymeterhq/keymeter/internal/transport/chi"
	"github.com/keymeterhq/keymeter/internal/transport/factory"
	openaiProbe "github.com/keymeterhq/keymeter/internal/transport/openai"
	authuc "github.com/keymeterhq/keymeter/internal/usecase/auth"
	healthuc "github.com/keymeterhq/keymeter/internal/usecase/health"
	keysuc "github.com/keymeterhq/keymeter/internal/usecase/keys"
	reportuc "github.com/keymeterhq/keymeter/internal/usecase/report"
	"github.com/keymeterhq/keymeter/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the keymeter server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting keymeter server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("upstream_url", cfg.Upstream.URL),
	)

	store, err := kvRedis.NewStore(kvRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register usage metrics explicitly (no init())
	metrics.RegisterUsageMetrics()

	var cipher *crypto.Cipher
	if cfg.Storage.EncryptionKey != "" {
		cipher, err = crypto.NewCipher(cfg.Storage.EncryptionKey)
		if err != nil {
			logger.Fatal("Failed to create cipher", zap.Error(err))
		}
		logger.Info("Secret encryption at rest enabled")
	}

	// Repositories
	keyRepo := keysrepo.New(store, cfg.Storage.KeyPrefix).WithCipher(cipher)
	cacheRepo := reportcache.New(store, cfg.Storage.KeyPrefix, logger).
		WithMetrics(metrics.ReportCacheTotal)
	sessionRepo := sessionrepo.New(store, cfg.Storage.KeyPrefix)

	// Upstream usage client
	client := factory.NewClient(&factory.Config{
		URL:     cfg.Upstream.URL,
		Timeout: time.Duration(cfg.Upstream.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	// Pass nil interface (not typed nil pointer!) if the probe is disabled.
	var prober keysuc.Prober
	if cfg.Probe.Enabled {
		prober = openaiProbe.NewProber(&openaiProbe.Config{
			BaseURL: cfg.Probe.BaseURL,
			Timeout: time.Duration(cfg.Probe.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		logger.Info("Credential probe enabled", zap.String("base_url", cfg.Probe.BaseURL))
	}

	// Use case services. The cache lives twice as long as the poll
	// interval so readers rarely pay for a recompute.
	pollInterval := time.Duration(cfg.Poll.IntervalSec) * time.Second
	reportSvc := reportuc.New(keyRepo, client, cacheRepo, &reportuc.Config{
		Concurrency: cfg.Poll.Concurrency,
		BatchDelay:  time.Duration(cfg.Poll.BatchDelayMs) * time.Millisecond,
		CacheTTL:    2 * pollInterval,
	}, logger)
	keySvc := keysuc.New(keyRepo, prober, reportSvc, logger)
	authSvc := authuc.New(
		cfg.Auth.AdminPasswordHash,
		sessionRepo,
		time.Duration(cfg.Auth.SessionTTLSec)*time.Second,
		logger,
	)
	healthSvc := healthuc.New(store, client)

	if !authSvc.Enabled() {
		logger.Warn("Dashboard login disabled: auth.admin_password_hash is not set")
	}

	// Background poller keeps the report cache warm.
	pollCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	poller := reportuc.NewPoller(reportSvc, pollInterval, logger)
	go poller.Run(pollCtx)

	server := chiTransport.NewServer(reportSvc, keySvc, authSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.SessionAuthMiddleware(authSvc))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopPoller()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

// Package main is the entrypoint for the convointel API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/convointel/internal/ai"
	"github.com/kiranshivaraju/convointel/internal/analysis"
	"github.com/kiranshivaraju/convointel/internal/api"
	"github.com/kiranshivaraju/convointel/internal/api/handler"
	mw "github.com/kiranshivaraju/convointel/internal/api/middleware"
	"github.com/kiranshivaraju/convointel/internal/cache"
	"github.com/kiranshivaraju/convointel/internal/config"
	"github.com/kiranshivaraju/convointel/internal/observability"
	"github.com/kiranshivaraju/convointel/internal/storage"
	"github.com/kiranshivaraju/convointel/internal/store"
	"github.com/kiranshivaraju/convointel/internal/transcription"
	tmock "github.com/kiranshivaraju/convointel/internal/transcription/mock"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

const (
	shutdownTimeout  = 30 * time.Second
	bootstrapKeyName = "bootstrap"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"transcription_provider", cfg.Transcription.Provider,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Telemetry
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.ServiceName, cfg.Server.Env, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTelemetry("tracing", shutdownTracing)

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer shutdownTelemetry("metrics", shutdownMetrics)

	// 3. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 4. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 5. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 6. Media storage
	media, err := storage.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.PublicBaseURL+"/")
	if err != nil {
		return fmt.Errorf("create media storage: %w", err)
	}
	slog.Info("media storage ready", "dir", cfg.Storage.Dir, "public_base_url", cfg.Storage.PublicBaseURL)

	// 7. External services
	transcriber := newTranscriber(cfg.Transcription)

	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())
	generator := ai.NewGenerator(aiProvider, cfg.AI.InferenceTimeout)

	// 8. Store and bootstrap credentials
	pgStore := store.NewPostgresStore(pool)
	if err := bootstrapAPIKey(ctx, pgStore, cfg.Auth.BootstrapAPIKey); err != nil {
		return fmt.Errorf("bootstrap api key: %w", err)
	}

	// 9. Build router with dependencies
	router := newRouter(cfg, services{
		store:       pgStore,
		cache:       redisCache,
		media:       media,
		transcriber: transcriber,
		generator:   generator,
		metrics:     metricsHandler,
	})

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// services bundles what the router's handlers are built from.
type services struct {
	store       store.Store
	cache       cache.Cache
	media       storage.Storage
	transcriber transcription.Client
	generator   *ai.Generator
	metrics     http.Handler
}

func newRouter(cfg *config.Config, svc services) http.Handler {
	submitter := analysis.NewSubmitter(svc.store, svc.media, svc.transcriber, cfg.Upload.MaxBytes)
	reconciler := analysis.NewReconciler(svc.store, svc.transcriber, svc.generator, svc.cache, analysis.ReconcilerConfig{
		ClaimLease:      cfg.Pipeline.ClaimLease,
		MinPollInterval: cfg.Pipeline.MinPollInterval,
	})
	feedback := analysis.NewFeedbackService(svc.store, svc.generator, svc.cache, cfg.Pipeline.FeedbackLockTTL)

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(svc.store),
		RateLimit: mw.NewRateLimit(svc.cache, cfg.Auth.RateLimitPerMinute),

		HealthHandler:  handler.NewHealthHandler(svc.store, svc.cache),
		MetricsHandler: svc.metrics,
		MediaHandler:   storage.Handler(svc.media),

		UploadAnalysis:   handler.NewUploadAnalysisHandler(submitter, cfg.Upload.MaxBytes),
		PollAnalysis:     handler.NewPollAnalysisHandler(reconciler),
		ListAnalyses:     handler.NewListAnalysesHandler(svc.store),
		CreateSimulation: handler.NewCreateSimulationHandler(feedback),
		GetSimulation:    handler.NewGetSimulationHandler(feedback),
		AppendTurns:      handler.NewAppendTurnsHandler(feedback),
		GenerateFeedback: handler.NewGenerateFeedbackHandler(feedback),
		CreateKeyHandler: handler.NewCreateKeyHandler(svc.store),
		ListKeysHandler:  handler.NewListKeysHandler(svc.store),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(svc.store),
	})
}

func newTranscriber(cfg config.TranscriptionConfig) transcription.Client {
	if cfg.Provider == "mock" {
		slog.Warn("using mock transcription provider")
		return tmock.NewClient()
	}
	return transcription.NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.LanguageCode, cfg.Timeout)
}

// bootstrapStore is the slice of the store needed to seed the first key.
type bootstrapStore interface {
	GetDefaultUser(ctx context.Context) (*models.User, error)
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// bootstrapAPIKey makes rawKey a valid admin key for the default user. It is
// a no-op when rawKey is empty or already stored.
func bootstrapAPIKey(ctx context.Context, st bootstrapStore, rawKey string) error {
	if rawKey == "" {
		return nil
	}

	existing, err := st.GetAPIKeyByPrefix(ctx, rawKey[:mw.KeyPrefixLen])
	if err != nil {
		return err
	}
	for _, k := range existing {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			return nil
		}
	}

	user, err := st.GetDefaultUser(ctx)
	if err != nil {
		return fmt.Errorf("get default user: %w", err)
	}
	key, err := handler.NewAPIKey(user.ID, bootstrapKeyName, rawKey, models.AllScopes)
	if err != nil {
		return err
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			slog.Warn("bootstrap key name taken by a different key; revoke it to rotate", "name", bootstrapKeyName)
			return nil
		}
		return err
	}
	slog.Info("bootstrap api key created", "key_prefix", key.KeyPrefix, "owner_id", user.ID)
	return nil
}

func shutdownTelemetry(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown failed", "component", name, "error", err)
	}
}

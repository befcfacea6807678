// MirrorLens Server
//
// Maintains a per-user local mirror of image files from a remote cloud
// drive, keeps their embedding cache in sync, and serves hybrid
// (filename + semantic) search over the mirrored set.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mirrorlens/mirrorlens/internal/api"
	"github.com/mirrorlens/mirrorlens/internal/auth"
	"github.com/mirrorlens/mirrorlens/internal/config"
	"github.com/mirrorlens/mirrorlens/internal/embed"
	"github.com/mirrorlens/mirrorlens/internal/events"
	"github.com/mirrorlens/mirrorlens/internal/logging"
	"github.com/mirrorlens/mirrorlens/internal/metrics"
	"github.com/mirrorlens/mirrorlens/internal/mirror"
	"github.com/mirrorlens/mirrorlens/internal/remote"
	"github.com/mirrorlens/mirrorlens/internal/search"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("MirrorLens Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	// Remote drive client
	drive := remote.NewClient(remote.Config{
		BaseURL:  cfg.RemoteBaseURL,
		PageSize: cfg.RemotePageSize,
	})

	// Embedding provider
	provider, err := embed.NewProvider(embed.Config{
		APIKey:       cfg.EmbedAPIKey,
		BaseURL:      cfg.EmbedBaseURL,
		Model:        cfg.EmbedModel,
		ImageURL:     cfg.ImageEmbedURL,
		ImageTimeout: cfg.ImageEmbedTimeout,
		MaxDimension: cfg.ImageMaxDimension,
	})
	if err != nil {
		logging.Fatal("embedding provider init failed", zap.Error(err))
	}

	// Per-user mirror store
	store, err := mirror.NewStore(cfg.MirrorDir)
	if err != nil {
		logging.Fatal("mirror store init failed", zap.Error(err))
	}
	logging.Info("mirror store initialized", zap.String("dir", cfg.MirrorDir))

	broadcaster := events.NewBroadcaster()
	syncer := mirror.NewSyncer(store, drive, provider, broadcaster, cfg.SyncWorkers)
	engine := search.NewEngine(store, provider)
	resultCache := search.NewResultCache(search.NewMemorySessionStore())
	authHandler := auth.New(cfg.JWTSecret)

	srv := api.NewServer(authHandler, drive, store, syncer, engine, resultCache, broadcaster, cfg)

	// Metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}
	go func() {
		logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logging.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("server shutdown error", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("metrics server shutdown error", zap.Error(err))
	}
	logging.Info("shutdown complete")
}

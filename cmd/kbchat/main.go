package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/app"
	"github.com/kailas-cloud/kbchat/internal/config"
	logpkg "github.com/kailas-cloud/kbchat/internal/logger"
	chiTransport "github.com/kailas-cloud/kbchat/internal/transport/chi"
	"github.com/kailas-cloud/kbchat/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level, logpkg.FileOptions{
		Path:       cfg.Logging.File.Path,
		MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAgeDays: cfg.Logging.File.MaxAgeDays,
	})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kbchat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("vector_backend", cfg.Vector.Backend),
	)

	if err := os.MkdirAll(cfg.Knowledge.UploadDir, 0o755); err != nil {
		logger.Fatal("Failed to create upload dir", zap.Error(err))
	}

	a, err := app.Build(context.Background(), &cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build services", zap.Error(err))
	}
	defer a.Close()

	server := chiTransport.NewServer(a.Knowledge, a.Chat, a.Health, chiTransport.Options{
		UploadDir:     cfg.Knowledge.UploadDir,
		MaxUploadSize: int64(cfg.Knowledge.MaxUploadMB) << 20,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chiTransport.NewRouter(server, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

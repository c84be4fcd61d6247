package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/app"
	"github.com/kailas-cloud/kbchat/internal/config"
	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
	logpkg "github.com/kailas-cloud/kbchat/internal/logger"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
)

// cliOps joins the ingestion pipeline with the knowledge registry.
type cliOps struct {
	app *app.App
}

func (o cliOps) Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error) {
	return o.app.Ingest.Ingest(ctx, req)
}

func (o cliOps) Clear(ctx context.Context, namespace string) error {
	return o.app.Ingest.Clear(ctx, namespace)
}

func (o cliOps) List() ([]knowledge.Entry, error) {
	return o.app.Knowledge.List()
}

func openApp(ctx context.Context) (operations, func(), error) {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level, logpkg.FileOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	a, err := app.Build(ctx, &cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Services ready", zap.String("env", env))
	release := func() {
		a.Close()
		_ = logger.Sync()
	}
	return cliOps{a}, release, nil
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(openApp).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

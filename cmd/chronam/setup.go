package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/american-chronicle/internal/chronam/client"
	"github.com/lk2023060901/american-chronicle/internal/conf"
	"github.com/lk2023060901/american-chronicle/internal/pkg/logger"
)

// newClient loads the configuration named by --config and builds a client.
// --debug forces debug level logging. The returned context carries the
// logger and a request ID for this invocation.
func newClient(ctx context.Context, c *cli.Command) (context.Context, *client.Client, error) {
	cfg, err := conf.LoadConfig(c.String("config"))
	if err != nil {
		return ctx, nil, fmt.Errorf("loading config: %w", err)
	}
	if c.Bool("debug") {
		cfg.Log.Level = "debug"
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		return ctx, nil, fmt.Errorf("initializing logger: %w", err)
	}

	cl, err := client.New(cfg, log)
	if err != nil {
		return ctx, nil, fmt.Errorf("creating client: %w", err)
	}

	ctx = logger.WithRequestID(ctx, uuid.NewString())
	ctx = logger.ToContext(ctx, log.Named(c.Name))
	return ctx, cl, nil
}

// closeClient logs pool activity for the invocation and shuts the client down
func closeClient(ctx context.Context, cl *client.Client) {
	stats := cl.Stats()
	logger.FromContext(ctx).Debug("worker pool statistics",
		zap.String("base_url", cl.Config().Archive.BaseURL),
		zap.Int64("submitted", stats.Submitted),
		zap.Int64("completed", stats.Completed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("queued", stats.Queued))
	cl.Close()
}

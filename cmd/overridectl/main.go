package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-override/pkg/config"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "overridectl:", err)
		os.Exit(1)
	}
}

// execute parses args, opens the configured store and runs the selected
// command, writing results to stdout.
func execute(ctx context.Context, args []string, stdout io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("overridectl"),
		kong.Description("Inspect and change persisted feature overrides"),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := cli.resolveConfig()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	opened, err := config.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := opened.Close(); err != nil {
			logger.Warn("closing store failed", zap.Error(err))
		}
	}()

	return kctx.Run(&App{
		Context:  ctx,
		Store:    opened.Store,
		File:     opened.File,
		Logger:   logger,
		Out:      stdout,
		EnvLayer: cfg.EnvLayer && cfg.Backend != config.BackendEnv,
	})
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"pmwatch/internal/config"
)

type Mode int

const (
	ModeWatch Mode = iota
	ModeWatchOnce
	ModePublish
	ModePublishOnce
	ModeServe
)

// Run assembles the container, runs the selected mode until interrupted,
// and tears everything down.
func Run(cfg *config.Config, mode Mode) error {
	ctxBuild, cancelBuild := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBuild()

	c, cleanup, err := Build(ctxBuild, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case ModeWatch:
		err = c.Watcher.Run(ctx)
	case ModeWatchOnce:
		_, err = c.Watcher.RunOnce(ctx)
	case ModePublish:
		err = c.Publisher.Run(ctx)
	case ModePublishOnce:
		_, err = c.Publisher.RunOnce(ctx)
	case ModeServe:
		err = runServe(ctx, c)
	default:
		err = fmt.Errorf("unknown run mode %d", mode)
	}

	if errors.Is(err, context.Canceled) {
		c.Log.Info().Msg("shutdown requested")
		return nil
	}
	return err
}

// runServe runs the feed HTTP server alongside the publisher loop.
func runServe(ctx context.Context, c *Container) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- c.HTTPSrv.Start()
	}()
	go func() {
		errCh <- c.Publisher.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Cfg.App.ShutdownTimeout)
	defer cancel()
	if err := c.HTTPSrv.Shutdown(shutdownCtx); err != nil {
		c.Log.Error().Err(err).Msg("http shutdown failed")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

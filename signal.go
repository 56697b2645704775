package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forcedExitCode is the status used when a second signal interrupts a
// graceful stop.
const forcedExitCode = 130

// shutdownContext returns a context canceled by the first SIGINT/SIGTERM.
// draining names the work that is allowed to finish (the webhook server and
// renewal tick for serve, the in-progress delta walk for sync). A second
// signal exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger, draining string) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		var sig os.Signal

		select {
		case sig = <-sigCh:
		case <-ctx.Done():
			return
		}

		logger.Info("stopping, send the signal again to exit immediately",
			slog.String("signal", sig.String()),
			slog.String("draining", draining),
		)
		cancel()

		select {
		case sig = <-sigCh:
		case <-parent.Done():
			return
		}

		logger.Warn("exiting without waiting",
			slog.String("signal", sig.String()),
			slog.String("draining", draining),
		)
		os.Exit(forcedExitCode)
	}()

	return ctx
}

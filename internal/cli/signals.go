package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler returns a context that is cancelled on
// SIGINT/SIGTERM. A second signal forces immediate exit, since the
// server may be blocked reading stdin when the first one lands.
func setupSignalHandler(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig.String())
		cancel()

		sig = <-sigChan
		logger.Error("forcing exit", "signal", sig.String())
		os.Exit(1)
	}()

	return ctx, cancel
}

package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// runServer serves HTTP until SIGINT, SIGTERM or cancellation of ctx, then runs
// the shutdown sequence.
func runServer(ctx context.Context, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("Serve", "Serving %d clusters on %s", services.Registry.Len(), services.Settings.Server.Addr)
	err := services.Server.Run(ctx)
	if err != nil {
		logging.Error("Serve", err, "HTTP server failed")
	}

	logging.Info("Serve", "Shutting down")
	services.Close()
	return err
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/MEKXH/taskgate/internal/gateway"
	"github.com/spf13/cobra"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := buildServices(cfg)
	if err != nil {
		return err
	}

	opts := gateway.Options{
		Actions: rt.dispatcher,
		Metrics: rt.metrics,
	}
	loop, err := rt.newAgent(ctx)
	if err != nil {
		slog.Warn("task agent disabled", "error", err)
	} else if loop != nil {
		opts.Tasks = loop
	} else {
		slog.Info("no model provider configured, /run disabled")
	}

	server := gateway.New(cfg.Gateway, opts)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server failed: %w", err)
		}
	}()

	fmt.Printf("taskgate serving %s on http://%s\nPress Ctrl+C to stop.\n", rt.gate.Root(), server.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("gateway failed", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("gateway shutdown failed", "error", err)
	}
	return runErr
}

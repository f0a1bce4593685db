package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/config"
	"github.com/runnerr0/synapse/internal/logging"
	"github.com/runnerr0/synapse/internal/server"
)

// Execute implements the go-flags Commander interface for ServeCommand.
func (c *ServeCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging, dataDir)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open synapse: %w", err)
	}

	l, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}

	fmt.Printf("synapse %s listening on http://%s\n", c.version, l.Addr())
	return c.serve(ctx, cfg, a, logger, l)
}

func (c *ServeCommand) applyOverrides(cfg *config.Config) {
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
}

// serve runs the HTTP server on l until ctx is cancelled, then shuts the
// server down and drains the capture workers. It always closes a.
func (c *ServeCommand) serve(ctx context.Context, cfg *config.Config, a *app.App, logger *zap.Logger, l net.Listener) error {
	srv := server.New(cfg.Server, a, logger)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()

	var serveErr error
	select {
	case serveErr = <-errc:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if serveErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
		serveErr = <-errc
	}
	if serveErr != nil {
		errs = append(errs, serveErr)
	}
	if err := a.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop capture workers: %w", err))
	}
	return errors.Join(errs...)
}

// Package bootstrap wires together the process-wide dependencies every
// entry point (cmd/promptyd, cmd/promptyctl) needs: configuration, the
// logger, and the hook function registry.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cybervaldez/promptyui/internal/config"
	"github.com/cybervaldez/promptyui/internal/hooks"
	"github.com/cybervaldez/promptyui/internal/logging"
)

// Components holds every initialized service dependency shared across a
// process's lifetime.
type Components struct {
	Config   *config.Config
	Logger   *logging.Logger
	Registry *hooks.Registry

	cleanupFuncs []func() error
}

// Setup loads configuration, builds the logger, creates an empty hook
// function registry, and creates the artifact root directory. Callers add
// their own mods via Components.Registry.Register before running a job.
func Setup() (*Components, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	c := &Components{
		Config:   cfg,
		Logger:   logger,
		Registry: hooks.NewRegistry(),
	}

	if err := os.MkdirAll(cfg.Artifact.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact root %q: %w", cfg.Artifact.Root, err)
	}

	return c, nil
}

// Shutdown runs every registered cleanup function in LIFO order.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	c.Logger.Info("shutdown complete")
	return nil
}

// Health reports whether the artifact root is still writable.
func (c *Components) Health(ctx context.Context) error {
	probe := c.Config.Artifact.Root + "/.health"
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("artifact root unhealthy: %w", err)
	}
	return os.Remove(probe)
}

// AddCleanup registers a function to run on Shutdown, in reverse
// registration order.
func (c *Components) AddCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

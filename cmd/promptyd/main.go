// Command promptyd serves the HTTP/SSE surface spec.md section 6 describes:
// job/extension browsing, preview/validate/export, per-prompt session and
// operation state, and the pipeline run/stop/artifact routes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/cybervaldez/promptyui/internal/api"
	"github.com/cybervaldez/promptyui/internal/bootstrap"
	"github.com/cybervaldez/promptyui/internal/expander"
)

func main() {
	components, err := bootstrap.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap promptyd: %v\n", err)
		os.Exit(1)
	}

	store := api.NewStore(components.Config.Storage.JobsRoot, components.Config.Storage.ExtensionsRoot)
	opts := expander.Options{
		RangeIncrement:   components.Config.Engine.RangeIncrement,
		WildcardsMax:     components.Config.Engine.WildcardsMax,
		ExtTextMax:       components.Config.Engine.ExtTextMax,
		PromptsDelimiter: components.Config.Engine.PromptsDelimiter,
	}
	handler := api.NewHandler(store, components.Registry, opts, components.Logger)

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	api.RegisterRoutes(e, handler)
	e.HTTPErrorHandler = api.ErrorHandler

	startServer(e, components)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
}

func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "promptyd"})
	})
}

func startServer(e *echo.Echo, components *bootstrap.Components) {
	addr := fmt.Sprintf(":%d", components.Config.Server.Port)

	go func() {
		components.Logger.Info("promptyd listening", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			components.Logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	components.Logger.Info("shutting down promptyd")

	ctx, cancel := context.WithTimeout(context.Background(), components.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		components.Logger.Error("server shutdown error", "error", err)
	}
	if err := components.Shutdown(ctx); err != nil {
		components.Logger.Error("component shutdown error", "error", err)
	}
}

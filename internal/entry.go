// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lifeline/internal/api"
	"github.com/starford/lifeline/internal/index"
	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/mcpserver"
	"github.com/starford/lifeline/internal/render"
	"github.com/starford/lifeline/internal/render/svg"
	"github.com/starford/lifeline/internal/source"
	"github.com/starford/lifeline/internal/sse"
	"github.com/starford/lifeline/internal/viewer"
)

// Run starts the viewer server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts...)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source_kind", cfg.Source.Kind),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	loc, err := cfg.App.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	src, err := newSource(cfg)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}
	agg := newAggregator(cfg, src, loc, logger)

	// Initialize SQLite index.
	db, err := index.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(cfg.SSE.FrameThrottle)
	defer broker.Close()

	svc := viewer.NewService(agg, newSurfaceFactory(cfg, loc),
		viewer.WithIndex(db),
		viewer.WithPublisher(broker),
		viewer.WithStyles(render.DefaultStyles),
		viewer.WithLogger(logger),
		viewer.WithThumbnails(cfg.Render.Thumbnails))
	defer svc.Shutdown()

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := db.Count(""); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Refresh every open session when the local export changes.
	if cfg.Source.Kind == SourceKindFS && cfg.Source.FS.Watch {
		g.Go(func() error {
			return source.Watch(gCtx, cfg.Source.FS.Path, cfg.Source.FS.Debounce, logger, func(paths []string) {
				logger.Info("export changed", slog.Int("paths", len(paths)), slog.Any("sample", sample(paths, 5)))
				if err := svc.RefreshAll(gCtx); err != nil {
					logger.Warn("refresh after change failed", slog.String("error", err.Error()))
				}
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Ending the sessions closes their event streams so Shutdown does
		// not wait on them.
		svc.Shutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RenderOnce loads every timeline and writes one SVG frame of the given
// shortcut window (the default window when empty) to out.
func RenderOnce(ctx context.Context, out io.Writer, shortcut lifeline.Shortcut, opts ...Option) error {
	app := newApplication(opts...)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	loc, err := cfg.App.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	src, err := newSource(cfg)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}

	svc := viewer.NewService(newAggregator(cfg, src, loc, app.logger), newSurfaceFactory(cfg, loc),
		viewer.WithLogger(app.logger),
		viewer.WithThumbnails(cfg.Render.Thumbnails))
	defer svc.Shutdown()

	st, err := svc.Open(ctx, viewer.OpenRequest{
		Width:    cfg.Render.Width,
		Height:   cfg.Render.Height,
		Shortcut: shortcut,
	})
	if err != nil {
		return err
	}
	frame, _, err := svc.Frame(st.ID)
	if err != nil {
		return err
	}
	if _, err := out.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	app.logger.Info("Frame rendered",
		slog.Int("groups", len(st.Groups)),
		slog.Int("visible", len(st.Items)),
		slog.Int("skipped", st.Skipped))
	return nil
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts...)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	loc, err := cfg.App.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	src, err := newSource(cfg)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}
	db, err := index.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	return mcpserver.New(newAggregator(cfg, src, loc, app.logger), db).ServeStdio()
}

func newSource(cfg *Config) (lifeline.Source, error) {
	switch cfg.Source.Kind {
	case SourceKindFS:
		return source.NewFS(cfg.Source.FS.Path)
	case SourceKindHTTP:
		return source.NewHTTP(cfg.Source.HTTP.BaseURL,
			source.WithToken(cfg.Source.HTTP.Token),
			source.WithTimeout(cfg.Source.HTTP.Timeout),
			source.WithCollaborations(cfg.Source.HTTP.IncludeCollaborations)), nil
	}
	return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}

func newAggregator(cfg *Config, src lifeline.Source, loc *time.Location, logger *slog.Logger) *lifeline.Aggregator {
	return lifeline.NewAggregator(src,
		lifeline.WithNormalizer(lifeline.NewNormalizer(loc)),
		lifeline.WithPalette(cfg.Render.PaletteOrDefault()),
		lifeline.WithConcurrency(cfg.Source.MaxConcurrency),
		lifeline.WithLogger(logger))
}

func newSurfaceFactory(cfg *Config, loc *time.Location) render.SurfaceFactory {
	return svg.Factory(
		svg.WithLabelWidth(cfg.Render.LabelWidth),
		svg.WithRowHeight(cfg.Render.RowHeight),
		svg.WithClock(func() time.Time { return time.Now().In(loc) }),
		svg.WithStyleRegistry(render.DefaultStyles))
}

func sample(paths []string, n int) []string {
	if len(paths) <= n {
		return paths
	}
	return paths[:n]
}

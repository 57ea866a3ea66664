package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lifeline/internal"
	"github.com/starford/lifeline/internal/lifeline"
	pkgconfig "github.com/starford/lifeline/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// stderrLogger keeps stdout free for the SVG or the MCP protocol.
func stderrLogger(cfg *internal.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func renderFrame(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if w := cmd.Int("width"); w > 0 {
		cfg.Render.Width = int(w)
	}
	if h := cmd.Int("height"); h > 0 {
		cfg.Render.Height = int(h)
	}

	var out io.Writer = os.Stdout
	if path := cmd.String("out"); path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	return internal.RenderOnce(ctx, out, lifeline.Shortcut(cmd.String("shortcut")),
		internal.WithConfig(cfg),
		internal.WithLogger(stderrLogger(cfg)))
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithLogger(stderrLogger(cfg)))
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "lifeline",
		Usage:  "Aggregate timelines into one windowed, grouped view",
		Action: serve,
		Flags:  []cli.Flag{configFlag()},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the viewer HTTP server",
				Flags:  []cli.Flag{configFlag()},
				Action: serve,
			},
			{
				Name:  "render",
				Usage: "Load every timeline once and write an SVG frame",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "shortcut",
						Aliases: []string{"s"},
						Usage:   "Window preset: week, month or year (default: year to date)",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file, - for stdout",
						Value:   "-",
					},
					&cli.IntFlag{Name: "width", Usage: "Frame width in pixels"},
					&cli.IntFlag{Name: "height", Usage: "Frame height in pixels"},
				},
				Action: renderFrame,
			},
			{
				Name:   "mcp",
				Usage:  "Serve lifeline tools over MCP on stdin/stdout",
				Flags:  []cli.Flag{configFlag()},
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

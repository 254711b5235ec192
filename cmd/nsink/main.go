package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/USEPA-clone/nsink/internal"
	"github.com/USEPA-clone/nsink/internal/service"
	pkgconfig "github.com/USEPA-clone/nsink/pkg/config"
)

// loadConfig reads the config file and applies the flags shared by every
// subcommand.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cmd.IsSet("data") {
		cfg.Data.Path = cmd.String("data")
	}
	return cfg, nil
}

// batchOptions logs to stderr so results on stdout stay parseable.
func batchOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("watch") {
		cfg.Data.Watch = cmd.Bool("watch")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func importBundle(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("import: expected one bundle directory")
	}
	opts, err := batchOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Import(ctx, cmd.Args().First(), os.Stdout, opts...)
}

func removal(ctx context.Context, cmd *cli.Command) error {
	opts, err := batchOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Removal(ctx, os.Stdout, opts...)
}

func flowpath(ctx context.Context, cmd *cli.Command) error {
	opts, err := batchOptions(cmd)
	if err != nil {
		return err
	}
	return internal.FlowPath(ctx, cmd.Float("x"), cmd.Float("y"), os.Stdout, opts...)
}

func staticMaps(ctx context.Context, cmd *cli.Command) error {
	opts, err := batchOptions(cmd)
	if err != nil {
		return err
	}
	var req service.StaticMapRequest
	if cmd.IsSet("density") {
		density := int(cmd.Int("density"))
		req.Density = &density
	}
	if cmd.IsSet("seed") {
		seed := cmd.Uint("seed")
		req.Seed = &seed
	}
	return internal.StaticMaps(ctx, req, cmd.String("out"), os.Stdout, opts...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := batchOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:  "nsink",
		Usage: "Nitrogen sink and removal along flow paths in a HUC12 watershed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("NSINK_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Path to the layer store (overrides data.path)",
				Sources: cli.EnvVars("NSINK_DATA"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Load a prepared HUC12 bundle directory into the layer store",
				ArgsUsage: "<bundle-dir>",
				Action:    importBundle,
			},
			{
				Name:   "removal",
				Usage:  "Print land, stream and lake removal efficiencies",
				Action: removal,
			},
			{
				Name:  "flowpath",
				Usage: "Trace a flow path from a point and print removal along it",
				Flags: []cli.Flag{
					&cli.FloatFlag{Name: "x", Usage: "Easting in the dataset CRS", Required: true},
					&cli.FloatFlag{Name: "y", Usage: "Northing in the dataset CRS", Required: true},
				},
				Action: flowpath,
			},
			{
				Name:  "static-maps",
				Usage: "Generate and store the removal, loading, transport and delivery maps",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "density", Usage: "Number of sample points (overrides sampling.density)"},
					&cli.UintFlag{Name: "seed", Usage: "Sampling seed (overrides sampling.seed)"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Directory to export ESRI ASCII grids into"},
				},
				Action: staticMaps,
			},
			{
				Name:  "serve",
				Usage: "Run the HTTP API",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP port (overrides app.http.port)"},
					&cli.BoolFlag{Name: "watch", Usage: "Reload when the layer store changes (overrides data.watch)"},
				},
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

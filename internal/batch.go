package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/USEPA-clone/nsink/internal/ingest"
	"github.com/USEPA-clone/nsink/internal/mcpserver"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/service"
	"github.com/USEPA-clone/nsink/internal/storage"
)

// RemovalReport is the output of the removal command.
type RemovalReport struct {
	HUC     string                  `json:"huc"`
	Network []models.NetworkRemoval `json:"network"`
	Lakes   []models.LakeRemoval    `json:"lakes"`
	Land    []models.LandRemoval    `json:"land"`
}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// batch opens the service and builds the model; the dataset must exist.
func batch(ctx context.Context, opts []Option, run func(*service.Service, *slog.Logger) error) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	svc, db, err := app.openService(logger, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := svc.Reload(ctx); err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	return run(svc, logger)
}

// Import reads a prepared bundle from dir into the layer store and writes the
// resulting summary to w.
func Import(ctx context.Context, dir string, w io.Writer, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	b, err := ingest.Dir(dir)
	if err != nil {
		return err
	}
	logger.Info("bundle read", slog.String("dir", dir), slog.String("huc", b.Manifest.HUC),
		slog.Any("checksums", b.Checksums))

	svc, db, err := app.openService(logger, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := svc.Import(ctx, b.Prepared); err != nil {
		return err
	}
	sum, err := svc.Summary(ctx)
	if err != nil {
		return err
	}
	return writeResult(w, sum)
}

// Removal writes every computed removal efficiency of the stored dataset to w.
func Removal(ctx context.Context, w io.Writer, opts ...Option) error {
	return batch(ctx, opts, func(svc *service.Service, _ *slog.Logger) error {
		m, err := svc.Model()
		if err != nil {
			return err
		}
		lakes := make([]models.LakeRemoval, 0, len(m.Surfaces.Lakes))
		for _, id := range slices.Sorted(maps.Keys(m.Surfaces.Lakes)) {
			lakes = append(lakes, m.Surfaces.Lakes[id])
		}
		return writeResult(w, RemovalReport{
			HUC:     m.Data.HUC,
			Network: m.NetworkRows(),
			Lakes:   lakes,
			Land:    m.Surfaces.Land,
		})
	})
}

// FlowPath traces from (x, y) and writes the removal rows to w.
func FlowPath(ctx context.Context, x, y float64, w io.Writer, opts ...Option) error {
	return batch(ctx, opts, func(svc *service.Service, _ *slog.Logger) error {
		res, err := svc.Trace(ctx, x, y)
		if err != nil {
			return err
		}
		return writeResult(w, res)
	})
}

// StaticMaps generates and stores a static map run, writes the run to w and,
// when outDir is set, exports each map there as an ESRI ASCII grid.
func StaticMaps(ctx context.Context, req service.StaticMapRequest, outDir string, w io.Writer, opts ...Option) error {
	return batch(ctx, opts, func(svc *service.Service, logger *slog.Logger) error {
		run, err := svc.GenerateStaticMaps(ctx, req)
		if err != nil {
			return err
		}
		if outDir != "" {
			if err := exportRasters(outDir, run.Rasters); err != nil {
				return err
			}
			logger.Info("static maps exported", slog.String("dir", outDir), slog.Int64("run", run.ID))
		}
		return writeResult(w, run)
	})
}

func exportRasters(dir string, rasters map[string]*raster.Raster) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := storage.NewFS(dir)
	if err != nil {
		return err
	}
	for _, name := range service.MapNames {
		r, ok := rasters[name]
		if !ok {
			continue
		}
		var buf bytes.Buffer
		if err := raster.WriteASCII(&buf, r); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		if err := out.Write(name+".asc", buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	svc, db, err := app.openService(logger, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	loadInitial(ctx, svc, logger)

	var lib storage.Provider
	if dir := app.config.Data.Bundles; dir != "" {
		fsys, err := storage.NewFS(dir)
		if err != nil {
			return fmt.Errorf("open bundle library: %w", err)
		}
		lib = fsys
	}

	logger.Info("MCP server starting on stdio",
		slog.String("data_path", app.config.Data.Path),
		slog.String("bundles", app.config.Data.Bundles))
	return mcpserver.New(svc, lib).ServeStdio()
}

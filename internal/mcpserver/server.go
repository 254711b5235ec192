// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes nsink tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/USEPA-clone/nsink/internal/ingest"
	"github.com/USEPA-clone/nsink/internal/service"
	"github.com/USEPA-clone/nsink/internal/storage"
)

const methodsURI = "nsink://removal-methods"

// Server wraps the MCP server with nsink tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *service.Service
	bundles storage.Provider
}

// New creates a new MCP server with all nsink tools registered. The bundle
// tools are only registered when bundles is non-nil.
func New(svc *service.Service, bundles storage.Provider) *Server {
	s := &Server{svc: svc, bundles: bundles}

	s.mcp = server.NewMCPServer(
		"nsink",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("trace_flowpath",
		mcp.WithDescription("Trace the flow path from a point to the watershed outlet and report "+
			"nitrogen removal for every land cell, stream segment and lake along it. "+
			"Coordinates are in the dataset CRS (see watershed_summary)."),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Easting")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Northing")),
	), s.traceFlowpath)

	s.mcp.AddTool(mcp.NewTool("segment_removal",
		mcp.WithDescription("Get a stream segment's attributes, flow and nitrogen removal by COMID."),
		mcp.WithNumber("comid", mcp.Required(), mcp.Description("NHDPlus COMID of the segment")),
	), s.segmentRemoval)

	s.mcp.AddTool(mcp.NewTool("lake_removal",
		mcp.WithDescription("Get a lake's morphology, hydraulic load and nitrogen removal by COMID."),
		mcp.WithNumber("comid", mcp.Required(), mcp.Description("NHDPlus COMID of the waterbody")),
	), s.lakeRemoval)

	s.mcp.AddTool(mcp.NewTool("watershed_summary",
		mcp.WithDescription("Summarize the loaded HUC12: grid, segment and lake counts, outlets, "+
			"land removal by type and lake removal."),
	), s.watershedSummary)

	s.mcp.AddTool(mcp.NewTool("get_removal_methods",
		mcp.WithDescription("Returns how land, stream and lake removal are computed. "+
			"Read this before interpreting removal numbers."),
	), s.getRemovalMethods)

	s.mcp.AddTool(mcp.NewTool("generate_static_maps",
		mcp.WithDescription("Sample flow paths across the watershed and store the removal, loading, "+
			"transport and delivery maps as a new run. May take a while on large watersheds."),
		mcp.WithNumber("density", mcp.Description("Number of sample points; omit to use the configured density")),
		mcp.WithNumber("seed", mcp.Description("Sampling seed; omit to use the configured seed")),
	), s.generateStaticMaps)

	if bundles != nil {
		s.mcp.AddTool(mcp.NewTool("list_bundles",
			mcp.WithDescription("List the prepared HUC12 bundles available for import."),
		), s.listBundles)

		s.mcp.AddTool(mcp.NewTool("import_bundle",
			mcp.WithDescription("Import a prepared HUC12 bundle (manifest.yaml, GeoJSON layers, "+
				"ASCII rasters) into the store and reload the model. Replaces the loaded watershed."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Bundle name as returned by list_bundles")),
		), s.importBundle)
	}

	s.mcp.AddResource(
		mcp.NewResource(methodsURI, "Removal Methods",
			mcp.WithResourceDescription("How nsink computes land, stream and lake nitrogen removal."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMethodsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) traceFlowpath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, err := req.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := req.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Trace(ctx, x, y)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) segmentRemoval(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	comid, err := req.RequireInt("comid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Segment(ctx, int64(comid))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) lakeRemoval(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	comid, err := req.RequireInt("comid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Lake(ctx, int64(comid))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) watershedSummary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.Summary(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sum)
}

func (s *Server) getRemovalMethods(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RemovalMethods), nil
}

func (s *Server) generateStaticMaps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sr service.StaticMapRequest
	args := req.GetArguments()
	if _, ok := args["density"]; ok {
		density := req.GetInt("density", 0)
		if density < 0 {
			return mcp.NewToolResultError("density must not be negative"), nil
		}
		sr.Density = &density
	}
	if _, ok := args["seed"]; ok {
		seed := uint64(req.GetInt("seed", 0))
		sr.Seed = &seed
	}
	run, err := s.svc.GenerateStaticMaps(ctx, sr)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(run)
}

func (s *Server) listBundles(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.bundles.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if items == nil {
		items = []storage.BundleInfo{}
	}
	return jsonResult(items)
}

func (s *Server) importBundle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := s.bundles.Sub(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := ingest.Load(src)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Import(ctx, b.Prepared); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported HUC %s from %s (%d segments, %d lakes, %d soil units)",
		b.Manifest.HUC, name, len(b.Prepared.Streams), len(b.Prepared.Lakes), len(b.Prepared.Soils))), nil
}

func (s *Server) readMethodsResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      methodsURI,
			MIMEType: "text/markdown",
			Text:     RemovalMethods,
		},
	}, nil
}

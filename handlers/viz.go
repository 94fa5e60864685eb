// ABOUTME: Board visualization MCP handlers
// ABOUTME: Provides board_stats and pipeline_graph tools for agents
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type VizHandlers struct {
	store *db.Store
	reg   *models.Registry
	loc   *time.Location
}

func NewVizHandlers(store *db.Store, reg *models.Registry, loc *time.Location) *VizHandlers {
	if loc == nil {
		loc = time.Local
	}
	return &VizHandlers{store: store, reg: reg, loc: loc}
}

func (h *VizHandlers) stats(ctx context.Context) (*viz.BoardStatistics, error) {
	deals, err := h.store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return viz.BoardStats(deals, h.reg, models.Today(h.loc)), nil
}

type BoardStatsInput struct{}

type BoardStatsOutput struct {
	Stats     *viz.BoardStatistics `json:"stats"`
	Dashboard string               `json:"dashboard"`
}

func (h *VizHandlers) BoardStats(ctx context.Context, _ *mcp.CallToolRequest, _ BoardStatsInput) (*mcp.CallToolResult, BoardStatsOutput, error) {
	stats, err := h.stats(ctx)
	if err != nil {
		return nil, BoardStatsOutput{}, err
	}
	return nil, BoardStatsOutput{Stats: stats, Dashboard: viz.RenderDashboard(stats)}, nil
}

type PipelineGraphInput struct {
	Format string `json:"format,omitempty" jsonschema:"dot (default) or svg"`
}

type PipelineGraphOutput struct {
	Format    string `json:"format"`
	Source    string `json:"source"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

func (h *VizHandlers) PipelineGraph(ctx context.Context, _ *mcp.CallToolRequest, input PipelineGraphInput) (*mcp.CallToolResult, PipelineGraphOutput, error) {
	format := input.Format
	if format == "" {
		format = "dot"
	}

	stats, err := h.stats(ctx)
	if err != nil {
		return nil, PipelineGraphOutput{}, err
	}
	out, err := viz.PipelineGraph(ctx, stats, h.reg, format)
	if err != nil {
		return nil, PipelineGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}

	// One node per phase, one edge between each consecutive pair.
	nodes := len(h.reg.All())
	edges := nodes - 1
	if edges < 0 {
		edges = 0
	}

	return nil, PipelineGraphOutput{
		Format:    format,
		Source:    strings.TrimSpace(string(out)),
		NodeCount: nodes,
		EdgeCount: edges,
	}, nil
}

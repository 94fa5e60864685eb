// ABOUTME: MCP resource handlers for exposing board data
// ABOUTME: Provides read-only access to deals, single deals and phase counts via URI
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const uriScheme = "dealboard://"

type ResourceHandlers struct {
	store *db.Store
	reg   *models.Registry
}

func NewResourceHandlers(store *db.Store, reg *models.Registry) *ResourceHandlers {
	return &ResourceHandlers{store: store, reg: reg}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, uriScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", uriScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, uriScheme), "/")
	switch parts[0] {
	case "deals":
		if len(parts) == 1 || parts[1] == "" {
			return h.readAllDeals(ctx, uri)
		}
		return h.readDeal(ctx, uri, parts[1])
	case "pipeline":
		return h.readPipeline(ctx, uri)
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func jsonResource(uri string, v interface{}) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}

func (h *ResourceHandlers) readAllDeals(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	deals, err := h.store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deals: %w", err)
	}
	if deals == nil {
		deals = []models.Deal{}
	}
	return jsonResource(uri, deals)
}

func (h *ResourceHandlers) readDeal(ctx context.Context, uri, idStr string) (*mcp.ReadResourceResult, error) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid deal ID: %w", err)
	}

	deal, err := h.store.GetDeal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deal: %w", err)
	}
	if deal == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	// Include the sub-record for the current phase
	dealData := struct {
		*models.Deal
		PhaseLabel string              `json:"phaseLabel"`
		Details    models.PhaseDetails `json:"details"`
	}{
		Deal:       deal,
		PhaseLabel: h.reg.Label(deal.Phase),
		Details:    deal.ActiveDetails(h.reg),
	}
	return jsonResource(uri, dealData)
}

type pipelinePhase struct {
	Phase models.Phase `json:"phase"`
	Label string       `json:"label"`
	Count int          `json:"count"`
}

func (h *ResourceHandlers) readPipeline(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	deals, err := h.store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deals: %w", err)
	}

	counts := make(map[models.Phase]int)
	for _, d := range deals {
		counts[d.Phase]++
	}

	pipeline := make([]pipelinePhase, 0, len(h.reg.All()))
	for _, p := range h.reg.All() {
		pipeline = append(pipeline, pipelinePhase{Phase: p.Key, Label: p.Label, Count: counts[p.Key]})
	}
	return jsonResource(uri, pipeline)
}

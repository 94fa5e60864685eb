// ABOUTME: MCP prompt handlers for reusable leasing workflow templates
// ABOUTME: Provides deal briefings and a pipeline review built from live board data
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PromptHandlers struct {
	store *db.Store
	reg   *models.Registry
	loc   *time.Location
}

func NewPromptHandlers(store *db.Store, reg *models.Registry, loc *time.Location) *PromptHandlers {
	if loc == nil {
		loc = time.Local
	}
	return &PromptHandlers{store: store, reg: reg, loc: loc}
}

// Prompts lists the prompts GetPrompt can produce.
func (h *PromptHandlers) Prompts() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        "deal-briefing",
			Description: "Brief an agent on one deal and suggest the next customer contact",
			Arguments: []*mcp.PromptArgument{
				{Name: "deal_id", Description: "Deal ID", Required: true},
			},
		},
		{
			Name:        "pipeline-review",
			Description: "Review the whole board for stuck and overdue deals",
		},
	}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "deal-briefing":
		return h.dealBriefing(ctx, request.Params.Arguments)
	case "pipeline-review":
		return h.pipelineReview(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}

func (h *PromptHandlers) dealBriefing(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	raw, ok := args["deal_id"]
	if !ok {
		return nil, fmt.Errorf("deal_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid deal_id: %w", err)
	}

	deal, err := h.store.GetDeal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deal: %w", err)
	}
	if deal == nil {
		return nil, fmt.Errorf("deal %d not found", id)
	}

	var b strings.Builder
	b.WriteString("Please brief me on this leasing deal:\n\n")
	b.WriteString(fmt.Sprintf("Property: %s\n", deal.Title))
	if deal.Client != "" {
		b.WriteString(fmt.Sprintf("Client: %s\n", deal.Client))
	}
	b.WriteString(fmt.Sprintf("Phase: %s\n", h.reg.Label(deal.Phase)))
	b.WriteString(fmt.Sprintf("Priority: %s\n", deal.Priority.Label()))
	if !deal.DueDate.IsZero() {
		days := models.Today(h.loc).DaysUntil(deal.DueDate)
		b.WriteString(fmt.Sprintf("Due: %s (%d days)\n", deal.DueDate, days))
	}
	if deal.IsBound() {
		b.WriteString(fmt.Sprintf("LINE: connected via %s\n", deal.LineConnectionMethod))
	} else {
		b.WriteString("LINE: not connected\n")
	}
	if deal.Notes != "" {
		b.WriteString(fmt.Sprintf("\nNotes: %s\n", deal.Notes))
	}

	b.WriteString("\nPlease provide:")
	b.WriteString("\n1. What has to happen before the deal can move to the next phase")
	b.WriteString("\n2. A short customer message for this phase, in Japanese")

	return userPrompt(fmt.Sprintf("Briefing for deal: %s", deal.Title), b.String()), nil
}

func (h *PromptHandlers) pipelineReview(ctx context.Context) (*mcp.GetPromptResult, error) {
	deals, err := h.store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deals: %w", err)
	}
	stats := viz.BoardStats(deals, h.reg, models.Today(h.loc))

	var b strings.Builder
	b.WriteString("Please review this leasing pipeline:\n\n")
	b.WriteString(viz.RenderDashboard(stats))
	b.WriteString("\nPlease identify deals at risk of missing their due date and suggest which customers to contact today.")

	return userPrompt("Deal pipeline review", b.String()), nil
}

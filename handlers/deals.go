// ABOUTME: Deal MCP tool handlers
// ABOUTME: Implements list_deals, get_deal, create_deal, move_deal, delete_deal and due_deals
package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/ledger"
	"github.com/harperreed/dealboard/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const defaultDueWindow = 3

type DealHandlers struct {
	store    *db.Store
	reg      *models.Registry
	exporter *ledger.Exporter
	loc      *time.Location
	logger   *zap.Logger
}

// NewDealHandlers builds the deal tools. exporter may be nil, in which case
// moving a deal to the terminal phase does not touch the ledger.
func NewDealHandlers(store *db.Store, reg *models.Registry, exporter *ledger.Exporter, loc *time.Location, logger *zap.Logger) *DealHandlers {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DealHandlers{store: store, reg: reg, exporter: exporter, loc: loc, logger: logger}
}

type DealOutput struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Client         string `json:"client,omitempty"`
	Priority       string `json:"priority"`
	Phase          string `json:"phase"`
	PhaseLabel     string `json:"phase_label"`
	DueDate        string `json:"due_date"`
	DaysUntilDue   int    `json:"days_until_due"`
	Notes          string `json:"notes,omitempty"`
	LineConnected  bool   `json:"line_connected"`
	LineConnection string `json:"line_connection,omitempty"`
	LedgerID       string `json:"ledger_id,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func (h *DealHandlers) toOutput(d *models.Deal) DealOutput {
	out := DealOutput{
		ID:            d.ID,
		Title:         d.Title,
		Client:        d.Client,
		Priority:      d.Priority.Label(),
		Phase:         string(d.Phase),
		PhaseLabel:    h.reg.Label(d.Phase),
		DueDate:       d.DueDate.String(),
		Notes:         d.Notes,
		LineConnected: d.IsBound(),
		LedgerID:      d.LedgerID,
		CreatedAt:     d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     d.UpdatedAt.Format(time.RFC3339),
	}
	if !d.DueDate.IsZero() {
		out.DaysUntilDue = models.Today(h.loc).DaysUntil(d.DueDate)
	}
	if d.IsBound() {
		out.LineConnection = string(d.LineConnectionMethod)
	}
	return out
}

type DealListOutput struct {
	Deals []DealOutput `json:"deals"`
	Count int          `json:"count"`
}

func (h *DealHandlers) listOutput(deals []models.Deal) DealListOutput {
	out := DealListOutput{Deals: make([]DealOutput, 0, len(deals))}
	for i := range deals {
		out.Deals = append(out.Deals, h.toOutput(&deals[i]))
	}
	out.Count = len(out.Deals)
	return out
}

type ListDealsInput struct {
	Phase  string `json:"phase,omitempty" jsonschema:"Filter by phase key or label, e.g. contract or ⑤契約手続き"`
	Client string `json:"client,omitempty" jsonschema:"Only deals whose client name contains this text"`
}

func (h *DealHandlers) ListDeals(ctx context.Context, _ *mcp.CallToolRequest, input ListDealsInput) (*mcp.CallToolResult, DealListOutput, error) {
	var filter db.ListFilter
	if input.Phase != "" {
		phase, err := h.reg.Parse(input.Phase)
		if err != nil {
			return nil, DealListOutput{}, err
		}
		filter.Phase = phase
	}

	deals, err := h.store.ListDeals(ctx, filter)
	if err != nil {
		return nil, DealListOutput{}, fmt.Errorf("failed to list deals: %w", err)
	}

	if input.Client != "" {
		matched := deals[:0]
		for _, d := range deals {
			if strings.Contains(d.Client, input.Client) {
				matched = append(matched, d)
			}
		}
		deals = matched
	}
	return nil, h.listOutput(deals), nil
}

type DealIDInput struct {
	ID int64 `json:"id" jsonschema:"Deal ID (required)"`
}

func (h *DealHandlers) load(ctx context.Context, id int64) (*models.Deal, error) {
	if id <= 0 {
		return nil, fmt.Errorf("id is required")
	}
	deal, err := h.store.GetDeal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	if deal == nil {
		return nil, fmt.Errorf("deal %d not found", id)
	}
	return deal, nil
}

func (h *DealHandlers) GetDeal(ctx context.Context, _ *mcp.CallToolRequest, input DealIDInput) (*mcp.CallToolResult, DealOutput, error) {
	deal, err := h.load(ctx, input.ID)
	if err != nil {
		return nil, DealOutput{}, err
	}
	return nil, h.toOutput(deal), nil
}

type CreateDealInput struct {
	Title    string `json:"title" jsonschema:"Property or deal name, at least 3 characters (required)"`
	Client   string `json:"client,omitempty" jsonschema:"Customer name"`
	Priority string `json:"priority" jsonschema:"high, medium or low (高/中/低 also accepted)"`
	DueDate  string `json:"due_date" jsonschema:"Due date as YYYY-MM-DD (required)"`
	Phase    string `json:"phase,omitempty" jsonschema:"Initial phase key or label (default: first phase)"`
	Notes    string `json:"notes,omitempty" jsonschema:"Free-form notes"`
}

func (h *DealHandlers) CreateDeal(ctx context.Context, _ *mcp.CallToolRequest, input CreateDealInput) (*mcp.CallToolResult, DealOutput, error) {
	title := strings.TrimSpace(input.Title)
	if utf8.RuneCountInString(title) < 3 {
		return nil, DealOutput{}, fmt.Errorf("title must be at least 3 characters")
	}

	priority := models.PriorityMedium
	if input.Priority != "" {
		p, err := models.ParsePriority(input.Priority)
		if err != nil {
			return nil, DealOutput{}, err
		}
		priority = p
	}

	due, err := models.ParseDate(input.DueDate)
	if err != nil {
		return nil, DealOutput{}, fmt.Errorf("invalid due_date (use YYYY-MM-DD): %w", err)
	}

	phase := h.reg.First()
	if input.Phase != "" {
		phase, err = h.reg.Parse(input.Phase)
		if err != nil {
			return nil, DealOutput{}, err
		}
	}

	deal := &models.Deal{
		Title:    title,
		Client:   strings.TrimSpace(input.Client),
		Priority: priority,
		Phase:    phase,
		DueDate:  due,
		Notes:    input.Notes,
	}
	if err := h.store.CreateDeal(ctx, deal); err != nil {
		return nil, DealOutput{}, fmt.Errorf("failed to create deal: %w", err)
	}
	return nil, h.toOutput(deal), nil
}

type MoveDealInput struct {
	ID    int64  `json:"id" jsonschema:"Deal ID (required)"`
	Phase string `json:"phase" jsonschema:"Target phase key or label (required)"`
}

type MoveDealOutput struct {
	Deal          DealOutput `json:"deal"`
	PreviousPhase string     `json:"previous_phase"`
	LedgerError   string     `json:"ledger_error,omitempty"`
}

// MoveDeal changes a deal's phase. Any phase may follow any other. Reaching
// the terminal phase exports the deal to the ledger when an exporter is set;
// an export failure is reported but the move stands.
func (h *DealHandlers) MoveDeal(ctx context.Context, _ *mcp.CallToolRequest, input MoveDealInput) (*mcp.CallToolResult, MoveDealOutput, error) {
	phase, err := h.reg.Parse(input.Phase)
	if err != nil {
		return nil, MoveDealOutput{}, err
	}
	before, err := h.load(ctx, input.ID)
	if err != nil {
		return nil, MoveDealOutput{}, err
	}

	deal, err := h.store.UpdateDeal(ctx, input.ID, &models.DealPatch{Phase: &phase})
	if err != nil {
		return nil, MoveDealOutput{}, fmt.Errorf("failed to move deal: %w", err)
	}
	if deal == nil {
		return nil, MoveDealOutput{}, fmt.Errorf("deal %d not found", input.ID)
	}

	out := MoveDealOutput{PreviousPhase: string(before.Phase)}
	if before.Phase != phase && h.reg.IsTerminal(phase) && h.exporter != nil {
		if _, err := h.exporter.ExportAndRecord(ctx, h.store, deal); err != nil {
			h.logger.Warn("ledger export after move failed", zap.Int64("deal_id", deal.ID), zap.Error(err))
			out.LedgerError = err.Error()
		}
	}
	out.Deal = h.toOutput(deal)
	return nil, out, nil
}

type DeleteDealOutput struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

func (h *DealHandlers) DeleteDeal(ctx context.Context, _ *mcp.CallToolRequest, input DealIDInput) (*mcp.CallToolResult, DeleteDealOutput, error) {
	if input.ID <= 0 {
		return nil, DeleteDealOutput{}, fmt.Errorf("id is required")
	}
	removed, err := h.store.DeleteDeal(ctx, input.ID)
	if err != nil {
		return nil, DeleteDealOutput{}, fmt.Errorf("failed to delete deal: %w", err)
	}
	if !removed {
		return nil, DeleteDealOutput{}, fmt.Errorf("deal %d not found", input.ID)
	}
	return nil, DeleteDealOutput{ID: input.ID, Deleted: true}, nil
}

type DueDealsInput struct {
	Days int `json:"days,omitempty" jsonschema:"Window in days from today (default 3)"`
}

// DueDeals lists open deals due between today and today+days, soonest first.
// Overdue deals are included so nothing slips.
func (h *DealHandlers) DueDeals(ctx context.Context, _ *mcp.CallToolRequest, input DueDealsInput) (*mcp.CallToolResult, DealListOutput, error) {
	days := input.Days
	if days <= 0 {
		days = defaultDueWindow
	}

	deals, err := h.store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		return nil, DealListOutput{}, fmt.Errorf("failed to list deals: %w", err)
	}

	today := models.Today(h.loc)
	due := make([]models.Deal, 0)
	for _, d := range deals {
		if h.reg.IsTerminal(d.Phase) || d.DueDate.IsZero() {
			continue
		}
		if today.DaysUntil(d.DueDate) <= days {
			due = append(due, d)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].DueDate.Before(due[j].DueDate) })
	return nil, h.listOutput(due), nil
}

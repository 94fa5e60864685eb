// ABOUTME: Deal CRUD endpoints and board metadata
// ABOUTME: Validates input, normalizes phase labels and exports deals that reach the final phase
package web

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/models"
	"go.uber.org/zap"
)

const minTitleLength = 3

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validationFailed(c *gin.Context, errs []fieldError) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Validation error", "errors": errs})
}

type createDealRequest struct {
	Title                string              `json:"title"`
	Client               string              `json:"client"`
	Priority             string              `json:"priority"`
	Phase                string              `json:"phase"`
	DueDate              models.Date         `json:"dueDate"`
	Notes                string              `json:"notes"`
	CustomerChecklistURL string              `json:"customerChecklistUrl"`
	LineUserID           string              `json:"lineUserId"`
	Ledger               models.LedgerFields `json:"ledger"`
}

func (r *createDealRequest) toDeal(reg *models.Registry) (*models.Deal, []fieldError) {
	var errs []fieldError
	deal := &models.Deal{
		Title:                strings.TrimSpace(r.Title),
		Client:               strings.TrimSpace(r.Client),
		DueDate:              r.DueDate,
		Notes:                r.Notes,
		CustomerChecklistURL: r.CustomerChecklistURL,
		LineUserID:           strings.TrimSpace(r.LineUserID),
		Ledger:               r.Ledger,
	}

	if utf8.RuneCountInString(deal.Title) < minTitleLength {
		errs = append(errs, fieldError{Field: "title", Message: "案件名は3文字以上で入力してください"})
	}

	priority, err := models.ParsePriority(r.Priority)
	if err != nil {
		errs = append(errs, fieldError{Field: "priority", Message: "優先度を選択してください"})
	}
	deal.Priority = priority

	if r.DueDate.IsZero() {
		errs = append(errs, fieldError{Field: "dueDate", Message: "期限日を入力してください"})
	}

	deal.Phase = reg.First()
	if strings.TrimSpace(r.Phase) != "" {
		phase, err := reg.Parse(r.Phase)
		if err != nil {
			errs = append(errs, fieldError{Field: "phase", Message: err.Error()})
		}
		deal.Phase = phase
	}

	if deal.LineUserID != "" {
		deal.LineConnectionMethod = models.ConnectionManual
	}
	return deal, errs
}

func (s *Server) listDeals(c *gin.Context) {
	var filter db.ListFilter
	if raw := c.Query("phase"); raw != "" {
		phase, err := s.Registry.Parse(raw)
		if err != nil {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.Phase = phase
	}

	deals, err := s.Store.ListDeals(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, "failed to list deals", err)
		return
	}
	if deals == nil {
		deals = []models.Deal{}
	}
	c.JSON(http.StatusOK, deals)
}

func (s *Server) createDeal(c *gin.Context) {
	var req createDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	deal, errs := req.toDeal(s.Registry)
	if len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	if err := s.Store.CreateDeal(c.Request.Context(), deal); err != nil {
		s.internalError(c, "failed to create deal", err)
		return
	}
	s.Logger.Info("deal created", zap.Int64("deal_id", deal.ID), zap.String("phase", string(deal.Phase)))
	c.JSON(http.StatusCreated, deal)
}

func (s *Server) getDeal(c *gin.Context) {
	deal, ok := s.loadDeal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (s *Server) updateDeal(c *gin.Context) {
	id, ok := dealID(c)
	if !ok {
		return
	}

	var patch models.DealPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := s.normalizePatch(&patch); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	ctx := c.Request.Context()
	before, err := s.Store.GetDeal(ctx, id)
	if err != nil {
		s.internalError(c, "failed to load deal", err)
		return
	}
	if before == nil {
		abort(c, http.StatusNotFound, "Deal not found")
		return
	}

	deal, err := s.Store.UpdateDeal(ctx, id, &patch)
	if err != nil {
		s.internalError(c, "failed to update deal", err)
		return
	}
	if deal == nil {
		abort(c, http.StatusNotFound, "Deal not found")
		return
	}

	if deal.Phase != before.Phase {
		s.phaseChanged(ctx, deal)
	}
	c.JSON(http.StatusOK, deal)
}

// normalizePatch accepts phase labels and 高/中/低 priorities, rewriting
// them to keys before validation.
func (s *Server) normalizePatch(p *models.DealPatch) []fieldError {
	var errs []fieldError
	if p.Phase != nil {
		phase, err := s.Registry.Parse(string(*p.Phase))
		if err != nil {
			errs = append(errs, fieldError{Field: "phase", Message: err.Error()})
		} else {
			p.Phase = &phase
		}
	}
	if p.Priority != nil {
		pr, err := models.ParsePriority(string(*p.Priority))
		if err != nil {
			errs = append(errs, fieldError{Field: "priority", Message: err.Error()})
		} else {
			p.Priority = &pr
		}
	}
	if p.Title != nil && utf8.RuneCountInString(strings.TrimSpace(*p.Title)) < minTitleLength {
		errs = append(errs, fieldError{Field: "title", Message: "案件名は3文字以上で入力してください"})
	}
	if len(errs) > 0 {
		return errs
	}
	if err := p.Validate(s.Registry); err != nil {
		errs = append(errs, fieldError{Message: err.Error()})
	}
	return errs
}

// phaseChanged exports a deal that reached the terminal phase. The export
// cannot undo the move; a failure is logged. Customers are only messaged
// when staff send explicitly through /api/line/send.
func (s *Server) phaseChanged(ctx context.Context, deal *models.Deal) {
	if !s.Registry.IsTerminal(deal.Phase) || s.Exporter == nil {
		return
	}
	if _, err := s.Exporter.ExportAndRecord(ctx, s.Store, deal); err != nil {
		s.Logger.Warn("ledger export after phase change failed",
			zap.String("channel", "ledger"),
			zap.Int64("deal_id", deal.ID),
			zap.Error(err))
	}
}

func (s *Server) deleteDeal(c *gin.Context) {
	id, ok := dealID(c)
	if !ok {
		return
	}
	removed, err := s.Store.DeleteDeal(c.Request.Context(), id)
	if err != nil {
		s.internalError(c, "failed to delete deal", err)
		return
	}
	if !removed {
		abort(c, http.StatusNotFound, "Deal not found")
		return
	}
	c.Status(http.StatusNoContent)
}

type priorityOption struct {
	Value models.Priority `json:"value"`
	Label string          `json:"label"`
}

func (s *Server) metadata(c *gin.Context) {
	priorities := []priorityOption{}
	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		priorities = append(priorities, priorityOption{Value: p, Label: p.Label()})
	}
	c.JSON(http.StatusOK, gin.H{
		"phases":     s.Registry.All(),
		"priorities": priorities,
	})
}

func (s *Server) phases(c *gin.Context) {
	c.JSON(http.StatusOK, s.Registry.All())
}

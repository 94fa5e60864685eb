// ABOUTME: Endpoints that run integrations: reminders, ledger export, vision and exports
// ABOUTME: Also serves board statistics, the pipeline graph and the xlsx download
package web

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/ledger"
	"github.com/harperreed/dealboard/sheets"
	"github.com/harperreed/dealboard/slack"
	"github.com/harperreed/dealboard/vision"
	"github.com/harperreed/dealboard/viz"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) checkReminders(c *gin.Context) {
	report, err := s.Scheduler.TriggerManual(c.Request.Context())
	if errors.Is(err, slack.ErrNotConfigured) {
		abort(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.internalError(c, "reminder check failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) exportLedger(c *gin.Context) {
	ctx := c.Request.Context()
	deals, err := s.Store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		s.internalError(c, "failed to list deals", err)
		return
	}

	sum := s.Exporter.ExportAllTerminal(ctx, deals)
	for id, ledgerID := range sum.LedgerIDs {
		if err := s.Store.SetLedgerID(ctx, id, ledgerID); err != nil {
			s.Logger.Warn("failed to record ledger id", zap.Int64("deal_id", id), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) exportDeal(c *gin.Context) {
	deal, ok := s.loadDeal(c)
	if !ok {
		return
	}

	ledgerID, err := s.Exporter.ExportAndRecord(c.Request.Context(), s.Store, deal)
	if err != nil {
		var delivery *ledger.DeliveryError
		switch {
		case errors.Is(err, ledger.ErrNotConfigured):
			abort(c, http.StatusServiceUnavailable, err.Error())
		case errors.As(err, &delivery):
			abort(c, http.StatusBadGateway, err.Error())
		default:
			s.internalError(c, "ledger export failed", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledgerId": ledgerID})
}

func (s *Server) analyzeMyosoku(c *gin.Context) {
	if s.Analyzer == nil {
		abort(c, http.StatusServiceUnavailable, vision.ErrNotConfigured.Error())
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		abort(c, http.StatusBadRequest, "image file is required")
		return
	}
	if file.Size > vision.MaxImageBytes {
		abort(c, http.StatusBadRequest, "image exceeds 10MB")
		return
	}

	f, err := file.Open()
	if err != nil {
		abort(c, http.StatusBadRequest, "unreadable upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, vision.MaxImageBytes+1))
	if err != nil {
		abort(c, http.StatusBadRequest, "unreadable upload")
		return
	}
	if len(data) > vision.MaxImageBytes {
		abort(c, http.StatusBadRequest, "image exceeds 10MB")
		return
	}

	mimeType := uploadType(file.Header.Get("Content-Type"), data)
	if !vision.AllowedMIMETypes[mimeType] {
		abort(c, http.StatusBadRequest, "unsupported file type: "+mimeType)
		return
	}

	fields, err := s.Analyzer.Analyze(c.Request.Context(), data, mimeType)
	if err != nil {
		s.Logger.Warn("myosoku analysis failed", zap.Error(err))
		abort(c, http.StatusBadGateway, "analysis failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"extracted": fields})
}

// uploadType trusts the part's declared type unless it is missing or generic.
func uploadType(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if declared == "" || declared == "application/octet-stream" {
		declared = strings.SplitN(http.DetectContentType(data), ";", 2)[0]
	}
	return strings.ToLower(declared)
}

func (s *Server) boardStats(c *gin.Context) (*viz.BoardStatistics, bool) {
	deals, err := s.Store.ListDeals(c.Request.Context(), db.ListFilter{})
	if err != nil {
		s.internalError(c, "failed to list deals", err)
		return nil, false
	}
	return viz.BoardStats(deals, s.Registry, s.today()), true
}

func (s *Server) stats(c *gin.Context) {
	stats, ok := s.boardStats(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) boardGraph(c *gin.Context) {
	stats, ok := s.boardStats(c)
	if !ok {
		return
	}

	format := c.DefaultQuery("format", "svg")
	out, err := viz.PipelineGraph(c.Request.Context(), stats, s.Registry, format)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	contentType := "image/svg+xml"
	if format == "dot" {
		contentType = "text/vnd.graphviz; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, out)
}

func (s *Server) exportXLSX(c *gin.Context) {
	deals, err := s.Store.ListDeals(c.Request.Context(), db.ListFilter{})
	if err != nil {
		s.internalError(c, "failed to list deals", err)
		return
	}

	var buf bytes.Buffer
	if err := sheets.WriteXLSX(&buf, deals, s.Registry); err != nil {
		s.internalError(c, "failed to build workbook", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="deals-`+s.today().String()+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) syncSheets(c *gin.Context) {
	if s.Sheets == nil {
		abort(c, http.StatusServiceUnavailable, sheets.ErrNotConfigured.Error())
		return
	}

	ctx := c.Request.Context()
	deals, err := s.Store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		s.internalError(c, "failed to list deals", err)
		return
	}

	n, err := s.Sheets.Push(ctx, deals)
	if err != nil {
		s.Logger.Warn("sheets sync failed", zap.Error(err))
		abort(c, http.StatusBadGateway, "Sync failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sync completed", "result": gin.H{"rows": n}})
}

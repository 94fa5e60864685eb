// ABOUTME: HTTP API server for the deal board
// ABOUTME: Wires gin routes, request ids and access logging over the deal services
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/ledger"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/notify"
	"github.com/harperreed/dealboard/reminders"
	"github.com/harperreed/dealboard/templates"
	"github.com/harperreed/dealboard/vision"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// SheetPusher publishes the board to a shared spreadsheet.
type SheetPusher interface {
	Push(ctx context.Context, deals []models.Deal) (int, error)
}

// Deps are the services the API is built on. Analyzer and Sheets may be nil;
// their endpoints then answer 503.
type Deps struct {
	Store      *db.Store
	Registry   *models.Registry
	Templates  *templates.Store
	Templater  *templates.Templater
	Dispatcher *notify.Dispatcher
	Exporter   *ledger.Exporter
	Scheduler  *reminders.Scheduler
	Analyzer   vision.Analyzer
	Sheets     SheetPusher

	LineChannelSecret string
	LineBotID         string
	Location          *time.Location
	Logger            *zap.Logger
}

type Server struct {
	Deps
	engine *gin.Engine
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	s := &Server{Deps: deps}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestID(), accessLog(deps.Logger))
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.GET("/deals", s.listDeals)
	api.POST("/deals", s.createDeal)
	api.GET("/deals/:id", s.getDeal)
	api.PATCH("/deals/:id", s.updateDeal)
	api.DELETE("/deals/:id", s.deleteDeal)
	api.POST("/deals/:id/registration", s.issueRegistration)
	api.GET("/deals/:id/registration/qr.png", s.registrationQR)
	api.POST("/deals/:id/ledger", s.exportDeal)

	api.GET("/metadata", s.metadata)
	api.GET("/phases", s.phases)

	api.GET("/line/template/:phase", s.phaseTemplate)
	api.GET("/line/templates", s.listTemplates)
	api.GET("/line/templates/:key", s.getTemplate)
	api.PUT("/line/templates/:key", s.putTemplate)
	api.DELETE("/line/templates/:key", s.resetTemplate)
	api.POST("/line/send", s.sendLine)
	api.POST("/line/webhook", s.lineWebhook)

	api.POST("/reminders/check", s.checkReminders)
	api.POST("/ledger/export", s.exportLedger)
	api.POST("/myosoku/analyze", s.analyzeMyosoku)

	api.GET("/stats", s.stats)
	api.GET("/board/graph.svg", s.boardGraph)
	api.GET("/export.xlsx", s.exportXLSX)
	api.POST("/sync", s.syncSheets)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.Logger.Info("http server stopped")
	return nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

// dealID parses the :id path parameter, answering 400 when it is not a
// positive integer.
func dealID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abort(c, http.StatusBadRequest, "Invalid deal ID")
		return 0, false
	}
	return id, true
}

// loadDeal fetches the deal named by :id or answers 400/404/500.
func (s *Server) loadDeal(c *gin.Context) (*models.Deal, bool) {
	id, ok := dealID(c)
	if !ok {
		return nil, false
	}
	deal, err := s.Store.GetDeal(c.Request.Context(), id)
	if err != nil {
		s.internalError(c, "failed to load deal", err)
		return nil, false
	}
	if deal == nil {
		abort(c, http.StatusNotFound, "Deal not found")
		return nil, false
	}
	return deal, true
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.Logger.Error(msg, zap.String("request_id", c.GetString("request_id")), zap.Error(err))
	abort(c, http.StatusInternalServerError, msg)
}

func (s *Server) today() models.Date {
	return models.Today(s.Location)
}

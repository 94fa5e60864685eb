// ABOUTME: LINE endpoints: templates, outbound sends, the webhook and QR registration
// ABOUTME: Maps dispatcher and delivery errors onto HTTP statuses
package web

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/dealboard/line"
	"github.com/harperreed/dealboard/notify"
	"github.com/harperreed/dealboard/templates"
	"go.uber.org/zap"
)

const defaultQRSize = 256

func (s *Server) phaseTemplate(c *gin.Context) {
	name := s.Templater.Resolve(c.Param("phase"))
	body, err := s.Templater.Raw(name)
	if errors.Is(err, templates.ErrNotFound) {
		abort(c, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		s.internalError(c, "failed to load template", err)
		return
	}

	resp := gin.H{"phase": name, "template": body}
	if raw := c.Query("dealId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			abort(c, http.StatusBadRequest, "Invalid deal ID")
			return
		}
		deal, err := s.Store.GetDeal(c.Request.Context(), id)
		if err != nil {
			s.internalError(c, "failed to load deal", err)
			return
		}
		if deal == nil {
			abort(c, http.StatusNotFound, "Deal not found")
			return
		}
		resp["rendered"] = s.Templater.Render(body, deal)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listTemplates(c *gin.Context) {
	list, err := s.Templates.List()
	if err != nil {
		s.internalError(c, "failed to list templates", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getTemplate(c *gin.Context) {
	key := s.Templater.Resolve(c.Param("key"))
	body, err := s.Templates.Get(key)
	if errors.Is(err, templates.ErrNotFound) {
		abort(c, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		s.internalError(c, "failed to load template", err)
		return
	}
	c.JSON(http.StatusOK, templates.Template{Key: key, Body: body})
}

type putTemplateRequest struct {
	Body string `json:"body"`
}

func (s *Server) putTemplate(c *gin.Context) {
	var req putTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	key := s.Templater.Resolve(c.Param("key"))
	if err := s.Templates.Put(key, req.Body); err != nil {
		s.internalError(c, "failed to save template", err)
		return
	}
	s.Logger.Info("template updated", zap.String("key", key))
	c.JSON(http.StatusOK, templates.Template{Key: key, Body: req.Body, Customized: true})
}

func (s *Server) resetTemplate(c *gin.Context) {
	key := s.Templater.Resolve(c.Param("key"))
	if err := s.Templates.Reset(key); err != nil {
		s.internalError(c, "failed to reset template", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) sendLine(c *gin.Context) {
	var req notify.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.Dispatcher.Send(c.Request.Context(), req)
	if err != nil {
		s.deliveryFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message sent"})
}

func (s *Server) deliveryFailed(c *gin.Context, err error) {
	var delivery *line.DeliveryError
	switch {
	case errors.Is(err, notify.ErrNoRecipient),
		errors.Is(err, notify.ErrNoTemplate),
		errors.Is(err, notify.ErrEmptyMessage):
		abort(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, notify.ErrDealNotFound):
		abort(c, http.StatusNotFound, "Deal not found")
	case errors.Is(err, line.ErrNotConfigured):
		abort(c, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &delivery):
		abort(c, http.StatusBadGateway, err.Error())
	default:
		s.internalError(c, "failed to send message", err)
	}
}

// lineWebhook verifies the channel signature over the raw body before
// anything is parsed. A webhook URL may carry ?token= from a QR link.
func (s *Server) lineWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if s.LineChannelSecret == "" {
		abort(c, http.StatusUnauthorized, "LINE channel secret not configured")
		return
	}
	if !line.VerifySignature(s.LineChannelSecret, body, c.GetHeader(line.SignatureHeader)) {
		s.Logger.Warn("line webhook signature rejected", zap.String("request_id", c.GetString("request_id")))
		abort(c, http.StatusUnauthorized, "Invalid signature")
		return
	}

	events, err := line.ParseWebhook(body)
	if err != nil {
		abort(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	outcomes := s.Dispatcher.HandleEvents(c.Request.Context(), events, c.Query("token"))
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

func (s *Server) issueRegistration(c *gin.Context) {
	id, ok := dealID(c)
	if !ok {
		return
	}
	if s.LineBotID == "" {
		abort(c, http.StatusServiceUnavailable, "LINE bot id not configured")
		return
	}

	token := line.NewRegistrationToken()
	found, err := s.Store.SetRegistrationToken(c.Request.Context(), id, token)
	if err != nil {
		s.internalError(c, "failed to store registration token", err)
		return
	}
	if !found {
		abort(c, http.StatusNotFound, "Deal not found")
		return
	}

	link, err := line.RegistrationURL(s.LineBotID, token)
	if err != nil {
		s.internalError(c, "failed to build registration link", err)
		return
	}
	png, err := line.RegistrationQR(link, defaultQRSize)
	if err != nil {
		s.internalError(c, "failed to render QR code", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"url":    link,
		"qrCode": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

func (s *Server) registrationQR(c *gin.Context) {
	deal, ok := s.loadDeal(c)
	if !ok {
		return
	}
	if deal.RegistrationToken == "" {
		abort(c, http.StatusNotFound, "No registration token issued")
		return
	}

	link, err := line.RegistrationURL(s.LineBotID, deal.RegistrationToken)
	if err != nil {
		abort(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 64 && n <= 1024 {
			size = n
		}
	}
	png, err := line.RegistrationQR(link, size)
	if err != nil {
		s.internalError(c, "failed to render QR code", err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

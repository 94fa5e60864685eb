// ABOUTME: Customer notification dispatcher over LINE
// ABOUTME: Validates and renders staff-initiated messages and pushes them to bound customers
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/dealboard/line"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/templates"
	"go.uber.org/zap"
)

var (
	ErrNoRecipient  = errors.New("deal has no LINE recipient")
	ErrDealNotFound = errors.New("deal not found")
	ErrNoTemplate   = errors.New("no message template for phase")
	ErrEmptyMessage = errors.New("message is empty")
)

// Messenger is the slice of the LINE client the dispatcher uses.
type Messenger interface {
	PushText(ctx context.Context, to, text string) error
	PushQuickReply(ctx context.Context, to, text string, options []line.QuickReplyOption) error
	Profile(ctx context.Context, userID string) (*line.Profile, error)
}

// DealStore is the slice of the deal store the dispatcher uses.
type DealStore interface {
	GetDeal(ctx context.Context, id int64) (*models.Deal, error)
	FindDealByLineUser(ctx context.Context, lineUserID string) (*models.Deal, error)
	FindDealByRegistrationToken(ctx context.Context, token string) (*models.Deal, error)
	ListUnboundDeals(ctx context.Context) ([]models.Deal, error)
	BindLineUser(ctx context.Context, id int64, lineUserID, displayName string, method models.ConnectionMethod, at time.Time) (bool, error)
}

// Renderer renders named templates against deals.
type Renderer interface {
	RenderFor(name string, deal *models.Deal) (string, error)
	Render(body string, deal *models.Deal) string
}

type Options struct {
	PendingTTL time.Duration
	// QuickReplyLimit is the largest candidate list offered as buttons.
	QuickReplyLimit int
}

type Dispatcher struct {
	store     DealStore
	messenger Messenger
	templates Renderer
	reg       *models.Registry
	pending   PendingStore
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(store DealStore, messenger Messenger, tpl Renderer, reg *models.Registry, pending PendingStore, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pending == nil {
		pending = NewMemoryPending()
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}
	if opts.QuickReplyLimit <= 0 {
		opts.QuickReplyLimit = 3
	}
	return &Dispatcher{
		store:     store,
		messenger: messenger,
		templates: tpl,
		reg:       reg,
		pending:   pending,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// SendRequest is a staff-initiated customer message. Phase selects the
// template when Message is empty; it may be a phase key, label or "custom".
type SendRequest struct {
	DealID     int64  `json:"dealId"`
	Phase      string `json:"phase,omitempty"`
	Message    string `json:"message,omitempty"`
	LineUserID string `json:"lineUserId"`
}

// Send validates and delivers one message. Nothing is retried and the deal
// is never modified. A failed delivery is returned as *line.DeliveryError.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) error {
	if strings.TrimSpace(req.LineUserID) == "" {
		return ErrNoRecipient
	}

	deal, err := d.store.GetDeal(ctx, req.DealID)
	if err != nil {
		return fmt.Errorf("load deal %d: %w", req.DealID, err)
	}
	if deal == nil {
		return fmt.Errorf("%w: %d", ErrDealNotFound, req.DealID)
	}

	var text string
	if strings.TrimSpace(req.Message) != "" {
		text = d.templates.Render(req.Message, deal)
	} else {
		name := req.Phase
		if name == "" {
			name = string(deal.Phase)
		}
		text, err = d.renderTemplate(name, deal)
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	if err := d.messenger.PushText(ctx, req.LineUserID, text); err != nil {
		d.logger.Warn("line message not delivered",
			zap.String("channel", "line"),
			zap.Int64("deal_id", deal.ID),
			zap.Error(err))
		return err
	}

	d.logger.Info("line message sent", zap.Int64("deal_id", deal.ID))
	return nil
}

// NotifyPhaseChange pushes the template for phase to the deal's bound identity.
func (d *Dispatcher) NotifyPhaseChange(ctx context.Context, deal *models.Deal, phase models.Phase) error {
	if deal == nil {
		return ErrDealNotFound
	}
	if !deal.IsBound() {
		return ErrNoRecipient
	}

	text, err := d.renderTemplate(string(phase), deal)
	if err != nil {
		return err
	}

	if err := d.messenger.PushText(ctx, deal.LineUserID, text); err != nil {
		d.logger.Warn("phase change notification not delivered",
			zap.String("channel", "line"),
			zap.Int64("deal_id", deal.ID),
			zap.String("phase", string(phase)),
			zap.Error(err))
		return err
	}
	return nil
}

func (d *Dispatcher) renderTemplate(name string, deal *models.Deal) (string, error) {
	text, err := d.templates.RenderFor(name, deal)
	if errors.Is(err, templates.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNoTemplate, name)
	}
	return text, err
}

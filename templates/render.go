// ABOUTME: Placeholder rendering for customer message templates
// ABOUTME: Substitutes deal fields into {token} placeholders, leaving unknown tokens alone
package templates

import (
	"strings"

	"github.com/harperreed/dealboard/models"
)

// Placeholders understood by Render.
const (
	TokenClientName   = "{clientName}"
	TokenPropertyName = "{propertyName}"
	TokenDueDate      = "{dueDate}"
	TokenPhase        = "{phase}"
	TokenPriority     = "{priority}"
	TokenChecklistURL = "{customerChecklistUrl}"
)

type Options struct {
	// Registry renders {phase} as a display label. Nil renders the raw key.
	Registry         *models.Registry
	ClientFallback   string
	PropertyFallback string
	DateLayout       string
}

// DefaultOptions uses the brokerage's fallbacks: お客様 for a missing client
// and 物件 for a missing property title.
func DefaultOptions(reg *models.Registry) Options {
	return Options{
		Registry:         reg,
		ClientFallback:   "お客様",
		PropertyFallback: "物件",
		DateLayout:       "2006/01/02",
	}
}

// Render replaces every occurrence of each known placeholder in body.
// Substituted values are not themselves scanned for placeholders, so the
// output is the same no matter what the deal's text fields contain.
func Render(body string, deal *models.Deal, opts Options) string {
	if deal == nil {
		deal = &models.Deal{}
	}

	client := deal.Client
	if client == "" {
		client = opts.ClientFallback
	}
	property := deal.Title
	if property == "" {
		property = opts.PropertyFallback
	}
	layout := opts.DateLayout
	if layout == "" {
		layout = "2006/01/02"
	}
	phase := string(deal.Phase)
	if opts.Registry != nil && deal.Phase != "" {
		phase = opts.Registry.Label(deal.Phase)
	}

	r := strings.NewReplacer(
		TokenClientName, client,
		TokenPropertyName, property,
		TokenDueDate, deal.DueDate.Format(layout),
		TokenPhase, phase,
		TokenPriority, deal.Priority.Label(),
		TokenChecklistURL, deal.CustomerChecklistURL,
	)
	return r.Replace(body)
}

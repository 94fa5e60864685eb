// ABOUTME: Inbound LINE events: registration and automatic deal binding
// ABOUTME: Resolves QR tokens, name matches and pending candidate selections
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/harperreed/dealboard/line"
	"github.com/harperreed/dealboard/models"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Action is what the dispatcher did with one inbound event.
type Action string

const (
	ActionIgnored    Action = "ignored"
	ActionStatus     Action = "status"
	ActionBound      Action = "bound"
	ActionCandidates Action = "candidates"
	ActionPrompt     Action = "prompt"
	ActionRefused    Action = "refused"
)

type Outcome struct {
	UserID     string                  `json:"userId"`
	Event      string                  `json:"event"`
	Action     Action                  `json:"action"`
	DealID     int64                   `json:"dealId,omitempty"`
	Method     models.ConnectionMethod `json:"method,omitempty"`
	Candidates []int64                 `json:"candidates,omitempty"`
	Err        error                   `json:"-"`
}

// HandleEvents processes webhook events in order. registrationToken is the
// optional token carried on the webhook URL for follow events that came
// from a QR link. Reply delivery failures are logged and recorded on the
// outcome; they never stop the remaining events.
func (d *Dispatcher) HandleEvents(ctx context.Context, events []line.Event, registrationToken string) []Outcome {
	outcomes := make([]Outcome, 0, len(events))
	for i := range events {
		out := d.handleEvent(ctx, &events[i], registrationToken)
		if out.Err != nil {
			d.logger.Warn("line event handling failed",
				zap.String("event", out.Event),
				zap.String("action", string(out.Action)),
				zap.Int64("deal_id", out.DealID),
				zap.Error(out.Err))
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev *line.Event, registrationToken string) Outcome {
	userID := ev.Source.UserID
	out := Outcome{UserID: userID, Event: ev.Type, Action: ActionIgnored}
	if userID == "" {
		return out
	}

	switch ev.Type {
	case line.EventUnfollow:
		out.Err = d.pending.Clear(ctx, userID)
		return out
	case line.EventFollow, line.EventMessage, line.EventPostback:
	default:
		return out
	}
	if ev.Type == line.EventMessage && ev.Text() == "" {
		return out
	}

	// 1. An identity that is already bound only gets a status reply.
	bound, err := d.store.FindDealByLineUser(ctx, userID)
	if err != nil {
		out.Err = err
		return out
	}
	if bound != nil {
		out.Action = ActionStatus
		out.DealID = bound.ID
		out.Err = d.messenger.PushText(ctx, userID, d.statusMessage(bound))
		return out
	}

	switch ev.Type {
	case line.EventFollow:
		return d.handleFollow(ctx, out, registrationToken)
	case line.EventMessage:
		return d.handleText(ctx, out, ev.Text())
	default:
		return d.handlePostback(ctx, out, ev.Postback)
	}
}

func (d *Dispatcher) handleFollow(ctx context.Context, out Outcome, registrationToken string) Outcome {
	displayName := ""
	profile, err := d.messenger.Profile(ctx, out.UserID)
	if err != nil {
		d.logger.Warn("line profile lookup failed", zap.String("channel", "line"), zap.Error(err))
	} else if profile != nil {
		displayName = profile.DisplayName
	}

	// 2. A QR token bypasses name matching.
	if registrationToken != "" {
		return d.bindByToken(ctx, out, registrationToken, displayName)
	}

	// 3. Match the profile name, offering buttons for short lists.
	return d.matchName(ctx, out, displayName, displayName, true)
}

func (d *Dispatcher) handleText(ctx context.Context, out Outcome, text string) Outcome {
	if token, ok := line.ParseRegistrationText(text); ok {
		return d.bindByToken(ctx, out, token, "")
	}

	pending, err := d.pending.Get(ctx, out.UserID)
	if err != nil {
		out.Err = err
		return out
	}
	if len(pending) > 0 {
		if choice, ok := parseChoice(text); ok {
			return d.resolveChoice(ctx, out, pending, choice)
		}
		// Anything else is a fresh name; the old list no longer applies.
		if err := d.pending.Clear(ctx, out.UserID); err != nil {
			out.Err = err
			return out
		}
	}

	return d.matchName(ctx, out, text, "", false)
}

func (d *Dispatcher) handlePostback(ctx context.Context, out Outcome, pb *line.Postback) Outcome {
	if pb == nil {
		return out
	}
	values := pb.Values()

	switch values.Get("action") {
	case "no_match":
		if err := d.pending.Clear(ctx, out.UserID); err != nil {
			out.Err = err
			return out
		}
		out.Action = ActionPrompt
		out.Err = d.messenger.PushText(ctx, out.UserID, msgNamePrompt)
		return out
	case "select_deal":
		id, err := strconv.ParseInt(values.Get("deal_id"), 10, 64)
		if err != nil {
			return d.refuse(ctx, out, msgStaleChoice)
		}
		pending, err := d.pending.Get(ctx, out.UserID)
		if err != nil {
			out.Err = err
			return out
		}
		for i, candidate := range pending {
			if candidate == id {
				return d.resolveChoice(ctx, out, pending, i+1)
			}
		}
		return d.refuse(ctx, out, msgStaleChoice)
	}
	return out
}

// resolveChoice binds the 1-based choice from pending; 0 means none apply.
func (d *Dispatcher) resolveChoice(ctx context.Context, out Outcome, pending []int64, choice int) Outcome {
	if choice == 0 {
		if err := d.pending.Clear(ctx, out.UserID); err != nil {
			out.Err = err
			return out
		}
		out.Action = ActionPrompt
		out.Err = d.messenger.PushText(ctx, out.UserID, msgNamePrompt)
		return out
	}
	if choice < 0 || choice > len(pending) {
		out.Action = ActionCandidates
		out.Candidates = pending
		out.Err = d.messenger.PushText(ctx, out.UserID, fmt.Sprintf("1〜%dの番号、または0（%s）を返信してください。", len(pending), msgNoMatchLabel))
		return out
	}

	deal, err := d.store.GetDeal(ctx, pending[choice-1])
	if err != nil {
		out.Err = err
		return out
	}
	if err := d.pending.Clear(ctx, out.UserID); err != nil {
		out.Err = err
		return out
	}
	if deal == nil || (deal.IsBound() && deal.LineUserID != out.UserID) {
		return d.refuse(ctx, out, msgStaleChoice)
	}
	return d.bind(ctx, out, deal, "", models.ConnectionManual)
}

func (d *Dispatcher) bindByToken(ctx context.Context, out Outcome, token, displayName string) Outcome {
	deal, err := d.store.FindDealByRegistrationToken(ctx, token)
	if err != nil {
		out.Err = err
		return out
	}
	if deal == nil {
		return d.refuse(ctx, out, msgInvalidToken)
	}
	out.DealID = deal.ID
	if deal.IsBound() && deal.LineUserID != out.UserID {
		return d.refuse(ctx, out, msgTokenTaken)
	}
	return d.bind(ctx, out, deal, displayName, models.ConnectionQR)
}

// matchName runs the name matcher. structured selects quick-reply buttons
// for short candidate lists.
func (d *Dispatcher) matchName(ctx context.Context, out Outcome, name, displayName string, structured bool) Outcome {
	unbound, err := d.store.ListUnboundDeals(ctx)
	if err != nil {
		out.Err = err
		return out
	}
	matches := NewMatcher(unbound).Match(name)

	switch {
	case len(matches) == 1:
		return d.bind(ctx, out, &matches[0], displayName, models.ConnectionAuto)
	case len(matches) > 1:
		return d.offerCandidates(ctx, out, matches, structured)
	}

	out.Action = ActionPrompt
	out.Err = d.messenger.PushText(ctx, out.UserID, msgNamePrompt)
	return out
}

func (d *Dispatcher) offerCandidates(ctx context.Context, out Outcome, matches []models.Deal, structured bool) Outcome {
	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	out.Action = ActionCandidates
	out.Candidates = ids

	if err := d.pending.Put(ctx, out.UserID, ids, d.opts.PendingTTL); err != nil {
		out.Err = err
		return out
	}

	text := candidateList(matches)
	if structured && len(matches) <= d.opts.QuickReplyLimit {
		options := make([]line.QuickReplyOption, 0, len(matches)+1)
		for _, m := range matches {
			options = append(options, line.QuickReplyOption{
				Label:       m.Title,
				Data:        fmt.Sprintf("action=select_deal&deal_id=%d", m.ID),
				DisplayText: m.Title,
			})
		}
		options = append(options, line.QuickReplyOption{Label: msgNoMatchLabel, Data: "action=no_match", DisplayText: msgNoMatchLabel})
		out.Err = d.messenger.PushQuickReply(ctx, out.UserID, text, options)
		return out
	}

	out.Err = d.messenger.PushText(ctx, out.UserID, text)
	return out
}

func (d *Dispatcher) bind(ctx context.Context, out Outcome, deal *models.Deal, displayName string, method models.ConnectionMethod) Outcome {
	out.DealID = deal.ID
	if displayName == "" {
		if profile, err := d.messenger.Profile(ctx, out.UserID); err == nil && profile != nil {
			displayName = profile.DisplayName
		}
	}

	ok, err := d.store.BindLineUser(ctx, deal.ID, out.UserID, displayName, method, d.now())
	if err != nil {
		out.Err = err
		return out
	}
	if !ok {
		// Someone else bound it between the lookup and the write.
		return d.refuse(ctx, out, msgBindFailed)
	}

	out.Action = ActionBound
	out.Method = method
	deal.LineUserID = out.UserID
	out.Err = d.messenger.PushText(ctx, out.UserID, d.welcomeMessage(deal))
	return out
}

func (d *Dispatcher) refuse(ctx context.Context, out Outcome, text string) Outcome {
	out.Action = ActionRefused
	out.Err = d.messenger.PushText(ctx, out.UserID, text)
	return out
}

// parseChoice reads a candidate number or a "none" reply. Full-width digits
// are accepted.
func parseChoice(text string) (int, bool) {
	text = strings.TrimSpace(norm.NFKC.String(text))
	switch strings.ToLower(text) {
	case "none", msgNoMatchLabel, "なし":
		return 0, true
	}
	text = strings.TrimSuffix(text, ".")
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if !unicode.IsDigit(r) {
			return 0, false
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}

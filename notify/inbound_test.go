// ABOUTME: Tests for inbound LINE event handling
// ABOUTME: Exercises QR binding, name matching and candidate selection flows
package notify

import (
	"context"
	"testing"
	"time"

	"github.com/harperreed/dealboard/line"
	"github.com/harperreed/dealboard/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textEvent(user, text string) line.Event {
	return line.Event{
		Type:    line.EventMessage,
		Source:  line.Source{Type: "user", UserID: user},
		Message: &line.Message{ID: "m1", Type: "text", Text: text},
	}
}

func followEvent(user string) line.Event {
	return line.Event{Type: line.EventFollow, Source: line.Source{Type: "user", UserID: user}}
}

func postbackEvent(user, data string) line.Event {
	return line.Event{Type: line.EventPostback, Source: line.Source{Type: "user", UserID: user}, Postback: &line.Postback{Data: data}}
}

func handleOne(t *testing.T, h *harness, ev line.Event, token string) Outcome {
	t.Helper()
	out := h.d.HandleEvents(context.Background(), []line.Event{ev}, token)
	require.Len(t, out, 1)
	return out[0]
}

func TestBoundUserGetsStatus(t *testing.T) {
	h := newHarness(t)
	deal := h.store.add(models.Deal{Title: "渋谷 1LDK", Client: "田中", Phase: models.PhaseScreening, LineUserID: "U1"})

	out := handleOne(t, h, textEvent("U1", "こんにちは"), "")

	assert.Equal(t, ActionStatus, out.Action)
	assert.Equal(t, deal.ID, out.DealID)
	sent := h.messenger.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "③入居審査")
}

func TestFollowWithTokenBindsByQR(t *testing.T) {
	h := newHarness(t)
	h.messenger.profiles["U1"] = "Hanako"
	deal := h.store.add(models.Deal{Title: "t", Client: "山田 花子", Phase: models.PhaseViewing, RegistrationToken: "tok-1"})

	out := handleOne(t, h, followEvent("U1"), "tok-1")

	require.Equal(t, ActionBound, out.Action)
	assert.Equal(t, models.ConnectionQR, out.Method)
	got := h.store.get(deal.ID)
	assert.Equal(t, "U1", got.LineUserID)
	assert.Equal(t, "Hanako", got.LineDisplayName)
	assert.Equal(t, models.ConnectionQR, got.LineConnectionMethod)
	assert.Empty(t, got.RegistrationToken)
	require.Len(t, h.messenger.messages(), 1)
	assert.Contains(t, h.messenger.messages()[0].Text, "LINE連携が完了しました")
}

func TestRegisterTextBindsByQR(t *testing.T) {
	h := newHarness(t)
	deal := h.store.add(models.Deal{Title: "t", Client: "c", Phase: models.PhaseViewing, RegistrationToken: "abc"})

	out := handleOne(t, h, textEvent("U2", "register:abc"), "")

	assert.Equal(t, ActionBound, out.Action)
	assert.Equal(t, "U2", h.store.get(deal.ID).LineUserID)
}

func TestTokenBoundToAnotherUserIsRefused(t *testing.T) {
	h := newHarness(t)
	deal := h.store.add(models.Deal{Title: "t", Client: "c", Phase: models.PhaseViewing, RegistrationToken: "abc", LineUserID: "U-owner"})

	out := handleOne(t, h, textEvent("U-intruder", "register:abc"), "")

	assert.Equal(t, ActionRefused, out.Action)
	assert.Equal(t, "U-owner", h.store.get(deal.ID).LineUserID)
	assert.Equal(t, msgTokenTaken, h.messenger.messages()[0].Text)
}

func TestUnknownTokenIsRefused(t *testing.T) {
	h := newHarness(t)

	out := handleOne(t, h, followEvent("U1"), "missing")

	assert.Equal(t, ActionRefused, out.Action)
	assert.Equal(t, msgInvalidToken, h.messenger.messages()[0].Text)
	assert.Zero(t, h.store.boundCount())
}

func TestSingleNameMatchBindsAutomatically(t *testing.T) {
	h := newHarness(t)
	h.messenger.profiles["U1"] = "佐藤 一郎"
	deal := h.store.add(models.Deal{Title: "t", Client: "佐藤 一郎", Phase: models.PhaseApplication})
	h.store.add(models.Deal{Title: "other", Client: "鈴木", Phase: models.PhaseApplication})

	out := handleOne(t, h, followEvent("U1"), "")

	assert.Equal(t, ActionBound, out.Action)
	assert.Equal(t, models.ConnectionAuto, out.Method)
	assert.Equal(t, "U1", h.store.get(deal.ID).LineUserID)
	assert.Equal(t, 1, h.store.boundCount())
}

func TestAmbiguousNameOffersCandidatesWithoutBinding(t *testing.T) {
	h := newHarness(t)
	a := h.store.add(models.Deal{Title: "渋谷 1LDK", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	b := h.store.add(models.Deal{Title: "目黒 2DK", Client: "Taro Tanaka", Phase: models.PhaseScreening})

	out := handleOne(t, h, textEvent("U1", "Taro Tanaka"), "")

	assert.Equal(t, ActionCandidates, out.Action)
	assert.Equal(t, []int64{a.ID, b.ID}, out.Candidates)
	assert.Zero(t, h.store.boundCount())

	sent := h.messenger.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "1. 渋谷 1LDK")
	assert.Contains(t, sent[0].Text, "2. 目黒 2DK")
	assert.Contains(t, sent[0].Text, "0. 該当なし")
	assert.Empty(t, sent[0].Options, "typed names get a numbered list")

	pending, err := h.pending.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, pending)
}

func TestFollowAmbiguousOffersQuickReply(t *testing.T) {
	h := newHarness(t)
	h.messenger.profiles["U1"] = "Taro Tanaka"
	h.store.add(models.Deal{Title: "A", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	h.store.add(models.Deal{Title: "B", Client: "Taro Tanaka", Phase: models.PhaseViewing})

	out := handleOne(t, h, followEvent("U1"), "")

	assert.Equal(t, ActionCandidates, out.Action)
	sent := h.messenger.messages()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Options, 3)
	assert.Equal(t, "action=no_match", sent[0].Options[2].Data)
}

func TestNumberedReplyBindsChoice(t *testing.T) {
	h := newHarness(t)
	h.store.add(models.Deal{Title: "A", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	b := h.store.add(models.Deal{Title: "B", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	handleOne(t, h, textEvent("U1", "Taro Tanaka"), "")

	out := handleOne(t, h, textEvent("U1", "２"), "")

	assert.Equal(t, ActionBound, out.Action)
	assert.Equal(t, models.ConnectionManual, out.Method)
	assert.Equal(t, b.ID, out.DealID)
	assert.Equal(t, "U1", h.store.get(b.ID).LineUserID)
	assert.Equal(t, 1, h.store.boundCount())

	pending, err := h.pending.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestNoneReplyPromptsForName(t *testing.T) {
	h := newHarness(t)
	h.store.add(models.Deal{Title: "A", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	h.store.add(models.Deal{Title: "B", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	handleOne(t, h, textEvent("U1", "Taro Tanaka"), "")

	out := handleOne(t, h, textEvent("U1", "0"), "")

	assert.Equal(t, ActionPrompt, out.Action)
	assert.Zero(t, h.store.boundCount())
	sent := h.messenger.messages()
	assert.Equal(t, msgNamePrompt, sent[len(sent)-1].Text)
}

func TestOutOfRangeReplyKeepsCandidates(t *testing.T) {
	h := newHarness(t)
	h.store.add(models.Deal{Title: "A", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	h.store.add(models.Deal{Title: "B", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	handleOne(t, h, textEvent("U1", "Taro Tanaka"), "")

	out := handleOne(t, h, textEvent("U1", "7"), "")

	assert.Equal(t, ActionCandidates, out.Action)
	assert.Zero(t, h.store.boundCount())
	pending, err := h.pending.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPostbackSelectsPendingCandidate(t *testing.T) {
	h := newHarness(t)
	h.messenger.profiles["U1"] = "Taro Tanaka"
	a := h.store.add(models.Deal{Title: "A", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	h.store.add(models.Deal{Title: "B", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	handleOne(t, h, followEvent("U1"), "")

	out := handleOne(t, h, postbackEvent("U1", "action=select_deal&deal_id=1"), "")

	assert.Equal(t, ActionBound, out.Action)
	assert.Equal(t, a.ID, out.DealID)
	assert.Equal(t, "Taro Tanaka", h.store.get(a.ID).LineDisplayName)
}

func TestPostbackWithoutPendingIsRefused(t *testing.T) {
	h := newHarness(t)
	deal := h.store.add(models.Deal{Title: "A", Client: "Taro Tanaka", Phase: models.PhaseViewing})

	out := handleOne(t, h, postbackEvent("U1", "action=select_deal&deal_id=1"), "")

	assert.Equal(t, ActionRefused, out.Action)
	assert.Empty(t, h.store.get(deal.ID).LineUserID)
	assert.Equal(t, msgStaleChoice, h.messenger.messages()[0].Text)
}

func TestExpiredPendingFallsBackToNameMatch(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	h.pending.now = func() time.Time { return now }
	h.store.add(models.Deal{Title: "A", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	h.store.add(models.Deal{Title: "B", Client: "Taro Tanaka", Phase: models.PhaseViewing})
	handleOne(t, h, textEvent("U1", "Taro Tanaka"), "")

	now = now.Add(DefaultPendingTTL + time.Second)
	out := handleOne(t, h, textEvent("U1", "1"), "")

	assert.Equal(t, ActionPrompt, out.Action)
	assert.Zero(t, h.store.boundCount())
}

func TestZeroMatchesPrompts(t *testing.T) {
	h := newHarness(t)
	h.store.add(models.Deal{Title: "A", Client: "鈴木", Phase: models.PhaseViewing})

	out := handleOne(t, h, textEvent("U1", "Nobody"), "")

	assert.Equal(t, ActionPrompt, out.Action)
	assert.Equal(t, msgNamePrompt, h.messenger.messages()[0].Text)
}

func TestUnfollowClearsPendingAndNonTextIgnored(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.pending.Put(context.Background(), "U1", []int64{1, 2}, time.Minute))

	out := handleOne(t, h, line.Event{Type: line.EventUnfollow, Source: line.Source{UserID: "U1"}}, "")
	assert.Equal(t, ActionIgnored, out.Action)
	pending, err := h.pending.Get(context.Background(), "U1")
	require.NoError(t, err)
	assert.Nil(t, pending)

	sticker := line.Event{Type: line.EventMessage, Source: line.Source{UserID: "U1"}, Message: &line.Message{Type: "sticker"}}
	out = handleOne(t, h, sticker, "")
	assert.Equal(t, ActionIgnored, out.Action)
	assert.Empty(t, h.messenger.messages())
}

func TestDeliveryFailureDoesNotStopBatch(t *testing.T) {
	h := newHarness(t)
	h.messenger.pushErr = &line.DeliveryError{Channel: "line", StatusCode: 500}
	h.store.add(models.Deal{Title: "A", Client: "鈴木", Phase: models.PhaseViewing, LineUserID: "U1"})

	outs := h.d.HandleEvents(context.Background(), []line.Event{textEvent("U1", "a"), textEvent("U1", "b")}, "")

	require.Len(t, outs, 2)
	assert.Error(t, outs[0].Err)
	assert.Error(t, outs[1].Err)
}

func TestParseChoice(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1", 1, true},
		{" 3. ", 3, true},
		{"２", 2, true},
		{"0", 0, true},
		{"該当なし", 0, true},
		{"None", 0, true},
		{"Taro", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := parseChoice(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

// ABOUTME: Tests for the Slack client and reminder blocks
// ABOUTME: Runs chat.postMessage against an httptest server
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harperreed/dealboard/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostMessage(t *testing.T) {
	var got Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BotToken: "xoxb-1", ChannelID: "C1", APIBase: srv.URL}, zap.NewNop())
	ts, err := c.PostMessage(context.Background(), Message{Text: "hi", Blocks: SummaryBlocks(2)})

	require.NoError(t, err)
	assert.Equal(t, "1700000000.000100", ts)
	assert.Equal(t, "Bearer xoxb-1", auth)
	assert.Equal(t, "C1", got.Channel)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "divider", got.Blocks[1].Type)
}

func TestPostMessageNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BotToken: "t", ChannelID: "C1", APIBase: srv.URL}, nil)
	_, err := c.PostMessage(context.Background(), Message{Text: "x"})

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "channel_not_found", de.Body)
}

func TestPostMessageNotConfigured(t *testing.T) {
	_, err := NewClient(Config{BotToken: "t"}, nil).PostMessage(context.Background(), Message{})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestReminderBlocks(t *testing.T) {
	reg := models.DefaultRegistry()
	deal := &models.Deal{
		Title:    "渋谷 1LDK",
		Priority: models.PriorityHigh,
		Phase:    models.PhaseContract,
		DueDate:  models.NewDate(2025, 3, 9),
		Notes:    "鍵の受け取り",
	}

	blocks := ReminderBlocks(deal, 2, reg)

	require.Len(t, blocks, 3)
	assert.Contains(t, blocks[0].Text.Text, "🚨")
	fields := blocks[1].Fields
	require.Len(t, fields, 6)
	assert.Equal(t, "*顧客:*\n未設定", fields[1].Text)
	assert.Equal(t, "*現在フェーズ:*\n⑤契約手続き", fields[2].Text)
	assert.Equal(t, "*期日:*\n2025/03/09", fields[4].Text)
	assert.Equal(t, "*残り日数:*\n2日", fields[5].Text)
	assert.Equal(t, "*メモ:* 鍵の受け取り", blocks[2].Text.Text)

	deal.Notes = ""
	deal.Priority = models.PriorityLow
	blocks = ReminderBlocks(deal, 2, reg)
	assert.Len(t, blocks, 2)
	assert.Contains(t, blocks[0].Text.Text, "📝")
}

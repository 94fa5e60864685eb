// ABOUTME: HTTP API tests against a SQLite-backed server with faked integrations
// ABOUTME: Exercises deal CRUD, LINE endpoints, exports and integration error statuses
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/ledger"
	"github.com/harperreed/dealboard/line"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/notify"
	"github.com/harperreed/dealboard/reminders"
	"github.com/harperreed/dealboard/slack"
	"github.com/harperreed/dealboard/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const testSecret = "channel-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type pushed struct {
	To   string
	Text string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []pushed
	err  error
}

func (f *fakeMessenger) PushText(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, pushed{To: to, Text: text})
	return nil
}

func (f *fakeMessenger) PushQuickReply(ctx context.Context, to, text string, _ []line.QuickReplyOption) error {
	return f.PushText(ctx, to, text)
}

func (f *fakeMessenger) Profile(_ context.Context, userID string) (*line.Profile, error) {
	return &line.Profile{UserID: userID, DisplayName: "LINE " + userID}, nil
}

func (f *fakeMessenger) messages() []pushed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushed(nil), f.sent...)
}

type fakePusher struct {
	mu      sync.Mutex
	created []ledger.Record
	updated []string
	err     error
}

func (p *fakePusher) Create(_ context.Context, rec ledger.Record) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.created = append(p.created, rec)
	return "L-" + strconv.Itoa(len(p.created)), nil
}

func (p *fakePusher) Update(_ context.Context, id string, _ ledger.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.updated = append(p.updated, id)
	return nil
}

type fakeAlerter struct {
	mu   sync.Mutex
	msgs []slack.Message
}

func (a *fakeAlerter) PostMessage(_ context.Context, msg slack.Message) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
	return "ts", nil
}

type fakeAnalyzer struct {
	mimeType string
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ []byte, mimeType string) (*models.LedgerFields, error) {
	a.mimeType = mimeType
	return &models.LedgerFields{RentPrice: 80000, LandlordName: "山田"}, nil
}

type fakeSheets struct {
	pushed int
	err    error
}

func (f *fakeSheets) Push(_ context.Context, deals []models.Deal) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.pushed++
	return len(deals), nil
}

type testEnv struct {
	srv       *Server
	store     *db.Store
	messenger *fakeMessenger
	pusher    *fakePusher
	alerter   *fakeAlerter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.OpenDatabase(db.DriverSQLite, filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	store := db.NewStore(database, zap.NewNop())

	tplStore, err := templates.Open("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tplStore.Close() })

	reg := models.DefaultRegistry()
	templater := templates.NewTemplater(tplStore, reg)
	messenger := &fakeMessenger{}
	pusher := &fakePusher{}
	alerter := &fakeAlerter{}

	scheduler, err := reminders.New(store, alerter, reg, reminders.Options{Location: time.Local}, zap.NewNop())
	require.NoError(t, err)

	srv := NewServer(Deps{
		Store:             store,
		Registry:          reg,
		Templates:         tplStore,
		Templater:         templater,
		Dispatcher:        notify.NewDispatcher(store, messenger, templater, reg, notify.NewMemoryPending(), notify.Options{}, zap.NewNop()),
		Exporter:          ledger.NewExporter(pusher, reg, 0, zap.NewNop()),
		Scheduler:         scheduler,
		LineChannelSecret: testSecret,
		LineBotID:         "@dealbot",
		Location:          time.Local,
	})
	return &testEnv{srv: srv, store: store, messenger: messenger, pusher: pusher, alerter: alerter}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createDeal(t *testing.T, body map[string]interface{}) models.Deal {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/deals", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var deal models.Deal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deal))
	return deal
}

func dealBody(title, client string) map[string]interface{} {
	return map[string]interface{}{
		"title":    title,
		"client":   client,
		"priority": "高",
		"dueDate":  "2025-07-01",
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func dealPath(id int64, suffix string) string {
	return "/api/deals/" + strconv.FormatInt(id, 10) + suffix
}

func TestCreateDealValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/deals", map[string]interface{}{"title": "ab", "priority": "urgent"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Validation error", body["message"])
	errs, ok := body["errors"].([]interface{})
	require.True(t, ok)
	assert.Len(t, errs, 3)

	rec = env.do(t, http.MethodPost, "/api/deals", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateListAndGetDeal(t *testing.T) {
	env := newTestEnv(t)

	deal := env.createDeal(t, dealBody("渋谷 1LDK", "田中"))
	assert.Equal(t, models.PhaseApplication, deal.Phase, "phase defaults to the first phase")
	assert.Equal(t, models.PriorityHigh, deal.Priority)
	assert.Equal(t, "2025-07-01", deal.DueDate.String())

	rec := env.do(t, http.MethodGet, dealPath(deal.ID, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "田中", decode(t, rec)["client"])

	rec = env.do(t, http.MethodGet, "/api/deals?phase="+url.QueryEscape("①申込連絡"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Deal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	rec = env.do(t, http.MethodGet, "/api/deals?phase=closed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetDealErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/deals/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid deal ID", decode(t, rec)["message"])

	rec = env.do(t, http.MethodGet, "/api/deals/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Deal not found", decode(t, rec)["message"])
}

func TestUpdateDealTerminalTransitionExports(t *testing.T) {
	env := newTestEnv(t)
	deal := env.createDeal(t, dealBody("新宿 2LDK", "佐藤"))

	rec := env.do(t, http.MethodPatch, dealPath(deal.ID, ""), map[string]interface{}{"phase": "⑩契約終了"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "closed", body["phase"])
	assert.Equal(t, "L-1", body["ledgerId"])

	require.Len(t, env.pusher.created, 1)
	assert.Equal(t, "佐藤", env.pusher.created[0].TenantName)

	stored, err := env.store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "L-1", stored.LedgerID)

	rec = env.do(t, http.MethodPatch, dealPath(deal.ID, ""), map[string]interface{}{"notes": "鍵返却済み"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.pusher.created, 1, "no export without a phase change")
	assert.Empty(t, env.pusher.updated)
}

func TestUpdateDealExportFailureKeepsPhase(t *testing.T) {
	env := newTestEnv(t)
	env.pusher.err = &ledger.DeliveryError{Channel: "ledger", StatusCode: http.StatusInternalServerError}
	deal := env.createDeal(t, dealBody("港区 タワー", "鈴木"))

	rec := env.do(t, http.MethodPatch, dealPath(deal.ID, ""), map[string]interface{}{"phase": "closed"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "closed", body["phase"])
	assert.Nil(t, body["ledgerId"])
}

func TestUpdateDealLeavesCustomerMessagingToStaff(t *testing.T) {
	env := newTestEnv(t)
	b := dealBody("池袋 1K", "高橋")
	b["lineUserId"] = "U1"
	deal := env.createDeal(t, b)
	assert.Equal(t, models.ConnectionManual, deal.LineConnectionMethod)

	rec := env.do(t, http.MethodPatch, dealPath(deal.ID, ""), map[string]interface{}{"phase": "contract"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "contract", decode(t, rec)["phase"])
	assert.Empty(t, env.messenger.messages(), "moving a deal sends nothing on its own")

	rec = env.do(t, http.MethodPost, "/api/line/send", notify.SendRequest{DealID: deal.ID, Phase: "contract", LineUserID: "U1"})
	require.Equal(t, http.StatusOK, rec.Code)

	sent := env.messenger.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "U1", sent[0].To)
	assert.Contains(t, sent[0].Text, "高橋様")
}

func TestUpdateDealValidation(t *testing.T) {
	env := newTestEnv(t)
	deal := env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodPatch, dealPath(deal.ID, ""), map[string]interface{}{"phase": "nowhere"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, dealPath(deal.ID, ""), map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/deals/999", map[string]interface{}{"notes": "n"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDeal(t *testing.T) {
	env := newTestEnv(t)
	deal := env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodDelete, dealPath(deal.ID, ""), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, dealPath(deal.ID, ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetadata(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/metadata", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["phases"], 12)
	assert.Len(t, body["priorities"], 3)

	rec = env.do(t, http.MethodGet, "/api/phases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var phases []models.PhaseInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &phases))
	assert.Equal(t, models.PhaseApplication, phases[0].Key)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/phases", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/phases", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestPhaseTemplate(t *testing.T) {
	env := newTestEnv(t)
	deal := env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodGet, "/api/line/template/"+url.PathEscape("⑤契約手続き")+"?dealId="+strconv.FormatInt(deal.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "contract", body["phase"])
	assert.Contains(t, body["template"], "{clientName}")
	assert.Contains(t, body["rendered"], "田中様")
	assert.Contains(t, body["rendered"], "2025/07/01")

	rec = env.do(t, http.MethodGet, "/api/line/template/contract", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode(t, rec), "rendered")

	rec = env.do(t, http.MethodGet, "/api/line/template/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/line/template/contract?dealId=999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateManagement(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/line/templates/custom", map[string]string{"body": "{clientName}様 こんにちは"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["customized"])

	rec = env.do(t, http.MethodGet, "/api/line/templates/custom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{clientName}様 こんにちは", decode(t, rec)["body"])

	rec = env.do(t, http.MethodGet, "/api/line/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []templates.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, len(templates.Defaults()))

	rec = env.do(t, http.MethodDelete, "/api/line/templates/custom", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/line/templates/custom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "{clientName}様 こんにちは", decode(t, rec)["body"])
}

func TestSendLine(t *testing.T) {
	env := newTestEnv(t)
	deal := env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodPost, "/api/line/send", notify.SendRequest{DealID: deal.ID, Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/line/send", notify.SendRequest{DealID: 999, Message: "hi", LineUserID: "U1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/line/send", notify.SendRequest{DealID: deal.ID, Message: "{clientName}様 ご連絡です", LineUserID: "U1"})
	require.Equal(t, http.StatusOK, rec.Code)
	sent := env.messenger.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, pushed{To: "U1", Text: "田中様 ご連絡です"}, sent[0])

	env.messenger.err = &line.DeliveryError{Channel: "line", StatusCode: http.StatusTooManyRequests}
	rec = env.do(t, http.MethodPost, "/api/line/send", notify.SendRequest{DealID: deal.ID, Message: "hi", LineUserID: "U1"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	env.messenger.err = line.ErrNotConfigured
	rec = env.do(t, http.MethodPost, "/api/line/send", notify.SendRequest{DealID: deal.ID, Message: "hi", LineUserID: "U1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func webhookRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/line/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(line.SignatureHeader, signature)
	}
	return req
}

func TestLineWebhookSignature(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"events":[]}`)

	for name, sig := range map[string]string{
		"missing": "",
		"wrong":   line.Sign("other-secret", body),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.srv.Handler().ServeHTTP(rec, webhookRequest(body, sig))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	env.srv.LineChannelSecret = ""
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, webhookRequest(body, line.Sign(testSecret, body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no secret configured rejects everything")
}

func TestRegistrationFlowBindsThroughWebhook(t *testing.T) {
	env := newTestEnv(t)
	deal := env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodPost, dealPath(deal.ID, "/registration"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reg := decode(t, rec)
	token, _ := reg["token"].(string)
	require.NotEmpty(t, token)
	assert.True(t, strings.HasPrefix(reg["url"].(string), "https://line.me/R/oaMessage/"))
	assert.True(t, strings.HasPrefix(reg["qrCode"].(string), "data:image/png;base64,"))

	rec = env.do(t, http.MethodGet, dealPath(deal.ID, "/registration/qr.png"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	payload, err := json.Marshal(map[string]interface{}{
		"events": []map[string]interface{}{{
			"type":    "message",
			"source":  map[string]string{"type": "user", "userId": "U9"},
			"message": map[string]string{"id": "1", "type": "text", "text": "register:" + token},
		}},
	})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, webhookRequest(payload, line.Sign(testSecret, payload)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Outcomes []notify.Outcome `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, notify.ActionBound, resp.Outcomes[0].Action)

	bound, err := env.store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "U9", bound.LineUserID)
	assert.Equal(t, models.ConnectionQR, bound.LineConnectionMethod)
	assert.Equal(t, "LINE U9", bound.LineDisplayName)
}

func TestRegistrationErrors(t *testing.T) {
	env := newTestEnv(t)
	deal := env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodPost, "/api/deals/999/registration", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, dealPath(deal.ID, "/registration/qr.png"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no token issued yet")

	env.srv.LineBotID = ""
	rec = env.do(t, http.MethodPost, dealPath(deal.ID, "/registration"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckReminders(t *testing.T) {
	env := newTestEnv(t)
	b := dealBody("渋谷 1LDK", "田中")
	b["dueDate"] = models.Today(time.Local).AddDays(1).String()
	env.createDeal(t, b)
	env.createDeal(t, dealBody("遠い案件です", "佐藤"))

	rec := env.do(t, http.MethodPost, "/api/reminders/check", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report reminders.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Sent)
	require.Len(t, report.Deals, 1)
	assert.Equal(t, "田中", report.Deals[0].Client)
	assert.Len(t, env.alerter.msgs, 2, "summary plus one alert")
}

func TestLedgerExportEndpoints(t *testing.T) {
	env := newTestEnv(t)
	closed := dealBody("新宿 2LDK", "佐藤")
	closed["phase"] = "closed"
	done := env.createDeal(t, closed)
	open := env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodPost, "/api/ledger/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum ledger.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.Skipped)

	stored, err := env.store.GetDeal(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, "L-1", stored.LedgerID)

	rec = env.do(t, http.MethodPost, dealPath(done.ID, "/ledger"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "L-1", decode(t, rec)["ledgerId"])
	assert.Equal(t, []string{"L-1"}, env.pusher.updated, "second export updates in place")

	rec = env.do(t, http.MethodPost, dealPath(open.ID, "/ledger"), nil)
	require.Equal(t, http.StatusOK, rec.Code, "single export ignores the phase")
	assert.Equal(t, "L-2", decode(t, rec)["ledgerId"])

	env.pusher.err = ledger.ErrNotConfigured
	rec = env.do(t, http.MethodPost, dealPath(open.ID, "/ledger"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.pusher.err = &ledger.DeliveryError{Channel: "ledger", StatusCode: http.StatusBadRequest}
	rec = env.do(t, http.MethodPost, dealPath(open.ID, "/ledger"), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func multipartImage(t *testing.T, field, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="sheet"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/myosoku/analyze", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestAnalyzeMyosoku(t *testing.T) {
	env := newTestEnv(t)
	png := []byte("\x89PNG\r\n\x1a\nrest-of-image")

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, multipartImage(t, "image", "image/png", png))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no analyzer configured")

	analyzer := &fakeAnalyzer{}
	env.srv.Analyzer = analyzer

	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, multipartImage(t, "", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, multipartImage(t, "image", "text/plain", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, multipartImage(t, "image", "application/octet-stream", png))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", analyzer.mimeType, "generic uploads are sniffed")

	extracted, ok := decode(t, rec)["extracted"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 80000, extracted["rentPrice"])
	assert.Equal(t, "山田", extracted["landlordName"])
}

func TestUploadType(t *testing.T) {
	assert.Equal(t, "image/jpeg", uploadType("image/JPEG; q=1", nil))
	assert.Equal(t, "application/pdf", uploadType("", []byte("%PDF-1.4")))
}

func TestStatsAndGraph(t *testing.T) {
	env := newTestEnv(t)
	env.createDeal(t, dealBody("渋谷 1LDK", "田中"))
	closed := dealBody("新宿 2LDK", "佐藤")
	closed["phase"] = "closed"
	env.createDeal(t, closed)

	rec := env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["completed"])

	rec = env.do(t, http.MethodGet, "/api/board/graph.svg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = env.do(t, http.MethodGet, "/api/board/graph.svg?format=gif", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportXLSX(t *testing.T) {
	env := newTestEnv(t)
	env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodGet, "/api/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetList()[0])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "渋谷 1LDK", rows[1][1])
}

func TestSyncSheets(t *testing.T) {
	env := newTestEnv(t)
	env.createDeal(t, dealBody("渋谷 1LDK", "田中"))

	rec := env.do(t, http.MethodPost, "/api/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	sheet := &fakeSheets{}
	env.srv.Sheets = sheet
	rec = env.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Sync completed","result":{"rows":1}}`, rec.Body.String())

	sheet.err = errors.New("quota exceeded")
	rec = env.do(t, http.MethodPost, "/api/sync", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// ABOUTME: In-memory fakes for the notify package tests
// ABOUTME: Records outbound LINE calls and simulates the deal store
package notify

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/dealboard/line"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/templates"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	To      string
	Text    string
	Options []line.QuickReplyOption
}

// fakeMessenger records every outbound call.
type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	profiles map[string]string
	pushErr  error
	profiled int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{profiles: map[string]string{}}
}

func (f *fakeMessenger) PushText(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.sent = append(f.sent, sentMessage{To: to, Text: text})
	return nil
}

func (f *fakeMessenger) PushQuickReply(_ context.Context, to, text string, options []line.QuickReplyOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.sent = append(f.sent, sentMessage{To: to, Text: text, Options: options})
	return nil
}

func (f *fakeMessenger) Profile(_ context.Context, userID string) (*line.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiled++
	return &line.Profile{UserID: userID, DisplayName: f.profiles[userID]}, nil
}

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeStore is an in-memory DealStore.
type fakeStore struct {
	mu     sync.Mutex
	deals  map[int64]*models.Deal
	nextID int64
	reads  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{deals: map[int64]*models.Deal{}, nextID: 1}
}

func (s *fakeStore) add(d models.Deal) *models.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.nextID
	s.nextID++
	if d.LineConnectionMethod == "" {
		d.LineConnectionMethod = models.ConnectionNone
	}
	stored := d
	s.deals[d.ID] = &stored
	return &d
}

func (s *fakeStore) get(id int64) *models.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *s.deals[id]
	return &d
}

func (s *fakeStore) GetDeal(_ context.Context, id int64) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	d, ok := s.deals[id]
	if !ok {
		return nil, nil
	}
	c := *d
	return &c, nil
}

func (s *fakeStore) sorted() []*models.Deal {
	out := make([]*models.Deal, 0, len(s.deals))
	for _, d := range s.deals {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) FindDealByLineUser(_ context.Context, user string) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.sorted() {
		if d.LineUserID == user {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindDealByRegistrationToken(_ context.Context, token string) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.sorted() {
		if token != "" && d.RegistrationToken == token {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListUnboundDeals(_ context.Context) ([]models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Deal
	for _, d := range s.sorted() {
		if d.LineUserID == "" && d.Client != "" {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStore) BindLineUser(_ context.Context, id int64, user, name string, method models.ConnectionMethod, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok || (d.LineUserID != "" && d.LineUserID != user) {
		return false, nil
	}
	d.LineUserID = user
	d.LineDisplayName = name
	d.LineConnectionMethod = method
	d.LineConnectedAt = &at
	d.RegistrationToken = ""
	return true, nil
}

func (s *fakeStore) boundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.deals {
		if d.LineUserID != "" {
			n++
		}
	}
	return n
}

type harness struct {
	store     *fakeStore
	messenger *fakeMessenger
	pending   *MemoryPending
	templates *templates.Store
	d         *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tplStore, err := templates.Open("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tplStore.Close() })

	reg := models.DefaultRegistry()
	h := &harness{
		store:     newFakeStore(),
		messenger: newFakeMessenger(),
		pending:   NewMemoryPending(),
		templates: tplStore,
	}
	h.d = NewDispatcher(h.store, h.messenger, templates.NewTemplater(tplStore, reg), reg, h.pending, Options{}, zap.NewNop())
	return h
}

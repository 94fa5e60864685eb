// ABOUTME: Tests for spreadsheet exports
// ABOUTME: Reads back generated workbooks and fakes the Sheets API with httptest
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/dealboard/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

func sampleDeals() []models.Deal {
	created := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	return []models.Deal{
		{ID: 1, Title: "渋谷 1LDK", Client: "田中", Priority: models.PriorityHigh, Phase: models.PhaseViewing, DueDate: models.NewDate(2025, 4, 10), CreatedAt: created, UpdatedAt: created},
		{ID: 2, Title: "新宿 2LDK", Priority: models.PriorityLow, Phase: models.PhaseClosed, Notes: "完了"},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sampleDeals(), models.DefaultRegistry())

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "渋谷 1LDK", "田中", "高", "②内見調整", "2025-04-10", "", "2025-04-01T09:00:00Z", "2025-04-01T09:00:00Z"}, rows[0])
	assert.Equal(t, "", rows[1][5])
	assert.Equal(t, "", rows[1][7])
	assert.Len(t, rows[1], len(Header))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleDeals(), models.DefaultRegistry()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{xlsxSheet}, f.GetSheetList())
	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "渋谷 1LDK", rows[1][1])
	assert.Equal(t, "⑩契約終了", rows[2][4])
}

func TestGoogleSyncerPush(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var written gsheets.ValueRange

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path := r.URL.EscapedPath()
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
			calls = append(calls, "clear")
		case r.Method == http.MethodPut:
			calls = append(calls, "update")
			_ = json.NewDecoder(r.Body).Decode(&written)
			assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	svc, err := gsheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	g := NewGoogleSyncerWithService(svc, "sheet-id", "", models.DefaultRegistry())
	n, err := g.Push(context.Background(), sampleDeals())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"clear", "update"}, calls)
	require.Len(t, written.Values, 3)
	assert.Equal(t, "ID", written.Values[0][0])
	assert.Equal(t, "田中", written.Values[1][2])
}

func TestNewGoogleSyncerNotConfigured(t *testing.T) {
	_, err := NewGoogleSyncer(context.Background(), "", "id", "", models.DefaultRegistry())
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

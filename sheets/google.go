// ABOUTME: Google Sheets push of the deal board
// ABOUTME: Authenticates with a service account and rewrites the sheet range
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/harperreed/dealboard/models"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

var ErrNotConfigured = errors.New("google sheets spreadsheet id or credentials not configured")

type GoogleSyncer struct {
	svc           *gsheets.Service
	spreadsheetID string
	sheetName     string
	reg           *models.Registry
}

// NewGoogleSyncer reads service account credentials from credentialsFile.
func NewGoogleSyncer(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, reg *models.Registry) (*GoogleSyncer, error) {
	if spreadsheetID == "" || credentialsFile == "" {
		return nil, ErrNotConfigured
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	svc, err := gsheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewGoogleSyncerWithService(svc, spreadsheetID, sheetName, reg), nil
}

func NewGoogleSyncerWithService(svc *gsheets.Service, spreadsheetID, sheetName string, reg *models.Registry) *GoogleSyncer {
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	return &GoogleSyncer{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName, reg: reg}
}

// Push clears the sheet and writes the header plus one row per deal. It
// returns the number of deal rows written.
func (g *GoogleSyncer) Push(ctx context.Context, deals []models.Deal) (int, error) {
	rng := g.sheetName + "!A:I"

	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, rng, &gsheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("clear sheet: %w", err)
	}

	rows := Rows(deals, g.reg)
	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, toCells(Header))
	for _, r := range rows {
		values = append(values, toCells(r))
	}

	_, err = g.svc.Spreadsheets.Values.Update(g.spreadsheetID, g.sheetName+"!A1", &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("write sheet: %w", err)
	}
	return len(rows), nil
}

func toCells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

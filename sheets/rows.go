// ABOUTME: Tabular view of deals shared by the spreadsheet exports
// ABOUTME: Defines the column header and flattens deals into string rows
package sheets

import (
	"strconv"
	"time"

	"github.com/harperreed/dealboard/models"
)

// Header is the first row of every export.
var Header = []string{"ID", "Title", "Client", "Priority", "Phase", "DueDate", "Notes", "CreatedAt", "UpdatedAt"}

// Rows flattens deals in order, without the header.
func Rows(deals []models.Deal, reg *models.Registry) [][]string {
	rows := make([][]string, 0, len(deals))
	for _, d := range deals {
		rows = append(rows, []string{
			strconv.FormatInt(d.ID, 10),
			d.Title,
			d.Client,
			d.Priority.Label(),
			reg.Label(d.Phase),
			d.DueDate.String(),
			d.Notes,
			timestamp(d.CreatedAt),
			timestamp(d.UpdatedAt),
		})
	}
	return rows
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

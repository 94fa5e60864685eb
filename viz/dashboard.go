// ABOUTME: Board statistics and terminal dashboard rendering
// ABOUTME: Counts deals per phase, due-date pressure and LINE connection coverage
package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/dealboard/models"
)

const (
	dueSoonDays      = 3
	recentWindowDays = 7
	recentLimit      = 5
)

type PhaseCount struct {
	Phase models.Phase `json:"phase"`
	Label string       `json:"label"`
	Count int          `json:"count"`
}

type RecentConnection struct {
	DealID      int64                   `json:"dealId"`
	Title       string                  `json:"title"`
	Client      string                  `json:"client"`
	DisplayName string                  `json:"displayName"`
	Method      models.ConnectionMethod `json:"method"`
	ConnectedAt time.Time               `json:"connectedAt"`
}

// LineStats summarizes how many deals can be reached over LINE.
type LineStats struct {
	Total          int                `json:"total"`
	Connected      int                `json:"connected"`
	Unconnected    int                `json:"unconnected"`
	QR             int                `json:"qr"`
	Auto           int                `json:"auto"`
	Manual         int                `json:"manual"`
	ConnectionRate int                `json:"connectionRate"`
	Recent         []RecentConnection `json:"recentConnections"`
}

type BoardStatistics struct {
	Total     int          `json:"total"`
	ByPhase   []PhaseCount `json:"byPhase"`
	Completed int          `json:"completed"`
	Overdue   int          `json:"overdue"`
	DueSoon   int          `json:"dueSoon"`
	Line      LineStats    `json:"line"`
}

// BoardStats computes board statistics as of today. Phases are listed in
// registry order; deals with an unknown phase only count towards Total.
func BoardStats(deals []models.Deal, reg *models.Registry, today models.Date) *BoardStatistics {
	stats := &BoardStatistics{Total: len(deals)}

	counts := make(map[models.Phase]int)
	for i := range deals {
		d := &deals[i]
		counts[d.Phase]++

		if reg.IsTerminal(d.Phase) {
			stats.Completed++
		} else if !d.DueDate.IsZero() {
			days := today.DaysUntil(d.DueDate)
			switch {
			case days < 0:
				stats.Overdue++
			case days <= dueSoonDays:
				stats.DueSoon++
			}
		}
	}
	for _, p := range reg.All() {
		stats.ByPhase = append(stats.ByPhase, PhaseCount{Phase: p.Key, Label: p.Label, Count: counts[p.Key]})
	}

	stats.Line = lineStats(deals, today)
	return stats
}

func lineStats(deals []models.Deal, today models.Date) LineStats {
	ls := LineStats{Total: len(deals), Recent: []RecentConnection{}}
	cutoff := today.AddDays(-recentWindowDays)

	for i := range deals {
		d := &deals[i]
		if !d.IsBound() {
			continue
		}
		ls.Connected++
		switch d.LineConnectionMethod {
		case models.ConnectionQR:
			ls.QR++
		case models.ConnectionAuto:
			ls.Auto++
		case models.ConnectionManual:
			ls.Manual++
		}

		if d.LineConnectedAt != nil && !models.DateOf(*d.LineConnectedAt).Before(cutoff) {
			ls.Recent = append(ls.Recent, RecentConnection{
				DealID:      d.ID,
				Title:       d.Title,
				Client:      d.Client,
				DisplayName: d.LineDisplayName,
				Method:      d.LineConnectionMethod,
				ConnectedAt: *d.LineConnectedAt,
			})
		}
	}
	ls.Unconnected = ls.Total - ls.Connected
	if ls.Total > 0 {
		ls.ConnectionRate = (ls.Connected*100 + ls.Total/2) / ls.Total
	}

	sort.SliceStable(ls.Recent, func(i, j int) bool {
		return ls.Recent[i].ConnectedAt.After(ls.Recent[j].ConnectedAt)
	})
	if len(ls.Recent) > recentLimit {
		ls.Recent = ls.Recent[:recentLimit]
	}
	return ls
}

func RenderDashboard(stats *BoardStatistics) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  DEALBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("PHASES\n")
	renderPhases(&out, stats.ByPhase)
	out.WriteString("\n")

	out.WriteString("STATS\n")
	out.WriteString(fmt.Sprintf("  %d deals  %d completed  %d due within %d days\n\n",
		stats.Total, stats.Completed, stats.DueSoon, dueSoonDays))

	out.WriteString("LINE\n")
	out.WriteString(fmt.Sprintf("  %d/%d connected (%d%%)  QR %d  auto %d  manual %d\n",
		stats.Line.Connected, stats.Line.Total, stats.Line.ConnectionRate,
		stats.Line.QR, stats.Line.Auto, stats.Line.Manual))
	for _, r := range stats.Line.Recent {
		out.WriteString(fmt.Sprintf("  %s  %s (%s)\n", r.ConnectedAt.Format("01/02 15:04"), r.Title, r.Method))
	}

	if stats.Overdue > 0 {
		out.WriteString("\nNEEDS ATTENTION\n")
		out.WriteString(fmt.Sprintf("  ⚠️  %d deals past their due date\n", stats.Overdue))
	}

	return out.String()
}

func renderPhases(out *strings.Builder, phases []PhaseCount) {
	maxCount := 0
	for _, p := range phases {
		if p.Count > maxCount {
			maxCount = p.Count
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, p := range phases {
		barLength := (p.Count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)
		out.WriteString(fmt.Sprintf("  %s %s  %2d\n", padLabel(p.Label, 18), bar, p.Count))
	}
}

// padLabel pads by display width, counting wide runes as two columns.
func padLabel(s string, width int) string {
	w := 0
	for _, r := range s {
		if r > 0x2E80 {
			w += 2
		} else {
			w++
		}
	}
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

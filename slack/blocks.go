// ABOUTME: Block-kit builders for due-date reminders
// ABOUTME: Produces the summary header and the per-deal alert layout
package slack

import (
	"fmt"

	"github.com/harperreed/dealboard/models"
)

func SummaryBlocks(count int) []Block {
	return []Block{
		{Type: "section", Text: Markdown(fmt.Sprintf("📋 *本日の期限リマインダー* (%d件)", count))},
		{Type: "divider"},
	}
}

func urgencyMarker(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return "🚨"
	case models.PriorityMedium:
		return "⚠️"
	default:
		return "📝"
	}
}

// ReminderBlocks describes one deal that is due in days calendar days.
func ReminderBlocks(deal *models.Deal, days int, reg *models.Registry) []Block {
	client := deal.Client
	if client == "" {
		client = "未設定"
	}

	blocks := []Block{
		{Type: "section", Text: Markdown(urgencyMarker(deal.Priority) + " *不動産案件の期限が近づいています*")},
		{Type: "section", Fields: []*Text{
			Markdown("*案件名:*\n" + deal.Title),
			Markdown("*顧客:*\n" + client),
			Markdown("*現在フェーズ:*\n" + reg.Label(deal.Phase)),
			Markdown("*緊急度:*\n" + deal.Priority.Label()),
			Markdown("*期日:*\n" + deal.DueDate.Format("2006/01/02")),
			Markdown(fmt.Sprintf("*残り日数:*\n%d日", days)),
		}},
	}
	if deal.Notes != "" {
		blocks = append(blocks, Block{Type: "section", Text: Markdown("*メモ:* " + deal.Notes)})
	}
	return blocks
}

// ReminderText is the plain-text fallback shown in notifications.
func ReminderText(deal *models.Deal, days int) string {
	return fmt.Sprintf("期限リマインダー: %s（残り%d日）", deal.Title, days)
}

// ABOUTME: Customer-facing reply texts for the LINE registration flow
// ABOUTME: Builds status, welcome, prompt and candidate-list messages
package notify

import (
	"fmt"
	"strings"

	"github.com/harperreed/dealboard/models"
)

const (
	msgNamePrompt   = "ご登録のお名前が見つかりませんでした。\nご契約者様のお名前をフルネームで送信してください。"
	msgInvalidToken = "登録用のQRコードが無効です。担当者に新しいQRコードをご依頼ください。"
	msgTokenTaken   = "この案件は既に別のLINEアカウントと連携されています。担当者までお問い合わせください。"
	msgStaleChoice  = "選択された案件は候補に含まれていないか、有効期限が切れました。お名前をもう一度送信してください。"
	msgBindFailed   = "連携できませんでした。お手数ですが担当者までお問い合わせください。"
	msgNoMatchLabel = "該当なし"
)

func (d *Dispatcher) statusMessage(deal *models.Deal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s様\n\n案件「%s」の現在の状況：%s", clientOrDefault(deal), deal.Title, d.reg.Label(deal.Phase))
	if !deal.DueDate.IsZero() {
		fmt.Fprintf(&b, "\n期日：%s", deal.DueDate.Format("2006/01/02"))
	}
	return b.String()
}

func (d *Dispatcher) welcomeMessage(deal *models.Deal) string {
	return fmt.Sprintf("%s様\n\nLINE連携が完了しました。\n案件：%s\n現在の状況：%s\n\n今後の進捗はこちらのLINEでお知らせします。",
		clientOrDefault(deal), deal.Title, d.reg.Label(deal.Phase))
}

// candidateList numbers the candidates from 1; 0 means none of them.
func candidateList(deals []models.Deal) string {
	var b strings.Builder
	b.WriteString("お名前に一致する案件が複数見つかりました。\n該当する番号を返信してください。\n")
	for i, d := range deals {
		fmt.Fprintf(&b, "\n%d. %s（%s様）", i+1, d.Title, d.Client)
	}
	fmt.Fprintf(&b, "\n0. %s", msgNoMatchLabel)
	return b.String()
}

func clientOrDefault(deal *models.Deal) string {
	if deal.Client != "" {
		return deal.Client
	}
	return "お客"
}

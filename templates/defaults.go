// ABOUTME: Built-in customer message templates
// ABOUTME: One template per workflow phase plus the free-form custom template
package templates

import "github.com/harperreed/dealboard/models"

// KeyCustom is the operator's free-form template.
const KeyCustom = "custom"

var defaultTemplates = map[string]string{
	string(models.PhaseApplication): `{clientName}様

この度は、お申し込みをいただきありがとうございます。
書類を確認させていただき、内覧の調整をいたします。

お忙しい中恐れ入りますが、今しばらくお待ちください。`,

	string(models.PhaseViewing): `{clientName}様

お世話になっております。
内覧の調整が完了いたしました。

日時：

内覧前に冷蔵庫・洗濯機・ベッドのサイズを測っておくと便利です。

{clientName}様に当日お会いできることを楽しみにしております。`,

	string(models.PhaseScreening): `{clientName}様

先日は内覧をいただきありがとうございました。

現在、{propertyName}の審査を進めております。
結果は通常3〜5営業日でわかります。わかり次第ご連絡いたします。`,

	string(models.PhaseDisclosure): `{clientName}様

無事、審査が通りました。おめでとうございます！

この後は重要事項説明と契約を行い、初期費用の入金をいただきます。
その後、鍵の引き渡しとなります。

重要事項説明と契約の実施住所：

入居前チェックリスト：{customerChecklistUrl}`,

	string(models.PhaseContract): `{clientName}様

{propertyName}の契約手続きに関するご連絡です。
期日は{dueDate}です。詳細は別途ご連絡いたします。`,

	string(models.PhasePaymentConfirmed): `{clientName}様

初期費用の着金確認が取れました。
お忙しい中、ありがとうございます。

契約が完了しましたら、ライフラインの変更・新規回線の手続きをおすすめいたします。`,

	string(models.PhaseKeyPrep): `{clientName}様

管理会社から連絡があり、鍵の引き渡し日が決定しました。
日時：

物件下、もしくはご希望の場所にてお渡しできます。ご都合をお知らせください。`,

	string(models.PhaseMoveIn): `{clientName}様

鍵の引き渡しが完了いたしました。
ご不明な点がございましたら、お気軽にご連絡ください。`,

	string(models.PhaseManagement): `{clientName}様、新居での生活はいかがですか？

水漏れ・電気トラブル・設備の不具合など、お困りのことがございましたらご連絡ください。`,

	string(models.PhaseClosed): `{clientName}様

ご入居、おめでとうございます！
ささやかなお祝いをお送りさせていただきます。

今後とも、よろしくお願いします。`,

	string(models.PhaseFollowUp): `{clientName}様、いつもお世話になっております。

アフターサービスのご案内です。
・電気・ガス・水道の契約サポート
・インターネット回線のご紹介
・引越し業者のご紹介`,

	string(models.PhaseAdBilling): `{clientName}様とのお取引が正式に完了いたしました。

全ての手続きとお支払いを確認いたしました。
今後ともどうぞよろしくお願いいたします。`,

	KeyCustom: `{clientName}様

こちらにメッセージを入力してください。`,
}

// Defaults returns a copy of the built-in templates.
func Defaults() map[string]string {
	out := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		out[k] = v
	}
	return out
}

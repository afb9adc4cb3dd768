// Package compose renders diagnosis results and dialog prompts as LINE
// message payloads. Every function here is pure.
package compose

import (
	"fmt"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/ychihi393/chintai-checker-final/internal/dialog"
	"github.com/ychihi393/chintai-checker-final/internal/domain"
)

const (
	defaultPropertyName = "物件名不明"
	defaultReview       = "診断結果をご確認ください"
	defaultFortuneTitle = "スペシャル診断"
	historyHint         = "「履歴」と送信すると、いつでも詳細を確認できます。"
	linkHint            = "診断ページで「LINEで続き」ボタンを押して連携してください。"
)

const (
	welcomeText = "友だち追加ありがとうございます！🎉\n\n" +
		"賃貸初期費用AI診断の結果をこちらのLINEでご確認いただけます。\n\n" +
		"診断ページで「LINEで続きを確認」ボタンを押して、ぜひ連携してくださいね。"
	requestImagesText = "承知いたしました。\n\n" +
		"お手数ですが、ご希望の物件の募集図面と初期費用の見積もりをこちらのLINEにお送りいただけますでしょうか？\n\n" +
		"担当者が確認の上、診断結果をお送りいたします。"
	startConsultationText = "承知いたしました。\n\n" +
		"どのようなことでもお気軽にご相談ください。まずは、ざっくりとご相談内容を教えていただけますか？\n\n" +
		"担当者より改めてご連絡させていただきます。"
	acceptApplicationText = "ありがとうございます。\n\n" +
		"最新の空室状況と、正確な初期費用のお見積もりを確認させていただきます。少々お待ちくださいませ。\n\n" +
		"担当者より詳細をご連絡いたします。"
	suggestSearchText = "承知いたしました。\n\n" +
		"他の物件をお探しでしたら、AIで最適な物件を探せるシステムをご用意しております。ぜひこちらもご活用ください。"
	consultationReceivedText = "ご相談内容を承りました。\n\n" +
		"担当者より改めてご連絡させていただきますので、少々お待ちくださいませ。"
	imagesReceivedText = "画像を受け取りました。ありがとうございます。\n\n" +
		"担当者が確認の上、診断結果をお送りいたしますので、少々お待ちくださいませ。"
	imageOutsideFlowText = "画像を受け取りました。\n\n" +
		"診断ページから「LINEで続きを確認」ボタンを押して連携していただくと、診断結果をお送りできます。"
	noActiveCaseText     = "アクティブな案件がありません。\n「履歴」と送信して案件を選択してください。"
	invalidSelectionText = "選択した番号が無効です。「履歴」と送信して案件一覧を確認してください。"
	negotiationOfferText = "交渉が面倒、怖いと感じる方は、弊社で全ての交渉を代行しお得に契約できるようサポートが可能です。希望の場合はLINEでご相談ください。"
)

// Composer turns domain values into outbound messages.
type Composer struct {
	searchURL    string
	historyLimit int
}

func New(searchURL string, historyLimit int) *Composer {
	if historyLimit <= 0 {
		historyLimit = 5
	}
	return &Composer{searchURL: searchURL, historyLimit: historyLimit}
}

func text(s string) messaging_api.MessageInterface {
	return &messaging_api.TextMessage{Text: s}
}

// Announcement is what a user receives when a case is linked or re-announced
// on follow. Standard results are followed by PropertyConfirm.
func (c *Composer) Announcement(r domain.DiagnosisResult) []messaging_api.MessageInterface {
	if r.IsSecretMode {
		return []messaging_api.MessageInterface{text(SecretText(r))}
	}
	return []messaging_api.MessageInterface{text(SummaryText(r))}
}

// SecretText is the congratulatory message for fortune-style results.
func SecretText(r domain.DiagnosisResult) string {
	title := strings.TrimSpace(r.FortuneTitle)
	if title == "" {
		title = defaultFortuneTitle
	}
	return fmt.Sprintf("✨ %s\n\n%s\n\n「履歴」と送信すると、いつでも結果を確認できます。", title, r.FortuneSummary)
}

// SummaryText is the structured hand-off summary for standard results.
func SummaryText(r domain.DiagnosisResult) string {
	var b strings.Builder
	b.WriteString("✅ 診断結果を引き継ぎました！\n\n")
	b.WriteString("【物件情報】\n")
	b.WriteString(propertyLabel(r))
	b.WriteString("\n\n")
	b.WriteString("【診断サマリー】\n")
	fmt.Fprintf(&b, "見積書合計: %s円\n", amount(r.TotalOriginal))
	fmt.Fprintf(&b, "適正価格: %s円\n", amount(r.TotalFair))
	fmt.Fprintf(&b, "💰 削減可能額: %s円\n", amount(r.DiscountAmount))
	fmt.Fprintf(&b, "⚠️ リスクスコア: %s点\n\n", score(r.RiskScore))

	writeItems(&b, "【削減可能項目】", "❌", r.ItemsWithStatus(domain.ItemCut))
	writeItems(&b, "【交渉推奨項目】", "⚡", r.ItemsWithStatus(domain.ItemNegotiable))

	b.WriteString(historyHint)
	return b.String()
}

func writeItems(b *strings.Builder, heading, mark string, items []domain.Item) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading + "\n")
	for _, it := range items {
		fmt.Fprintf(b, "%s %s: %s円\n", mark, it.Name, amount(it.PriceOriginal))
		fmt.Fprintf(b, "   → %s\n", it.Reason)
	}
	b.WriteString("\n")
}

func propertyLabel(r domain.DiagnosisResult) string {
	if p := r.PropertyDisplay(); p != "" {
		return p
	}
	if room := strings.TrimSpace(r.RoomNumber); room != "" {
		return defaultPropertyName + " " + room
	}
	return defaultPropertyName
}

// Detail is the long-form view of the active case.
func (c *Composer) Detail(r domain.DiagnosisResult) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{text(DetailText(r))}
}

func DetailText(r domain.DiagnosisResult) string {
	review := ""
	if r.ProReview != nil {
		review = r.ProReview.Content
	}
	if strings.TrimSpace(review) == "" {
		review = defaultReview
	}
	var b strings.Builder
	b.WriteString("📊 案件詳細\n\n")
	fmt.Fprintf(&b, "提示額: ¥%s\n", amount(r.TotalOriginal))
	fmt.Fprintf(&b, "適正額: ¥%s\n", amount(r.TotalFair))
	fmt.Fprintf(&b, "削減可能額: ¥%s\n\n", amount(r.DiscountAmount))
	fmt.Fprintf(&b, "リスクスコア: %s/100\n\n", score(r.RiskScore))
	fmt.Fprintf(&b, "プロからのアドバイス:\n%s\n\n", review)
	b.WriteString(negotiationOfferText)
	return b.String()
}

// History lists the user's cases with 1-based indices.
func (c *Composer) History(refs []domain.CaseRef) []messaging_api.MessageInterface {
	if len(refs) == 0 {
		return []messaging_api.MessageInterface{text("まだ案件がありません。\n" + linkHint)}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 あなたの案件履歴（直近%d件）\n\n", c.historyLimit)
	for i, r := range refs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.DisplayTitle)
	}
	b.WriteString("\n番号を送信して案件を選択してください。")
	return []messaging_api.MessageInterface{text(b.String())}
}

func (c *Composer) Selected(ref domain.CaseRef) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		text(fmt.Sprintf("✅ 「%s」を選択しました。\n\n詳細を確認するには「はい」と送信してください。", ref.DisplayTitle)),
	}
}

func (c *Composer) InvalidSelection() []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{text(invalidSelectionText)}
}

func (c *Composer) NoActiveCase() []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{text(noActiveCaseText)}
}

func (c *Composer) Welcome() []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{text(welcomeText)}
}

func (c *Composer) Help() []messaging_api.MessageInterface {
	help := fmt.Sprintf("【使い方】\n\n"+
		"📋 「履歴」→ 案件一覧を表示\n"+
		"🔢 番号（1-%d）→ 案件を選択\n"+
		"✅ 「はい」→ 選択した案件の詳細を表示\n\n"+
		"診断ページで「LINEで続き」ボタンを押すと新しい案件を連携できます。", c.historyLimit)
	return []messaging_api.MessageInterface{text(help)}
}

// Prompt renders the static reply for a dialog action. Actions that need
// stored data (history, selection, detail) are not handled here and yield
// nil.
func (c *Composer) Prompt(a dialog.Action) []messaging_api.MessageInterface {
	switch a {
	case dialog.ActionAskApplicationIntent:
		return []messaging_api.MessageInterface{applicationIntentFlex()}
	case dialog.ActionRequestImages:
		return []messaging_api.MessageInterface{text(requestImagesText)}
	case dialog.ActionStartConsultation:
		return []messaging_api.MessageInterface{text(startConsultationText)}
	case dialog.ActionAcceptApplication:
		return []messaging_api.MessageInterface{text(acceptApplicationText)}
	case dialog.ActionSuggestSearch:
		return []messaging_api.MessageInterface{c.searchTemplate()}
	case dialog.ActionConsultationReceived:
		return []messaging_api.MessageInterface{text(consultationReceivedText)}
	case dialog.ActionImagesReceived:
		return []messaging_api.MessageInterface{text(imagesReceivedText)}
	case dialog.ActionImageOutsideFlow:
		return []messaging_api.MessageInterface{text(imageOutsideFlowText)}
	case dialog.ActionHelp:
		return c.Help()
	default:
		return nil
	}
}

func (c *Composer) searchTemplate() messaging_api.MessageInterface {
	return &messaging_api.TemplateMessage{
		AltText: "他の物件を探す",
		Template: &messaging_api.ButtonsTemplate{
			Text: suggestSearchText,
			Actions: []messaging_api.ActionInterface{
				&messaging_api.UriAction{Label: "物件を探す", Uri: c.searchURL},
			},
		},
	}
}

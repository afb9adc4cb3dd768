package compose

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/ychihi393/chintai-checker-final/internal/domain"
)

const (
	colorTitle     = "#333333"
	colorSubtitle  = "#666666"
	colorPrimary   = "#007AFF"
	colorApply     = "#06C755"
	colorSecondary = "#808080"
	colorConsult   = "#FF9500"
)

// PropertyConfirm asks whether the announced case is the property the user
// is considering. Buttons send plain text matched by the dialog table.
func (c *Composer) PropertyConfirm(r domain.DiagnosisResult) []messaging_api.MessageInterface {
	body := &messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
		Contents: []messaging_api.FlexComponentInterface{
			title("物件の確認", "xl"),
			subtitle(propertyLabel(r), "lg", "sm"),
			&messaging_api.FlexSeparator{Margin: "lg"},
			&messaging_api.FlexBox{
				Layout:  messaging_api.FlexBoxLAYOUT_HORIZONTAL,
				Spacing: "sm",
				Margin:  "lg",
				Contents: []messaging_api.FlexComponentInterface{
					button("はい", "はい", messaging_api.FlexButtonSTYLE_PRIMARY, colorPrimary),
					button("いいえ", "いいえ", messaging_api.FlexButtonSTYLE_SECONDARY, colorSecondary),
				},
			},
			withMargin(button("相談したい", "相談したい", messaging_api.FlexButtonSTYLE_PRIMARY, colorConsult), "md"),
		},
	}
	return []messaging_api.MessageInterface{&messaging_api.FlexMessage{
		AltText:  "確認する物件はこの物件で合ってますか？",
		Contents: &messaging_api.FlexBubble{Body: body},
	}}
}

func applicationIntentFlex() messaging_api.MessageInterface {
	body := &messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
		Contents: []messaging_api.FlexComponentInterface{
			title("ありがとうございます", "lg"),
			subtitle("こちらの物件へのお申し込みについてお伺いします", "sm", "md"),
			&messaging_api.FlexSeparator{Margin: "lg"},
			&messaging_api.FlexBox{
				Layout:  messaging_api.FlexBoxLAYOUT_VERTICAL,
				Spacing: "sm",
				Margin:  "lg",
				Contents: []messaging_api.FlexComponentInterface{
					button("お申し込みする", "申し込みする", messaging_api.FlexButtonSTYLE_PRIMARY, colorApply),
					button("他の物件を探す", "他の物件を探す", messaging_api.FlexButtonSTYLE_SECONDARY, colorSecondary),
					button("相談したい", "相談したい", messaging_api.FlexButtonSTYLE_PRIMARY, colorConsult),
				},
			},
		},
	}
	return &messaging_api.FlexMessage{
		AltText:  "お申し込みについて",
		Contents: &messaging_api.FlexBubble{Body: body},
	}
}

func title(s, size string) *messaging_api.FlexText {
	return &messaging_api.FlexText{
		Text:   s,
		Weight: messaging_api.FlexTextWEIGHT_BOLD,
		Size:   size,
		Color:  colorTitle,
		Margin: "md",
		Align:  messaging_api.FlexTextALIGN_CENTER,
	}
}

func subtitle(s, size, margin string) *messaging_api.FlexText {
	return &messaging_api.FlexText{
		Text:   s,
		Size:   size,
		Color:  colorSubtitle,
		Margin: margin,
		Align:  messaging_api.FlexTextALIGN_CENTER,
		Wrap:   true,
	}
}

// button sends sendText as an ordinary user message when tapped.
func button(label, sendText string, style messaging_api.FlexButtonSTYLE, color string) *messaging_api.FlexButton {
	return &messaging_api.FlexButton{
		Style:  style,
		Color:  color,
		Height: messaging_api.FlexButtonHEIGHT_SM,
		Action: &messaging_api.MessageAction{Label: label, Text: sendText},
	}
}

func withMargin(b *messaging_api.FlexButton, margin string) *messaging_api.FlexButton {
	b.Margin = margin
	return b
}

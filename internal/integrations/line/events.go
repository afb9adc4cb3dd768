package line

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/ychihi393/chintai-checker-final/internal/domain"
)

// ParseEvents decodes a webhook body into domain events, preserving order.
// Event kinds the service does not act on come back as domain.EventOther.
func ParseEvents(body []byte) ([]domain.Event, error) {
	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("line: decode webhook body: %w", err)
	}
	out := make([]domain.Event, 0, len(cb.Events))
	for _, ev := range cb.Events {
		out = append(out, toDomain(ev))
	}
	return out, nil
}

func toDomain(ev webhook.EventInterface) domain.Event {
	switch e := ev.(type) {
	case webhook.MessageEvent:
		out := base(e.WebhookEventId, e.Source, e.Timestamp, e.DeliveryContext)
		out.Type = domain.EventMessage
		out.ReplyToken = e.ReplyToken
		switch m := e.Message.(type) {
		case webhook.TextMessageContent:
			out.MessageType = domain.MessageText
			out.Text = m.Text
		case webhook.ImageMessageContent:
			out.MessageType = domain.MessageImage
		default:
			out.MessageType = domain.MessageOther
		}
		return out
	case webhook.FollowEvent:
		out := base(e.WebhookEventId, e.Source, e.Timestamp, e.DeliveryContext)
		out.Type = domain.EventFollow
		out.ReplyToken = e.ReplyToken
		return out
	case webhook.UnfollowEvent:
		out := base(e.WebhookEventId, e.Source, e.Timestamp, e.DeliveryContext)
		out.Type = domain.EventUnfollow
		return out
	case webhook.PostbackEvent:
		out := base(e.WebhookEventId, e.Source, e.Timestamp, e.DeliveryContext)
		out.Type = domain.EventPostback
		out.ReplyToken = e.ReplyToken
		if e.Postback != nil {
			out.PostbackData = e.Postback.Data
		}
		return out
	default:
		return domain.Event{Type: domain.EventOther}
	}
}

func base(id string, src webhook.SourceInterface, ts int64, dc *webhook.DeliveryContext) domain.Event {
	ev := domain.Event{
		ID:        id,
		UserID:    userID(src),
		Timestamp: time.UnixMilli(ts).UTC(),
	}
	if dc != nil {
		ev.Redelivery = dc.IsRedelivery
	}
	return ev
}

// userID extracts the sender. Group and room events carry the user id only
// when the user has consented, so it may be empty.
func userID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

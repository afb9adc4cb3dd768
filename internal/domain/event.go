package domain

import "time"

type EventType string

const (
	EventFollow   EventType = "follow"
	EventUnfollow EventType = "unfollow"
	EventMessage  EventType = "message"
	EventPostback EventType = "postback"
	EventOther    EventType = "other"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageOther MessageType = "other"
)

// Event is a platform-neutral view of one inbound webhook event.
type Event struct {
	ID           string
	Type         EventType
	MessageType  MessageType
	UserID       string
	ReplyToken   string
	Text         string
	PostbackData string
	Redelivery   bool
	Timestamp    time.Time
}

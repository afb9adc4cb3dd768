// Package line adapts the LINE Messaging API and LINE Login to the
// service's domain types.
package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// maxMessagesPerRequest is the platform limit for reply and push.
const maxMessagesPerRequest = 5

// messagingAPI is the subset of *messaging_api.MessagingApiAPI used by Sender.
type messagingAPI interface {
	ReplyMessage(replyMessageRequest *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	PushMessage(pushMessageRequest *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
}

// Sender delivers reply and push messages.
type Sender struct {
	api messagingAPI
}

type SenderOption func(*senderConfig)

type senderConfig struct {
	endpoint   string
	httpClient *http.Client
}

func WithEndpoint(endpoint string) SenderOption {
	return func(c *senderConfig) { c.endpoint = strings.TrimSpace(endpoint) }
}

func WithHTTPClient(httpClient *http.Client) SenderOption {
	return func(c *senderConfig) { c.httpClient = httpClient }
}

// NewSender builds a Sender for the channel access token.
func NewSender(channelToken string, opts ...SenderOption) (*Sender, error) {
	if strings.TrimSpace(channelToken) == "" {
		return nil, errors.New("line: channel access token must not be empty")
	}
	cfg := senderConfig{httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(&cfg)
	}
	apiOpts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(cfg.httpClient)}
	if cfg.endpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(cfg.endpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(channelToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("line: create messaging api client: %w", err)
	}
	return newSender(api)
}

func newSender(api messagingAPI) (*Sender, error) {
	if api == nil {
		return nil, errors.New("line: messaging api must not be nil")
	}
	return &Sender{api: api}, nil
}

// Reply answers an inbound event. A reply token is single use, so callers
// must send every message for the event in one call.
func (s *Sender) Reply(ctx context.Context, replyToken string, msgs []messaging_api.MessageInterface) error {
	if err := checkBatch(ctx, msgs); err != nil {
		return err
	}
	if strings.TrimSpace(replyToken) == "" {
		return errors.New("line: reply token is required")
	}
	if _, err := s.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	}); err != nil {
		return fmt.Errorf("line: reply: %w", err)
	}
	return nil
}

// Push sends messages to a user. A non-empty retryKey is sent as
// X-Line-Retry-Key so the platform drops a repeated request.
func (s *Sender) Push(ctx context.Context, to, retryKey string, msgs []messaging_api.MessageInterface) error {
	if err := checkBatch(ctx, msgs); err != nil {
		return err
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("line: push recipient is required")
	}
	if _, err := s.api.PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: msgs,
	}, retryKey); err != nil {
		return fmt.Errorf("line: push: %w", err)
	}
	return nil
}

func checkBatch(ctx context.Context, msgs []messaging_api.MessageInterface) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("line: %w", err)
	}
	if len(msgs) == 0 {
		return errors.New("line: no messages to send")
	}
	if len(msgs) > maxMessagesPerRequest {
		return fmt.Errorf("line: %d messages exceeds the limit of %d", len(msgs), maxMessagesPerRequest)
	}
	return nil
}

// RetryKey derives a stable X-Line-Retry-Key from parts, so retrying the
// same logical push yields the same key.
func RetryKey(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join(parts, "\x00"))).String()
}

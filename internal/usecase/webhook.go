package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ychihi393/chintai-checker-final/internal/domain"
	"github.com/ychihi393/chintai-checker-final/internal/integrations/line"
	"github.com/ychihi393/chintai-checker-final/internal/metrics"
)

// EventClaimer records which webhook events were already processed.
type EventClaimer interface {
	ClaimEvent(ctx context.Context, eventID string) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

// EventHandler processes one parsed event. *ConversationService satisfies it.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

type WebhookService struct {
	channelSecret string
	claims        EventClaimer
	events        EventHandler
	logger        *slog.Logger
}

type WebhookResult struct {
	Events     int
	Processed  int
	Duplicates int
	Failed     int
}

func NewWebhookService(channelSecret string, claims EventClaimer, events EventHandler, logger *slog.Logger) (*WebhookService, error) {
	if channelSecret == "" {
		return nil, errors.New("usecase: channel secret must not be empty")
	}
	if claims == nil {
		return nil, errors.New("usecase: event claimer must not be nil")
	}
	if events == nil {
		return nil, errors.New("usecase: event handler must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{channelSecret: channelSecret, claims: claims, events: events, logger: logger}, nil
}

// Process verifies and dispatches one webhook delivery. Events are handled
// in order; a failing event is released so a redelivery can retry it, and
// does not stop the events after it.
func (s *WebhookService) Process(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	if strings.TrimSpace(signature) == "" {
		return WebhookResult{}, newError(ErrorInvalidSignature, "no_signature", nil)
	}
	if !line.VerifySignature(s.channelSecret, body, signature) {
		return WebhookResult{}, newError(ErrorInvalidSignature, "invalid_signature", nil)
	}

	events, err := line.ParseEvents(body)
	if err != nil {
		return WebhookResult{}, newError(ErrorInvalidInput, "malformed_body", err)
	}

	res := WebhookResult{Events: len(events)}
	for _, ev := range events {
		if ev.Type == domain.EventOther {
			metrics.WebhookEvent(string(ev.Type), "skipped")
			continue
		}
		if ev.Redelivery {
			s.logger.Info("redelivered webhook event", "event_id", ev.ID, "type", ev.Type)
		}

		claimed := false
		if ev.ID != "" {
			ok, err := s.claims.ClaimEvent(ctx, ev.ID)
			switch {
			case err != nil:
				s.logger.Warn("claim webhook event failed; processing anyway", "event_id", ev.ID, "err", err)
			case !ok:
				res.Duplicates++
				metrics.WebhookEvent(string(ev.Type), "duplicate")
				s.logger.Info("duplicate webhook event skipped", "event_id", ev.ID, "type", ev.Type)
				continue
			default:
				claimed = true
			}
		}

		if err := s.events.HandleEvent(ctx, ev); err != nil {
			res.Failed++
			metrics.WebhookEvent(string(ev.Type), "failed")
			s.logger.Error("webhook event failed", "event_id", ev.ID, "type", ev.Type, "user_id", ev.UserID, "err", err)
			if claimed {
				if relErr := s.claims.ReleaseEvent(ctx, ev.ID); relErr != nil {
					s.logger.Warn("release webhook event failed", "event_id", ev.ID, "err", relErr)
				}
			}
			continue
		}
		res.Processed++
		metrics.WebhookEvent(string(ev.Type), "processed")
	}
	return res, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/ychihi393/chintai-checker-final/internal/compose"
	"github.com/ychihi393/chintai-checker-final/internal/config"
	"github.com/ychihi393/chintai-checker-final/internal/dialog"
	"github.com/ychihi393/chintai-checker-final/internal/domain"
	"github.com/ychihi393/chintai-checker-final/internal/integrations/line"
	"github.com/ychihi393/chintai-checker-final/internal/metrics"
)

// ConversationStore is the slice of repository.CaseStore the conversation
// adapter needs.
type ConversationStore interface {
	GetUserCases(ctx context.Context, userID string, limit int) ([]domain.CaseRef, error)
	GetCase(ctx context.Context, caseID string) (*domain.Case, error)
	SetActiveCase(ctx context.Context, userID, caseID string) error
	GetActiveCase(ctx context.Context, userID string) (*domain.Case, error)
	GetConversationState(ctx context.Context, userID string) (domain.ConversationState, error)
	SetConversationState(ctx context.Context, userID string, st domain.ConversationState) error
}

// Messenger sends outbound LINE messages. *line.Sender satisfies it.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, msgs []messaging_api.MessageInterface) error
	Push(ctx context.Context, to, retryKey string, msgs []messaging_api.MessageInterface) error
}

// ConversationService drives one user's dialog: it loads the stored step,
// asks the dialog machine what to do, persists the result and replies.
type ConversationService struct {
	store        ConversationStore
	sender       Messenger
	machine      *dialog.Machine
	composer     *compose.Composer
	historyLimit int
	logger       *slog.Logger
}

func NewConversationService(store ConversationStore, sender Messenger, cfg *config.Dialog, logger *slog.Logger) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if sender == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if cfg == nil {
		cfg = config.DefaultDialog()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("usecase: dialog config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationService{
		store:        store,
		sender:       sender,
		machine:      dialog.New(cfg),
		composer:     compose.New(cfg.PropertySearchURL, cfg.HistoryLimit),
		historyLimit: cfg.HistoryLimit,
		logger:       logger,
	}, nil
}

// HandleEvent processes one webhook event. It returns an error only when
// state could not be read or written; delivery failures are logged.
func (s *ConversationService) HandleEvent(ctx context.Context, ev domain.Event) error {
	if ev.UserID == "" {
		s.logger.Debug("event without user id ignored", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
	switch ev.Type {
	case domain.EventFollow:
		return s.handleFollow(ctx, ev)
	case domain.EventUnfollow:
		s.logger.Info("user unfollowed", "user_id", ev.UserID)
		return nil
	case domain.EventPostback:
		return s.handleInput(ctx, ev, dialog.Input{Kind: dialog.InputText, Text: ev.PostbackData})
	case domain.EventMessage:
		switch ev.MessageType {
		case domain.MessageText:
			return s.handleInput(ctx, ev, dialog.Input{Kind: dialog.InputText, Text: ev.Text})
		case domain.MessageImage:
			return s.handleInput(ctx, ev, dialog.Input{Kind: dialog.InputImage})
		}
	}
	return nil
}

func (s *ConversationService) handleFollow(ctx context.Context, ev domain.Event) error {
	latest, err := s.latestCase(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if latest == nil {
		s.logger.Info("follow from user without cases", "user_id", ev.UserID)
		s.reply(ctx, ev.ReplyToken, s.composer.Welcome())
		return nil
	}

	if err := s.store.SetActiveCase(ctx, ev.UserID, latest.CaseID); err != nil {
		s.logger.Warn("set active case on follow failed", "user_id", ev.UserID, "case_id", latest.CaseID, "err", err)
	}

	if err := s.prime(ctx, ev.UserID, *latest); err != nil {
		return err
	}
	msgs := s.composer.Announcement(latest.Result)
	if !latest.Result.IsSecretMode {
		msgs = append(msgs, s.composer.PropertyConfirm(latest.Result)...)
	}
	s.logger.Info("case re-announced on follow", "user_id", ev.UserID, "case_id", latest.CaseID)
	s.reply(ctx, ev.ReplyToken, msgs)
	return nil
}

// latestCase prefers the newest index entry and falls back to the active
// pointer when the index is empty or its case has expired.
func (s *ConversationService) latestCase(ctx context.Context, userID string) (*domain.Case, error) {
	refs, err := s.store.GetUserCases(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("usecase: load case index: %w", err)
	}
	if len(refs) > 0 {
		c, err := s.store.GetCase(ctx, refs[0].CaseID)
		if err != nil {
			return nil, fmt.Errorf("usecase: load case %s: %w", refs[0].CaseID, err)
		}
		if c != nil {
			return c, nil
		}
	}
	c, err := s.store.GetActiveCase(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("usecase: load active case: %w", err)
	}
	return c, nil
}

// Announce pushes a freshly linked case to the user. Standard results are
// followed by the property question with the state primed in between;
// secret-mode results get the fortune text only and leave the user idle on
// the new case. linkID identifies the link attempt and seeds the push retry
// keys. Push failures are logged.
func (s *ConversationService) Announce(ctx context.Context, userID string, c domain.Case, linkID string) error {
	s.push(ctx, userID, line.RetryKey(linkID, userID, "announce"), s.composer.Announcement(c.Result))
	if err := s.prime(ctx, userID, c); err != nil {
		return err
	}
	if c.Result.IsSecretMode {
		return nil
	}
	s.push(ctx, userID, line.RetryKey(linkID, userID, "property_confirm"), s.composer.PropertyConfirm(c.Result))
	return nil
}

// prime binds the conversation to an announced case, replacing whatever
// step an earlier case left behind.
func (s *ConversationService) prime(ctx context.Context, userID string, c domain.Case) error {
	next := dialog.Primed(c.CaseID)
	if c.Result.IsSecretMode {
		next = dialog.Settled(c.CaseID)
	}
	prev, err := s.store.GetConversationState(ctx, userID)
	if err != nil {
		s.logger.Warn("read state before priming failed", "user_id", userID, "err", err)
	}
	if err := s.store.SetConversationState(ctx, userID, next); err != nil {
		return fmt.Errorf("usecase: prime conversation: %w", err)
	}
	metrics.Transition(prev.Step.String(), next.Step.String())
	return nil
}

func (s *ConversationService) handleInput(ctx context.Context, ev domain.Event, in dialog.Input) error {
	state, err := s.store.GetConversationState(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("usecase: load conversation state: %w", err)
	}

	d := s.machine.Decide(state, in)
	s.logger.Debug("dialog decision", "user_id", ev.UserID, "step", state.Step.String(), "action", d.Action)

	if d.Next != nil {
		if err := s.store.SetConversationState(ctx, ev.UserID, *d.Next); err != nil {
			return fmt.Errorf("usecase: save conversation state: %w", err)
		}
		if d.Transitioned(state.Step) {
			metrics.Transition(state.Step.String(), d.Next.Step.String())
		}
	}

	if d.Handoff {
		content := in.Text
		if in.Kind == dialog.InputImage {
			content = "[image]"
		}
		s.logger.Warn("manual action required",
			"action", d.Action,
			"user_id", ev.UserID,
			"case_id", state.CaseID,
			"content", content,
		)
	}

	msgs, err := s.render(ctx, ev.UserID, d)
	if err != nil {
		return err
	}
	s.reply(ctx, ev.ReplyToken, msgs)
	return nil
}

// render builds the reply for d, loading stored data for the actions
// that need it.
func (s *ConversationService) render(ctx context.Context, userID string, d dialog.Decision) ([]messaging_api.MessageInterface, error) {
	switch d.Action {
	case dialog.ActionShowHistory:
		refs, err := s.store.GetUserCases(ctx, userID, s.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("usecase: load case index: %w", err)
		}
		return s.composer.History(refs), nil

	case dialog.ActionSelectCase:
		refs, err := s.store.GetUserCases(ctx, userID, s.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("usecase: load case index: %w", err)
		}
		if d.Index < 1 || d.Index > len(refs) {
			return s.composer.InvalidSelection(), nil
		}
		ref := refs[d.Index-1]
		if err := s.store.SetActiveCase(ctx, userID, ref.CaseID); err != nil {
			return nil, fmt.Errorf("usecase: select case: %w", err)
		}
		return s.composer.Selected(ref), nil

	case dialog.ActionShowDetail:
		c, err := s.store.GetActiveCase(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("usecase: load active case: %w", err)
		}
		if c == nil {
			return s.composer.NoActiveCase(), nil
		}
		return s.composer.Detail(c.Result), nil

	default:
		return s.composer.Prompt(d.Action), nil
	}
}

func (s *ConversationService) reply(ctx context.Context, replyToken string, msgs []messaging_api.MessageInterface) {
	if len(msgs) == 0 {
		return
	}
	if err := s.sender.Reply(ctx, replyToken, msgs); err != nil {
		metrics.OutboundFailure("reply")
		s.logger.Error("reply failed", "err", err)
	}
}

func (s *ConversationService) push(ctx context.Context, userID, retryKey string, msgs []messaging_api.MessageInterface) {
	if len(msgs) == 0 {
		return
	}
	if err := s.sender.Push(ctx, userID, retryKey, msgs); err != nil {
		metrics.OutboundFailure("push")
		s.logger.Error("push failed", "user_id", userID, "err", err)
	}
}

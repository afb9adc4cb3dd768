package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ychihi393/chintai-checker-final/internal/domain"
	"github.com/ychihi393/chintai-checker-final/internal/metrics"
	"github.com/ychihi393/chintai-checker-final/internal/repository"
)

// CaseLinker is the slice of repository.CaseStore used by the link flow.
type CaseLinker interface {
	ConsumeToken(ctx context.Context, token string) (string, error)
	LinkCaseToUser(ctx context.Context, caseID, userID string) (*domain.Case, error)
	SetActiveCase(ctx context.Context, userID, caseID string) error
}

// TokenVerifier resolves a LINE Login access token to a user id.
// *line.LoginVerifier satisfies it.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, accessToken string) (string, error)
}

// Announcer tells a user about a case that was just linked.
// *ConversationService satisfies it.
type Announcer interface {
	Announce(ctx context.Context, userID string, c domain.Case, linkID string) error
}

type LinkService struct {
	store     CaseLinker
	verifier  TokenVerifier
	announcer Announcer
	logger    *slog.Logger
}

type LinkInput struct {
	AccessToken string
	CaseToken   string
}

type LinkOutput struct {
	CaseID string
}

func NewLinkService(store CaseLinker, verifier TokenVerifier, announcer Announcer, logger *slog.Logger) (*LinkService, error) {
	if store == nil {
		return nil, errors.New("usecase: case store must not be nil")
	}
	if verifier == nil {
		return nil, errors.New("usecase: token verifier must not be nil")
	}
	if announcer == nil {
		return nil, errors.New("usecase: announcer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkService{store: store, verifier: verifier, announcer: announcer, logger: logger}, nil
}

// Link exchanges a one-time case token for a binding between the case and
// the LINE user behind accessToken. The access token is verified before the
// case token is consumed, so a failed login leaves the token usable.
func (s *LinkService) Link(ctx context.Context, in LinkInput) (LinkOutput, error) {
	accessToken := strings.TrimSpace(in.AccessToken)
	if accessToken == "" {
		metrics.CaseLink("unauthorized")
		return LinkOutput{}, newError(ErrorUnauthorized, "missing_access_token", nil)
	}
	caseToken := strings.TrimSpace(in.CaseToken)
	if caseToken == "" {
		metrics.CaseLink("invalid_input")
		return LinkOutput{}, newError(ErrorInvalidInput, "missing_case_token", nil)
	}

	userID, err := s.verifier.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		metrics.CaseLink("auth_failed")
		return LinkOutput{}, verifyError(err)
	}

	caseID, err := s.store.ConsumeToken(ctx, caseToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.CaseLink("expired")
			return LinkOutput{}, newError(ErrorTokenExpired, "case_token_not_found", err)
		}
		metrics.CaseLink("error")
		return LinkOutput{}, newError(ErrorInternal, "consume_token_error", err)
	}

	c, err := s.store.LinkCaseToUser(ctx, caseID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			metrics.CaseLink("expired")
			return LinkOutput{}, newError(ErrorTokenExpired, "case_not_found", err)
		case errors.Is(err, repository.ErrAlreadyLinked):
			metrics.CaseLink("conflict")
			return LinkOutput{}, newError(ErrorInternal, "case_linked_to_other_user", err)
		default:
			metrics.CaseLink("error")
			return LinkOutput{}, newError(ErrorInternal, "link_case_error", err)
		}
	}
	if err := s.store.SetActiveCase(ctx, userID, caseID); err != nil {
		metrics.CaseLink("error")
		return LinkOutput{}, newError(ErrorInternal, "set_active_case_error", err)
	}

	metrics.CaseLink("linked")
	s.logger.Info("case linked", "case_id", caseID, "user_id", userID)

	if err := s.announcer.Announce(ctx, userID, *c, caseToken); err != nil {
		s.logger.Error("announce linked case failed", "case_id", caseID, "user_id", userID, "err", err)
	}
	return LinkOutput{CaseID: caseID}, nil
}

// verifyError classifies a login verification failure: a rejection by the
// platform is AUTH_FAILED, an outage or unreachable endpoint is UPSTREAM.
func verifyError(err error) *Error {
	if status, ok := upstreamStatusCode(err); ok {
		if status >= 500 {
			return newError(ErrorUpstream, "login_verify_unavailable", err)
		}
		return newError(ErrorAuthFailed, "login_verify_rejected", err)
	}
	var transportErr *url.Error
	if errors.As(err, &transportErr) {
		return newError(ErrorUpstream, "login_verify_unreachable", err)
	}
	return newError(ErrorAuthFailed, "login_verify_failed", err)
}

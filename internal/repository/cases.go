package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ychihi393/chintai-checker-final/internal/domain"
)

const (
	defaultCaseTTL      = 30 * 24 * time.Hour
	defaultTokenTTL     = 30 * time.Minute
	defaultStateTTL     = 7 * 24 * time.Hour
	defaultEventTTL     = 24 * time.Hour
	defaultIndexLimit   = 5
	caseKeyPrefix       = "case:"
	tokenKeyPrefix      = "case_token:"
	userCasesKeyPrefix  = "user_cases:"
	activeCaseKeyPrefix = "active_case:"
	stateKeyPrefix      = "conv_state:"
	eventKeyPrefix      = "webhook_event:"
)

func caseKey(caseID string) string { return caseKeyPrefix + caseID }
func tokenKey(token string) string { return tokenKeyPrefix + token }
func userCasesKey(userID string) string { return userCasesKeyPrefix + userID }
func activeCaseKey(userID string) string { return activeCaseKeyPrefix + userID }
func stateKey(userID string) string { return stateKeyPrefix + userID }
func eventKey(eventID string) string { return eventKeyPrefix + eventID }

// CaseStore keeps cases, link tokens, per-user case indices, active-case
// pointers and conversation state in a KV backend.
type CaseStore struct {
	kv         KV
	caseTTL    time.Duration
	tokenTTL   time.Duration
	stateTTL   time.Duration
	eventTTL   time.Duration
	indexLimit int
	now        func() time.Time
	newToken   func() string
}

type Option func(*CaseStore)

func WithCaseTTL(d time.Duration) Option { return func(s *CaseStore) { s.caseTTL = d } }
func WithTokenTTL(d time.Duration) Option { return func(s *CaseStore) { s.tokenTTL = d } }
func WithStateTTL(d time.Duration) Option { return func(s *CaseStore) { s.stateTTL = d } }
func WithEventTTL(d time.Duration) Option { return func(s *CaseStore) { s.eventTTL = d } }
func WithIndexLimit(n int) Option { return func(s *CaseStore) { s.indexLimit = n } }
func WithClock(now func() time.Time) Option { return func(s *CaseStore) { s.now = now } }

func NewCaseStore(kv KV, opts ...Option) (*CaseStore, error) {
	if kv == nil {
		return nil, errors.New("repository: kv must not be nil")
	}
	s := &CaseStore{
		kv:         kv,
		caseTTL:    defaultCaseTTL,
		tokenTTL:   defaultTokenTTL,
		stateTTL:   defaultStateTTL,
		eventTTL:   defaultEventTTL,
		indexLimit: defaultIndexLimit,
		now:        time.Now,
		newToken:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.indexLimit <= 0 {
		return nil, errors.New("repository: index limit must be positive")
	}
	return s, nil
}

// IndexLimit is the maximum number of entries kept per user case index.
func (s *CaseStore) IndexLimit() int {
	return s.indexLimit
}

// ---- Cases ----

func (s *CaseStore) SaveCase(ctx context.Context, c domain.Case) error {
	if strings.TrimSpace(c.CaseID) == "" {
		return errors.New("repository: SaveCase: case id is required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if err := s.putJSON(ctx, caseKey(c.CaseID), c, s.caseTTL); err != nil {
		return fmt.Errorf("repository: SaveCase: %w", err)
	}
	return nil
}

// GetCase returns nil, nil when the case does not exist or has expired.
func (s *CaseStore) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	var c domain.Case
	found, err := s.getJSON(ctx, caseKey(caseID), &c)
	if err != nil {
		return nil, fmt.Errorf("repository: GetCase: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// ---- Tokens ----

// IssueToken mints a one-time link token for caseID.
func (s *CaseStore) IssueToken(ctx context.Context, caseID string) (string, error) {
	if strings.TrimSpace(caseID) == "" {
		return "", errors.New("repository: IssueToken: case id is required")
	}
	token := s.newToken()
	ok, err := s.kv.PutIfAbsent(ctx, tokenKey(token), []byte(caseID), s.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("repository: IssueToken: %w", err)
	}
	if !ok {
		return "", errors.New("repository: IssueToken: token collision")
	}
	return token, nil
}

// ConsumeToken resolves token to its case id exactly once. A missing,
// expired or already consumed token returns ErrNotFound.
func (s *CaseStore) ConsumeToken(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNotFound
	}
	v, err := s.kv.Take(ctx, tokenKey(token))
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("repository: ConsumeToken: %w", err)
	}
	return string(v), nil
}

// ---- Linking and the user case index ----

// LinkCaseToUser records userID on the case and moves the case to the front
// of the user's index. Repeating the call for the same pair is a no-op apart
// from refreshing LinkedAt.
func (s *CaseStore) LinkCaseToUser(ctx context.Context, caseID, userID string) (*domain.Case, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("repository: LinkCaseToUser: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("repository: LinkCaseToUser: case %q: %w", caseID, ErrNotFound)
	}
	switch c.LineUserID {
	case userID:
	case "":
		c.LineUserID = userID
		if err := s.putJSON(ctx, caseKey(caseID), c, s.caseTTL); err != nil {
			return nil, fmt.Errorf("repository: LinkCaseToUser save case: %w", err)
		}
	default:
		return nil, ErrAlreadyLinked
	}

	refs, err := s.GetUserCases(ctx, userID, s.indexLimit)
	if err != nil {
		return nil, fmt.Errorf("repository: LinkCaseToUser: %w", err)
	}
	next := make([]domain.CaseRef, 0, s.indexLimit)
	next = append(next, domain.CaseRef{
		CaseID:       c.CaseID,
		DisplayTitle: c.DisplayTitle(),
		LinkedAt:     s.now().UTC(),
	})
	for _, r := range refs {
		if r.CaseID == c.CaseID {
			continue
		}
		if len(next) == s.indexLimit {
			break
		}
		next = append(next, r)
	}
	if err := s.putJSON(ctx, userCasesKey(userID), next, s.caseTTL); err != nil {
		return nil, fmt.Errorf("repository: LinkCaseToUser save index: %w", err)
	}
	return c, nil
}

// GetUserCases returns up to limit entries, most recent first.
func (s *CaseStore) GetUserCases(ctx context.Context, userID string, limit int) ([]domain.CaseRef, error) {
	var refs []domain.CaseRef
	if _, err := s.getJSON(ctx, userCasesKey(userID), &refs); err != nil {
		return nil, fmt.Errorf("repository: GetUserCases: %w", err)
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// ---- Active case ----

func (s *CaseStore) SetActiveCase(ctx context.Context, userID, caseID string) error {
	if err := s.kv.Put(ctx, activeCaseKey(userID), []byte(caseID), s.caseTTL); err != nil {
		return fmt.Errorf("repository: SetActiveCase: %w", err)
	}
	return nil
}

// GetActiveCase returns nil, nil when no pointer exists or the case is gone.
func (s *CaseStore) GetActiveCase(ctx context.Context, userID string) (*domain.Case, error) {
	v, err := s.kv.Get(ctx, activeCaseKey(userID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: GetActiveCase: %w", err)
	}
	return s.GetCase(ctx, string(v))
}

// ---- Conversation state ----

// GetConversationState returns the zero state (StepUnset) when none is stored.
func (s *CaseStore) GetConversationState(ctx context.Context, userID string) (domain.ConversationState, error) {
	var st domain.ConversationState
	if _, err := s.getJSON(ctx, stateKey(userID), &st); err != nil {
		return domain.ConversationState{}, fmt.Errorf("repository: GetConversationState: %w", err)
	}
	return st, nil
}

func (s *CaseStore) SetConversationState(ctx context.Context, userID string, st domain.ConversationState) error {
	if st.Step != domain.StepUnset && st.CaseID == "" {
		return fmt.Errorf("repository: SetConversationState: step %s requires a case id", st.Step)
	}
	st.UpdatedAt = s.now().UTC()
	if err := s.putJSON(ctx, stateKey(userID), st, s.stateTTL); err != nil {
		return fmt.Errorf("repository: SetConversationState: %w", err)
	}
	return nil
}

// ---- Webhook event claims ----

// ClaimEvent records eventID and reports whether this caller is the first.
func (s *CaseStore) ClaimEvent(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.kv.PutIfAbsent(ctx, eventKey(eventID), []byte(s.now().UTC().Format(time.RFC3339)), s.eventTTL)
	if err != nil {
		return false, fmt.Errorf("repository: ClaimEvent: %w", err)
	}
	return ok, nil
}

// ReleaseEvent forgets a claim so a redelivery is processed again.
func (s *CaseStore) ReleaseEvent(ctx context.Context, eventID string) error {
	if err := s.kv.Delete(ctx, eventKey(eventID)); err != nil {
		return fmt.Errorf("repository: ReleaseEvent: %w", err)
	}
	return nil
}

func (s *CaseStore) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.kv.Put(ctx, key, raw, ttl)
}

func (s *CaseStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

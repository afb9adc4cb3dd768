package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultLoginBaseURL = "https://api.line.me"

// verifyResponse is the body of GET /oauth2/v2.1/verify.
type verifyResponse struct {
	Scope     string `json:"scope"`
	ClientID  string `json:"client_id"`
	ExpiresIn int64  `json:"expires_in"`
}

// profileResponse is the minimal body of GET /v2/profile.
type profileResponse struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// HTTPStatusError captures non-2xx responses from the LINE platform.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("line: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ErrChannelMismatch is returned when a valid access token was issued to a
// different LINE Login channel.
var ErrChannelMismatch = errors.New("line: access token issued for another channel")

// LoginVerifier resolves a LIFF / LINE Login access token to the LINE user
// id it was issued for.
type LoginVerifier struct {
	baseURL    string
	httpClient *http.Client
	channelID  string
}

type LoginOption func(*LoginVerifier)

func WithLoginBaseURL(baseURL string) LoginOption {
	return func(v *LoginVerifier) { v.baseURL = strings.TrimSpace(baseURL) }
}

func WithLoginHTTPClient(httpClient *http.Client) LoginOption {
	return func(v *LoginVerifier) { v.httpClient = httpClient }
}

// WithChannelID rejects tokens whose client_id differs from channelID.
func WithChannelID(channelID string) LoginOption {
	return func(v *LoginVerifier) { v.channelID = strings.TrimSpace(channelID) }
}

func NewLoginVerifier(opts ...LoginOption) *LoginVerifier {
	v := &LoginVerifier{
		baseURL:    defaultLoginBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *LoginVerifier) resolvedHTTPClient() *http.Client {
	if v.httpClient != nil {
		return v.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (v *LoginVerifier) endpoint(path string) string {
	base := strings.TrimRight(v.baseURL, "/")
	if base == "" {
		base = defaultLoginBaseURL
	}
	return base + path
}

// VerifyAccessToken checks the token with the platform and returns the
// user id from the profile endpoint.
func (v *LoginVerifier) VerifyAccessToken(ctx context.Context, accessToken string) (string, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", errors.New("line: access token must not be empty")
	}

	verifyURL := v.endpoint("/oauth2/v2.1/verify") + "?access_token=" + url.QueryEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, verifyURL, nil)
	if err != nil {
		return "", fmt.Errorf("line: create verify request: %w", err)
	}
	// Errors record the URL without the token.
	raw, err := v.doJSONRequest(req, v.endpoint("/oauth2/v2.1/verify"))
	if err != nil {
		return "", fmt.Errorf("line: verify access token: %w", err)
	}
	var verified verifyResponse
	if err := json.Unmarshal(raw, &verified); err != nil {
		return "", fmt.Errorf("line: decode verify response: %w", err)
	}
	if verified.ExpiresIn <= 0 {
		return "", &HTTPStatusError{StatusCode: http.StatusUnauthorized, URL: v.endpoint("/oauth2/v2.1/verify"), Body: "token expired"}
	}
	if v.channelID != "" && verified.ClientID != v.channelID {
		return "", ErrChannelMismatch
	}

	profileURL := v.endpoint("/v2/profile")
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return "", fmt.Errorf("line: create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	raw, err = v.doJSONRequest(req, profileURL)
	if err != nil {
		return "", fmt.Errorf("line: get profile: %w", err)
	}
	var profile profileResponse
	if err := json.Unmarshal(raw, &profile); err != nil {
		return "", fmt.Errorf("line: decode profile response: %w", err)
	}
	if profile.UserID == "" {
		return "", errors.New("line: profile has no user id")
	}
	return profile.UserID, nil
}

func (v *LoginVerifier) doJSONRequest(req *http.Request, target string) ([]byte, error) {
	res, doErr := v.resolvedHTTPClient().Do(req)
	if doErr != nil {
		var ue *url.Error
		if errors.As(doErr, &ue) {
			return nil, &url.Error{Op: ue.Op, URL: target, Err: ue.Err}
		}
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

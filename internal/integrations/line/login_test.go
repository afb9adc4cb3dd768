package line

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type loginServer struct {
	mu            sync.Mutex
	verifyStatus  int
	verifyBody    string
	profileStatus int
	profileBody   string
	verifyCalls   int
	profileCalls  int
	gotToken      string
	gotAuth       string
}

func (s *loginServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v2.1/verify", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.verifyCalls++
		s.gotToken = r.URL.Query().Get("access_token")
		w.WriteHeader(s.verifyStatus)
		_, _ = w.Write([]byte(s.verifyBody))
	})
	mux.HandleFunc("/v2/profile", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.profileCalls++
		s.gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(s.profileStatus)
		_, _ = w.Write([]byte(s.profileBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (s *loginServer) profileHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileCalls
}

func okServer() *loginServer {
	return &loginServer{
		verifyStatus:  http.StatusOK,
		verifyBody:    `{"scope":"profile openid","client_id":"1650000000","expires_in":2591659}`,
		profileStatus: http.StatusOK,
		profileBody:   `{"userId":"U4af4980629","displayName":"Taro"}`,
	}
}

func TestVerifyAccessToken_HappyPath(t *testing.T) {
	s := okServer()
	srv := s.start(t)
	v := NewLoginVerifier(WithLoginBaseURL(srv.URL), WithChannelID("1650000000"))

	uid, err := v.VerifyAccessToken(context.Background(), "tok en")
	require.NoError(t, err)
	require.Equal(t, "U4af4980629", uid)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Equal(t, "tok en", s.gotToken)
	require.Equal(t, "Bearer tok en", s.gotAuth)
}

func TestVerifyAccessToken_InvalidToken(t *testing.T) {
	s := okServer()
	s.verifyStatus = http.StatusBadRequest
	s.verifyBody = `{"error":"invalid_request","error_description":"access token expired"}`
	srv := s.start(t)
	v := NewLoginVerifier(WithLoginBaseURL(srv.URL))

	_, err := v.VerifyAccessToken(context.Background(), "expired")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.HTTPStatusCode())
	require.NotContains(t, statusErr.URL, "expired")
	require.Zero(t, s.profileHits())
}

func TestVerifyAccessToken_ChannelMismatch(t *testing.T) {
	s := okServer()
	srv := s.start(t)
	v := NewLoginVerifier(WithLoginBaseURL(srv.URL), WithChannelID("999"))

	_, err := v.VerifyAccessToken(context.Background(), "tok")
	require.ErrorIs(t, err, ErrChannelMismatch)
	require.Zero(t, s.profileHits())
}

func TestVerifyAccessToken_NoExpiry(t *testing.T) {
	s := okServer()
	s.verifyBody = `{"scope":"profile","client_id":"1","expires_in":0}`
	srv := s.start(t)
	v := NewLoginVerifier(WithLoginBaseURL(srv.URL))

	_, err := v.VerifyAccessToken(context.Background(), "tok")
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestVerifyAccessToken_ProfileFailure(t *testing.T) {
	s := okServer()
	s.profileStatus = http.StatusInternalServerError
	s.profileBody = `oops`
	srv := s.start(t)
	v := NewLoginVerifier(WithLoginBaseURL(srv.URL))

	_, err := v.VerifyAccessToken(context.Background(), "tok")
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.Equal(t, "oops", statusErr.Body)
}

func TestVerifyAccessToken_MissingUserID(t *testing.T) {
	s := okServer()
	s.profileBody = `{"displayName":"x"}`
	srv := s.start(t)
	v := NewLoginVerifier(WithLoginBaseURL(srv.URL))

	_, err := v.VerifyAccessToken(context.Background(), "tok")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no user id")
}

func TestVerifyAccessToken_EmptyToken(t *testing.T) {
	v := NewLoginVerifier()
	_, err := v.VerifyAccessToken(context.Background(), " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestEndpoint_DefaultsAndTrims(t *testing.T) {
	require.Equal(t, "https://api.line.me/v2/profile", NewLoginVerifier().endpoint("/v2/profile"))
	require.Equal(t, "http://x/v2/profile", NewLoginVerifier(WithLoginBaseURL("http://x/")).endpoint("/v2/profile"))
	require.Equal(t, "https://api.line.me/v2/profile", (&LoginVerifier{}).endpoint("/v2/profile"))
}

func TestVerifyAccessToken_TransportErrorOmitsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	v := NewLoginVerifier(WithLoginBaseURL(base))
	_, err := v.VerifyAccessToken(context.Background(), "SECRET-ACCESS-TOKEN")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "SECRET-ACCESS-TOKEN")
	require.NotContains(t, err.Error(), "access_token")

	var ue *url.Error
	require.True(t, errors.As(err, &ue))
	require.Equal(t, base+"/oauth2/v2.1/verify", ue.URL)
}

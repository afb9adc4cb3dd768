package main

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ychihi393/chintai-checker-final/internal/metrics"
)

type recordedProxy struct {
	req  events.APIGatewayProxyRequest
	resp events.APIGatewayProxyResponse
	err  error
}

func (r *recordedProxy) handle(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	r.req = req
	return r.resp, r.err
}

func TestProxyHandler_TranslatesRequest(t *testing.T) {
	rec := &recordedProxy{resp: events.APIGatewayProxyResponse{
		StatusCode: http.StatusCreated,
		Headers:    map[string]string{"Content-Type": "application/json", "X-Correlation-Id": "c-1"},
		Body:       `{"success":true}`,
	}}
	srv := httptest.NewServer(proxyHandler(rec.handle))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/line/link?debug=1", strings.NewReader(`{"caseToken":"t"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer at")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.MethodPost, rec.req.HTTPMethod)
	require.Equal(t, "/api/line/link", rec.req.Path)
	require.Equal(t, "Bearer at", rec.req.Headers["Authorization"])
	require.Equal(t, "1", rec.req.QueryStringParameters["debug"])
	require.Equal(t, `{"caseToken":"t"}`, rec.req.Body)
	require.False(t, rec.req.IsBase64Encoded)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "c-1", resp.Header.Get("X-Correlation-Id"))
	require.Equal(t, `{"success":true}`, string(body))
}

func TestProxyHandler_BinaryBodyIsBase64(t *testing.T) {
	rec := &recordedProxy{}
	payload := []byte{0xff, 0xfe, 0x00, 0x01}

	r := httptest.NewRequest(http.MethodPost, "/line/webhook", strings.NewReader(string(payload)))
	w := httptest.NewRecorder()
	proxyHandler(rec.handle).ServeHTTP(w, r)

	require.True(t, rec.req.IsBase64Encoded)
	decoded, err := base64.StdEncoding.DecodeString(rec.req.Body)
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProxyHandler_Errors(t *testing.T) {
	t.Run("handler error", func(t *testing.T) {
		rec := &recordedProxy{err: errors.New("boom")}
		w := httptest.NewRecorder()
		proxyHandler(rec.handle).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/line/webhook", nil))
		require.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		rec := &recordedProxy{}
		big := strings.Repeat("a", maxRequestBody+1)
		w := httptest.NewRecorder()
		proxyHandler(rec.handle).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/line/webhook", strings.NewReader(big)))
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		require.Empty(t, rec.req.Path)
	})

	t.Run("base64 response", func(t *testing.T) {
		rec := &recordedProxy{resp: events.APIGatewayProxyResponse{
			StatusCode:      http.StatusOK,
			Body:            base64.StdEncoding.EncodeToString([]byte("raw")),
			IsBase64Encoded: true,
		}}
		w := httptest.NewRecorder()
		proxyHandler(rec.handle).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, "raw", w.Body.String())
	})
}

func TestServeMux_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.RegisterMetrics(reg)
	metrics.CaseLink("linked")

	rec := &recordedProxy{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "{}"}}
	mux := newServeMux(rec.handle, reg)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "chintai_case_links_total")
	require.Empty(t, rec.req.Path)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/line/webhook", strings.NewReader("{}")))
	require.Equal(t, "/line/webhook", rec.req.Path)
}

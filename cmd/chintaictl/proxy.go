package main

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

const maxRequestBody = 1 << 20

type proxyFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// proxyHandler serves fn over plain HTTP by translating to and from the
// API Gateway proxy shapes the Lambda entry point receives.
func proxyHandler(fn proxyFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := toProxyRequest(r)
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		resp, err := fn(r.Context(), req)
		if err != nil {
			slog.Error("proxy handler failed", "path", r.URL.Path, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeProxyResponse(w, resp)
	})
}

func toProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}
	if len(body) > maxRequestBody {
		return events.APIGatewayProxyRequest{}, io.ErrShortBuffer
	}

	req := events.APIGatewayProxyRequest{
		HTTPMethod:        r.Method,
		Path:              r.URL.Path,
		Headers:           make(map[string]string, len(r.Header)),
		MultiValueHeaders: make(map[string][]string, len(r.Header)),
	}
	for k, vs := range r.Header {
		if len(vs) > 0 {
			req.Headers[k] = vs[0]
		}
		req.MultiValueHeaders[k] = vs
	}
	if q := r.URL.Query(); len(q) > 0 {
		req.QueryStringParameters = make(map[string]string, len(q))
		req.MultiValueQueryStringParameters = q
		for k, vs := range q {
			req.QueryStringParameters[k] = vs[0]
		}
	}
	if utf8.Valid(body) {
		req.Body = string(body)
	} else {
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
	}
	return req, nil
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			slog.Error("proxy response body is not base64", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		body = decoded
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

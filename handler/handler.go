// Package handler adapts API Gateway proxy requests to the link and webhook
// services.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/ychihi393/chintai-checker-final/internal/integrations/line"
	"github.com/ychihi393/chintai-checker-final/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

const (
	webhookPath = "/line/webhook"
	linkPath    = "/line/link"
)

type Linker interface {
	Link(ctx context.Context, in usecase.LinkInput) (usecase.LinkOutput, error)
}

type WebhookProcessor interface {
	Process(ctx context.Context, body []byte, signature string) (usecase.WebhookResult, error)
}

type linkRequest struct {
	CaseToken string `json:"caseToken"`
}

type linkResponse struct {
	Success bool   `json:"success"`
	CaseID  string `json:"caseId"`
}

type webhookResponse struct {
	Success   bool   `json:"success"`
	Processed *int   `json:"processed,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// User-facing messages for link failures.
const (
	msgUnauthorized = "認証が必要です"
	msgMissingToken = "caseTokenが必要です"
	msgTokenExpired = "リンクの有効期限が切れました。診断画面に戻ってもう一度お試しください。"
	msgAuthFailed   = "認証に失敗しました。もう一度お試しください。"
	msgUpstream     = "LINEとの通信に失敗しました。しばらくしてからもう一度お試しください。"
	msgInternal     = "LINEとの連携に失敗しました"
)

type Handler struct {
	linker  Linker
	webhook WebhookProcessor
	logger  *slog.Logger
}

func NewHandler(linker Linker, webhook WebhookProcessor, logger *slog.Logger) (*Handler, error) {
	if linker == nil {
		return nil, errors.New("handler: linker must not be nil")
	}
	if webhook == nil {
		return nil, errors.New("handler: webhook processor must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{linker: linker, webhook: webhook, logger: logger}, nil
}

// Handle routes one API Gateway proxy request. It never returns an error:
// every failure becomes a response.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, _ error) {
	corrID := strings.TrimSpace(header(req, correlationHeader))
	if corrID == "" {
		corrID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "panic", fmt.Sprint(r))
			resp = jsonResponse(http.StatusInternalServerError, errorResponse{Error: msgInternal})
			resp.Headers[correlationHeader] = corrID
		}
	}()

	switch routePath(req.Path) {
	case webhookPath:
		switch req.HTTPMethod {
		case http.MethodPost:
			resp = h.guaranteedResponse(ctx, logger, req)
		case http.MethodGet:
			resp = jsonResponse(http.StatusOK, webhookResponse{Success: true, Status: "ready"})
		default:
			resp = methodNotAllowed(http.MethodGet, http.MethodPost)
		}
	case linkPath:
		if req.HTTPMethod != http.MethodPost {
			resp = methodNotAllowed(http.MethodPost)
			break
		}
		resp = h.handleLink(ctx, logger, req)
	default:
		resp = jsonResponse(http.StatusNotFound, errorResponse{Error: "not found"})
	}

	resp.Headers[correlationHeader] = corrID
	return resp, nil
}

// guaranteedResponse processes a webhook delivery and always answers 200 so
// the platform does not redeliver on application errors.
func (h *Handler) guaranteedResponse(ctx context.Context, logger *slog.Logger, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("webhook panic", "panic", fmt.Sprint(r))
			resp = jsonResponse(http.StatusOK, webhookResponse{Error: "Webhook processing failed"})
		}
	}()

	body, err := rawBody(req)
	if err != nil {
		logger.Warn("webhook body not decodable", "err", err)
		return jsonResponse(http.StatusOK, webhookResponse{Error: "Invalid body"})
	}

	res, err := h.webhook.Process(ctx, body, header(req, line.SignatureHeader))
	if err != nil {
		var ue *usecase.Error
		if errors.As(err, &ue) && ue.Code == usecase.ErrorInvalidSignature {
			logger.Warn("webhook rejected", "reason", ue.Reason)
			return jsonResponse(http.StatusOK, webhookResponse{Error: "Invalid signature"})
		}
		logger.Error("webhook processing failed", "err", err)
		return jsonResponse(http.StatusOK, webhookResponse{Error: "Webhook processing failed"})
	}

	logger.Info("webhook processed",
		"events", res.Events,
		"processed", res.Processed,
		"duplicates", res.Duplicates,
		"failed", res.Failed,
	)
	processed := res.Processed
	return jsonResponse(http.StatusOK, webhookResponse{Success: true, Processed: &processed})
}

func (h *Handler) handleLink(ctx context.Context, logger *slog.Logger, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	in := usecase.LinkInput{AccessToken: bearerToken(header(req, "Authorization"))}

	body, err := rawBody(req)
	if err == nil && len(body) > 0 {
		var lr linkRequest
		if err := json.Unmarshal(body, &lr); err != nil {
			logger.Info("link body is not valid JSON", "err", err)
		}
		in.CaseToken = lr.CaseToken
	}

	out, err := h.linker.Link(ctx, in)
	if err != nil {
		status, msg := linkErrorStatus(err)
		code := usecase.CodeOf(err)
		if status >= http.StatusInternalServerError {
			logger.Error("link failed", "code", code, "err", err)
		} else {
			logger.Info("link rejected", "code", code, "err", err)
		}
		return jsonResponse(status, errorResponse{Error: msg, Code: string(code)})
	}
	return jsonResponse(http.StatusOK, linkResponse{Success: true, CaseID: out.CaseID})
}

func linkErrorStatus(err error) (int, string) {
	switch usecase.CodeOf(err) {
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized, msgUnauthorized
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, msgMissingToken
	case usecase.ErrorTokenExpired:
		return http.StatusBadRequest, msgTokenExpired
	case usecase.ErrorAuthFailed:
		return http.StatusUnauthorized, msgAuthFailed
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, msgUpstream
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// bearerToken returns the credentials of a Bearer authorization value, or
// "" for any other scheme.
func bearerToken(v string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// header looks name up case-insensitively in the single- and multi-value
// header maps.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// rawBody returns the exact bytes the client sent.
func rawBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, fmt.Errorf("handler: decode base64 body: %w", err)
	}
	return b, nil
}

// routePath accepts both /line/... and the /api/line/... form used by the
// web front end, with or without a trailing slash.
func routePath(p string) string {
	p = strings.TrimRight(p, "/")
	return strings.TrimPrefix(p, "/api")
}

func methodNotAllowed(allowed ...string) events.APIGatewayProxyResponse {
	resp := jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	resp.Headers["Allow"] = strings.Join(allowed, ", ")
	return resp
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/ychihi393/chintai-checker-final/handler"
	dialogconfig "github.com/ychihi393/chintai-checker-final/internal/config"
	"github.com/ychihi393/chintai-checker-final/internal/integrations/line"
	"github.com/ychihi393/chintai-checker-final/internal/integrations/paramstore"
	"github.com/ychihi393/chintai-checker-final/internal/repository"
	"github.com/ychihi393/chintai-checker-final/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Logging ----
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	})))

	// ---- Configuration (read only here) ----
	backend, err := repository.ParseBackend(os.Getenv("STORE_BACKEND"))
	if err != nil {
		slog.Error("invalid STORE_BACKEND", "err", err)
		os.Exit(1)
	}
	paramPrefix := mustEnv("PARAM_PREFIX")
	historyLimit := envInt("HISTORY_LIMIT", 0)
	loginChannelID := os.Getenv("LINE_LOGIN_CHANNEL_ID")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Storage ----
	settings := repository.OpenSettings{
		Backend:     backend,
		AWS:         &cfg,
		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
	if backend == repository.BackendDynamoDB {
		settings.StateTable = mustEnv("STATE_TABLE")
	}
	kv, closeKV, err := repository.Open(ctx, settings)
	if err != nil {
		slog.Error("failed to open state store", "backend", backend, "err", err)
		os.Exit(1)
	}
	defer closeKV()

	dialog, err := dialogconfig.Load(os.Getenv("DIALOG_CONFIG"))
	if err != nil {
		slog.Error("failed to load dialog config", "err", err)
		os.Exit(1)
	}
	if historyLimit > 0 {
		dialog.HistoryLimit = historyLimit
	}

	store, err := repository.NewCaseStore(kv, repository.WithIndexLimit(dialog.HistoryLimit))
	if err != nil {
		slog.Error("failed to create case store", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	creds, err := paramstore.LoadChannelCredentials(ctx, ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to load LINE channel credentials", "err", err)
		os.Exit(1)
	}
	sender, err := line.NewSender(creds.AccessToken)
	if err != nil {
		slog.Error("failed to create LINE sender", "err", err)
		os.Exit(1)
	}
	verifier := line.NewLoginVerifier(line.WithChannelID(loginChannelID))

	// ---- Services ----
	conversation, err := usecase.NewConversationService(store, sender, dialog, nil)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}
	linkService, err := usecase.NewLinkService(store, verifier, conversation, nil)
	if err != nil {
		slog.Error("failed to create link service", "err", err)
		os.Exit(1)
	}
	webhookService, err := usecase.NewWebhookService(creds.Secret, store, conversation, nil)
	if err != nil {
		slog.Error("failed to create webhook service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(linkService, webhookService, nil)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	slog.Info("starting", "backend", backend, "history_limit", dialog.HistoryLimit)
	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

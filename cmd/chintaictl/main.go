// Package main provides chintaictl, the operator CLI for the LINE hand-off
// service: a local server, case seeding and state inspection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	dialogconfig "github.com/ychihi393/chintai-checker-final/internal/config"
	"github.com/ychihi393/chintai-checker-final/internal/repository"
)

const defaultSQLitePath = "data/chintai.db"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags. Empty values fall back to the
// environment after .env has been loaded.
type globalOptions struct {
	envFile      string
	store        string
	dsn          string
	redisURL     string
	stateTable   string
	dialogConfig string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "chintaictl",
		Short:         "Operate the rental cost diagnosis LINE hand-off",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.StringVar(&opts.store, "store", "", "store backend: sqlite, postgres, redis, dynamodb or memory (env STORE_BACKEND, default sqlite)")
	f.StringVar(&opts.dsn, "dsn", "", "SQL DSN (env DATABASE_URL, default "+defaultSQLitePath+")")
	f.StringVar(&opts.redisURL, "redis-url", "", "Redis URL (env REDIS_URL)")
	f.StringVar(&opts.stateTable, "table", "", "DynamoDB table (env STATE_TABLE)")
	f.StringVar(&opts.dialogConfig, "dialog-config", "", "dialog YAML merged over the defaults (env DIALOG_CONFIG)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (env LOG_LEVEL)")

	cmd.AddCommand(
		newServeCmd(opts),
		newSeedCmd(opts),
		newInspectCmd(opts),
		newKeywordsCmd(opts),
	)
	return cmd
}

func (o *globalOptions) init() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			slog.Debug("failed to load .env file", "path", o.envFile, "err", err)
		}
	}
	o.store = firstNonEmpty(o.store, os.Getenv("STORE_BACKEND"), string(repository.BackendSQLite))
	o.dsn = firstNonEmpty(o.dsn, os.Getenv("DATABASE_URL"))
	o.redisURL = firstNonEmpty(o.redisURL, os.Getenv("REDIS_URL"))
	o.stateTable = firstNonEmpty(o.stateTable, os.Getenv("STATE_TABLE"))
	o.dialogConfig = firstNonEmpty(o.dialogConfig, os.Getenv("DIALOG_CONFIG"))
	o.logLevel = firstNonEmpty(o.logLevel, os.Getenv("LOG_LEVEL"), "info")

	level := slog.LevelInfo
	switch strings.ToLower(o.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// stack is the storage and dialog configuration shared by the subcommands.
type stack struct {
	kv     repository.KV
	store  *repository.CaseStore
	dialog *dialogconfig.Dialog
	close  func() error
}

// openDialog loads the embedded defaults merged with --dialog-config.
func (o *globalOptions) openDialog() (*dialogconfig.Dialog, error) {
	return dialogconfig.Load(o.dialogConfig)
}

func (o *globalOptions) openStack(ctx context.Context) (*stack, error) {
	dialog, err := o.openDialog()
	if err != nil {
		return nil, err
	}

	backend, err := repository.ParseBackend(o.store)
	if err != nil {
		return nil, err
	}
	settings := repository.OpenSettings{
		Backend:     backend,
		StateTable:  o.stateTable,
		RedisURL:    o.redisURL,
		DatabaseURL: o.dsn,
	}
	switch backend {
	case repository.BackendSQLite:
		settings.DatabaseURL = firstNonEmpty(o.dsn, defaultSQLitePath)
	case repository.BackendDynamoDB:
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		settings.AWS = &cfg
	}

	kv, closeKV, err := repository.Open(ctx, settings)
	if err != nil {
		return nil, err
	}
	store, err := repository.NewCaseStore(kv, repository.WithIndexLimit(dialog.HistoryLimit))
	if err != nil {
		_ = closeKV()
		return nil, err
	}
	slog.Debug("store opened", "backend", backend)
	return &stack{kv: kv, store: store, dialog: dialog, close: closeKV}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

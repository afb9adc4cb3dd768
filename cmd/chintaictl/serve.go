package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ychihi393/chintai-checker-final/handler"
	"github.com/ychihi393/chintai-checker-final/internal/integrations/line"
	"github.com/ychihi393/chintai-checker-final/internal/metrics"
	"github.com/ychihi393/chintai-checker-final/internal/usecase"
)

type serveOptions struct {
	addr           string
	lineEndpoint   string
	loginBaseURL   string
	loginChannelID string
	sweepInterval  time.Duration
}

func newServeCmd(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and link endpoints on a local HTTP server",
		Long: `serve wraps the same handler the Lambda runs in a net/http server and
exposes Prometheus metrics on /metrics. LINE credentials are read from
LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), global, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.lineEndpoint, "line-endpoint", "", "override the Messaging API base URL")
	cmd.Flags().StringVar(&opts.loginBaseURL, "login-base-url", "", "override the LINE Login API base URL")
	cmd.Flags().StringVar(&opts.loginChannelID, "login-channel-id", os.Getenv("LINE_LOGIN_CHANNEL_ID"), "expected LINE Login channel id")
	cmd.Flags().DurationVar(&opts.sweepInterval, "sweep-interval", 10*time.Minute, "how often expired SQL rows are removed")
	return cmd
}

type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

func runServe(ctx context.Context, global *globalOptions, opts *serveOptions) error {
	secret := os.Getenv("LINE_CHANNEL_SECRET")
	accessToken := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	if secret == "" || accessToken == "" {
		return errors.New("LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN must be set")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := global.openStack(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	sender, err := line.NewSender(accessToken, line.WithEndpoint(opts.lineEndpoint))
	if err != nil {
		return err
	}
	loginOpts := []line.LoginOption{line.WithChannelID(opts.loginChannelID)}
	if opts.loginBaseURL != "" {
		loginOpts = append(loginOpts, line.WithLoginBaseURL(opts.loginBaseURL))
	}
	verifier := line.NewLoginVerifier(loginOpts...)

	conversation, err := usecase.NewConversationService(st.store, sender, st.dialog, nil)
	if err != nil {
		return err
	}
	linkService, err := usecase.NewLinkService(st.store, verifier, conversation, nil)
	if err != nil {
		return err
	}
	webhookService, err := usecase.NewWebhookService(secret, st.store, conversation, nil)
	if err != nil {
		return err
	}
	h, err := handler.NewHandler(linkService, webhookService, nil)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterMetrics(reg)

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           newServeMux(h.Handle, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if sw, ok := st.kv.(sweeper); ok && opts.sweepInterval > 0 {
		go sweepLoop(ctx, sw, opts.sweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", opts.addr, "store", global.store)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newServeMux(fn proxyFunc, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/", proxyHandler(fn))
	return mux
}

func sweepLoop(ctx context.Context, sw sweeper, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sw.Sweep(ctx)
			if err != nil {
				slog.Warn("sweep failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("swept expired rows", "rows", n)
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"incentives-engine/internal/config"
	"incentives-engine/internal/handler"
)

var (
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the incentives HTTP API",
	Long: `Endpoints:
  GET /health
  GET /v1/config
  GET /v1/deals/{id}
  GET /v1/monthly/{YYYY-MM}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("host", "0.0.0.0", "listen host")
	f.Int("port", 8000, "listen port")
	f.DurationVar(&requestTimeout, "request-timeout", 5*time.Minute, "upper bound for one request's CRM pipeline")
	f.DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	_ = vcfg.BindPFlag(config.KeyHost, f.Lookup("host"))
	_ = vcfg.BindPFlag(config.KeyPort, f.Lookup("port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, svc, client, err := loadRuntime()
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// In-flight requests outlive the signal until the grace period ends.
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	h := handler.New(base, svc, logger.Named("http"), handler.Options{
		BaseURL:        settings.BaseURL,
		SearchBaseURL:  settings.SearchBaseURL,
		RequestTimeout: requestTimeout,
	})
	srv := &fasthttp.Server{
		Handler:      h.Handle,
		Name:         "incentives-engine",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(settings.Addr())
	}()
	logger.Info("incentives engine listening",
		zap.String("addr", settings.Addr()),
		zap.String("sell_base_url", settings.BaseURL),
		zap.Int64s("stage_ids", svc.Config().StageIDs))

	select {
	case err := <-errc:
		return err
	case <-sigCtx.Done():
	}

	logger.Info("shutting down", zap.Duration("grace", shutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.ShutdownWithContext(ctx)
	cancelBase()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

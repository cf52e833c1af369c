package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fixit/internal/backend"
	"fixit/internal/core"
	"fixit/internal/httpapi"
	"fixit/internal/llm"
	"fixit/internal/preview"
	"fixit/internal/upload"
)

var (
	serveAddr    string
	sessionIdle  time.Duration
	sweepEvery   time.Duration
	drainTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the intake form API",
	Long: `Serve the intake form over HTTP. Each client creates a session and
drives it with field, photo, enrichment and submit calls.

Submissions go to FIXIT_BACKEND_URL when set, otherwise to the spool in
FIXIT_SPOOL_DIR, otherwise to a simulated backend. Photos upload to
FIXIT_UPLOAD_URL when set, otherwise to a simulator.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides FIXIT_ADDR)")
	serveCmd.Flags().DurationVar(&sessionIdle, "session-idle", 30*time.Minute, "close sessions idle for this long")
	serveCmd.Flags().DurationVar(&sweepEvery, "sweep-every", time.Minute, "idle session sweep interval")
	serveCmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 15*time.Second, "graceful shutdown bound")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	enricher, err := newEnricher(ctx)
	if err != nil {
		return err
	}
	gateway := core.NewGateway(enricher, policy, logger)
	submitter := newSubmitter()
	transport := newTransport()
	previews := preview.NewStore()

	sessions := httpapi.NewRegistry(func() *core.Machine {
		return core.NewMachine(core.Options{
			Policy:        &policy,
			Gateway:       gateway,
			Submitter:     submitter,
			Transport:     transport,
			Previews:      previews,
			PreviewPrefix: httpapi.PreviewPrefix,
			Logger:        logger,
		})
	})
	defer sessions.Close()

	go sweepSessions(ctx, sessions)

	addr := cfg.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(sessions, previews, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "ai", enricher != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	dctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(dctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newEnricher returns nil when AI enrichment is disabled or has no key.
func newEnricher(ctx context.Context) (core.Enricher, error) {
	llmCfg, ok := cfg.LLMConfig()
	if !ok {
		logger.Warn("AI enrichment disabled", "provider", cfg.LLMProvider)
		return nil, nil
	}
	client, err := llm.NewClient(ctx, llmCfg)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	logger.Info("AI enrichment enabled", "model", client.DefaultModel())
	return core.NewLLMEnricher(client), nil
}

func newSubmitter() backend.Submitter {
	switch {
	case cfg.BackendURL != "":
		logger.Info("submitting to backend", "url", cfg.BackendURL)
		return backend.NewHTTPSubmitter(cfg.BackendURL)
	case cfg.SpoolDir != "":
		logger.Info("spooling submissions", "dir", cfg.SpoolDir)
		return backend.NewSpool(cfg.SpoolDir)
	default:
		return backend.NewSimulated(policy.SubmitDelay)
	}
}

func newTransport() upload.Transport {
	if cfg.UploadURL == "" {
		return upload.NewSimulator()
	}
	return &upload.HTTPTransport{Endpoint: cfg.UploadURL}
}

func sweepSessions(ctx context.Context, sessions *httpapi.Registry) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(sessionIdle); n > 0 {
				logger.Info("closed idle sessions", "count", n, "open", sessions.Len())
			}
		}
	}
}

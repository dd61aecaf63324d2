package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"invoicebot/internal/config"
	"invoicebot/internal/delegate"
	"invoicebot/internal/dispatcher"
	"invoicebot/internal/engine"
	"invoicebot/internal/ingest"
	"invoicebot/internal/logger"
	"invoicebot/internal/server"
	"invoicebot/internal/slack"
	"invoicebot/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server that receives chat platform webhooks, runs
invoice analysis in the background, and posts results back into the
originating conversation thread.

Required environment variables:
  SLACK_BOT_TOKEN      - Bot token used for message posting and file download
  SLACK_SIGNING_SECRET - Secret used to authenticate inbound webhooks
  OPENAI_API_KEY       - Key for the insight completion API`,
	Example: `  # Start with defaults (port 8080)
  invoicebot serve

  # Custom port and stricter worker pool
  PORT=9000 WORKER_COUNT=2 invoicebot serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	const op = "runServe"
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return fmt.Errorf("%s: failed to configure logging: %w", op, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	invoiceStore := store.NewWithDemoData()
	analysisEngine := engine.New(engine.Options{
		AnomalyThreshold: decimal.NewFromFloat(cfg.AnomalyThreshold),
	})
	slackClient := slack.NewClient(cfg.SlackBotToken, cfg.SlackAPIBaseURL)
	ingestService := ingest.NewService(cfg.SlackBotToken, ingest.ParseOptions{
		LenientHeaders: cfg.LenientHeaders,
		SkipBadRows:    cfg.SkipBadRows,
	})
	insightService := delegate.NewOpenAIInsightService(
		openai.NewClient(cfg.OpenAIAPIKey),
		cfg.OpenAIModel,
	)

	disp := dispatcher.New(dispatcher.Deps{
		Poster:   slackClient,
		Ingestor: ingestService,
		Engine:   analysisEngine,
		Store:    invoiceStore,
		Delegate: insightService,
		Workers:  cfg.WorkerCount,
		Queue:    cfg.QueueSize,
	})
	// Jobs queued at shutdown still run and reply; Stop drains the queue.
	disp.Start()
	defer disp.Stop()

	srv := server.New(server.Deps{
		Verifier:   slack.NewVerifier(cfg.SlackSigningSecret),
		Dispatcher: disp,
		Engine:     analysisEngine,
		Store:      invoiceStore,
		BotUserID:  cfg.SlackBotUserID,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("Webhook server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server failed: %w", op, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown failed: %w", op, err)
	}

	return nil
}

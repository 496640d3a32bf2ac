// Package main is the entry point for the call orchestration service:
// wires every component's constructor, mounts the HTTP surface, and
// shuts down gracefully on SIGINT/SIGTERM. Grounded on the teacher's
// config-load-then-wire bootstrap shape, with the graceful-shutdown
// sequencing generalised from the context-cancellation pattern in
// jkindrix-quickquote/cmd/server/main.go (also in the example pack, also
// a voice-call orchestration service).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/aiclients"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/callregistry"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/connectors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/credential"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/dialog"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/httpapi"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/notifier"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/promptwebhook"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/recording"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/telephony"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/turnprocessor"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/workerpool"
)

func main() {
	v, err := config.InitConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init config: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := commons.NewLogger(cfg.LogLevel)
	logger.Infof("starting %s on %s:%d", cfg.Name, cfg.Host, cfg.Port)

	clk := clock.Real()

	postgres, err := connectors.NewPostgresConnector(cfg.Postgres, logger)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	redis := connectors.NewRedisConnector(cfg.Redis, logger)

	credentials, err := credential.NewStore(cfg, logger, postgres, clk)
	if err != nil {
		logger.Fatalf("build credential store: %v", err)
	}
	registry, err := callregistry.NewStore(logger, postgres, redis, clk)
	if err != nil {
		logger.Fatalf("build call registry: %v", err)
	}

	adapter := telephony.NewTwilioAdapter(cfg.Telephony, logger)

	flow, err := dialog.LoadFlow(cfg.FlowConfigPath)
	if err != nil {
		logger.Fatalf("load conversation flow: %v", err)
	}
	engine := dialog.NewEngine(flow, cfg.Scoring, clk, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	synthesis := aiclients.NewGoogleSynthesis(ctx, cfg.AI, logger)
	recognition := aiclients.NewDeepgramRecognition(cfg.AI, logger)
	reasoning := aiclients.NewReasoning(cfg.AI, logger)

	fetcher := recording.NewFetcher(adapter, cfg.RecordingsDir, cfg.TempDir, clk, logger)
	publisher := notifier.NewPublisher(cfg.UpstreamURL, cfg.UpstreamSecret, "", clk, logger)

	maxConversationDuration := time.Duration(cfg.Limits.MaxConversationDurationSeconds) * time.Second
	processor := turnprocessor.NewProcessor(registry, engine, fetcher, recognition, reasoning, publisher, maxConversationDuration, clk, logger)

	// Shared worker pool (spec.md §5): turn processing runs off the
	// webhook request path, and the Call Handler rejects new placements
	// under the same backpressure signal.
	pool := workerpool.New(16, 256, logger)

	promptHandler := promptwebhook.NewHandler(registry, engine, synthesis, cfg.PublicBaseURL, cfg.TempDir, cfg.Limits.MaxRecordingDurationSeconds, clk, logger)
	callHandler := httpapi.NewCallHandler(cfg, registry, credentials, adapter, engine, pool, postgres, redis, logger)
	webhookHandler := httpapi.NewWebhookHandler(registry, processor, pool, logger)
	credentialHandler := httpapi.NewCredentialHandler(credentials, logger)

	gin.SetMode(gin.ReleaseMode)
	engineRouter := gin.New()
	engineRouter.Use(gin.Recovery())
	httpapi.RegisterRoutes(engineRouter, credentials, callHandler, webhookHandler, promptHandler, credentialHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engineRouter,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("shutting down %s", cfg.Name)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http server shutdown error: %v", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("worker pool drain error: %v", err)
	}
	cancel()
}

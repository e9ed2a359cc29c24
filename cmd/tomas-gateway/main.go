package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/UJ2202/TOMAS/internal/config"
	"github.com/UJ2202/TOMAS/internal/dispatch"
	"github.com/UJ2202/TOMAS/internal/engine"
	"github.com/UJ2202/TOMAS/internal/engine/planner"
	"github.com/UJ2202/TOMAS/internal/engine/researcher"
	"github.com/UJ2202/TOMAS/internal/executor"
	"github.com/UJ2202/TOMAS/internal/httpapi"
	"github.com/UJ2202/TOMAS/internal/mode"
	"github.com/UJ2202/TOMAS/internal/session"
	"github.com/UJ2202/TOMAS/internal/subscribers"
	logging "github.com/UJ2202/TOMAS/internal/subscribers/logging"
	"github.com/UJ2202/TOMAS/internal/subscribers/webhook"
	"github.com/UJ2202/TOMAS/internal/workspace"
)

func main() {
	logger := log.New(os.Stdout, "tomas ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	subs := []subscribers.Subscriber{logging.New(logger)}
	for idx, webhookURL := range cfg.WebhookURLs {
		subs = append(subs, webhook.New(webhookSubscriberName(idx, webhookURL), webhookURL, logger))
	}
	dispatcher := dispatch.New(logger, subs)

	store, err := session.NewGormStore(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatalf("failed to initialize session store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Printf("store close error: %v", err)
		}
	}()

	workspaces, err := workspace.NewManager(cfg.WorkspaceDir)
	if err != nil {
		logger.Fatalf("failed to initialize workspace root: %v", err)
	}

	registry, err := mode.NewRegistry(mode.Builtin()...)
	if err != nil {
		logger.Fatalf("invalid mode registry: %v", err)
	}

	engines := engine.NewFactory()
	engines.Register(engine.KindPlanner, func() engine.Engine { return planner.New() })
	engines.Register(engine.KindResearcher, func() engine.Engine { return researcher.New() })

	runtime := config.NewRuntimeConfig(cfg)

	exec := executor.New(logger, store, registry, engines, workspaces, dispatcher, runtime)
	exec.SetCommandQueueSize(cfg.CommandQueueSize)
	if cfg.PlannerCommand != "" {
		exec.SetEngineCommand(engine.KindPlanner, cfg.PlannerCommand)
	}
	if cfg.ResearcherCommand != "" {
		exec.SetEngineCommand(engine.KindResearcher, cfg.ResearcherCommand)
	}

	srv := httpapi.NewServer(logger, cfg.HTTPAddr, registry, store, exec, workspaces, runtime)

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server crashed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("http server shutdown error: %v", err)
	}
	if err := exec.Shutdown(ctx); err != nil {
		logger.Printf("executor shutdown error: %v", err)
	}
}

func webhookSubscriberName(index int, webhookURL string) string {
	parsed, err := url.Parse(webhookURL)
	if err == nil {
		host := strings.TrimSpace(parsed.Host)
		if host != "" {
			return host
		}
	}
	return fmt.Sprintf("webhook-%d", index+1)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	liblog "trpc.group/trpc-go/trpc-a2a-go/log"

	"github.com/tuannvm/workitem-qa/internal/agents"
	"github.com/tuannvm/workitem-qa/internal/app"
	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/config"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "client" {
		fmt.Println("Client functionality not implemented in this binary.")
		fmt.Println("Please use the test_a2a client instead.")
		return
	} else if len(os.Args) > 1 && os.Args[1] == "ask-example" {
		fmt.Println(`curl -X POST -H "Content-Type: application/json" -H "X-API-Key: $API_KEY" -d '{"query":"show me active bugs"}' http://localhost:8081/ask`)
		return
	}

	cfg := config.NewConfig()
	log.Init(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	// route the A2A library through the same logger
	liblog.Default = log.Logger

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer a.Close()

	agent := agents.NewQueryAgent(cfg, a.Pipeline)
	if err := agent.SetupA2AServer(); err != nil {
		log.Fatalf("Failed to setup A2A server: %v", err)
	}
	authProvider, err := common.NewAuthProvider(cfg.AuthType, cfg.JWTSecret, cfg.APIKey)
	if err != nil {
		log.Fatalf("Failed to setup authentication: %v", err)
	}

	fmt.Printf("Starting %s...\n", cfg.AgentName)
	fmt.Printf("A2A endpoint: http://%s:%d/\n", cfg.ServerHost, cfg.ServerPort)
	fmt.Printf("Ask endpoint: http://%s:%d/ask\n", cfg.ServerHost, cfg.HTTPPort)
	fmt.Printf("Metrics: http://%s:%d/metrics\n", cfg.ServerHost, cfg.MetricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agent.StartA2AServer(ctx)
	})
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.HTTPPort)
		return common.StartHTTPServer(ctx, "ask", addr, agents.NewHTTPHandler(a.Pipeline, authProvider))
	})
	if cfg.MetricsPort > 0 {
		g.Go(func() error {
			addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.MetricsPort)
			return common.StartHTTPServer(ctx, "metrics", addr, metrics.Handler())
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("Server error: %v", err)
		os.Exit(1)
	}

	log.Infof("Server shutdown complete")
}

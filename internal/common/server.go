package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-a2a-go/auth"
	"trpc.group/trpc-go/trpc-a2a-go/server"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"

	log "github.com/tuannvm/workitem-qa/internal/logging"
)

const apiKeyHeader = "X-API-Key"

// SetupServerOptions contains options for setting up an A2A server
type SetupServerOptions struct {
	AgentName    string
	AgentVersion string
	AgentURL     string
	Description  string
	AuthType     string
	JWTSecret    string
	APIKey       string
	Processor    taskmanager.TaskProcessor
	Skills       []server.AgentSkill
}

// NewAuthProvider builds the provider for authType. An empty type means no
// authentication and returns a nil provider.
func NewAuthProvider(authType, jwtSecret, apiKey string) (auth.Provider, error) {
	switch authType {
	case "":
		return nil, nil
	case "jwt":
		if jwtSecret == "" {
			return nil, errors.New("jwt auth requires a secret")
		}
		return auth.NewJWTAuthProvider([]byte(jwtSecret), "", "", 24*time.Hour), nil
	case "apikey":
		if apiKey == "" {
			return nil, errors.New("apikey auth requires an API key")
		}
		return auth.NewAPIKeyAuthProvider(map[string]string{apiKey: "user"}, apiKeyHeader), nil
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", authType)
	}
}

// SetupServer builds the A2A server for opts: agent card, in-memory task
// manager and the configured authentication.
func SetupServer(opts SetupServerOptions) (*server.A2AServer, error) {
	tm, err := taskmanager.NewMemoryTaskManager(opts.Processor)
	if err != nil {
		return nil, fmt.Errorf("failed to create task manager: %w", err)
	}
	serverOpts, err := serverOptions(opts)
	if err != nil {
		return nil, err
	}
	srv, err := server.NewA2AServer(agentCard(opts), tm, serverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return srv, nil
}

func agentCard(opts SetupServerOptions) server.AgentCard {
	description := opts.Description
	if description == "" {
		description = opts.AgentName + " agent"
	}
	return server.AgentCard{
		Name:               opts.AgentName,
		Description:        StringPtr(description),
		URL:                opts.AgentURL,
		Version:            opts.AgentVersion,
		Provider:           &server.AgentProvider{Organization: "workitem-qa"},
		DefaultInputModes:  []string{"text", "data"},
		DefaultOutputModes: []string{"text", "data"},
		Skills:             opts.Skills,
	}
}

// serverOptions mounts JSON-RPC at "/", where A2AClient.SendTasks posts.
// A pipeline run can take most of a minute, hence the long timeouts.
func serverOptions(opts SetupServerOptions) ([]server.Option, error) {
	out := []server.Option{
		server.WithJSONRPCEndpoint("/"),
		server.WithReadTimeout(2 * time.Minute),
		server.WithWriteTimeout(2 * time.Minute),
	}
	provider, err := NewAuthProvider(opts.AuthType, opts.JWTSecret, opts.APIKey)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		log.Warnf("%s accepts unauthenticated requests", opts.AgentName)
		return out, nil
	}
	log.Infof("%s requires %s authentication", opts.AgentName, opts.AuthType)
	return append(out, server.WithAuthProvider(provider)), nil
}

const shutdownGrace = 5 * time.Second

// serve runs start in the background and returns when it fails or when ctx
// is done, in which case stop gets shutdownGrace to drain.
func serve(ctx context.Context, name string, start func() error, stop func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s server failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	log.Infof("Stopping %s server", name)
	if err := stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop %s server: %w", name, err)
	}
	return nil
}

// StartServer serves srv on host:port until ctx is done.
func StartServer(ctx context.Context, srv *server.A2AServer, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Infof("A2A server listening on %s", addr)
	return serve(ctx, "A2A", func() error { return srv.Start(addr) }, srv.Stop)
}

// StartHTTPServer serves handler on addr until ctx is done.
func StartHTTPServer(ctx context.Context, name, addr string, handler http.Handler) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("%s server listening on %s", name, addr)
	start := func() error {
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	return serve(ctx, name, start, hs.Shutdown)
}

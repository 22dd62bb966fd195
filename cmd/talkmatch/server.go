package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/talkmatch/internal/api"
	"github.com/kalambet/talkmatch/internal/composer"
	"github.com/kalambet/talkmatch/internal/config"
	"github.com/kalambet/talkmatch/internal/dispatch"
	"github.com/kalambet/talkmatch/internal/engine"
	"github.com/kalambet/talkmatch/internal/persona"
	"github.com/kalambet/talkmatch/internal/session"
	"github.com/kalambet/talkmatch/internal/storage"
	"github.com/kalambet/talkmatch/internal/storage/jsonfile"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the matchmaking server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

// store is what the server persists through; both backends satisfy it.
type store interface {
	session.Store
	Close() error
}

func openStore(cfg config.StorageConfig) (store, error) {
	switch cfg.Backend {
	case "sqlite":
		return storage.Open(cfg.DataDir)
	case "json", "":
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return jsonfile.Open(cfg.DataDir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func engineOptions(cfg config.Config) engine.Options {
	return engine.Options{
		Provider:         cfg.AI.Provider,
		Model:            cfg.AI.Model,
		MaxTokens:        cfg.AI.MaxTokens,
		OpenRouterAPIKey: cfg.AI.OpenRouterAPIKey,
		CompatBaseURL:    cfg.AI.BaseURL,
		CompatAPIKey:     cfg.AI.OpenAIAPIKey,
		OllamaBaseURL:    cfg.Ollama.BaseURL,
		OllamaModel:      cfg.Ollama.Model,
		GeminiAPIKey:     cfg.Gemini.APIKey,
		GeminiModel:      cfg.Gemini.Model,
	}
}

func managerOptions(cfg config.Config, personas []persona.Persona, ai engine.Engine, st session.Store, comp *composer.Composer) session.Options {
	opts := session.Options{
		Personas:      personas,
		AI:            ai,
		Store:         st,
		Composer:      comp,
		LinkThreshold: cfg.Matching.LinkThreshold,
		ActThreshold:  cfg.Matching.ActThreshold,
		TopN:          cfg.Matching.TopN,
	}
	if cfg.Matching.ReadinessEnabled {
		opts.ReadinessThreshold = cfg.Matching.ReadinessThreshold
	}
	return opts
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "talkmatch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ai, err := engine.New(ctx, engineOptions(cfg))
	if err != nil {
		return fmt.Errorf("creating AI engine: %w", err)
	}
	if p, ok := ai.(engine.Puller); ok {
		if err := engine.EnsureReady(ctx, p, cfg.Ollama.Model, os.Stderr); err != nil {
			return err
		}
	}
	if p, ok := ai.(engine.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			slog.Warn("AI provider not reachable, replies will fail until it is", "provider", cfg.AI.Provider, "error", err)
		}
	}

	lib, err := composer.NewLibrary(cfg.Prompts.Dir)
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}
	go func() {
		if err := lib.Watch(ctx, nil); err != nil {
			slog.Warn("prompt watcher stopped", "dir", cfg.Prompts.Dir, "error", err)
		}
	}()

	personas, err := persona.Load(cfg.Personas.File)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	mgr, err := session.New(managerOptions(cfg, personas, ai, st, composer.New(lib)))
	if err != nil {
		return fmt.Errorf("starting sessions: %w", err)
	}
	mgr.SetUpdateCallback(func(b session.Board) {
		slog.Debug("board updated", "personas", len(b))
	})
	slog.Info("sessions ready",
		"personas", len(personas),
		"provider", cfg.AI.Provider,
		"storage", cfg.Storage.Backend,
	)

	d := dispatch.New(ctx, 0)
	defer d.Close()

	deps := api.Deps{Manager: mgr, Dispatcher: d}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "talkmatch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

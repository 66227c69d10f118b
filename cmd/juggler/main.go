// Command juggler runs the tool server, speaking the framed JSON protocol
// over stdio by default or over WebSocket with --listen.
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

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/vladimirpesic/juggler/dispatch"
	"github.com/vladimirpesic/juggler/internal/logging"
	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/routers/computercontroller"
	"github.com/vladimirpesic/juggler/routers/developer"
	"github.com/vladimirpesic/juggler/routers/googledrive"
	"github.com/vladimirpesic/juggler/routers/jetbrains"
	"github.com/vladimirpesic/juggler/routers/memory"
	"github.com/vladimirpesic/juggler/routers/tutorial"
	"github.com/vladimirpesic/juggler/session"
	"github.com/vladimirpesic/juggler/session/sqlitestore"
)

// Config is read from JUGGLER_* environment variables; flags override it.
type Config struct {
	CallTimeout   time.Duration `envconfig:"CALL_TIMEOUT" default:"30s"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"1h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	SessionDB     string        `envconfig:"SESSION_DB"`
	Workspace     string        `envconfig:"WORKSPACE" default:"."`
	JetbrainsAddr string        `envconfig:"JETBRAINS_ADDR"`
	DriveToken    string        `envconfig:"DRIVE_TOKEN"`
	Listen        string        `envconfig:"LISTEN"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "juggler",
		Short:         "Tool server routing schema-validated tool calls to pluggable routers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var flags Config
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve tool calls over stdio, or over WebSocket with --listen",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), config)
		},
	}
	serve.Flags().StringVar(&flags.Listen, "listen", "", "HTTP listen address for the WebSocket endpoint (empty means stdio)")
	serve.Flags().DurationVar(&flags.CallTimeout, "call-timeout", 0, "Per-call timeout (overrides JUGGLER_CALL_TIMEOUT)")
	serve.Flags().StringVar(&flags.Workspace, "workspace", "", "Root directory for the developer file tools (overrides JUGGLER_WORKSPACE)")

	root.AddCommand(serve)
	return root
}

// loadConfig layers explicitly-set flags over JUGGLER_* environment
// variables.
func loadConfig(cmd *cobra.Command, flags *Config) (*Config, error) {
	var config Config
	if err := envconfig.Process("juggler", &config); err != nil {
		return nil, fmt.Errorf("bad environment: %w", err)
	}
	if cmd.Flags().Changed("listen") {
		config.Listen = flags.Listen
	}
	if cmd.Flags().Changed("call-timeout") {
		config.CallTimeout = flags.CallTimeout
	}
	if cmd.Flags().Changed("workspace") {
		config.Workspace = flags.Workspace
	}
	return &config, nil
}

func runServe(ctx context.Context, config *Config) error {
	logger := logging.Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(config)
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseAll() }()

	registry := dispatch.NewRegistry()
	for _, r := range buildRouters(config) {
		if err := registry.Register(r); err != nil {
			return fmt.Errorf("register router %s: %w", r.ID(), err)
		}
		logger.Info("registered router", "router", r.ID(), "tools", len(r.Tools()))
	}
	registry.Freeze()

	dispatcher := dispatch.NewDispatcher(registry, store,
		dispatch.WithCallTimeout(config.CallTimeout),
		dispatch.WithLogger(logger),
	)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(fmt.Sprintf("@every %s", config.SweepInterval), func() {
		swept, err := store.Sweep(config.SessionTTL)
		if err != nil {
			logger.Warn("session sweep failed", "err", err)
			return
		}
		if swept > 0 {
			logger.Info("swept idle sessions", "count", swept)
		}
	}); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	if config.Listen != "" {
		return serveWebSocket(ctx, config.Listen, registry, dispatcher, logger)
	}
	return serveStdio(ctx, registry, dispatcher, logger)
}

func openStore(config *Config) (session.Store, error) {
	if config.SessionDB == "" {
		return session.NewMemoryStore(), nil
	}
	store, err := sqlitestore.New(config.SessionDB)
	if err != nil {
		return nil, fmt.Errorf("open session db %s: %w", config.SessionDB, err)
	}
	return store, nil
}

func buildRouters(config *Config) []router.Router {
	routers := []router.Router{
		developer.NewRouter(developer.DirFS(config.Workspace)),
		computercontroller.NewRouter(),
		memory.NewRouter(),
		tutorial.NewRouter(),
	}
	if config.JetbrainsAddr != "" {
		routers = append(routers, jetbrains.NewRouter(config.JetbrainsAddr))
	}
	if config.DriveToken != "" {
		drive := googledrive.NewHTTPDrive("", nil, googledrive.StaticToken(config.DriveToken))
		routers = append(routers, googledrive.NewRouter(drive))
	}
	return routers
}

func serveStdio(ctx context.Context, registry *dispatch.Registry, dispatcher *dispatch.Dispatcher, logger *slog.Logger) error {
	endpoint, err := dispatch.NewEndpoint(registry, dispatcher)
	if err != nil {
		return err
	}
	logger.Info("serving on stdio")
	if err := endpoint.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveWebSocket(ctx context.Context, addr string, registry *dispatch.Registry, dispatcher *dispatch.Dispatcher, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", dispatch.WebSocketHandler(registry, dispatcher))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("serving websocket", "addr", addr, "path", "/ws")
		errs <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

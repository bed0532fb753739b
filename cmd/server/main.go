package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/jobchat/internal/api"
	"github.com/Tyrowin/jobchat/internal/auth"
	"github.com/Tyrowin/jobchat/internal/bus"
	"github.com/Tyrowin/jobchat/internal/config"
	"github.com/Tyrowin/jobchat/internal/server"
	"github.com/Tyrowin/jobchat/internal/store"
	"github.com/Tyrowin/jobchat/internal/telemetry"
)

const serviceName = "jobchat"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "jobchat",
		Short:         "Real-time messaging server for the job board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := contextOrBackground(cmd.Context())
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := newLogger(cfg.LogLevel)

			db, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(db) }()

			if err := store.Migrate(ctx, db); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.DBDriver).Msg("Schema migrated")
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Token utilities for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newTokenMintCommand())
	return cmd
}

func newTokenMintCommand() *cobra.Command {
	var (
		userID int64
		email  string
		role   string
		socket bool
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Print a signed token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(contextOrBackground(cmd.Context()))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tokens, err := auth.NewService(cfg.JWTSigningKey, cfg.AccessTokenTTL, cfg.SocketTokenTTL)
			if err != nil {
				return err
			}

			identity := auth.Identity{ID: userID, Email: email, Role: role}
			issue := tokens.IssueAccessToken
			if socket {
				issue = tokens.IssueSocketToken
			}
			token, err := issue(identity)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(token)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "User id the token is issued for")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&role, "role", "candidate", "Role claim (candidate or recruiter)")
	cmd.Flags().BoolVar(&socket, "socket", false, "Mint a short-lived socket token instead of an access token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.LogLevel)

	shutdownTracing, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown tracing")
		}
	}()

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(db); err != nil {
			log.Error().Err(err).Msg("Close database")
		}
	}()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	messages := store.New(db)

	var publisher server.Publisher
	if cfg.NATSURL != "" {
		events, err := bus.New(cfg.NATSURL, log)
		if err != nil {
			return err
		}
		defer events.Close()
		publisher = events
	}

	tokens, err := auth.NewService(cfg.JWTSigningKey, cfg.AccessTokenTTL, cfg.SocketTokenTTL)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := server.NewHub(server.Options{
		Messages:    messages,
		Invitations: messages,
		Bus:         publisher,
		Metrics:     server.NewMetrics(registry),
		Logger:      log,
		Limits: server.ClientLimits{
			MaxMessageSize: cfg.MaxMessageSize,
			SendBufferSize: cfg.SendBufferSize,
			RateLimit:      cfg.RateLimit,
		},
	})
	server.StartHub(hub)

	httpAPI := api.New(api.Options{
		Messages:       messages,
		Invitations:    messages,
		Tokens:         tokens,
		Notifier:       hub,
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	handler := server.SetupRoutes(server.RouterOptions{
		Hub:        hub,
		Verifier:   tokens,
		Origins:    server.NewOriginPolicy(cfg.AllowedOrigins, log),
		API:        httpAPI.Router(),
		Gatherer:   registry,
		Middleware: []func(http.Handler) http.Handler{telemetry.Middleware(serviceName, log)},
	})
	httpServer := server.CreateServer(cfg.Port, handler)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer, log)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
		log.Error().Err(err).Msg("Shutdown server")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("Shutdown hub")
	}
	httpAPI.Wait()
	return nil
}

func newLogger(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

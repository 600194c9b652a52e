package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/webhookd/internal/api"
	"github.com/shohag/webhookd/internal/config"
	"github.com/shohag/webhookd/internal/delivery"
	"github.com/shohag/webhookd/internal/ratelimit"
	"github.com/shohag/webhookd/internal/storage"
	"github.com/shohag/webhookd/internal/urlguard"
)

var version = "0.1.0"

const shutdownGrace = 5 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:          "webhookd",
		Short:        "webhookd, outbound webhook delivery for multi-tenant apps",
		SilenceUsage: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(webhookCmd(&configPath))
	rootCmd.AddCommand(triggerCmd(&configPath))
	rootCmd.AddCommand(testCmd(&configPath))
	rootCmd.AddCommand(logsCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(tokenCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhookd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			guard := setupGuard(cfg.Delivery)
			dispatcher := setupDispatcher(cfg, store, guard, log)

			server := api.NewServer(cfg.Server, store, dispatcher, guard, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("workers", cfg.Delivery.Workers).
				Int("rate_limit", cfg.RateLimit.Limit).
				Dur("rate_window", cfg.RateLimit.Window).
				Str("storage", cfg.Storage.Driver).
				Msg("webhookd is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			// Handlers block on their fan-out, so the server stays up until
			// Drain reports every in-flight delivery done, plus a grace period
			// for writing the counts.
			shutdownCtx, cancel := context.WithCancel(context.Background())
			go func() {
				defer cancel()
				if err := dispatcher.Drain(context.Background()); err != nil {
					log.Error().Err(err).Msg("drain deliveries")
				}
				time.Sleep(shutdownGrace)
			}()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			log.Info().Msg("webhookd stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webhookd v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite", "sqlite3":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	case "postgres", "postgresql":
		log.Info().Msg("using Postgres storage")
		return storage.NewPostgres(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func setupGuard(cfg config.DeliveryConfig) *urlguard.Guard {
	if cfg.ResolveHosts {
		return urlguard.New(net.DefaultResolver)
	}
	return urlguard.New(nil)
}

func setupDispatcher(cfg *config.Config, store storage.Storage, guard *urlguard.Guard, log zerolog.Logger) *delivery.Dispatcher {
	limiter := ratelimit.NewFixedWindow(ratelimit.Options{
		Limit:  cfg.RateLimit.Limit,
		Window: cfg.RateLimit.Window,
	})
	return delivery.NewDispatcher(cfg.Delivery, store, limiter, guard, delivery.NewSender(cfg.Delivery), log)
}

// loadRuntime opens and migrates storage for one-shot commands.
func loadRuntime(configPath string) (*config.Config, storage.Storage, zerolog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Nop(), nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, log, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, log, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return cfg, store, log, func() { store.Close() }, nil
}

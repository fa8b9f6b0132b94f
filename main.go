package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/feed"
	"chat-sync/internal/identity"
)

const serviceName = "chat-sync"

var (
	cfg    config.Config
	logger zerolog.Logger
)

func main() {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Realtime chat message sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logger = newLogger(cfg)
			return nil
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tailCmd())
	root.AddCommand(tokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(zerolog.DebugLevel).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()
			logger.Info().Str("driver", cfg.DBDriver).Msg("schema up to date")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an author name",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := identity.NewVerifier(cfg.JWTSecret).Issue(name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "author name carried by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func connectDB(ctx context.Context) (*sqlx.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	database, err := db.Connect(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}
	return database, nil
}

// openFeed builds the change feed selected by FEED_DRIVER.
func openFeed(ctx context.Context, database *sqlx.DB) (feed.Feed, error) {
	feedLogger := logger.With().Str("feed", cfg.FeedDriver).Logger()
	switch cfg.FeedDriver {
	case "postgres":
		return feed.NewPostgres(database, cfg.DBDSN, feedLogger), nil
	case "amqp":
		f, err := feed.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange, feedLogger)
		if err != nil {
			return nil, fmt.Errorf("amqp feed: %w", err)
		}
		return f, nil
	case "redis":
		f, err := feed.NewRedis(ctx, cfg.RedisURL, feedLogger)
		if err != nil {
			return nil, fmt.Errorf("redis feed: %w", err)
		}
		return f, nil
	default:
		return feed.NewMemory(), nil
	}
}

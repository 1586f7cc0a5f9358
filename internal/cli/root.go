// Package cli wires the service components into cobra commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/imalyk/go-meeting-insights/internal/config"
	"github.com/imalyk/go-meeting-insights/internal/queue"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "meetinsights",
		Short:        "Meeting transcription and summarization service",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		NewServeCmd(),
		NewWorkerCmd(),
		NewStatusCmd(),
		NewStatsCmd(),
	)
	return cmd
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return logger
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func pingRedis(cmd *cobra.Command, rdb *redis.Client) error {
	if err := rdb.Ping(cmd.Context()).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func queueKeys(cfg config.Config) queue.Keys {
	return queue.Keys{
		Pending:    cfg.PendingKey,
		InFlight:   cfg.InFlightKey,
		DeadLetter: cfg.DeadLetterKey,
	}
}

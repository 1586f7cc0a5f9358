package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imalyk/go-meeting-insights/internal/config"
	"github.com/imalyk/go-meeting-insights/internal/queue"
)

func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and in-flight count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := newLogger(cfg)

			rdb := newRedisClient(cfg)
			defer rdb.Close()
			if err := pingRedis(cmd, rdb); err != nil {
				return err
			}

			q := queue.NewService(rdb, queueKeys(cfg), cfg.MaxAttempts, logger)
			stats, err := q.QueueStats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Pending:   %d\n", stats.PendingLength)
			fmt.Printf("In flight: %d\n", stats.InFlightCount)
			return nil
		},
	}
}

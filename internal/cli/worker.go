package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imalyk/go-meeting-insights/internal/cache"
	"github.com/imalyk/go-meeting-insights/internal/config"
	"github.com/imalyk/go-meeting-insights/internal/meetings"
	"github.com/imalyk/go-meeting-insights/internal/pipeline"
	"github.com/imalyk/go-meeting-insights/internal/queue"
	"github.com/imalyk/go-meeting-insights/internal/worker"
)

func NewWorkerCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the meeting processing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("invalid worker count: %d", count)
			}

			cfg := config.Load()
			logger := newLogger(cfg)

			rdb := newRedisClient(cfg)
			defer rdb.Close()
			if err := pingRedis(cmd, rdb); err != nil {
				return err
			}

			objects, err := newMinioClient(cfg)
			if err != nil {
				return fmt.Errorf("minio connection: %w", err)
			}

			store, err := meetings.NewStore(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open meetings store: %w", err)
			}
			defer store.Close()

			q := queue.NewService(rdb, queueKeys(cfg), cfg.MaxAttempts, logger)
			respCache := cache.New(rdb, cfg.CacheTTL, logger)
			pipe := pipeline.New(cfg, objects, store, respCache, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := worker.Options{PollTimeout: cfg.PollTimeout, RetryDelay: cfg.RetryDelay}
			done := make(chan struct{}, count)
			for i := 0; i < count; i++ {
				w := worker.New(q, pipe.Process, logger.With("worker", i), opts)
				go func() {
					_ = w.Run(ctx)
					done <- struct{}{}
				}()
			}
			logger.Info("worker service ready", "workers", count)

			<-ctx.Done()
			logger.Info("shutting down, waiting for in-progress jobs")

			// Bounded join: a job mid-processing cannot be cancelled, so we
			// wait for the loops up to the shutdown timeout and then exit
			// regardless.
			deadline := time.NewTimer(cfg.ShutdownTimeout)
			defer deadline.Stop()
			for i := 0; i < count; i++ {
				select {
				case <-done:
				case <-deadline.C:
					logger.Warn("worker did not stop gracefully")
					return nil
				}
			}
			logger.Info("worker stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "number of worker loops to run")
	return cmd
}

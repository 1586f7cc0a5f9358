package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/imalyk/go-meeting-insights/internal/cache"
	"github.com/imalyk/go-meeting-insights/internal/config"
	"github.com/imalyk/go-meeting-insights/internal/meetings"
	"github.com/imalyk/go-meeting-insights/internal/queue"
	"github.com/imalyk/go-meeting-insights/internal/server"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			srv := server.New(cfg, q, store, respCache, objects, rdb, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
}

func newMinioClient(cfg config.Config) (*minio.Client, error) {
	return minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
}

package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/imalyk/go-meeting-insights/internal/config"
	"github.com/imalyk/go-meeting-insights/internal/queue"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := newLogger(cfg)

			rdb := newRedisClient(cfg)
			defer rdb.Close()
			if err := pingRedis(cmd, rdb); err != nil {
				return err
			}

			q := queue.NewService(rdb, queueKeys(cfg), cfg.MaxAttempts, logger)
			j, err := q.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if j == nil {
				return fmt.Errorf("job %s not found", args[0])
			}

			fmt.Printf("Job:      %s\n", j.ID)
			fmt.Printf("Meeting:  %d (%s)\n", j.MeetingID, j.Filename)
			fmt.Printf("Status:   %s\n", j.Status)
			fmt.Printf("Attempts: %d/%d\n", j.Attempts, j.MaxAttempts)
			fmt.Printf("Created:  %s\n", humanize.Time(j.CreatedAt))
			if j.StartedAt != nil {
				fmt.Printf("Started:  %s\n", humanize.Time(*j.StartedAt))
			}
			if j.CompletedAt != nil {
				fmt.Printf("Finished: %s\n", humanize.Time(*j.CompletedAt))
			}
			if j.FailedAt != nil {
				fmt.Printf("Failed:   %s\n", humanize.Time(*j.FailedAt))
			}
			if j.LastError != "" {
				fmt.Printf("Error:    %s\n", j.LastError)
			}
			if j.Result != nil {
				fmt.Printf("Result:   %d chars transcript, %d chars summary, %d keywords, %.1fs audio\n",
					j.Result.TranscriptLength, j.Result.SummaryLength, j.Result.KeywordsCount, j.Result.DurationSeconds)
			}
			return nil
		},
	}
}

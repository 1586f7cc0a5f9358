// Package pipeline implements the processing function the worker invokes:
// fetch the recording, transcribe, summarize, extract metadata and persist
// the artifact. Any returned error makes the job retryable from scratch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/imalyk/go-meeting-insights/internal/cache"
	"github.com/imalyk/go-meeting-insights/internal/config"
	"github.com/imalyk/go-meeting-insights/internal/job"
	"github.com/imalyk/go-meeting-insights/internal/meetings"
)

const keywordTopK = 8

type Pipeline struct {
	cfg         config.Config
	logger      *slog.Logger
	objects     *minio.Client
	meetings    *meetings.Store
	transcriber *Transcriber
	summarizer  *Summarizer
	cache       *cache.Cache
}

func New(cfg config.Config, objects *minio.Client, store *meetings.Store, respCache *cache.Cache, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:         cfg,
		logger:      logger,
		objects:     objects,
		meetings:    store,
		transcriber: NewTranscriber(cfg, logger),
		summarizer:  NewSummarizer(cfg, logger),
		cache:       respCache,
	}
}

// Process runs the full transcription pipeline for one job. It satisfies
// worker.ProcessFunc.
func (p *Pipeline) Process(ctx context.Context, j *job.Job) (*job.Result, error) {
	p.logger.Info("processing meeting", "job_id", j.ID, "meeting_id", j.MeetingID, "file", j.FilePath)

	audioPath, err := p.fetchAudio(ctx, j)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer os.Remove(audioPath)

	transcript, language, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	summary := p.summarizer.Summarize(ctx, transcript)
	keywords := ExtractKeywords(transcript, keywordTopK)

	duration, err := p.probeDuration(ctx, audioPath)
	if err != nil {
		p.logger.Warn("duration probe failed", "job_id", j.ID, "error", err)
		duration = 0
	}

	if err := p.meetings.ApplyResults(ctx, j.MeetingID, transcript, summary, language, duration, keywords); err != nil {
		return nil, fmt.Errorf("persist results: %w", err)
	}

	if p.cache != nil {
		p.cache.InvalidateMeetings(ctx)
	}

	return &job.Result{
		TranscriptLength: len(transcript),
		Language:         language,
		SummaryLength:    len(summary),
		KeywordsCount:    len(keywords),
		DurationSeconds:  duration,
	}, nil
}

// fetchAudio downloads the job's recording from object storage into the
// temp dir and returns the local path.
func (p *Pipeline) fetchAudio(ctx context.Context, j *job.Job) (string, error) {
	localPath := filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s-input%s", j.ID, filepath.Ext(j.FilePath)))
	if err := p.objects.FGetObject(ctx, p.cfg.AudioBucket, j.FilePath, localPath, minio.GetObjectOptions{}); err != nil {
		return "", err
	}
	return localPath, nil
}

func (p *Pipeline) probeDuration(ctx context.Context, input string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.cfg.FFProbePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	durationStr := strings.TrimSpace(string(output))
	if durationStr == "" {
		return 0, errors.New("empty duration")
	}
	return strconv.ParseFloat(durationStr, 64)
}

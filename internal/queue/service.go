package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imalyk/go-meeting-insights/internal/job"
)

// ErrMalformedJob is returned by Dequeue when a pending entry cannot be
// decoded. The raw entry has already been moved to the dead-letter list.
var ErrMalformedJob = errors.New("malformed job payload")

const maxErrorLen = 1024

// Stats is a best-effort instantaneous snapshot of queue depth.
type Stats struct {
	PendingLength int64 `json:"pending_length"`
	InFlightCount int64 `json:"in_flight_count"`
}

// Service is the policy layer over Store and Records: it creates jobs,
// moves them through queued/processing/completed/failed, and re-enqueues
// failed attempts while retries remain. Only the actor that dequeued a job
// may report its outcome; the atomic pop is the sole mutual exclusion.
type Service struct {
	store       *Store
	records     *Records
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

func NewService(rdb *redis.Client, keys Keys, maxAttempts int, logger *slog.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = job.DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       NewStore(rdb, keys),
		records:     NewRecords(rdb),
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Enqueue creates a queued job record, pushes it onto the pending list and
// saves it with the live expiration. It returns the assigned job id.
func (s *Service) Enqueue(ctx context.Context, meetingID int64, filePath, filename string) (string, error) {
	j := job.New(meetingID, filePath, filename, s.maxAttempts, s.now())

	payload, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := s.store.PushPending(ctx, payload); err != nil {
		return "", err
	}
	if err := s.records.Save(ctx, j, LiveRecordTTL); err != nil {
		return "", err
	}

	s.logger.Info("job enqueued", "job_id", j.ID, "meeting_id", meetingID, "filename", filename)
	return j.ID, nil
}

// Dequeue blocks up to timeout for the next pending job and transitions it
// to processing: started_at set, id added to the in-flight set, record
// re-saved live. It returns (nil, nil) on timeout.
func (s *Service) Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	payload, err := s.store.PopPending(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	var j job.Job
	if err := json.Unmarshal(payload, &j); err != nil {
		s.logger.Error("dead-lettering undecodable queue entry", "error", err)
		if dlErr := s.store.PushDeadLetter(ctx, payload); dlErr != nil {
			s.logger.Error("failed to dead-letter queue entry", "error", dlErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	if err := s.store.MarkInFlight(ctx, j.ID); err != nil {
		return nil, err
	}
	started := s.now().UTC()
	j.Status = job.StatusProcessing
	j.StartedAt = &started
	if err := s.records.Save(ctx, &j, LiveRecordTTL); err != nil {
		return nil, err
	}
	return &j, nil
}

// Complete marks a job completed and attaches its result. A missing record
// (expired or externally deleted) is skipped silently.
func (s *Service) Complete(ctx context.Context, jobID string, result *job.Result) error {
	if err := s.store.UnmarkInFlight(ctx, jobID); err != nil {
		return err
	}

	j, err := s.records.Load(ctx, jobID)
	if err != nil {
		return err
	}
	if j == nil {
		s.logger.Warn("completion for unknown job skipped", "job_id", jobID)
		return nil
	}
	if j.Terminal() {
		s.logger.Warn("completion for terminal job ignored", "job_id", jobID, "status", j.Status)
		return nil
	}

	completed := s.now().UTC()
	j.Status = job.StatusCompleted
	j.CompletedAt = &completed
	j.Result = result
	if err := s.records.Save(ctx, j, TerminalRecordTTL); err != nil {
		return err
	}

	s.logger.Info("job completed", "job_id", jobID, "attempts", j.Attempts)
	return nil
}

// Fail records a failed attempt. With retry requested and attempts
// remaining after the increment, the job goes back to queued and re-enters
// the pending list at the same end as fresh work; otherwise it becomes
// terminally failed. A missing record is skipped silently.
func (s *Service) Fail(ctx context.Context, jobID, errMsg string, retry bool) error {
	if err := s.store.UnmarkInFlight(ctx, jobID); err != nil {
		return err
	}

	j, err := s.records.Load(ctx, jobID)
	if err != nil {
		return err
	}
	if j == nil {
		s.logger.Warn("failure for unknown job skipped", "job_id", jobID)
		return nil
	}
	if j.Terminal() {
		s.logger.Warn("failure for terminal job ignored", "job_id", jobID, "status", j.Status)
		return nil
	}

	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}
	failed := s.now().UTC()
	j.Attempts++
	j.LastError = errMsg
	j.FailedAt = &failed

	if retry && j.Attempts < j.MaxAttempts {
		j.Status = job.StatusQueued
		payload, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshal job %s for retry: %w", jobID, err)
		}
		if err := s.store.PushPending(ctx, payload); err != nil {
			return err
		}
		s.logger.Warn("job failed, requeued",
			"job_id", jobID, "attempts", j.Attempts, "max_attempts", j.MaxAttempts, "error", errMsg)
	} else {
		j.Status = job.StatusFailed
		s.logger.Error("job failed terminally",
			"job_id", jobID, "attempts", j.Attempts, "error", errMsg)
	}

	return s.records.Save(ctx, j, TerminalRecordTTL)
}

// Status returns a point-in-time view of a job record, or (nil, nil) when
// no record exists for the id.
func (s *Service) Status(ctx context.Context, jobID string) (*job.Job, error) {
	return s.records.Load(ctx, jobID)
}

// QueueStats returns best-effort instantaneous queue counts. The two reads
// are not transactional with each other or with Status.
func (s *Service) QueueStats(ctx context.Context) (Stats, error) {
	pending, err := s.store.PendingLength(ctx)
	if err != nil {
		return Stats{}, err
	}
	inFlight, err := s.store.InFlightCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{PendingLength: pending, InFlightCount: inFlight}, nil
}

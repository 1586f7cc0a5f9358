package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/imalyk/go-meeting-insights/internal/job"
)

func newTestService(t *testing.T, maxAttempts int) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(rdb, DefaultKeys(), maxAttempts, logger), mr
}

func mustDequeue(t *testing.T, svc *Service) *job.Job {
	t.Helper()
	j, err := svc.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if j == nil {
		t.Fatal("expected a job, queue was empty")
	}
	return j
}

func TestEnqueueCreatesQueuedRecord(t *testing.T) {
	svc, mr := newTestService(t, 3)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, 7, "audio/rec.mp3", "rec.mp3")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	j, err := svc.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if j == nil {
		t.Fatal("record missing after enqueue")
	}
	if j.Status != job.StatusQueued {
		t.Errorf("expected status queued, got %s", j.Status)
	}
	if j.Attempts != 0 {
		t.Errorf("expected attempts 0, got %d", j.Attempts)
	}
	if j.MeetingID != 7 || j.FilePath != "audio/rec.mp3" || j.Filename != "rec.mp3" {
		t.Errorf("payload fields not preserved: %+v", j)
	}

	if ttl := mr.TTL("job:" + id); ttl != LiveRecordTTL {
		t.Errorf("expected live TTL %v, got %v", LiveRecordTTL, ttl)
	}

	stats, err := svc.QueueStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingLength != 1 || stats.InFlightCount != 0 {
		t.Errorf("unexpected stats after enqueue: %+v", stats)
	}
}

func TestDequeueMarksProcessing(t *testing.T) {
	svc, mr := newTestService(t, 3)
	ctx := context.Background()

	id, _ := svc.Enqueue(ctx, 1, "audio/a.mp3", "a.mp3")
	j := mustDequeue(t, svc)

	if j.ID != id {
		t.Fatalf("dequeued wrong job: %s", j.ID)
	}
	if j.Status != job.StatusProcessing {
		t.Errorf("expected status processing, got %s", j.Status)
	}
	if j.StartedAt == nil {
		t.Error("started_at not set")
	}
	if j.Attempts != 0 {
		t.Errorf("attempts should not change on dequeue, got %d", j.Attempts)
	}

	stats, _ := svc.QueueStats(ctx)
	if stats.PendingLength != 0 || stats.InFlightCount != 1 {
		t.Errorf("unexpected stats while processing: %+v", stats)
	}
	if ttl := mr.TTL("job:" + id); ttl != LiveRecordTTL {
		t.Errorf("expected live TTL while processing, got %v", ttl)
	}
}

// Scenario: first attempt fails with retries remaining, second succeeds.
// The job keeps its id and record; attempts counts the failed execution.
func TestFailThenRetrySucceeds(t *testing.T) {
	svc, mr := newTestService(t, 3)
	ctx := context.Background()

	id, _ := svc.Enqueue(ctx, 1, "audio/m1.mp3", "m1.mp3")

	j := mustDequeue(t, svc)
	if err := svc.Fail(ctx, j.ID, "transcription blew up", true); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rec, _ := svc.Status(ctx, id)
	if rec.Status != job.StatusQueued {
		t.Errorf("expected status queued after retryable failure, got %s", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Errorf("expected attempts 1, got %d", rec.Attempts)
	}
	if rec.LastError != "transcription blew up" {
		t.Errorf("last_error not recorded: %q", rec.LastError)
	}
	if rec.FailedAt == nil {
		t.Error("failed_at not set")
	}
	if !rec.CreatedAt.Equal(j.CreatedAt) {
		t.Error("created_at changed across retry")
	}

	j2 := mustDequeue(t, svc)
	if j2.ID != id {
		t.Fatalf("retry produced a different job id: %s", j2.ID)
	}

	result := &job.Result{TranscriptLength: 120, SummaryLength: 30, KeywordsCount: 5, DurationSeconds: 12.5}
	if err := svc.Complete(ctx, j2.ID, result); err != nil {
		t.Fatalf("complete: %v", err)
	}

	final, _ := svc.Status(ctx, id)
	if final.Status != job.StatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	if final.Attempts != 1 {
		t.Errorf("expected attempts 1 after retry success, got %d", final.Attempts)
	}
	if final.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if final.Result == nil || final.Result.TranscriptLength != 120 {
		t.Errorf("result not attached: %+v", final.Result)
	}
	if ttl := mr.TTL("job:" + id); ttl != TerminalRecordTTL {
		t.Errorf("expected terminal TTL %v, got %v", TerminalRecordTTL, ttl)
	}

	stats, _ := svc.QueueStats(ctx)
	if stats.PendingLength != 0 || stats.InFlightCount != 0 {
		t.Errorf("expected empty queue after completion, got %+v", stats)
	}
}

// Scenario: a single allowed attempt fails, the job is terminal and never
// dequeued again.
func TestFailWithoutRetriesIsTerminal(t *testing.T) {
	svc, _ := newTestService(t, 1)
	ctx := context.Background()

	id, _ := svc.Enqueue(ctx, 2, "audio/m2.mp3", "m2.mp3")

	j := mustDequeue(t, svc)
	if err := svc.Fail(ctx, j.ID, "boom", true); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rec, _ := svc.Status(ctx, id)
	if rec.Status != job.StatusFailed {
		t.Errorf("expected failed, got %s", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Errorf("expected attempts 1, got %d", rec.Attempts)
	}

	next, err := svc.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if next != nil {
		t.Errorf("terminal job was dequeued again: %+v", next)
	}
}

func TestFailWithRetryNotRequestedIsTerminal(t *testing.T) {
	svc, _ := newTestService(t, 3)
	ctx := context.Background()

	id, _ := svc.Enqueue(ctx, 3, "audio/m3.mp3", "m3.mp3")
	j := mustDequeue(t, svc)

	if err := svc.Fail(ctx, j.ID, "no retry", false); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rec, _ := svc.Status(ctx, id)
	if rec.Status != job.StatusFailed {
		t.Errorf("expected failed when retry not requested, got %s", rec.Status)
	}
}

func TestAttemptsNeverExceedMax(t *testing.T) {
	svc, _ := newTestService(t, 3)
	ctx := context.Background()

	id, _ := svc.Enqueue(ctx, 4, "audio/m4.mp3", "m4.mp3")

	for i := 0; i < 3; i++ {
		j, err := svc.Dequeue(ctx, time.Second)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if j == nil {
			t.Fatalf("expected job on attempt %d", i)
		}
		if err := svc.Fail(ctx, j.ID, "still broken", true); err != nil {
			t.Fatalf("fail %d: %v", i, err)
		}
	}

	rec, _ := svc.Status(ctx, id)
	if rec.Attempts != rec.MaxAttempts {
		t.Errorf("expected attempts == max_attempts (%d), got %d", rec.MaxAttempts, rec.Attempts)
	}
	if rec.Status != job.StatusFailed {
		t.Errorf("expected failed once attempts exhausted, got %s", rec.Status)
	}

	// Once attempts == max_attempts the job must never be queued again.
	next, _ := svc.Dequeue(ctx, time.Second)
	if next != nil {
		t.Errorf("exhausted job re-entered the queue: %+v", next)
	}
}

// A retried job re-enters at the fresh-work end, so work already pending
// is delivered before the retry.
func TestRetryReentersBehindPendingWork(t *testing.T) {
	svc, _ := newTestService(t, 3)
	ctx := context.Background()

	idA, _ := svc.Enqueue(ctx, 10, "audio/a.mp3", "a.mp3")
	idB, _ := svc.Enqueue(ctx, 11, "audio/b.mp3", "b.mp3")

	first := mustDequeue(t, svc)
	if first.ID != idA {
		t.Fatalf("expected A first, got %s", first.ID)
	}
	if err := svc.Fail(ctx, first.ID, "flaky", true); err != nil {
		t.Fatalf("fail: %v", err)
	}

	second := mustDequeue(t, svc)
	if second.ID != idB {
		t.Errorf("expected B before A's retry, got %s", second.ID)
	}

	third := mustDequeue(t, svc)
	if third.ID != idA {
		t.Errorf("expected A's retry last, got %s", third.ID)
	}
}

func TestStatusUnknownJobIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, 3)

	j, err := svc.Status(context.Background(), "meeting_99_0")
	if err != nil {
		t.Fatalf("status lookup must not error on absent record: %v", err)
	}
	if j != nil {
		t.Errorf("expected nil for unknown job, got %+v", j)
	}
}

func TestQueueStatsEmpty(t *testing.T) {
	svc, _ := newTestService(t, 3)

	stats, err := svc.QueueStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingLength != 0 || stats.InFlightCount != 0 {
		t.Errorf("expected zero stats on empty store, got %+v", stats)
	}
}

func TestQueueStatsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, 3)
	ctx := context.Background()

	_, _ = svc.Enqueue(ctx, 5, "audio/x.mp3", "x.mp3")
	_, _ = svc.Enqueue(ctx, 6, "audio/y.mp3", "y.mp3")

	first, err := svc.QueueStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	second, err := svc.QueueStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if first != second {
		t.Errorf("stats changed with no mutation: %+v vs %+v", first, second)
	}
}

func TestCompleteUnknownJobIsNoOp(t *testing.T) {
	svc, _ := newTestService(t, 3)
	ctx := context.Background()

	if err := svc.Complete(ctx, "meeting_1_0", &job.Result{}); err != nil {
		t.Errorf("complete on missing record must be a no-op, got %v", err)
	}
	if err := svc.Fail(ctx, "meeting_1_0", "gone", true); err != nil {
		t.Errorf("fail on missing record must be a no-op, got %v", err)
	}
}

func TestTerminalJobsNeverTransition(t *testing.T) {
	svc, _ := newTestService(t, 1)
	ctx := context.Background()

	id, _ := svc.Enqueue(ctx, 8, "audio/t.mp3", "t.mp3")
	j := mustDequeue(t, svc)
	if err := svc.Complete(ctx, j.ID, &job.Result{TranscriptLength: 1}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := svc.Fail(ctx, id, "late failure", true); err != nil {
		t.Fatalf("fail after complete: %v", err)
	}

	rec, _ := svc.Status(ctx, id)
	if rec.Status != job.StatusCompleted {
		t.Errorf("terminal job transitioned to %s", rec.Status)
	}
	if rec.LastError != "" {
		t.Errorf("terminal job mutated: %q", rec.LastError)
	}
}

func TestMalformedEntryIsDeadLettered(t *testing.T) {
	svc, mr := newTestService(t, 3)
	ctx := context.Background()

	if err := svc.store.PushPending(ctx, []byte("{not json")); err != nil {
		t.Fatalf("push: %v", err)
	}

	_, err := svc.Dequeue(ctx, time.Second)
	if !errors.Is(err, ErrMalformedJob) {
		t.Fatalf("expected ErrMalformedJob, got %v", err)
	}

	entries, listErr := mr.List(DefaultDeadLetterKey)
	if listErr != nil {
		t.Fatalf("read dead letter list: %v", listErr)
	}
	if len(entries) != 1 || entries[0] != "{not json" {
		t.Errorf("raw entry not dead-lettered: %v", entries)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, 3)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Millisecond)
	original := job.New(42, "audio/z.mp3", "z.mp3", 3, time.Now())
	original.Status = job.StatusProcessing
	original.StartedAt = &started
	original.LastError = "previous failure"
	original.Attempts = 2

	if err := svc.records.Save(ctx, original, LiveRecordTTL); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := svc.records.Load(ctx, original.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.ID != original.ID ||
		loaded.MeetingID != original.MeetingID ||
		loaded.FilePath != original.FilePath ||
		loaded.Filename != original.Filename ||
		loaded.Status != original.Status ||
		loaded.Attempts != original.Attempts ||
		loaded.MaxAttempts != original.MaxAttempts ||
		loaded.LastError != original.LastError {
		t.Errorf("round trip mismatch:\nsaved  %+v\nloaded %+v", original, loaded)
	}
	if !loaded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", loaded.CreatedAt, original.CreatedAt)
	}
	if loaded.StartedAt == nil || !loaded.StartedAt.Equal(*original.StartedAt) {
		t.Errorf("started_at mismatch: %v vs %v", loaded.StartedAt, original.StartedAt)
	}
	if loaded.Result != nil || loaded.CompletedAt != nil {
		t.Errorf("absent fields materialized: %+v", loaded)
	}
}

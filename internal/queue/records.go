package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imalyk/go-meeting-insights/internal/job"
)

// Record expirations. A live record survives a day of queueing and retries;
// once terminal it only needs to outlive status polling.
const (
	LiveRecordTTL     = 24 * time.Hour
	TerminalRecordTTL = time.Hour
)

// Records is the durable job record store, one Redis string per job id.
// Saves overwrite the whole record and re-arm the expiration; there are no
// partial updates, callers read-modify-write.
type Records struct {
	rdb *redis.Client
}

func NewRecords(rdb *redis.Client) *Records {
	return &Records{rdb: rdb}
}

func recordKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// Save upserts the full job state with the given expiration.
func (r *Records) Save(ctx context.Context, j *job.Job, ttl time.Duration) error {
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	if err := r.rdb.SetEx(ctx, recordKey(j.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

// Load returns the stored job, or (nil, nil) when the record is absent or
// expired.
func (r *Records) Load(ctx context.Context, jobID string) (*job.Job, error) {
	payload, err := r.rdb.Get(ctx, recordKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	var j job.Job
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &j, nil
}

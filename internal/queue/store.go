// Package queue holds the Redis-backed work queue: the pending list and
// in-flight set primitives, the job record store, and the task queue
// service that ties them to the job state machine.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default Redis key names.
const (
	DefaultPendingKey    = "meeting_processing_queue"
	DefaultInFlightKey   = "processing_meetings"
	DefaultDeadLetterKey = "meeting_processing_deadletter"
)

// Keys names the broker-level collections the queue owns.
type Keys struct {
	Pending    string
	InFlight   string
	DeadLetter string
}

func DefaultKeys() Keys {
	return Keys{
		Pending:    DefaultPendingKey,
		InFlight:   DefaultInFlightKey,
		DeadLetter: DefaultDeadLetterKey,
	}
}

// Store provides the broker primitives: an ordered pending list supporting
// blocking pop, and an in-flight membership set. It carries no job policy;
// that lives in Service.
type Store struct {
	rdb  *redis.Client
	keys Keys
}

func NewStore(rdb *redis.Client, keys Keys) *Store {
	if keys.Pending == "" {
		keys = DefaultKeys()
	}
	return &Store{rdb: rdb, keys: keys}
}

// PushPending appends a payload at the push end of the pending list. Fresh
// work and retried work enter here alike; pushing the same payload twice
// yields two dequeue events.
func (s *Store) PushPending(ctx context.Context, payload []byte) error {
	if err := s.rdb.LPush(ctx, s.keys.Pending, payload).Err(); err != nil {
		return fmt.Errorf("push pending: %w", err)
	}
	return nil
}

// PopPending removes and returns the payload at the opposite end from
// PushPending, blocking up to timeout. It returns (nil, nil) when the
// timeout elapses with no work. The pop is atomic: concurrent callers each
// receive distinct payloads.
func (s *Store) PopPending(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := s.rdb.BRPop(ctx, timeout, s.keys.Pending).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop pending: %w", err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// PushDeadLetter stashes a payload that could not be handled as a job.
func (s *Store) PushDeadLetter(ctx context.Context, payload []byte) error {
	if err := s.rdb.LPush(ctx, s.keys.DeadLetter, payload).Err(); err != nil {
		return fmt.Errorf("push dead letter: %w", err)
	}
	return nil
}

// MarkInFlight adds a job id to the in-flight set. Idempotent.
func (s *Store) MarkInFlight(ctx context.Context, jobID string) error {
	if err := s.rdb.SAdd(ctx, s.keys.InFlight, jobID).Err(); err != nil {
		return fmt.Errorf("mark in flight: %w", err)
	}
	return nil
}

// UnmarkInFlight removes a job id from the in-flight set. Idempotent.
func (s *Store) UnmarkInFlight(ctx context.Context, jobID string) error {
	if err := s.rdb.SRem(ctx, s.keys.InFlight, jobID).Err(); err != nil {
		return fmt.Errorf("unmark in flight: %w", err)
	}
	return nil
}

// PendingLength returns the current length of the pending list.
func (s *Store) PendingLength(ctx context.Context) (int64, error) {
	n, err := s.rdb.LLen(ctx, s.keys.Pending).Result()
	if err != nil {
		return 0, fmt.Errorf("pending length: %w", err)
	}
	return n, nil
}

// InFlightCount returns the size of the in-flight set.
func (s *Store) InFlightCount(ctx context.Context) (int64, error) {
	n, err := s.rdb.SCard(ctx, s.keys.InFlight).Result()
	if err != nil {
		return 0, fmt.Errorf("in flight count: %w", err)
	}
	return n, nil
}

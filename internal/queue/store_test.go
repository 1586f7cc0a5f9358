package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, DefaultKeys()), mr
}

func TestPushPopOrder(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	for _, payload := range []string{"first", "second", "third"} {
		if err := st.PushPending(ctx, []byte(payload)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		got, err := st.PopPending(ctx, time.Second)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestPopPendingTimeout(t *testing.T) {
	st, _ := newTestStore(t)

	payload, err := st.PopPending(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("pop on empty queue: %v", err)
	}
	if payload != nil {
		t.Errorf("expected no payload on timeout, got %q", payload)
	}
}

func TestPushSamePayloadTwice(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	// Pushing the same entry twice is two dequeue events; the store does
	// not dedupe.
	_ = st.PushPending(ctx, []byte("dup"))
	_ = st.PushPending(ctx, []byte("dup"))

	n, err := st.PendingLength(ctx)
	if err != nil {
		t.Fatalf("pending length: %v", err)
	}
	if n != 2 {
		t.Errorf("expected pending length 2, got %d", n)
	}
}

func TestInFlightSetIdempotent(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	if err := st.MarkInFlight(ctx, "job-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := st.MarkInFlight(ctx, "job-1"); err != nil {
		t.Fatalf("mark again: %v", err)
	}

	n, err := st.InFlightCount(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected in-flight count 1, got %d", n)
	}

	if err := st.UnmarkInFlight(ctx, "job-1"); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	if err := st.UnmarkInFlight(ctx, "job-1"); err != nil {
		t.Fatalf("unmark again: %v", err)
	}

	n, _ = st.InFlightCount(ctx)
	if n != 0 {
		t.Errorf("expected in-flight count 0, got %d", n)
	}
}

func TestDeadLetter(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()

	if err := st.PushDeadLetter(ctx, []byte("broken")); err != nil {
		t.Fatalf("push dead letter: %v", err)
	}

	entries, err := mr.List(DefaultDeadLetterKey)
	if err != nil {
		t.Fatalf("read dead letter list: %v", err)
	}
	if len(entries) != 1 || entries[0] != "broken" {
		t.Errorf("unexpected dead letter contents: %v", entries)
	}
}

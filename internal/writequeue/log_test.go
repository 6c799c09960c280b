package writequeue

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestLog(t *testing.T, path string) *Log {
	t.Helper()
	wal, err := OpenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { wal.Close() })
	return wal
}

func testOp(origin, opType, key string) Operation {
	return Operation{
		Origin:         origin,
		Type:           opType,
		IdempotencyKey: key,
		Payload:        []byte(`{"trip_id":"trip-1"}`),
		EnqueuedAt:     time.Now(),
	}
}

func TestAppendAndNextFIFO(t *testing.T) {
	ctx := context.Background()
	wal := openTestLog(t, filepath.Join(t.TempDir(), "queue.db"))

	for _, key := range []string{"k1", "k2", "k3"} {
		if _, err := wal.Append(ctx, testOp("drv-1", "trip.location", key)); err != nil {
			t.Fatal(err)
		}
	}

	for _, want := range []string{"k1", "k2", "k3"} {
		op, ok, err := wal.Next(ctx, "drv-1")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("expected pending op %s", want)
		}
		if op.IdempotencyKey != want {
			t.Fatalf("expected %s next, got %s", want, op.IdempotencyKey)
		}
		if err := wal.Ack(ctx, op.Seq); err != nil {
			t.Fatal(err)
		}
	}

	if _, ok, err := wal.Next(ctx, "drv-1"); err != nil || ok {
		t.Fatalf("expected empty queue, ok=%v err=%v", ok, err)
	}
}

func TestPendingIsolatedPerOrigin(t *testing.T) {
	ctx := context.Background()
	wal := openTestLog(t, filepath.Join(t.TempDir(), "queue.db"))

	if _, err := wal.Append(ctx, testOp("drv-1", "trip.location", "mine")); err != nil {
		t.Fatal(err)
	}
	if _, err := wal.Append(ctx, testOp("drv-2", "trip.location", "theirs")); err != nil {
		t.Fatal(err)
	}

	mine, err := wal.Pending(ctx, "drv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].IdempotencyKey != "mine" {
		t.Fatalf("expected only drv-1 ops, got %+v", mine)
	}
}

func TestLogSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	wal, err := OpenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	enqueued := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	op := testOp("drv-1", "incident.report", "persisted")
	op.EnqueuedAt = enqueued
	if _, err := wal.Append(ctx, op); err != nil {
		t.Fatal(err)
	}
	if err := wal.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := openTestLog(t, path)
	pending, err := reopened.Pending(ctx, "drv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 persisted op, got %d", len(pending))
	}
	got := pending[0]
	if got.IdempotencyKey != "persisted" || got.Type != "incident.report" {
		t.Errorf("round trip mangled the op: %+v", got)
	}
	if !got.EnqueuedAt.Equal(enqueued) {
		t.Errorf("expected enqueued_at %v, got %v", enqueued, got.EnqueuedAt)
	}
	if string(got.Payload) != `{"trip_id":"trip-1"}` {
		t.Errorf("payload mangled: %s", got.Payload)
	}
}

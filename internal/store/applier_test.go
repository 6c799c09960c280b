package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"bus-ops/internal/domain"
	"bus-ops/internal/writequeue"
	"bus-ops/pkg/logger"
)

func newTestQueue(t *testing.T, s *Store) *writequeue.Queue {
	t.Helper()
	wal, err := writequeue.OpenLog(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { wal.Close() })
	opts := writequeue.DefaultOptions()
	opts.BaseBackoff = time.Millisecond
	return writequeue.New("drv-1", wal, s, logger.NewLogger("queue-test"), opts)
}

func TestApplyDecodesQueuedOperations(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	payload, _ := json.Marshal(DelayOp{TripID: "trip-1", Minutes: 30, Reason: "checkpoint", ReporterID: "drv-1"})
	op := writequeue.Operation{Type: OpTripDelay, IdempotencyKey: "q-1", Payload: payload}
	if err := s.Apply(context.Background(), op); err != nil {
		t.Fatal(err)
	}

	trip, _ := s.GetTrip("trip-1")
	if trip.DelayMinutes != 30 {
		t.Errorf("expected 30 delay minutes, got %d", trip.DelayMinutes)
	}

	bad := writequeue.Operation{Type: OpTripDelay, Payload: []byte("{broken")}
	if err := s.Apply(context.Background(), bad); !domain.IsValidation(err) {
		t.Errorf("expected validation error for broken payload, got %v", err)
	}

	unknown := writequeue.Operation{Type: "trip.teleport", Payload: []byte("{}")}
	if err := s.Apply(context.Background(), unknown); !domain.IsValidation(err) {
		t.Errorf("expected validation error for unknown op type, got %v", err)
	}
}

// A critical incident filed while the driver app is offline must reach
// the store exactly once when connectivity returns, even if the same
// operation was already applied through another path.
func TestOfflineIncidentReplayedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s, emitter := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)
	q := newTestQueue(t, s)

	report := domain.IncidentReport{
		TripID:       "trip-1",
		ReporterID:   "drv-1",
		ReporterRole: "DRIVER",
		Type:         domain.IncidentAccident,
		Severity:     domain.SeverityCritical,
		Description:  "collision, need assistance",
	}

	applied, err := q.Submit(ctx, OpIncidentReport, "critical-1", report)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("queue starts offline; operation should have been buffered")
	}
	if emitter.count() != 0 {
		t.Fatalf("nothing should reach the store while offline, got %d events", emitter.count())
	}

	// Duplicate submission from an app retry while still offline.
	if _, err := q.Submit(ctx, OpIncidentReport, "critical-1", report); err != nil {
		t.Fatal(err)
	}

	if err := q.SetOnline(ctx); err != nil {
		t.Fatal(err)
	}

	if got := emitter.count(); got != 1 {
		t.Fatalf("expected the incident to be applied exactly once, got %d events", got)
	}
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected drained queue, %d operations still pending", len(pending))
	}
}

func TestQueuedLocationsReplayInOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)
	q := newTestQueue(t, s)

	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		op := LocationOp{
			TripID: "trip-1",
			Location: domain.Location{
				Latitude:  4.0 + float64(i)*0.01,
				Longitude: 9.7,
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			},
		}
		if _, err := q.Submit(ctx, OpTripLocation, "", op); err != nil {
			t.Fatal(err)
		}
	}

	if err := q.SetOnline(ctx); err != nil {
		t.Fatal(err)
	}

	trip, _ := s.GetTrip("trip-1")
	if trip.LastLocation == nil {
		t.Fatal("expected a location after replay")
	}
	if !trip.LastLocation.Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("expected the newest queued location to win, got %v", trip.LastLocation.Timestamp)
	}
}

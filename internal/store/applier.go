package store

import (
	"context"
	"encoding/json"
	"fmt"

	"bus-ops/internal/domain"
	"bus-ops/internal/writequeue"
)

// Operation type tags used on the durable write queue.
const (
	OpTripLocation      = "trip.location"
	OpTripDelay         = "trip.delay"
	OpIncidentReport    = "incident.report"
	OpReservationCreate = "reservation.create"
	OpReservationCancel = "reservation.cancel"
)

// LocationOp is the queued payload for a driver position push.
type LocationOp struct {
	TripID   string          `json:"trip_id"`
	Location domain.Location `json:"location"`
}

// DelayOp is the queued payload for a delay report.
type DelayOp struct {
	TripID     string `json:"trip_id"`
	Minutes    int    `json:"minutes"`
	Reason     string `json:"reason"`
	ReporterID string `json:"reporter_id"`
}

// CancelOp is the queued payload for a reservation cancellation.
type CancelOp struct {
	ReservationID string `json:"reservation_id"`
	ActorID       string `json:"actor_id"`
}

// Apply accepts a replayed queue operation. The operation's idempotency
// key makes replays safe: an operation the store already applied
// returns its original outcome without re-applying or re-emitting.
func (s *Store) Apply(_ context.Context, op writequeue.Operation) error {
	switch op.Type {
	case OpTripLocation:
		var p LocationOp
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return domain.ValidationError{Field: "payload", Msg: err.Error()}
		}
		return s.UpdateTripLocation(p.TripID, p.Location, op.IdempotencyKey)

	case OpTripDelay:
		var p DelayOp
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return domain.ValidationError{Field: "payload", Msg: err.Error()}
		}
		return s.ReportDelay(p.TripID, p.Minutes, p.Reason, p.ReporterID, op.IdempotencyKey)

	case OpIncidentReport:
		var p domain.IncidentReport
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return domain.ValidationError{Field: "payload", Msg: err.Error()}
		}
		p.IdempotencyKey = op.IdempotencyKey
		_, err := s.ReportIncident(p)
		return err

	case OpReservationCreate:
		var p domain.ReservationRequest
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return domain.ValidationError{Field: "payload", Msg: err.Error()}
		}
		p.IdempotencyKey = op.IdempotencyKey
		_, err := s.CreateReservation(p)
		return err

	case OpReservationCancel:
		var p CancelOp
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return domain.ValidationError{Field: "payload", Msg: err.Error()}
		}
		return s.CancelReservation(p.ReservationID, p.ActorID, op.IdempotencyKey)
	}

	return domain.ValidationError{Field: "op_type", Msg: fmt.Sprintf("unknown operation type %q", op.Type)}
}

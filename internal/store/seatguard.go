package store

import (
	"fmt"

	"github.com/google/uuid"

	"bus-ops/internal/domain"
)

// The seat allocation guard serializes all seat-booking decisions for a
// trip. A booking enters the trip's critical section, re-checks seat
// availability against the authoritative reservation set, and either
// commits or rejects with ErrSeatConflict. No booking is ever evaluated
// against a stale availability snapshot, so two agents can never commit
// the same seat.

// CreateReservation books a seat on behalf of an agent. On conflict the
// caller receives ErrSeatConflict and no partial mutation; the agent
// decides whether to retry with another seat.
func (s *Store) CreateReservation(req domain.ReservationRequest) (domain.Reservation, error) {
	if out, done := s.alreadyApplied(req.IdempotencyKey); done {
		return s.reservationByID(out.reservationID)
	}
	if err := req.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	ts, err := s.lookupTrip(req.TripID)
	if err != nil {
		return domain.Reservation{}, err
	}

	seat := req.NormalizedSeat()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.trip.IsActive() {
		return domain.Reservation{}, domain.ValidationError{
			Field: "trip_id",
			Msg:   fmt.Sprintf("trip %s is %s and not open for booking", req.TripID, ts.trip.Status),
		}
	}
	if existing, taken := ts.seats[seat]; taken && existing.Status != domain.ReservationCancelled {
		return domain.Reservation{}, fmt.Errorf("%w: seat %s on trip %s", domain.ErrSeatConflict, seat, req.TripID)
	}
	if ts.trip.AvailableSeats <= 0 {
		return domain.Reservation{}, fmt.Errorf("%w: trip %s is full", domain.ErrSeatConflict, req.TripID)
	}

	res := &domain.Reservation{
		ID:             uuid.NewString(),
		TripID:         req.TripID,
		PassengerName:  req.PassengerName,
		PassengerPhone: req.PassengerPhone,
		PassengerEmail: req.PassengerEmail,
		Seat:           seat,
		PaymentMethod:  req.PaymentMethod,
		Amount:         req.Amount,
		Status:         domain.ReservationPending,
		CreatedBy:      req.AgentID,
		CreatedAt:      s.now(),
	}

	ts.seats[seat] = res
	ts.reservations = append(ts.reservations, res)
	ts.trip.AvailableSeats--

	s.auxMu.Lock()
	s.reservations[res.ID] = res
	if req.IdempotencyKey != "" {
		s.applied[req.IdempotencyKey] = applyOutcome{reservationID: res.ID}
	}
	s.auxMu.Unlock()

	committed := *res
	s.emit(domain.ReservationCreatedEvent{
		Reservation: committed,
		Key:         req.IdempotencyKey,
		At:          committed.CreatedAt,
	})
	return committed, nil
}

// MarkReservationPaid records payment confirmation from the external
// payment collaborator.
func (s *Store) MarkReservationPaid(reservationID string) error {
	res, ts, err := s.reservationState(reservationID)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if res.Status == domain.ReservationCancelled {
		return domain.ValidationError{Field: "status", Msg: "reservation is cancelled"}
	}
	res.Status = domain.ReservationPaid
	return nil
}

// CancelReservation releases the seat held by a reservation. Cancelling
// an already-cancelled reservation is a no-op.
func (s *Store) CancelReservation(reservationID, actorID, idempotencyKey string) error {
	if _, done := s.alreadyApplied(idempotencyKey); done {
		return nil
	}
	res, ts, err := s.reservationState(reservationID)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	if res.Status == domain.ReservationCancelled {
		ts.mu.Unlock()
		s.recordApplied(idempotencyKey, applyOutcome{})
		return nil
	}
	res.Status = domain.ReservationCancelled
	if current, ok := ts.seats[res.Seat]; ok && current.ID == res.ID {
		delete(ts.seats, res.Seat)
	}
	if ts.trip.AvailableSeats < ts.trip.TotalSeats {
		ts.trip.AvailableSeats++
	}
	cancelled := *res
	ts.mu.Unlock()

	s.recordApplied(idempotencyKey, applyOutcome{reservationID: res.ID})
	s.emit(domain.ReservationCancelledEvent{
		Reservation: cancelled,
		ActorID:     actorID,
		Key:         idempotencyKey,
		At:          s.now(),
	})
	return nil
}

func (s *Store) reservationByID(id string) (domain.Reservation, error) {
	res, ts, err := s.reservationState(id)
	if err != nil {
		return domain.Reservation{}, err
	}
	// Status writers hold the trip lock, so the copy must too.
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return *res, nil
}

func (s *Store) reservationState(id string) (*domain.Reservation, *tripState, error) {
	s.auxMu.Lock()
	res, ok := s.reservations[id]
	s.auxMu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrUnknownReservation, id)
	}
	ts, err := s.lookupTrip(res.TripID)
	if err != nil {
		return nil, nil, err
	}
	return res, ts, nil
}

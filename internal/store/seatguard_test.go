package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bus-ops/internal/domain"
)

func bookingRequest(tripID, seat, passenger string) domain.ReservationRequest {
	return domain.ReservationRequest{
		TripID:        tripID,
		PassengerName: passenger,
		Seat:          seat,
		PaymentMethod: domain.PaymentCash,
		Amount:        5000,
		AgentID:       "g-agent-1",
	}
}

func TestCreateReservationCommits(t *testing.T) {
	s, emitter := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	res, err := s.CreateReservation(bookingRequest("trip-1", "12A", "Amina"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.ReservationPending {
		t.Errorf("expected pending, got %s", res.Status)
	}
	if res.Seat != "12A" {
		t.Errorf("expected seat 12A, got %s", res.Seat)
	}

	trip, _ := s.GetTrip("trip-1")
	if trip.AvailableSeats != 39 {
		t.Errorf("expected 39 available seats, got %d", trip.AvailableSeats)
	}
	if emitter.count() != 1 {
		t.Errorf("expected 1 event, got %d", emitter.count())
	}
}

func TestCreateReservationSeatConflict(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	if _, err := s.CreateReservation(bookingRequest("trip-1", "12A", "Amina")); err != nil {
		t.Fatal(err)
	}

	// Seat identity is case- and whitespace-insensitive.
	_, err := s.CreateReservation(bookingRequest("trip-1", " 12a ", "Boris"))
	if !errors.Is(err, domain.ErrSeatConflict) {
		t.Fatalf("expected ErrSeatConflict, got %v", err)
	}

	// A different seat on the same trip still books fine.
	if _, err := s.CreateReservation(bookingRequest("trip-1", "12B", "Boris")); err != nil {
		t.Fatalf("12B should be free: %v", err)
	}
}

func TestConcurrentBookingsSameSeat(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := bookingRequest("trip-1", "7C", fmt.Sprintf("Passenger %d", i))
			_, errs[i] = s.CreateReservation(req)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrSeatConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winning booking, got %d", wins)
	}
	if conflicts != attempts-1 {
		t.Fatalf("expected %d conflicts, got %d", attempts-1, conflicts)
	}

	trip, _ := s.GetTrip("trip-1")
	if trip.AvailableSeats != 39 {
		t.Errorf("expected exactly one seat consumed, available=%d", trip.AvailableSeats)
	}
}

func TestConcurrentBookingsCapacityInvariant(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	const bookings = 20
	var wg sync.WaitGroup
	for i := 0; i < bookings; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seat := fmt.Sprintf("%dA", i+1)
			req := bookingRequest("trip-1", seat, fmt.Sprintf("Passenger %d", i))
			if _, err := s.CreateReservation(req); err != nil {
				t.Errorf("booking %s: %v", seat, err)
			}
		}(i)
	}
	wg.Wait()

	trip, _ := s.GetTrip("trip-1")
	if trip.AvailableSeats != 40-bookings {
		t.Fatalf("expected %d seats left, got %d", 40-bookings, trip.AvailableSeats)
	}

	reservations, err := s.TripReservations("trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reservations) != bookings {
		t.Fatalf("expected %d reservations, got %d", bookings, len(reservations))
	}
}

func TestCreateReservationTripFull(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 2)

	for i, seat := range []string{"1A", "1B"} {
		if _, err := s.CreateReservation(bookingRequest("trip-1", seat, fmt.Sprintf("P%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	_, err := s.CreateReservation(bookingRequest("trip-1", "2A", "Late"))
	if !errors.Is(err, domain.ErrSeatConflict) {
		t.Fatalf("expected ErrSeatConflict when full, got %v", err)
	}
}

func TestCreateReservationInactiveTrip(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.AddTrip(domain.Trip{
		ID:                 "done-trip",
		RouteFrom:          "Douala",
		RouteTo:            "Kribi",
		ScheduledDeparture: time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC),
		TotalSeats:         40,
		Status:             domain.TripCompleted,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.CreateReservation(bookingRequest("done-trip", "3A", "Amina"))
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for completed trip, got %v", err)
	}
}

func TestCreateReservationReplayReturnsOriginal(t *testing.T) {
	s, emitter := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	req := bookingRequest("trip-1", "5D", "Amina")
	req.IdempotencyKey = "res-key-1"

	first, err := s.CreateReservation(req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateReservation(req)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("replay created a new reservation: %s vs %s", first.ID, second.ID)
	}

	trip, _ := s.GetTrip("trip-1")
	if trip.AvailableSeats != 39 {
		t.Errorf("replay must not consume another seat, available=%d", trip.AvailableSeats)
	}
	if emitter.count() != 1 {
		t.Errorf("replay must not re-emit, got %d events", emitter.count())
	}
}

func TestReplayConcurrentWithStatusUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	req := bookingRequest("trip-1", "6C", "Amina")
	req.IdempotencyKey = "book-6c"

	res, err := s.CreateReservation(req)
	if err != nil {
		t.Fatal(err)
	}

	// Replayed reads of the committed reservation must be safe against
	// concurrent status writes.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := s.CreateReservation(req); err != nil {
				t.Errorf("replay: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.MarkReservationPaid(res.ID)
		}
	}()
	wg.Wait()

	replayed, err := s.CreateReservation(req)
	if err != nil {
		t.Fatal(err)
	}
	if replayed.ID != res.ID {
		t.Errorf("replay created a new reservation: %s vs %s", replayed.ID, res.ID)
	}
	if replayed.Status != domain.ReservationPaid {
		t.Errorf("expected paid status after updates, got %s", replayed.Status)
	}
}

func TestCancelReservationFreesSeat(t *testing.T) {
	s, emitter := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	res, err := s.CreateReservation(bookingRequest("trip-1", "9A", "Amina"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.CancelReservation(res.ID, "g-agent-1", "cancel-1"); err != nil {
		t.Fatal(err)
	}
	trip, _ := s.GetTrip("trip-1")
	if trip.AvailableSeats != 40 {
		t.Errorf("expected seat returned, available=%d", trip.AvailableSeats)
	}

	// Cancelling again is a no-op.
	if err := s.CancelReservation(res.ID, "g-agent-1", "cancel-2"); err != nil {
		t.Fatal(err)
	}
	trip, _ = s.GetTrip("trip-1")
	if trip.AvailableSeats != 40 {
		t.Errorf("double cancel must not over-credit, available=%d", trip.AvailableSeats)
	}

	// The freed seat is bookable again.
	if _, err := s.CreateReservation(bookingRequest("trip-1", "9A", "Boris")); err != nil {
		t.Fatalf("seat should be free after cancel: %v", err)
	}

	// created + cancelled + created
	if emitter.count() != 3 {
		t.Errorf("expected 3 events, got %d", emitter.count())
	}
}

func TestCancelUnknownReservation(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.CancelReservation("ghost", "g-agent-1", "")
	if !errors.Is(err, domain.ErrUnknownReservation) {
		t.Fatalf("expected ErrUnknownReservation, got %v", err)
	}
}

func TestMarkReservationPaid(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	res, err := s.CreateReservation(bookingRequest("trip-1", "4B", "Amina"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkReservationPaid(res.ID); err != nil {
		t.Fatal(err)
	}

	reservations, _ := s.TripReservations("trip-1")
	if len(reservations) != 1 || reservations[0].Status != domain.ReservationPaid {
		t.Fatalf("expected paid reservation, got %+v", reservations)
	}

	if err := s.CancelReservation(res.ID, "g-agent-1", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkReservationPaid(res.ID); !domain.IsValidation(err) {
		t.Errorf("expected validation error for cancelled reservation, got %v", err)
	}
}

package store

import (
	"testing"
	"time"

	"bus-ops/internal/domain"
)

func addTripAt(t *testing.T, s *Store, id, driverID string, departure time.Time) {
	t.Helper()
	err := s.AddTrip(domain.Trip{
		ID:                 id,
		RouteFrom:          "Douala",
		RouteTo:            "Yaounde",
		ScheduledDeparture: departure,
		DriverID:           driverID,
		TotalSeats:         40,
	})
	if err != nil {
		t.Fatalf("AddTrip(%s): %v", id, err)
	}
}

func TestUpcomingTripsOrdered(t *testing.T) {
	s, _ := newTestStore(t)
	asOf := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)

	addTripAt(t, s, "late", "drv-1", asOf.Add(8*time.Hour))
	addTripAt(t, s, "past", "drv-1", asOf.Add(-2*time.Hour))
	addTripAt(t, s, "early", "drv-2", asOf.Add(1*time.Hour))
	addTripAt(t, s, "mid", "drv-3", asOf.Add(4*time.Hour))

	trips := s.UpcomingTrips(asOf)
	if len(trips) != 3 {
		t.Fatalf("expected 3 upcoming trips, got %d", len(trips))
	}
	want := []string{"early", "mid", "late"}
	for i, id := range want {
		if trips[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, trips[i].ID)
		}
	}
}

func TestDriverTripsFiltersByDay(t *testing.T) {
	s, _ := newTestStore(t)
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	addTripAt(t, s, "mine-pm", "drv-1", day.Add(15*time.Hour))
	addTripAt(t, s, "mine-am", "drv-1", day.Add(7*time.Hour))
	addTripAt(t, s, "other-driver", "drv-2", day.Add(9*time.Hour))
	addTripAt(t, s, "mine-tomorrow", "drv-1", day.Add(31*time.Hour))

	trips := s.DriverTrips("drv-1", day)
	if len(trips) != 2 {
		t.Fatalf("expected 2 trips for drv-1 on %s, got %d", day.Format("2006-01-02"), len(trips))
	}
	if trips[0].ID != "mine-am" || trips[1].ID != "mine-pm" {
		t.Errorf("expected [mine-am mine-pm], got [%s %s]", trips[0].ID, trips[1].ID)
	}
}

func TestTripReservationsExcludesCancelled(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	first, err := s.CreateReservation(bookingRequest("trip-1", "1A", "Amina"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateReservation(bookingRequest("trip-1", "1B", "Boris"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelReservation(first.ID, "g-agent-1", ""); err != nil {
		t.Fatal(err)
	}

	reservations, err := s.TripReservations("trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reservations) != 1 || reservations[0].ID != second.ID {
		t.Fatalf("expected only the live reservation, got %+v", reservations)
	}
}

func TestProjectionsReturnCopies(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	trip, err := s.GetTrip("trip-1")
	if err != nil {
		t.Fatal(err)
	}
	trip.AvailableSeats = 0

	again, _ := s.GetTrip("trip-1")
	if again.AvailableSeats != 40 {
		t.Error("mutating a projection result must not touch store state")
	}
}

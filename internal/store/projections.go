package store

import (
	"fmt"
	"sort"
	"time"

	"bus-ops/internal/domain"
)

// Read projections are pure functions over current store state. They
// never mutate anything and are safe to recompute at any time; a
// dashboard that missed events converges by re-fetching them.

// GetTrip returns a copy of a trip's current state.
func (s *Store) GetTrip(tripID string) (domain.Trip, error) {
	ts, err := s.lookupTrip(tripID)
	if err != nil {
		return domain.Trip{}, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.trip, nil
}

// UpcomingTrips returns trips with a scheduled departure at or after
// asOf, ordered by departure time ascending.
func (s *Store) UpcomingTrips(asOf time.Time) []domain.Trip {
	trips := s.snapshotTrips(func(t domain.Trip) bool {
		return !t.ScheduledDeparture.Before(asOf)
	})
	sort.Slice(trips, func(i, j int) bool {
		return trips[i].ScheduledDeparture.Before(trips[j].ScheduledDeparture)
	})
	return trips
}

// DriverTrips returns the trips assigned to a driver for a given
// service day, ordered by departure time ascending.
func (s *Store) DriverTrips(driverID string, day time.Time) []domain.Trip {
	serviceDay := day.UTC().Format("2006-01-02")
	trips := s.snapshotTrips(func(t domain.Trip) bool {
		return t.DriverID == driverID &&
			t.ScheduledDeparture.UTC().Format("2006-01-02") == serviceDay
	})
	sort.Slice(trips, func(i, j int) bool {
		return trips[i].ScheduledDeparture.Before(trips[j].ScheduledDeparture)
	})
	return trips
}

// TripReservations returns all non-cancelled reservations for a trip,
// ordered by creation time.
func (s *Store) TripReservations(tripID string) ([]domain.Reservation, error) {
	ts, err := s.lookupTrip(tripID)
	if err != nil {
		return nil, err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]domain.Reservation, 0, len(ts.reservations))
	for _, res := range ts.reservations {
		if res.Status == domain.ReservationCancelled {
			continue
		}
		out = append(out, *res)
	}
	// reservations are appended in creation order under the trip lock,
	// so the slice is already sorted
	return out, nil
}

// TripDelayHistory returns the append-only delay log for a trip.
func (s *Store) TripDelayHistory(tripID string) ([]domain.DelayReport, error) {
	ts, err := s.lookupTrip(tripID)
	if err != nil {
		return nil, fmt.Errorf("delay history: %w", err)
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]domain.DelayReport, len(ts.delays))
	copy(out, ts.delays)
	return out, nil
}

func (s *Store) snapshotTrips(keep func(domain.Trip) bool) []domain.Trip {
	s.mu.RLock()
	states := make([]*tripState, 0, len(s.trips))
	for _, ts := range s.trips {
		states = append(states, ts)
	}
	s.mu.RUnlock()

	out := make([]domain.Trip, 0, len(states))
	for _, ts := range states {
		ts.mu.Lock()
		t := ts.trip
		ts.mu.Unlock()
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

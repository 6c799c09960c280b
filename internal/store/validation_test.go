package store

import (
	"errors"
	"testing"

	"bus-ops/internal/domain"
)

func TestValidatePassengerListSnapshotsManifest(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	booked, err := s.CreateReservation(bookingRequest("trip-1", "1A", "Amina"))
	if err != nil {
		t.Fatal(err)
	}
	cancelled, err := s.CreateReservation(bookingRequest("trip-1", "1B", "Boris"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelReservation(cancelled.ID, "g-agent-1", ""); err != nil {
		t.Fatal(err)
	}

	rec, err := s.ValidatePassengerList("trip-1", "g-agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Manifest) != 1 {
		t.Fatalf("expected 1 manifest entry, got %d", len(rec.Manifest))
	}
	if rec.Manifest[0].Seat != booked.Seat {
		t.Errorf("expected seat %s in manifest, got %s", booked.Seat, rec.Manifest[0].Seat)
	}
	if rec.RouteFrom != "Douala" || rec.RouteTo != "Yaounde" {
		t.Errorf("expected route copied onto record, got %s-%s", rec.RouteFrom, rec.RouteTo)
	}

	// The manifest is frozen; later bookings don't appear in it.
	if _, err := s.CreateReservation(bookingRequest("trip-1", "2A", "Clara")); err != nil {
		t.Fatal(err)
	}
	again, err := s.ValidatePassengerList("trip-1", "g-agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != rec.ID {
		t.Fatalf("same-day revalidation must return the existing record, got %s vs %s", again.ID, rec.ID)
	}
	if len(again.Manifest) != 1 {
		t.Errorf("frozen manifest grew to %d entries", len(again.Manifest))
	}
}

func TestValidatePassengerListAcrossValidators(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	first, err := s.ValidatePassengerList("trip-1", "g-agent-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.ValidatePassengerList("trip-1", "g-agent-2")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Error("different validators must get distinct records")
	}
}

func TestValidatePassengerListPermissions(t *testing.T) {
	s, _ := newTestStore(t)
	seedTrip(t, s, "trip-1", 40)

	_, err := s.ValidatePassengerList("trip-1", "drv-1")
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for driver, got %v", err)
	}

	_, err = s.ValidatePassengerList("missing", "adm-1")
	if !errors.Is(err, domain.ErrUnknownTrip) {
		t.Fatalf("expected ErrUnknownTrip, got %v", err)
	}
}

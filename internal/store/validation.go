package store

import (
	"fmt"

	"github.com/google/uuid"

	"bus-ops/internal/domain"
	"bus-ops/pkg/auth"
)

// ValidatePassengerList produces an immutable, timestamped validation
// record with a frozen manifest snapshot for the external document
// renderer. It is idempotent per (trip, validator, calendar day):
// validating twice on the same day returns the existing record instead
// of creating a duplicate.
func (s *Store) ValidatePassengerList(tripID, validatorID string) (domain.ValidationRecord, error) {
	if s.perms == nil || !s.perms.HasPermission(validatorID, auth.ActionValidatePassengers) {
		return domain.ValidationRecord{}, fmt.Errorf("%w: %s may not validate passenger lists", domain.ErrPermissionDenied, validatorID)
	}
	ts, err := s.lookupTrip(tripID)
	if err != nil {
		return domain.ValidationRecord{}, err
	}

	now := s.now()
	day := now.UTC().Format("2006-01-02")
	key := tripID + "|" + validatorID + "|" + day

	// The whole check-and-create runs under auxMu so two concurrent
	// validations of the same key cannot both create a record.
	s.auxMu.Lock()
	if existing, ok := s.validations[key]; ok {
		s.auxMu.Unlock()
		return existing, nil
	}
	s.auxMu.Unlock()

	ts.mu.Lock()
	manifest := make([]domain.ManifestEntry, 0, len(ts.reservations))
	for _, res := range ts.reservations {
		if res.Status == domain.ReservationCancelled {
			continue
		}
		manifest = append(manifest, domain.ManifestEntry{
			Seat:           res.Seat,
			PassengerName:  res.PassengerName,
			PassengerPhone: res.PassengerPhone,
			PaymentStatus:  res.Status,
		})
	}
	record := domain.ValidationRecord{
		ID:          uuid.NewString(),
		TripID:      tripID,
		ValidatorID: validatorID,
		ServiceDay:  day,
		ValidatedAt: now,
		RouteFrom:   ts.trip.RouteFrom,
		RouteTo:     ts.trip.RouteTo,
		Departure:   ts.trip.ScheduledDeparture,
		Manifest:    manifest,
	}
	ts.mu.Unlock()

	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	if existing, ok := s.validations[key]; ok {
		// Lost the race to a concurrent validator; theirs is canonical.
		return existing, nil
	}
	s.validations[key] = record
	return record, nil
}

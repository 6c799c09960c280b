// Package store owns the canonical operational state: trips, locations,
// incidents, delay reports and reservations. It is the only component
// allowed to mutate that state. Mutations are total: they either apply
// deterministically or return a typed error, and single-entity updates
// happen under a per-trip lock so cross-trip operations never block each
// other.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bus-ops/internal/domain"
	"bus-ops/pkg/auth"
	"bus-ops/pkg/logger"
)

// Emitter receives every committed mutation as an event. Emission is
// decoupled from the mutation path; the store never waits on a
// subscriber.
type Emitter interface {
	Emit(ev domain.Event)
}

// PermissionChecker is the external RBAC collaborator.
type PermissionChecker interface {
	HasPermission(userID, action string) bool
}

// tripState bundles a trip with everything serialized under its lock.
type tripState struct {
	mu           sync.Mutex
	trip         domain.Trip
	delays       []domain.DelayReport
	reservations []*domain.Reservation
	seats        map[string]*domain.Reservation // active reservation per seat
}

type Store struct {
	mu    sync.RWMutex // guards the trips map, not individual trips
	trips map[string]*tripState

	// auxMu guards the cross-trip indexes below. It may be taken while a
	// trip lock is held; the trips map lock may not.
	auxMu        sync.Mutex
	incidents    map[string]*domain.Incident
	reservations map[string]*domain.Reservation
	applied      map[string]applyOutcome
	validations  map[string]domain.ValidationRecord

	emitter Emitter
	perms   PermissionChecker
	log     logger.Logger
	now     func() time.Time
}

// applyOutcome records the result of a successfully applied mutation so
// a replayed idempotency key returns the original outcome instead of
// re-applying.
type applyOutcome struct {
	reservationID string
	incidentID    string
}

func New(emitter Emitter, perms PermissionChecker, log logger.Logger) *Store {
	return &Store{
		trips:        make(map[string]*tripState),
		incidents:    make(map[string]*domain.Incident),
		reservations: make(map[string]*domain.Reservation),
		applied:      make(map[string]applyOutcome),
		validations:  make(map[string]domain.ValidationRecord),
		emitter:      emitter,
		perms:        perms,
		log:          log,
		now:          time.Now,
	}
}

// AddTrip registers a trip instantiated from a schedule. Trips are never
// deleted afterwards, only status-transitioned.
func (s *Store) AddTrip(t domain.Trip) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Status == "" {
		t.Status = domain.TripScheduled
	}
	if t.AvailableSeats <= 0 || t.AvailableSeats > t.TotalSeats {
		t.AvailableSeats = t.TotalSeats
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trips[t.ID]; exists {
		return domain.ValidationError{Field: "id", Msg: fmt.Sprintf("trip %s already exists", t.ID)}
	}
	s.trips[t.ID] = &tripState{
		trip:  t,
		seats: make(map[string]*domain.Reservation),
	}
	return nil
}

// lookupTrip resolves a trip id to its state. The trips map lock is
// released before the caller takes the per-trip lock.
func (s *Store) lookupTrip(tripID string) (*tripState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.trips[tripID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTrip, tripID)
	}
	return ts, nil
}

func (s *Store) alreadyApplied(key string) (applyOutcome, bool) {
	if key == "" {
		return applyOutcome{}, false
	}
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	out, ok := s.applied[key]
	return out, ok
}

func (s *Store) recordApplied(key string, out applyOutcome) {
	if key == "" {
		return
	}
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	s.applied[key] = out
}

func (s *Store) emit(ev domain.Event) {
	if s.emitter != nil {
		s.emitter.Emit(ev)
	}
}

// UpdateTripLocation applies a driver position push. Locations are
// last-write-wins by the location's own timestamp, not arrival order: a
// report older than the stored one is ignored without error.
func (s *Store) UpdateTripLocation(tripID string, loc domain.Location, idempotencyKey string) error {
	if _, done := s.alreadyApplied(idempotencyKey); done {
		return nil
	}
	if err := loc.Validate(); err != nil {
		return err
	}
	ts, err := s.lookupTrip(tripID)
	if err != nil {
		return err
	}

	loc.TripID = tripID

	ts.mu.Lock()
	if ts.trip.LastLocation != nil && !loc.Timestamp.After(ts.trip.LastLocation.Timestamp) {
		ts.mu.Unlock()
		s.recordApplied(idempotencyKey, applyOutcome{})
		return nil
	}
	ts.trip.LastLocation = &loc
	driverID := ts.trip.DriverID
	ts.mu.Unlock()

	s.recordApplied(idempotencyKey, applyOutcome{})
	s.emit(domain.TripLocationEvent{
		Trip:     tripID,
		DriverID: driverID,
		Location: loc,
		Key:      idempotencyKey,
		At:       s.now(),
	})
	return nil
}

// ReportDelay appends a delay report and updates the trip's displayed
// delay. The delay log is append-only; the displayed value is the entry
// with the latest report timestamp.
func (s *Store) ReportDelay(tripID string, minutes int, reason, reporterID, idempotencyKey string) error {
	if _, done := s.alreadyApplied(idempotencyKey); done {
		return nil
	}
	if minutes < 0 {
		return domain.ValidationError{Field: "minutes", Msg: "must not be negative"}
	}
	if reason == "" {
		return domain.ValidationError{Field: "reason", Msg: "required"}
	}
	ts, err := s.lookupTrip(tripID)
	if err != nil {
		return err
	}

	report := domain.DelayReport{
		TripID:     tripID,
		Minutes:    minutes,
		Reason:     reason,
		ReporterID: reporterID,
		ReportedAt: s.now(),
	}

	ts.mu.Lock()
	ts.delays = append(ts.delays, report)
	if latest := latestDelay(ts.delays); latest != nil {
		ts.trip.DelayMinutes = latest.Minutes
	}
	switch {
	case minutes > 0 && (ts.trip.Status == domain.TripScheduled || ts.trip.Status == domain.TripInProgress):
		ts.trip.Status = domain.TripDelayed
	case minutes == 0 && ts.trip.Status == domain.TripDelayed:
		if ts.trip.HasDeparted() {
			ts.trip.Status = domain.TripInProgress
		} else {
			ts.trip.Status = domain.TripScheduled
		}
	}
	driverID := ts.trip.DriverID
	ts.mu.Unlock()

	s.recordApplied(idempotencyKey, applyOutcome{})
	s.emit(domain.TripDelayEvent{
		Trip:       tripID,
		DriverID:   driverID,
		ReporterID: reporterID,
		Minutes:    minutes,
		Reason:     reason,
		Key:        idempotencyKey,
		At:         report.ReportedAt,
	})
	return nil
}

func latestDelay(delays []domain.DelayReport) *domain.DelayReport {
	var latest *domain.DelayReport
	for i := range delays {
		if latest == nil || delays[i].ReportedAt.After(latest.ReportedAt) {
			latest = &delays[i]
		}
	}
	return latest
}

// ReportIncident files a new incident. Each accepted call creates a new
// record; nothing is overwritten or deduplicated besides replays of the
// same idempotency key.
func (s *Store) ReportIncident(rep domain.IncidentReport) (string, error) {
	if out, done := s.alreadyApplied(rep.IdempotencyKey); done {
		return out.incidentID, nil
	}
	if err := rep.Validate(); err != nil {
		return "", err
	}
	if _, err := s.lookupTrip(rep.TripID); err != nil {
		return "", err
	}
	severity := rep.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}

	inc := domain.Incident{
		ID:           uuid.NewString(),
		TripID:       rep.TripID,
		ReporterID:   rep.ReporterID,
		ReporterRole: rep.ReporterRole,
		Type:         rep.Type,
		Severity:     severity,
		Description:  rep.Description,
		Location:     rep.Location,
		Status:       domain.IncidentReported,
		CreatedAt:    s.now(),
	}

	s.auxMu.Lock()
	s.incidents[inc.ID] = &inc
	if rep.IdempotencyKey != "" {
		s.applied[rep.IdempotencyKey] = applyOutcome{incidentID: inc.ID}
	}
	s.auxMu.Unlock()

	s.emit(domain.IncidentReportedEvent{
		Incident: inc,
		Key:      rep.IdempotencyKey,
		At:       inc.CreatedAt,
	})
	return inc.ID, nil
}

// TransitionIncident advances an incident through its lifecycle.
// Transitions are admin-only.
func (s *Store) TransitionIncident(incidentID string, next domain.IncidentStatus, actorID string) error {
	if s.perms == nil || !s.perms.HasPermission(actorID, auth.ActionTransitionIncident) {
		return fmt.Errorf("%w: %s may not transition incidents", domain.ErrPermissionDenied, actorID)
	}

	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	inc, ok := s.incidents[incidentID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownIncident, incidentID)
	}
	if !inc.Status.CanTransitionTo(next) {
		return domain.ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("cannot transition from %s to %s", inc.Status, next),
		}
	}
	inc.Status = next
	return nil
}

// GetIncident returns a copy of an incident.
func (s *Store) GetIncident(incidentID string) (domain.Incident, error) {
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	inc, ok := s.incidents[incidentID]
	if !ok {
		return domain.Incident{}, fmt.Errorf("%w: %s", domain.ErrUnknownIncident, incidentID)
	}
	return *inc, nil
}

package domain

import "time"

// Event type names carried on the wire and used for fanout routing.
const (
	EventTripLocation         = "trip.location"
	EventTripDelay            = "trip.delay"
	EventIncidentReported     = "incident.reported"
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
)

// Event is implemented by every operational event. Consumers receive
// events at-least-once and must tolerate duplicates by idempotency key.
type Event interface {
	EventType() string
	OccurredAt() time.Time
	// TripID is the trip the event concerns, used for addressed fanout.
	TripID() string
	// IdempotencyKey identifies the logical operation behind the event so
	// duplicate deliveries can be detected and ignored.
	IdempotencyKey() string
}

// TripLocationEvent is raised when a driver's position push is applied.
type TripLocationEvent struct {
	Trip     string    `json:"trip_id"`
	DriverID string    `json:"driver_id"`
	Location Location  `json:"location"`
	Key      string    `json:"idempotency_key"`
	At       time.Time `json:"occurred_at"`
}

func (e TripLocationEvent) EventType() string      { return EventTripLocation }
func (e TripLocationEvent) OccurredAt() time.Time  { return e.At }
func (e TripLocationEvent) TripID() string         { return e.Trip }
func (e TripLocationEvent) IdempotencyKey() string { return e.Key }

// TripDelayEvent is raised when a delay report is appended.
type TripDelayEvent struct {
	Trip       string    `json:"trip_id"`
	DriverID   string    `json:"driver_id"`
	ReporterID string    `json:"reporter_id"`
	Minutes    int       `json:"minutes"`
	Reason     string    `json:"reason"`
	Key        string    `json:"idempotency_key"`
	At         time.Time `json:"occurred_at"`
}

func (e TripDelayEvent) EventType() string      { return EventTripDelay }
func (e TripDelayEvent) OccurredAt() time.Time  { return e.At }
func (e TripDelayEvent) TripID() string         { return e.Trip }
func (e TripDelayEvent) IdempotencyKey() string { return e.Key }

// IncidentReportedEvent is raised when a new incident is filed. It
// carries reporter identity and severity for admin triage.
type IncidentReportedEvent struct {
	Incident Incident  `json:"incident"`
	Key      string    `json:"idempotency_key"`
	At       time.Time `json:"occurred_at"`
}

func (e IncidentReportedEvent) EventType() string      { return EventIncidentReported }
func (e IncidentReportedEvent) OccurredAt() time.Time  { return e.At }
func (e IncidentReportedEvent) TripID() string         { return e.Incident.TripID }
func (e IncidentReportedEvent) IdempotencyKey() string { return e.Key }

// ReservationCreatedEvent is raised when the seat guard commits a
// booking.
type ReservationCreatedEvent struct {
	Reservation Reservation `json:"reservation"`
	Key         string      `json:"idempotency_key"`
	At          time.Time   `json:"occurred_at"`
}

func (e ReservationCreatedEvent) EventType() string      { return EventReservationCreated }
func (e ReservationCreatedEvent) OccurredAt() time.Time  { return e.At }
func (e ReservationCreatedEvent) TripID() string         { return e.Reservation.TripID }
func (e ReservationCreatedEvent) IdempotencyKey() string { return e.Key }

// ReservationCancelledEvent is raised when a reservation is cancelled
// and its seat released.
type ReservationCancelledEvent struct {
	Reservation Reservation `json:"reservation"`
	ActorID     string      `json:"actor_id"`
	Key         string      `json:"idempotency_key"`
	At          time.Time   `json:"occurred_at"`
}

func (e ReservationCancelledEvent) EventType() string      { return EventReservationCancelled }
func (e ReservationCancelledEvent) OccurredAt() time.Time  { return e.At }
func (e ReservationCancelledEvent) TripID() string         { return e.Reservation.TripID }
func (e ReservationCancelledEvent) IdempotencyKey() string { return e.Key }

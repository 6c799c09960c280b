package domain

import (
	"strings"
	"time"
)

// TripStatus represents the state of a trip.
type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
	TripDelayed    TripStatus = "delayed"
)

func (s TripStatus) String() string {
	return string(s)
}

func (s TripStatus) IsValid() bool {
	switch s {
	case TripScheduled, TripInProgress, TripCompleted, TripCancelled, TripDelayed:
		return true
	}
	return false
}

// Location is a point report attached to a trip. Immutable once created;
// a trip keeps only its latest location.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TripID    string    `json:"trip_id"`
}

func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return ValidationError{Field: "latitude", Msg: "must be between -90 and 90"}
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return ValidationError{Field: "longitude", Msg: "must be between -180 and 180"}
	}
	if l.Timestamp.IsZero() {
		return ValidationError{Field: "timestamp", Msg: "required"}
	}
	return nil
}

// Trip is the central operational entity. Trips are created when a
// schedule is instantiated and are never deleted, only
// status-transitioned.
type Trip struct {
	ID                 string     `json:"id"`
	RouteFrom          string     `json:"route_from"`
	RouteTo            string     `json:"route_to"`
	ScheduledDeparture time.Time  `json:"scheduled_departure"`
	ScheduledArrival   time.Time  `json:"scheduled_arrival"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	ActualArrival      *time.Time `json:"actual_arrival,omitempty"`
	VehicleID          string     `json:"vehicle_id"`
	DriverID           string     `json:"driver_id"`
	TotalSeats         int        `json:"total_seats"`
	AvailableSeats     int        `json:"available_seats"`
	Status             TripStatus `json:"status"`
	DelayMinutes       int        `json:"delay_minutes"`
	LastLocation       *Location  `json:"last_location,omitempty"`
}

func (t Trip) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ValidationError{Field: "id", Msg: "required"}
	}
	if strings.TrimSpace(t.RouteFrom) == "" {
		return ValidationError{Field: "route_from", Msg: "required"}
	}
	if strings.TrimSpace(t.RouteTo) == "" {
		return ValidationError{Field: "route_to", Msg: "required"}
	}
	if t.ScheduledDeparture.IsZero() {
		return ValidationError{Field: "scheduled_departure", Msg: "required"}
	}
	if t.TotalSeats <= 0 {
		return ValidationError{Field: "total_seats", Msg: "must be positive"}
	}
	if t.Status != "" && !t.Status.IsValid() {
		return ValidationError{Field: "status", Msg: "unknown status"}
	}
	return nil
}

// HasDeparted reports whether the trip already left its origin stop.
func (t Trip) HasDeparted() bool {
	return t.ActualDeparture != nil
}

// IsActive reports whether the trip still accepts operational updates.
func (t Trip) IsActive() bool {
	return t.Status != TripCompleted && t.Status != TripCancelled
}

// DelayReport is an append-only log entry. A trip's current delay is the
// entry with the latest report timestamp.
type DelayReport struct {
	TripID     string    `json:"trip_id"`
	Minutes    int       `json:"minutes"`
	Reason     string    `json:"reason"`
	ReporterID string    `json:"reporter_id"`
	ReportedAt time.Time `json:"reported_at"`
}

package domain

import (
	"strings"
	"time"
)

type IncidentType string

const (
	IncidentMechanical IncidentType = "mechanical"
	IncidentAccident   IncidentType = "accident"
	IncidentPassenger  IncidentType = "passenger"
	IncidentRoute      IncidentType = "route"
	IncidentWeather    IncidentType = "weather"
	IncidentOther      IncidentType = "other"
)

func (t IncidentType) IsValid() bool {
	switch t {
	case IncidentMechanical, IncidentAccident, IncidentPassenger,
		IncidentRoute, IncidentWeather, IncidentOther:
		return true
	}
	return false
}

type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "low"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityHigh     IncidentSeverity = "high"
	SeverityCritical IncidentSeverity = "critical"
)

func (s IncidentSeverity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type IncidentStatus string

const (
	IncidentReported     IncidentStatus = "reported"
	IncidentAcknowledged IncidentStatus = "acknowledged"
	IncidentResolved     IncidentStatus = "resolved"
)

// CanTransitionTo enforces the reported -> acknowledged -> resolved
// lifecycle. Transitions are admin-only and incidents are never deleted.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	switch s {
	case IncidentReported:
		return next == IncidentAcknowledged
	case IncidentAcknowledged:
		return next == IncidentResolved
	}
	return false
}

// Incident is a report filed by a driver or agent against a trip.
type Incident struct {
	ID           string           `json:"id"`
	TripID       string           `json:"trip_id"`
	ReporterID   string           `json:"reporter_id"`
	ReporterRole string           `json:"reporter_role"`
	Type         IncidentType     `json:"type"`
	Severity     IncidentSeverity `json:"severity"`
	Description  string           `json:"description"`
	Location     *Location        `json:"location,omitempty"`
	Status       IncidentStatus   `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// IncidentReport is the caller-supplied input for filing an incident.
type IncidentReport struct {
	TripID         string           `json:"trip_id"`
	ReporterID     string           `json:"reporter_id"`
	ReporterRole   string           `json:"reporter_role"`
	Type           IncidentType     `json:"type"`
	Severity       IncidentSeverity `json:"severity"`
	Description    string           `json:"description"`
	Location       *Location        `json:"location,omitempty"`
	IdempotencyKey string           `json:"idempotency_key"`
}

func (r IncidentReport) Validate() error {
	if strings.TrimSpace(r.TripID) == "" {
		return ValidationError{Field: "trip_id", Msg: "required"}
	}
	if !r.Type.IsValid() {
		return ValidationError{Field: "type", Msg: "unknown incident type"}
	}
	if strings.TrimSpace(r.Description) == "" {
		return ValidationError{Field: "description", Msg: "required"}
	}
	if r.Severity != "" && !r.Severity.IsValid() {
		return ValidationError{Field: "severity", Msg: "unknown severity"}
	}
	return nil
}

package domain

import (
	"strings"
	"time"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationPaid      ReservationStatus = "paid"
	ReservationCancelled ReservationStatus = "cancelled"
)

func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationPending, ReservationPaid, ReservationCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentMobileMoney PaymentMethod = "mobile_money"
	PaymentCard        PaymentMethod = "card"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentMobileMoney, PaymentCard:
		return true
	}
	return false
}

// Reservation is an on-site booking committed by the seat allocation
// guard. At most one non-cancelled reservation may hold a given
// (trip, seat) pair.
type Reservation struct {
	ID             string            `json:"id"`
	TripID         string            `json:"trip_id"`
	PassengerName  string            `json:"passenger_name"`
	PassengerPhone string            `json:"passenger_phone"`
	PassengerEmail string            `json:"passenger_email,omitempty"`
	Seat           string            `json:"seat"`
	PaymentMethod  PaymentMethod     `json:"payment_method"`
	Amount         float64           `json:"amount"`
	Status         ReservationStatus `json:"status"`
	CreatedBy      string            `json:"created_by"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ReservationRequest is the agent-supplied input for an on-site booking.
type ReservationRequest struct {
	TripID         string        `json:"trip_id"`
	PassengerName  string        `json:"passenger_name"`
	PassengerPhone string        `json:"passenger_phone"`
	PassengerEmail string        `json:"passenger_email,omitempty"`
	Seat           string        `json:"seat"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	Amount         float64       `json:"amount"`
	AgentID        string        `json:"agent_id"`
	IdempotencyKey string        `json:"idempotency_key"`
}

func (r ReservationRequest) Validate() error {
	if strings.TrimSpace(r.TripID) == "" {
		return ValidationError{Field: "trip_id", Msg: "required"}
	}
	if strings.TrimSpace(r.PassengerName) == "" {
		return ValidationError{Field: "passenger_name", Msg: "required"}
	}
	if strings.TrimSpace(r.Seat) == "" {
		return ValidationError{Field: "seat", Msg: "required"}
	}
	if !r.PaymentMethod.IsValid() {
		return ValidationError{Field: "payment_method", Msg: "unknown payment method"}
	}
	if r.Amount < 0 {
		return ValidationError{Field: "amount", Msg: "must not be negative"}
	}
	return nil
}

// NormalizedSeat returns the canonical form used for conflict checks.
func (r ReservationRequest) NormalizedSeat() string {
	return strings.ToUpper(strings.TrimSpace(r.Seat))
}

// ManifestEntry is one row of a passenger-list snapshot.
type ManifestEntry struct {
	Seat           string            `json:"seat"`
	PassengerName  string            `json:"passenger_name"`
	PassengerPhone string            `json:"passenger_phone"`
	PaymentStatus  ReservationStatus `json:"payment_status"`
}

// ValidationRecord is the immutable result of a passenger-list
// validation. The manifest snapshot is frozen at validation time and
// handed to the external document renderer.
type ValidationRecord struct {
	ID          string          `json:"id"`
	TripID      string          `json:"trip_id"`
	ValidatorID string          `json:"validator_id"`
	ServiceDay  string          `json:"service_day"` // YYYY-MM-DD
	ValidatedAt time.Time       `json:"validated_at"`
	RouteFrom   string          `json:"route_from"`
	RouteTo     string          `json:"route_to"`
	Departure   time.Time       `json:"departure"`
	Manifest    []ManifestEntry `json:"manifest"`
}

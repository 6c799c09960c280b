package rest

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"bus-ops/internal/audit"
	"bus-ops/internal/domain"
	"bus-ops/internal/store"
	"bus-ops/internal/writequeue"
	"bus-ops/pkg/auth"
	"bus-ops/pkg/logger"
)

// Handler exposes the operational core over HTTP. Fire-and-forget
// producer pushes (location, delay, incident) go through the producer's
// durable write queue; synchronous operations (booking, validation,
// incident transitions) call the store directly so the caller gets the
// committed result or typed error in the response.
type Handler struct {
	store  *store.Store
	queues *writequeue.Manager
	audit  *audit.Repository // nil when the audit trail is disabled
	log    logger.Logger
}

func NewHandler(st *store.Store, queues *writequeue.Manager, auditRepo *audit.Repository, log logger.Logger) *Handler {
	return &Handler{store: st, queues: queues, audit: auditRepo, log: log}
}

// Register wires the route table. Callers wrap the returned handlers in
// the JWT middleware before serving.
func (h *Handler) Register(mux *http.ServeMux, jwt *auth.JWTManager) {
	authed := jwt.AuthMiddleware

	mux.Handle("/trips", authed(http.HandlerFunc(h.trips)))
	mux.Handle("/trips/", authed(http.HandlerFunc(h.tripSubresource)))
	mux.Handle("/incidents", authed(http.HandlerFunc(h.incidents)))
	mux.Handle("/incidents/", authed(http.HandlerFunc(h.incidentSubresource)))
	mux.Handle("/reservations", authed(http.HandlerFunc(h.reservations)))
	mux.Handle("/reservations/", authed(http.HandlerFunc(h.reservationSubresource)))
	mux.Handle("/drivers/", authed(http.HandlerFunc(h.driverTrips)))
}

func claimsFrom(w http.ResponseWriter, r *http.Request) (*auth.AppClaims, bool) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authentication")
		return nil, false
	}
	return claims, true
}

func requireRole(w http.ResponseWriter, claims *auth.AppClaims, roles ...auth.Role) bool {
	for _, role := range roles {
		if claims.Role == role {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "insufficient role")
	return false
}

func idempotencyKey(r *http.Request) string {
	if key := r.Header.Get("X-Idempotency-Key"); key != "" {
		return key
	}
	return uuid.NewString()
}

// submit routes a producer push through the caller's durable queue.
// A buffered (offline) push answers 202 so the client knows the write
// is pending replay rather than committed.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, origin, opType, key string, payload any) {
	q := h.queues.ForOrigin(r.Context(), origin)
	applied, err := q.Submit(r.Context(), opType, key, payload)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if !applied {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]string{"idempotency_key": key})
}

// --- /trips ---

func (h *Handler) trips(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		if !requireRole(w, claims, auth.RoleAdmin) {
			return
		}
		var trip domain.Trip
		if !decodeBody(w, r, &trip) {
			return
		}
		if err := h.store.AddTrip(trip); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": trip.ID})

	case http.MethodGet:
		// /trips?upcoming=<RFC3339>, defaulting to now
		asOf := time.Now()
		if raw := r.URL.Query().Get("upcoming"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid upcoming timestamp: "+err.Error())
				return
			}
			asOf = parsed
		}
		writeJSON(w, http.StatusOK, h.store.UpcomingTrips(asOf))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) tripSubresource(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	tripID, ok := resourceID(r, "trips")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	parts := pathParts(r)
	if len(parts) == 2 && r.Method == http.MethodGet {
		trip, err := h.store.GetTrip(tripID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, trip)
		return
	}
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch parts[2] {
	case "location":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !requireRole(w, claims, auth.RoleDriver, auth.RoleAdmin) {
			return
		}
		var loc domain.Location
		if !decodeBody(w, r, &loc) {
			return
		}
		if loc.Timestamp.IsZero() {
			loc.Timestamp = time.Now()
		}
		h.submit(w, r, claims.UserID, store.OpTripLocation, idempotencyKey(r),
			store.LocationOp{TripID: tripID, Location: loc})

	case "delay":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !requireRole(w, claims, auth.RoleDriver, auth.RoleAgent, auth.RoleAdmin) {
			return
		}
		var body struct {
			Minutes int    `json:"minutes"`
			Reason  string `json:"reason"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		h.submit(w, r, claims.UserID, store.OpTripDelay, idempotencyKey(r),
			store.DelayOp{TripID: tripID, Minutes: body.Minutes, Reason: body.Reason, ReporterID: claims.UserID})

	case "validate":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		record, err := h.store.ValidatePassengerList(tripID, claims.UserID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if h.audit != nil {
			if err := h.audit.RecordValidation(r.Context(), record); err != nil {
				h.log.Error("validation_audit_failed", err)
			}
		}
		writeJSON(w, http.StatusOK, record)

	case "reservations":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !requireRole(w, claims, auth.RoleAgent, auth.RoleAdmin) {
			return
		}
		reservations, err := h.store.TripReservations(tripID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reservations)

	case "delays":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		history, err := h.store.TripDelayHistory(tripID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// --- /incidents ---

func (h *Handler) incidents(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !requireRole(w, claims, auth.RoleDriver, auth.RoleAgent, auth.RoleAdmin) {
		return
	}

	var rep domain.IncidentReport
	if !decodeBody(w, r, &rep) {
		return
	}
	rep.ReporterID = claims.UserID
	rep.ReporterRole = string(claims.Role)
	key := rep.IdempotencyKey
	if key == "" {
		key = idempotencyKey(r)
	}
	h.submit(w, r, claims.UserID, store.OpIncidentReport, key, rep)
}

func (h *Handler) incidentSubresource(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	incidentID, ok := resourceID(r, "incidents")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	parts := pathParts(r)
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		inc, err := h.store.GetIncident(incidentID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inc)

	case len(parts) == 3 && parts[2] == "status" && r.Method == http.MethodPost:
		var body struct {
			Status domain.IncidentStatus `json:"status"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if err := h.store.TransitionIncident(incidentID, body.Status, claims.UserID); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": incidentID, "status": string(body.Status)})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// --- /reservations ---

func (h *Handler) reservations(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !requireRole(w, claims, auth.RoleAgent, auth.RoleAdmin) {
		return
	}

	var req domain.ReservationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.AgentID = claims.UserID
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = idempotencyKey(r)
	}

	// Booking is synchronous: the agent needs the committed reservation
	// or the seat conflict right away to pick another seat.
	res, err := h.store.CreateReservation(req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) reservationSubresource(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	reservationID, ok := resourceID(r, "reservations")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	parts := pathParts(r)
	if len(parts) != 3 || parts[2] != "cancel" || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !requireRole(w, claims, auth.RoleAgent, auth.RoleAdmin) {
		return
	}

	if err := h.store.CancelReservation(reservationID, claims.UserID, idempotencyKey(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": reservationID, "status": string(domain.ReservationCancelled)})
}

// --- /drivers/{id}/trips ---

func (h *Handler) driverTrips(w http.ResponseWriter, r *http.Request) {
	if _, ok := claimsFrom(w, r); !ok {
		return
	}
	driverID, ok := resourceID(r, "drivers")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	parts := pathParts(r)
	if len(parts) != 3 || parts[2] != "trips" || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	day := time.Now()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid day, want YYYY-MM-DD")
			return
		}
		day = parsed
	}
	writeJSON(w, http.StatusOK, h.store.DriverTrips(driverID, day))
}

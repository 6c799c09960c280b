package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"bus-ops/internal/domain"
)

// pathParts splits a request path into its segments.
func pathParts(r *http.Request) []string {
	return strings.Split(strings.Trim(r.URL.Path, "/"), "/")
}

// resourceID extracts the id segment from paths shaped like
// /{resource}/{id}/... and verifies the resource name.
func resourceID(r *http.Request, resource string) (string, bool) {
	parts := pathParts(r)
	if len(parts) < 2 || parts[0] != resource || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{
		"error":   http.StatusText(code),
		"message": msg,
	})
}

// writeStoreError maps the domain error taxonomy onto HTTP statuses so
// callers can branch on the outcome.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownTrip),
		errors.Is(err, domain.ErrUnknownReservation),
		errors.Is(err, domain.ErrUnknownIncident):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSeatConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

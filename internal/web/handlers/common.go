package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// dateLayout is the query parameter format for days and weeks.
const dateLayout = "2006-01-02"

// maxBodyBytes bounds JSON request bodies; a 128-d encoding is a few kilobytes.
const maxBodyBytes = 1 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// errorStatus maps engine and store errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, attendance.ErrInvalidEncoding),
		errors.Is(err, attendance.ErrInvalidCoordinates),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidTolerance),
		errors.Is(err, attendance.ErrInvalidRequirement):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrPersonNotFound),
		errors.Is(err, attendance.ErrSiteNotFound),
		errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrQualityRejected):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// errorMessage hides internal error details behind a generic message.
func errorMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// parseDate parses an optional YYYY-MM-DD query value in loc, defaulting to now.
func parseDate(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if value == "" {
		return now.In(loc), nil
	}
	return time.ParseInLocation(dateLayout, value, loc)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

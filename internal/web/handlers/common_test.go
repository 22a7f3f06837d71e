package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/database"
)

func TestRespondJSON(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusCreated, map[string]any{"message": "hello", "count": 42})

	if recorder.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}

	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["message"] != "hello" || result["count"] != float64(42) {
		t.Errorf("unexpected body %v", result)
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusOK, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "something went wrong")

	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if recorder.Code != http.StatusBadRequest || result["error"] != "something went wrong" {
		t.Errorf("got %d %v", recorder.Code, result)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{attendance.ErrInvalidEncoding, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", attendance.ErrInvalidCoordinates), http.StatusBadRequest},
		{attendance.ErrInvalidStatus, http.StatusBadRequest},
		{attendance.ErrInvalidTolerance, http.StatusBadRequest},
		{attendance.ErrInvalidRequirement, http.StatusBadRequest},
		{attendance.ErrPersonNotFound, http.StatusNotFound},
		{attendance.ErrSiteNotFound, http.StatusNotFound},
		{fmt.Errorf("site x: %w", database.ErrNotFound), http.StatusNotFound},
		{attendance.ErrQualityRejected, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			if got := errorStatus(tc.err); got != tc.want {
				t.Errorf("errorStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}

	if msg := errorMessage(errors.New("pq: password authentication failed"), http.StatusInternalServerError); msg != "internal error" {
		t.Errorf("internal error leaked: %q", msg)
	}
}

func TestParseDate(t *testing.T) {
	prague, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	now := time.Date(2024, 5, 15, 23, 30, 0, 0, time.UTC)

	got, err := parseDate("", prague, now)
	if err != nil || got.Format(dateLayout) != "2024-05-16" {
		t.Errorf("parseDate(\"\") = %v, %v, want local date 2024-05-16", got, err)
	}

	got, err = parseDate("2024-03-31", prague, now)
	if err != nil || got.Location() != prague || got.Day() != 31 {
		t.Errorf("parseDate(2024-03-31) = %v, %v", got, err)
	}

	if _, err := parseDate("31/03/2024", prague, now); err == nil {
		t.Error("expected error for wrong layout")
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("kiosk\nfake entry\r"); got != "kioskfake entry" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
}

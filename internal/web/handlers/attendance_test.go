package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facegate/internal/web/middleware"
)

func captureAt(ts time.Time) AttendanceRequest {
	return AttendanceRequest{
		Encoding:  []float64{0.1, 0, 0, 0},
		Latitude:  siteLat,
		Longitude: siteLon,
		Timestamp: &ts,
	}
}

func TestAttendanceHandler_SubmitAccepted(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/attendance", captureAt(testNow))
	req = req.WithContext(middleware.SetActorInContext(req.Context(), "kiosk-lobby"))
	rec := httptest.NewRecorder()
	env.attendance.Submit(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[OutcomeResponse](t, rec)
	assert.True(t, resp.Accepted)
	assert.True(t, resp.Persisted)
	assert.Equal(t, "accepted", resp.Reason)
	assert.Equal(t, "p1", resp.PersonID)
	assert.InDelta(t, 1-0.1/0.6, resp.Confidence, 1e-9)
	require.NotNil(t, resp.SiteID)
	assert.Equal(t, "s1", *resp.SiteID)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "IN", resp.Record.Status)
	assert.Equal(t, "kiosk-lobby", resp.Record.Actor)
	assert.Equal(t, 1, env.store.RecordCount("p1"))
}

func TestAttendanceHandler_Duplicate(t *testing.T) {
	env := newTestEnv(t)

	first := httptest.NewRecorder()
	env.attendance.Submit(first, jsonRequest(t, http.MethodPost, "/api/v1/attendance", captureAt(testNow)))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	env.attendance.Submit(second, jsonRequest(t, http.MethodPost, "/api/v1/attendance", captureAt(testNow.Add(2*time.Minute))))
	require.Equal(t, http.StatusOK, second.Code)

	resp := decodeBody[OutcomeResponse](t, second)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "duplicate", resp.Reason)
	assert.Equal(t, 1, env.store.RecordCount("p1"))
}

func TestAttendanceHandler_DryRun(t *testing.T) {
	env := newTestEnv(t)

	body := captureAt(testNow)
	body.DryRun = true
	rec := httptest.NewRecorder()
	env.attendance.Submit(rec, jsonRequest(t, http.MethodPost, "/api/v1/attendance", body))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[OutcomeResponse](t, rec)
	assert.True(t, resp.Accepted)
	assert.False(t, resp.Persisted)
	assert.Equal(t, 0, env.store.RecordCount("p1"))
}

func TestAttendanceHandler_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*AttendanceRequest)
		wantStatus int
		wantReason string
	}{
		{"no match", func(r *AttendanceRequest) { r.Encoding = []float64{5, 5, 5, 5} }, http.StatusOK, "no_match"},
		{"wrong dimension", func(r *AttendanceRequest) { r.Encoding = []float64{0.1} }, http.StatusBadRequest, "invalid_encoding"},
		{"bad latitude", func(r *AttendanceRequest) { r.Latitude = 91 }, http.StatusBadRequest, "invalid_coordinates"},
		{"bad status", func(r *AttendanceRequest) { r.Status = "SLEEPING" }, http.StatusBadRequest, ""},
		{"unknown hint", func(r *AttendanceRequest) { r.PersonHint = "ghost" }, http.StatusNotFound, "no_match"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			body := captureAt(testNow)
			tc.modify(&body)

			rec := httptest.NewRecorder()
			env.attendance.Submit(rec, jsonRequest(t, http.MethodPost, "/api/v1/attendance", body))

			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			resp := decodeBody[map[string]any](t, rec)
			if tc.wantReason != "" {
				assert.Equal(t, tc.wantReason, resp["reason"])
			}
			assert.Equal(t, 0, env.store.RecordCount("p1"))
		})
	}
}

func TestAttendanceHandler_OutsideGeofence(t *testing.T) {
	env := newTestEnv(t)

	body := captureAt(testNow)
	body.Latitude, body.Longitude = 48.1486, 17.1077
	rec := httptest.NewRecorder()
	env.attendance.Submit(rec, jsonRequest(t, http.MethodPost, "/api/v1/attendance", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[OutcomeResponse](t, rec)
	assert.True(t, resp.Accepted)
	assert.False(t, resp.IsValidLocation)
	assert.Nil(t, resp.SiteID)
}

func TestAttendanceHandler_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{`, `{"encoding": "abc"}`, `{"unknown_field": 1}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", stringsReader(body))
		rec := httptest.NewRecorder()
		env.attendance.Submit(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

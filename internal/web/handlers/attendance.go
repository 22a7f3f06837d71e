package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

// AttendanceHandler handles attendance capture endpoints
type AttendanceHandler struct {
	engine *attendance.Engine
	logger *zap.Logger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(engine *attendance.Engine, logger *zap.Logger) *AttendanceHandler {
	return &AttendanceHandler{engine: engine, logger: logger}
}

// AttendanceRequest is the body of POST /attendance
type AttendanceRequest struct {
	PersonHint string     `json:"person_hint,omitempty"`
	Encoding   []float64  `json:"encoding"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Status     string     `json:"status,omitempty"`
	Tolerance  float64    `json:"tolerance,omitempty"`
	DryRun     bool       `json:"dry_run,omitempty"`
}

// RecordResponse is a stored attendance record
type RecordResponse struct {
	ID              string    `json:"id"`
	PersonID        string    `json:"person_id"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	Confidence      float64   `json:"confidence"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	SiteID          *string   `json:"site_id"`
	IsValidLocation bool      `json:"is_valid_location"`
	Actor           string    `json:"actor,omitempty"`
}

// OutcomeResponse is the decision for one capture
type OutcomeResponse struct {
	Accepted        bool            `json:"accepted"`
	Reason          string          `json:"reason"`
	PersonID        string          `json:"person_id,omitempty"`
	ProfileID       string          `json:"profile_id,omitempty"`
	Distance        float64         `json:"distance"`
	Confidence      float64         `json:"confidence"`
	SiteID          *string         `json:"site_id"`
	SiteDistance    float64         `json:"site_distance_m,omitempty"`
	IsValidLocation bool            `json:"is_valid_location"`
	Record          *RecordResponse `json:"record,omitempty"`
	Persisted       bool            `json:"persisted"`
}

func toRecordResponse(rec *database.AttendanceRecord) *RecordResponse {
	if rec == nil {
		return nil
	}
	return &RecordResponse{
		ID:              rec.ID,
		PersonID:        rec.PersonID,
		Timestamp:       rec.Timestamp,
		Status:          string(rec.Status),
		Confidence:      rec.Confidence,
		Latitude:        rec.Latitude,
		Longitude:       rec.Longitude,
		SiteID:          rec.SiteID,
		IsValidLocation: rec.IsValidLocation,
		Actor:           rec.Actor,
	}
}

func toOutcomeResponse(out attendance.Outcome, persisted bool) OutcomeResponse {
	return OutcomeResponse{
		Accepted:        out.Accepted,
		Reason:          string(out.Reason),
		PersonID:        out.PersonID,
		ProfileID:       out.ProfileID,
		Distance:        out.Distance,
		Confidence:      out.Confidence,
		SiteID:          out.SiteID,
		SiteDistance:    out.SiteDistance,
		IsValidLocation: out.IsValidLocation,
		Record:          toRecordResponse(out.Record),
		Persisted:       persisted && out.Accepted,
	}
}

// Submit decides a capture and stores it when accepted. dry_run only evaluates.
func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body AttendanceRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	req := attendance.Request{
		PersonHint: body.PersonHint,
		Encoding:   body.Encoding,
		Latitude:   body.Latitude,
		Longitude:  body.Longitude,
		Status:     database.Status(body.Status),
		Tolerance:  body.Tolerance,
		Actor:      middleware.ActorFromContext(r.Context()),
	}
	if body.Timestamp != nil {
		req.Timestamp = *body.Timestamp
	}

	var out attendance.Outcome
	var err error
	if body.DryRun {
		out, err = h.engine.EvaluateAttendance(r.Context(), req)
	} else {
		out, err = h.engine.Submit(r.Context(), req)
	}
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("attendance evaluation failed", zap.Error(err), zap.String("actor", sanitizeForLog(req.Actor)))
		}
		resp := map[string]string{"error": errorMessage(err, status)}
		if out.Reason != "" {
			resp["reason"] = string(out.Reason)
		}
		respondJSON(w, status, resp)
		return
	}

	status := http.StatusOK
	if out.Accepted && !body.DryRun {
		status = http.StatusCreated
	}
	respondJSON(w, status, toOutcomeResponse(out, !body.DryRun))
}

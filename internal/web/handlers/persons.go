package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/database"
)

// PersonsHandler handles per-person endpoints: enrollment, status and clearance
type PersonsHandler struct {
	engine    *attendance.Engine
	clearance *attendance.ClearanceService
	logger    *zap.Logger
	now       func() time.Time
}

// NewPersonsHandler creates a new persons handler
func NewPersonsHandler(engine *attendance.Engine, clearance *attendance.ClearanceService, logger *zap.Logger) *PersonsHandler {
	return &PersonsHandler{engine: engine, clearance: clearance, logger: logger, now: time.Now}
}

// QualitySignalRequest is the capture quality measured by the client
type QualitySignalRequest struct {
	FaceCount       int     `json:"face_count"`
	FaceWidthRatio  float64 `json:"face_width_ratio"`
	FaceHeightRatio float64 `json:"face_height_ratio"`
	Luminance       float64 `json:"luminance"`
	Sharpness       float64 `json:"sharpness"`
	Contrast        float64 `json:"contrast"`
}

// EnrollRequest is the body of POST /persons/{id}/faces
type EnrollRequest struct {
	Encoding    []float64            `json:"encoding"`
	Quality     QualitySignalRequest `json:"quality"`
	SourceImage string               `json:"source_image,omitempty"`
}

// EnrollResponse reports the assessment and stored profile
type EnrollResponse struct {
	Accepted     bool    `json:"accepted"`
	QualityScore float64 `json:"quality_score"`
	Reason       string  `json:"reason"`
	ProfileID    string  `json:"profile_id,omitempty"`
	IsPrimary    bool    `json:"is_primary"`
}

// Enroll stores a new face profile after the quality gate.
func (h *PersonsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")

	var body EnrollRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result, err := h.engine.Enroll(r.Context(), attendance.EnrollRequest{
		PersonID: personID,
		Encoding: body.Encoding,
		Signal: attendance.QualitySignal{
			FaceCount:       body.Quality.FaceCount,
			FaceWidthRatio:  body.Quality.FaceWidthRatio,
			FaceHeightRatio: body.Quality.FaceHeightRatio,
			Luminance:       body.Quality.Luminance,
			Sharpness:       body.Quality.Sharpness,
			Contrast:        body.Quality.Contrast,
		},
		SourceImage: body.SourceImage,
	})

	resp := EnrollResponse{
		Accepted:     result.Assessment.Accepted,
		QualityScore: result.Assessment.Score,
		Reason:       string(result.Assessment.Reason),
	}
	if errors.Is(err, attendance.ErrQualityRejected) {
		respondJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("enrollment failed", zap.String("person_id", sanitizeForLog(personID)), zap.Error(err))
		}
		respondError(w, status, errorMessage(err, status))
		return
	}

	resp.ProfileID = result.Profile.ID
	resp.IsPrimary = result.Promoted
	respondJSON(w, http.StatusCreated, resp)
}

// StatusResponse is the latest status of a person on one day
type StatusResponse struct {
	PersonID string `json:"person_id"`
	Date     string `json:"date"`
	Status   string `json:"status"`
}

// Status returns the latest status of the day, or NOT_MARKED.
func (h *PersonsHandler) Status(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")

	day, err := parseDate(r.URL.Query().Get("date"), h.engine.Location(), h.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	status, err := h.engine.CurrentStatus(r.Context(), personID, day)
	if err != nil {
		code := errorStatus(err)
		respondError(w, code, errorMessage(err, code))
		return
	}

	respondJSON(w, http.StatusOK, StatusResponse{
		PersonID: personID,
		Date:     day.Format(dateLayout),
		Status:   string(status),
	})
}

// ClearanceResponse is a weekly rollup
type ClearanceResponse struct {
	PersonID        string    `json:"person_id"`
	SiteID          string    `json:"site_id"`
	WeekStart       time.Time `json:"week_start"`
	WeekEnd         time.Time `json:"week_end"`
	AttendanceCount int       `json:"attendance_count"`
	RequiredCount   int       `json:"required_count"`
	Granted         bool      `json:"granted"`
	Level           int       `json:"level"`
	ComputedAt      time.Time `json:"computed_at"`
}

func toClearanceResponse(c database.ClearanceRecord) ClearanceResponse {
	return ClearanceResponse{
		PersonID:        c.PersonID,
		SiteID:          c.SiteID,
		WeekStart:       c.WeekStart,
		WeekEnd:         c.WeekEnd,
		AttendanceCount: c.AttendanceCount,
		RequiredCount:   c.RequiredCount,
		Granted:         c.Granted,
		Level:           c.Level,
		ComputedAt:      c.ComputedAt,
	}
}

// Clearance returns the rollup for ?site= and the week containing ?week= (default now).
// A stored rollup is returned as-is unless ?refresh=true; otherwise it is computed.
func (h *PersonsHandler) Clearance(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")
	query := r.URL.Query()

	siteID := query.Get("site")
	if siteID == "" {
		respondError(w, http.StatusBadRequest, "site is required")
		return
	}
	week, err := parseDate(query.Get("week"), h.clearance.Location(), h.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid week, want YYYY-MM-DD")
		return
	}

	if query.Get("refresh") != "true" {
		stored, err := h.clearance.Get(r.Context(), personID, siteID, week)
		if err == nil {
			respondJSON(w, http.StatusOK, toClearanceResponse(*stored))
			return
		}
		if !errors.Is(err, database.ErrNotFound) {
			h.logger.Error("loading clearance failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	rec, err := h.clearance.Recompute(r.Context(), personID, siteID, week)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("computing clearance failed", zap.Error(err))
		}
		respondError(w, status, errorMessage(err, status))
		return
	}
	respondJSON(w, http.StatusOK, toClearanceResponse(rec))
}

package handlers

import (
	"net/http"

	"github.com/kozaktomas/facegate/internal/database"
)

// SitesHandler handles geofenced site endpoints
type SitesHandler struct {
	sites database.SiteReader
}

// NewSitesHandler creates a new sites handler
func NewSitesHandler(sites database.SiteReader) *SitesHandler {
	return &SitesHandler{sites: sites}
}

// SiteResponse is one geofenced site
type SiteResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	RadiusMeters        float64 `json:"radius_m"`
	Active              bool    `json:"active"`
	RequiredWeeklyCount int     `json:"required_weekly_count"`
}

// List returns sites; ?all=true includes inactive ones.
func (h *SitesHandler) List(w http.ResponseWriter, r *http.Request) {
	sites, err := h.sites.ListSites(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]SiteResponse, 0, len(sites))
	for _, s := range sites {
		resp = append(resp, SiteResponse{
			ID:                  s.ID,
			Name:                s.Name,
			Latitude:            s.Latitude,
			Longitude:           s.Longitude,
			RadiusMeters:        s.RadiusMeters,
			Active:              s.Active,
			RequiredWeeklyCount: s.RequiredWeeklyCount,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

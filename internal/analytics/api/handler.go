package analytics_api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/analytics"
	"ms-attendance/internal/auth"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/utils"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service    *analytics.Service
	Logger     *logger.Logger
	StaffRoles []string
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger, staffRoles ...string) *Handler {
	return &Handler{
		Service:    service,
		Logger:     logger,
		StaffRoles: staffRoles,
	}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(auth.RequireRole(h.StaffRoles...)).Get("/events/{eventId}/stats", h.GetEventStats)
}

// GetEventStats handles GET /api/events/{eventId}/stats
func (h *Handler) GetEventStats(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("ANALYTICS", fmt.Sprintf("Fetching statistics for event %s", eventID))

	stats, err := h.Service.GetEventStats(r.Context(), eventID)
	if errors.Is(err, analytics.ErrEventNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Event not found", err)
		return
	}
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Failed to compute statistics for event %s: %v", eventID, err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to compute statistics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

package events_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/auth"
	"ms-attendance/internal/events"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	"ms-attendance/internal/utils"
)

type Handler struct {
	EventService *events.EventService
	Logger       *logger.Logger
	StaffRoles   []string
}

func NewHandler(eventService *events.EventService, log *logger.Logger, staffRoles ...string) *Handler {
	return &Handler{EventService: eventService, Logger: log, StaffRoles: staffRoles}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.ListEvents)
	r.Get("/events/{eventId}", h.GetEvent)
	r.Post("/events/{eventId}/join", h.Join)
	r.Get("/me/events", h.MyEvents)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.StaffRoles...))
		r.Post("/events", h.CreateEvent)
		r.Get("/events/{eventId}/registrants", h.Registrants)
	})
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in events.CreateEventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	event, err := h.EventService.CreateEvent(r.Context(), in, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "CreateEvent", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Event created", event)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.EventService.ListEvents(r.Context())
	if err != nil {
		h.fail(w, "ListEvents", err)
		return
	}
	if list == nil {
		list = []models.Event{}
	}
	utils.WriteSuccess(w, http.StatusOK, "Events", list)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.EventService.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, "GetEvent", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Event", event)
}

// Join enrolls the caller in the event.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	registration, err := h.EventService.Join(r.Context(), chi.URLParam(r, "eventId"), userID)
	if err != nil {
		h.fail(w, "Join", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Enrolled", registration)
}

func (h *Handler) Registrants(w http.ResponseWriter, r *http.Request) {
	registrants, err := h.EventService.Registrants(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, "Registrants", err)
		return
	}
	if registrants == nil {
		registrants = []models.RegistrationWithUser{}
	}
	utils.WriteSuccess(w, http.StatusOK, "Registrants", registrants)
}

func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.EventService.MyEvents(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "MyEvents", err)
		return
	}
	if list == nil {
		list = []models.Event{}
	}
	utils.WriteSuccess(w, http.StatusOK, "Events", list)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, events.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event not found", err)
	case errors.Is(err, events.ErrAlreadyEnrolled):
		utils.WriteError(w, http.StatusConflict, "Already enrolled", err)
	case errors.Is(err, events.ErrInvalidEvent):
		utils.WriteError(w, http.StatusBadRequest, "Invalid event", err)
	case errors.Is(err, events.ErrUnknownUser):
		utils.WriteError(w, http.StatusBadRequest, "User not registered", err)
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

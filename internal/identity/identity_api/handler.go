package identity_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/auth"
	"ms-attendance/internal/identity"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	"ms-attendance/internal/utils"
)

type Handler struct {
	IdentityService *identity.IdentityService
	Logger          *logger.Logger
	StaffRoles      []string
}

func NewHandler(svc *identity.IdentityService, log *logger.Logger, staffRoles ...string) *Handler {
	return &Handler{IdentityService: svc, Logger: log, StaffRoles: staffRoles}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.StaffRoles...))
		r.Post("/users", h.RegisterUser)
		r.Put("/legacy-attendees", h.UpsertLegacy)
	})
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in models.User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.IdentityService.RegisterUser(r.Context(), in)
	switch {
	case errors.Is(err, identity.ErrUserExists):
		utils.WriteError(w, http.StatusConflict, "User already exists", err)
	case errors.Is(err, identity.ErrInvalidUser):
		utils.WriteError(w, http.StatusBadRequest, "Invalid user", err)
	case err != nil:
		h.Logger.Error("API", fmt.Sprintf("RegisterUser: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", err)
	default:
		utils.WriteSuccess(w, http.StatusCreated, "User registered", user)
	}
}

// UpsertLegacy handles PUT /api/legacy-attendees.
func (h *Handler) UpsertLegacy(w http.ResponseWriter, r *http.Request) {
	var in models.LegacyAttendee
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.IdentityService.UpsertLegacy(r.Context(), in)
	switch {
	case errors.Is(err, identity.ErrInvalidAttendee):
		utils.WriteError(w, http.StatusBadRequest, "Invalid attendee", err)
	case err != nil:
		h.Logger.Error("API", fmt.Sprintf("UpsertLegacy: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", err)
	case result.Created:
		utils.WriteSuccess(w, http.StatusCreated, "Attendee created", result)
	default:
		utils.WriteSuccess(w, http.StatusOK, "Attendee updated", result)
	}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.IdentityService.GetUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Me: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", err)
		return
	}
	if user == nil {
		utils.WriteError(w, http.StatusNotFound, "User not registered", nil)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "User", user)
}

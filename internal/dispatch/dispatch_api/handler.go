package dispatch_api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/auth"
	"ms-attendance/internal/dispatch"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	"ms-attendance/internal/utils"
)

type Handler struct {
	Dispatch   *dispatch.Service
	Logger     *logger.Logger
	StaffRoles []string
}

func NewHandler(svc *dispatch.Service, log *logger.Logger, staffRoles ...string) *Handler {
	return &Handler{Dispatch: svc, Logger: log, StaffRoles: staffRoles}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.StaffRoles...))
		r.Post("/events/{eventId}/vouchers/send", h.SendEventVouchers)
		r.Post("/legacy-attendees/{externalId}/vouchers/send", h.ResendLegacy)
	})
}

// SendEventVouchers handles POST /api/events/{eventId}/vouchers/send. With a
// queue configured the job is handed to the dispatch worker and 202 is
// returned; otherwise the mails are sent before responding.
func (h *Handler) SendEventVouchers(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	if h.Dispatch.Queue != nil {
		job := models.DispatchJob{EventID: eventID, RequestedBy: auth.UserID(r.Context()), RequestedAt: time.Now().UTC()}
		if err := h.Dispatch.Enqueue(r.Context(), job); err != nil {
			h.Logger.Error("API", fmt.Sprintf("SendEventVouchers enqueue: %v", err))
			utils.WriteError(w, http.StatusInternalServerError, "Failed to queue voucher mails", err)
			return
		}
		utils.WriteSuccess(w, http.StatusAccepted, "Voucher mails queued", job)
		return
	}

	report, err := h.Dispatch.SendEventVouchers(r.Context(), eventID)
	switch {
	case errors.Is(err, dispatch.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event not found", err)
	case err != nil:
		h.Logger.Error("API", fmt.Sprintf("SendEventVouchers: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to send voucher mails", err)
	default:
		utils.WriteJSON(w, http.StatusOK, report)
	}
}

// ResendLegacy handles POST /api/legacy-attendees/{externalId}/vouchers/send.
func (h *Handler) ResendLegacy(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalId")

	recipient, err := h.Dispatch.ResendLegacy(r.Context(), externalID)
	switch {
	case errors.Is(err, dispatch.ErrAttendeeNotFound):
		utils.WriteError(w, http.StatusNotFound, "Attendee not found", err)
	case errors.Is(err, dispatch.ErrNoVouchers):
		utils.WriteError(w, http.StatusNotFound, "El asistente no tiene códigos QR generados", err)
	case errors.Is(err, dispatch.ErrNoEmail):
		utils.WriteError(w, http.StatusBadRequest, "El asistente no tiene correo registrado", err)
	case errors.Is(err, dispatch.ErrNoEvent):
		utils.WriteError(w, http.StatusBadRequest, "No se encontró un evento asociado a estos códigos QR", err)
	case err != nil:
		h.Logger.Error("API", fmt.Sprintf("ResendLegacy: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to send voucher mail", err)
	default:
		utils.WriteSuccess(w, http.StatusOK, fmt.Sprintf("Códigos QR enviados a %s", recipient), nil)
	}
}

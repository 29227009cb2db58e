package certificates_api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/auth"
	"ms-attendance/internal/certificates"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/utils"
)

// MaxTemplateSize bounds an uploaded certificate template.
const MaxTemplateSize = 10 << 20

var errTemplateTooLarge = fmt.Errorf("plantilla exceeds %d bytes", MaxTemplateSize)

type Handler struct {
	Certificates *certificates.Service
	Logger       *logger.Logger
	StaffRoles   []string
}

func NewHandler(svc *certificates.Service, log *logger.Logger, staffRoles ...string) *Handler {
	return &Handler{Certificates: svc, Logger: log, StaffRoles: staffRoles}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.StaffRoles...))
		r.Put("/events/{eventId}/certificates/template", h.UploadTemplate)
		r.Post("/events/{eventId}/certificates/send", h.SendCertificates)
		r.Post("/events/{eventId}/certificates/preview", h.Preview)
	})
}

// readTemplate returns the "plantilla" file of a multipart request, nil when
// the request carries none.
func readTemplate(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(MaxTemplateSize); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	file, _, err := r.FormFile("plantilla")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxTemplateSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxTemplateSize {
		return nil, errTemplateTooLarge
	}
	return data, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, certificates.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event not found", err)
	case errors.Is(err, certificates.ErrNoTemplate):
		utils.WriteError(w, http.StatusBadRequest, "No hay plantilla de certificado configurada para este evento.", err)
	case errors.Is(err, certificates.ErrInvalidTemplate):
		utils.WriteError(w, http.StatusBadRequest, "Invalid certificate template", err)
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// UploadTemplate handles PUT /api/events/{eventId}/certificates/template.
func (h *Handler) UploadTemplate(w http.ResponseWriter, r *http.Request) {
	upload, err := readTemplate(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}
	if len(upload) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "plantilla is required", nil)
		return
	}

	key, err := h.Certificates.UploadTemplate(r.Context(), chi.URLParam(r, "eventId"), upload)
	if err != nil {
		h.fail(w, "UploadTemplate", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Template stored", map[string]string{"template": key})
}

// SendCertificates handles POST /api/events/{eventId}/certificates/send.
func (h *Handler) SendCertificates(w http.ResponseWriter, r *http.Request) {
	upload, err := readTemplate(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}

	report, err := h.Certificates.SendCertificates(r.Context(), chi.URLParam(r, "eventId"), upload)
	if err != nil {
		h.fail(w, "SendCertificates", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, report)
}

// Preview handles POST /api/events/{eventId}/certificates/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	upload, err := readTemplate(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}

	pdf, err := h.Certificates.Preview(r.Context(), chi.URLParam(r, "eventId"), upload)
	if err != nil {
		h.fail(w, "Preview", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="certificado_preview.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

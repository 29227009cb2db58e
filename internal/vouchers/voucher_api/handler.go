package voucher_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/auth"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	"ms-attendance/internal/utils"
	qr "ms-attendance/internal/vouchers/qr_generator"
	vouchers "ms-attendance/internal/vouchers/service"
)

// VoucherEngine is the part of the voucher service the handlers use.
type VoucherEngine interface {
	Scan(ctx context.Context, raw string) (*vouchers.RedeemResult, error)
	IssueForEvent(ctx context.Context, eventID string) (int, error)
	IssueSingle(ctx context.Context, holder models.Holder, category, eventID string) (*models.Voucher, bool, error)
	GetVoucher(ctx context.Context, id string) (*models.Voucher, error)
	ListForHolder(ctx context.Context, holder models.Holder, eventID string) ([]models.Voucher, error)
}

type Handler struct {
	Vouchers    VoucherEngine
	QRGenerator *qr.QRGenerator
	Logger      *logger.Logger
	// StaffRoles may scan and issue vouchers.
	StaffRoles []string
}

func NewHandler(engine VoucherEngine, qrGen *qr.QRGenerator, log *logger.Logger, staffRoles ...string) *Handler {
	return &Handler{
		Vouchers:    engine,
		QRGenerator: qrGen,
		Logger:      log,
		StaffRoles:  staffRoles,
	}
}

// RegisterRoutes mounts the voucher routes; the caller has already applied
// authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me/vouchers", h.ListMyVouchers)
	r.Get("/vouchers/{voucherId}", h.GetVoucher)
	r.Get("/vouchers/{voucherId}/qr", h.GetVoucherQR)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.StaffRoles...))
		r.Post("/vouchers/scan", h.Scan)
		r.Post("/vouchers", h.IssueSingle)
		r.Post("/events/{eventId}/vouchers", h.IssueForEvent)
	})
}

type scanRequest struct {
	Codigo string `json:"codigo"`
}

// ScanResponse is the body of every scan outcome.
type ScanResponse struct {
	Status     string                   `json:"status"`
	Reason     string                   `json:"reason,omitempty"`
	Holder     *models.HolderProjection `json:"holder,omitempty"`
	Category   string                   `json:"category,omitempty"`
	Event      *string                  `json:"event"`
	RedeemedAt *time.Time               `json:"redeemed_at,omitempty"`
}

// scanError is the body of scans that matched no voucher or could not run.
type scanError struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Scan handles POST /api/vouchers/scan with body {"codigo": "..."}.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Codigo) == "" {
		h.respond(w, r, start, http.StatusBadRequest, scanError{Status: "error", Reason: "codigo is required"})
		return
	}

	result, err := h.Vouchers.Scan(r.Context(), req.Codigo)
	if err != nil {
		h.Logger.Error("SCAN", fmt.Sprintf("Scan failed: %v", err))
		h.respond(w, r, start, http.StatusInternalServerError, scanError{Status: "error", Reason: "internal"})
		return
	}

	switch result.Outcome {
	case vouchers.OutcomeRedeemed:
		h.respond(w, r, start, http.StatusOK, scanBody("success", "", result))
	case vouchers.OutcomeAlreadyRedeemed:
		h.respond(w, r, start, http.StatusConflict, scanBody("error", string(vouchers.OutcomeAlreadyRedeemed), result))
	default:
		h.respond(w, r, start, http.StatusNotFound, scanError{Status: "error", Reason: string(vouchers.OutcomeNotFound)})
	}
}

func scanBody(status, reason string, result *vouchers.RedeemResult) ScanResponse {
	holder := result.Holder
	body := ScanResponse{
		Status:   status,
		Reason:   reason,
		Holder:   &holder,
		Category: result.Voucher.Category,
	}
	if result.Event != nil {
		title := result.Event.Title
		body.Event = &title
	}
	if !result.RedeemedAt.IsZero() {
		at := result.RedeemedAt
		body.RedeemedAt = &at
	}
	return body
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, start time.Time, status int, body interface{}) {
	utils.WriteJSON(w, status, body)
	h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", status), time.Since(start).String())
}

type issueRequest struct {
	HolderType string `json:"holder_type"`
	HolderID   string `json:"holder_id"`
	Category   string `json:"category"`
	EventID    string `json:"event_id,omitempty"`
}

func (req issueRequest) holder() models.Holder {
	switch strings.ToLower(req.HolderType) {
	case "user":
		return models.UserHolder(req.HolderID)
	case "legacy":
		return models.LegacyHolder(req.HolderID)
	default:
		return models.UnknownHolder()
	}
}

// IssueSingle handles POST /api/vouchers.
func (h *Handler) IssueSingle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, r, start, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	voucher, created, err := h.Vouchers.IssueSingle(r.Context(), req.holder(), req.Category, req.EventID)
	if err != nil {
		status, message := statusFor(err)
		h.respond(w, r, start, status, utils.ErrorResponse(message, err.Error()))
		return
	}

	if created {
		h.respond(w, r, start, http.StatusCreated, utils.SuccessResponse("Voucher issued", voucher))
		return
	}
	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Voucher already issued", voucher))
}

// IssueForEvent handles POST /api/events/{eventId}/vouchers.
func (h *Handler) IssueForEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventID := chi.URLParam(r, "eventId")

	created, err := h.Vouchers.IssueForEvent(r.Context(), eventID)
	if err != nil {
		status, message := statusFor(err)
		h.respond(w, r, start, status, utils.ErrorResponse(message, err.Error()))
		return
	}
	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse(
		fmt.Sprintf("%d vouchers generated", created),
		map[string]int{"created": created},
	))
}

// GetVoucher handles GET /api/vouchers/{voucherId}. Staff see any voucher,
// everyone else only their own.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	voucher, ok := h.loadVisibleVoucher(w, r, start)
	if !ok {
		return
	}
	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Voucher", voucher))
}

// GetVoucherQR handles GET /api/vouchers/{voucherId}/qr.
func (h *Handler) GetVoucherQR(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	voucher, ok := h.loadVisibleVoucher(w, r, start)
	if !ok {
		return
	}

	png, err := h.QRGenerator.GeneratePNG(voucher.ID)
	if err != nil {
		h.respond(w, r, start, http.StatusInternalServerError, utils.ErrorResponse("Failed to render QR", err.Error()))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s.png\"", voucher.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
	h.Logger.LogAPI(r.Method, r.URL.Path, "200", time.Since(start).String())
}

// ListMyVouchers handles GET /api/me/vouchers?event_id=...
func (h *Handler) ListMyVouchers(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	holder := models.UserHolder(auth.UserID(r.Context()))
	if holder.IsUnknown() {
		h.respond(w, r, start, http.StatusUnauthorized, utils.ErrorResponse("Authentication required", ""))
		return
	}

	list, err := h.Vouchers.ListForHolder(r.Context(), holder, r.URL.Query().Get("event_id"))
	if err != nil {
		status, message := statusFor(err)
		h.respond(w, r, start, status, utils.ErrorResponse(message, err.Error()))
		return
	}
	if list == nil {
		list = []models.Voucher{}
	}
	h.respond(w, r, start, http.StatusOK, utils.SuccessResponse("Vouchers", list))
}

func (h *Handler) loadVisibleVoucher(w http.ResponseWriter, r *http.Request, start time.Time) (*models.Voucher, bool) {
	voucher, err := h.Vouchers.GetVoucher(r.Context(), chi.URLParam(r, "voucherId"))
	if err != nil {
		status, message := statusFor(err)
		h.respond(w, r, start, status, utils.ErrorResponse(message, err.Error()))
		return nil, false
	}

	principal, _ := auth.PrincipalFrom(r.Context())
	if !principal.HasRole(h.StaffRoles...) && voucher.UserID != principal.UserID {
		h.respond(w, r, start, http.StatusNotFound, utils.ErrorResponse("Voucher not found", ""))
		return nil, false
	}
	return voucher, true
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, vouchers.ErrNotFound):
		return http.StatusNotFound, "Voucher not found"
	case errors.Is(err, vouchers.ErrEventNotFound):
		return http.StatusNotFound, "Event not found"
	case errors.Is(err, vouchers.ErrInvalidHolder), errors.Is(err, vouchers.ErrInvalidCategory):
		return http.StatusBadRequest, "Invalid voucher request"
	case errors.Is(err, vouchers.ErrAlreadyRedeemed):
		return http.StatusConflict, "Voucher already redeemed"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

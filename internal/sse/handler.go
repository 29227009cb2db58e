package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-attendance/internal/auth"
	"ms-attendance/internal/logger"
)

// Handler streams an event's redemptions as Server-Sent Events
type Handler struct {
	Feed       *ScanFeed
	Logger     *logger.Logger
	StaffRoles []string
}

func NewHandler(feed *ScanFeed, log *logger.Logger, staffRoles ...string) *Handler {
	return &Handler{Feed: feed, Logger: log, StaffRoles: staffRoles}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(auth.RequireRole(h.StaffRoles...)).Get("/events/{eventId}/scans/stream", h.HandleEventScans)
}

// HandleEventScans handles GET /api/events/{eventId}/scans/stream
func (h *Handler) HandleEventScans(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	events := h.Feed.Subscribe(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventID\":%q}\n\n", eventID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to scan feed of event %s", eventID))

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize redemption: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: redemption\ndata: %s\n\n", data)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from scan feed of event %s", eventID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

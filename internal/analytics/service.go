package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ms-attendance/internal/models"
)

const UndefinedAffiliation = "Sin Definir"

var ErrEventNotFound = errors.New("event not found")

type StatsDB interface {
	GetEventByID(ctx context.Context, eventID string) (*models.Event, error)
	CountRegistrations(ctx context.Context, eventID string) (int, error)
	GetVoucherCountsByCategory(ctx context.Context, eventID string) ([]CategoryCount, error)
	GetAttendeeAffiliations(ctx context.Context, eventID string) ([]string, error)
}

// Service handles analytics operations
type Service struct {
	db StatsDB
}

// NewService creates a new analytics service
func NewService(db StatsDB) *Service {
	return &Service{db: db}
}

// EventStats summarizes attendance and provision delivery of an event.
type EventStats struct {
	EventID              string          `json:"event_id"`
	Registrations        int             `json:"total_inscritos"`
	Attended             int             `json:"asistentes_reales"`
	AttendancePercentage float64         `json:"porcentaje_asistencia"`
	VouchersIssued       int             `json:"vouchers_emitidos"`
	VouchersRedeemed     int             `json:"vouchers_usados"`
	ProvisionsDelivered  int             `json:"refrigerios_entregados"`
	ProvisionQuota       int             `json:"total_refrigerios_disponibles"`
	ByCategory           []CategoryCount `json:"por_categoria"`
	ByAffiliation        map[string]int  `json:"asistencia_por_dependencia"`
}

// GetEventStats counts attendance from redeemed entry vouchers, not from the
// registration flag, so legacy attendees are included.
func (s *Service) GetEventStats(ctx context.Context, eventID string) (*EventStats, error) {
	event, err := s.db.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", eventID, err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	registrations, err := s.db.CountRegistrations(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations: %w", err)
	}

	counts, err := s.db.GetVoucherCountsByCategory(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count vouchers: %w", err)
	}

	affiliations, err := s.db.GetAttendeeAffiliations(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attendee affiliations: %w", err)
	}

	stats := &EventStats{
		EventID:        eventID,
		Registrations:  registrations,
		ProvisionQuota: event.ProvisionQuota,
		ByCategory:     counts,
		ByAffiliation:  CountByAffiliation(affiliations),
	}
	if stats.ByCategory == nil {
		stats.ByCategory = []CategoryCount{}
	}

	for _, c := range counts {
		stats.VouchersIssued += c.Issued
		stats.VouchersRedeemed += c.Redeemed
		if c.Category == models.CategoryEntry {
			stats.Attended = c.Redeemed
		} else {
			stats.ProvisionsDelivered += c.Redeemed
		}
	}
	if registrations > 0 {
		stats.AttendancePercentage = math.Round(float64(stats.Attended)/float64(registrations)*10000) / 100
	}
	return stats, nil
}

// CountByAffiliation title-cases affiliations and counts them. Blank ones
// count as UndefinedAffiliation.
func CountByAffiliation(affiliations []string) map[string]int {
	caser := cases.Title(language.Spanish)
	counts := make(map[string]int)
	for _, a := range affiliations {
		a = strings.TrimSpace(a)
		if a == "" {
			a = UndefinedAffiliation
		} else {
			a = caser.String(a)
		}
		counts[a]++
	}
	return counts
}

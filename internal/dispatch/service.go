package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrAttendeeNotFound = errors.New("legacy attendee not found")
	ErrNoVouchers       = errors.New("attendee has no vouchers")
	ErrNoEmail          = errors.New("attendee has no email address")
	ErrNoEvent          = errors.New("no event is linked to the attendee's vouchers")
	ErrInvalidJob       = errors.New("dispatch job names neither an event nor a legacy attendee")
	ErrNoQueue          = errors.New("dispatch queue is not configured")
)

type VoucherLister interface {
	ListForHolder(ctx context.Context, holder models.Holder, eventID string) ([]models.Voucher, error)
}

type EventLookup interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListRegistrants(ctx context.Context, eventID string) ([]models.RegistrationWithUser, error)
}

type LegacyLookup interface {
	FindLegacy(ctx context.Context, externalID string) (*models.LegacyAttendee, error)
}

type VoucherSender interface {
	SendVouchers(ctx context.Context, holder models.HolderProjection, event *models.Event, vouchers []models.Voucher) error
}

type JobQueue interface {
	PublishDispatch(ctx context.Context, job models.DispatchJob) error
}

// Service mails issued vouchers to their holders, either synchronously or
// through the dispatch queue.
type Service struct {
	Vouchers VoucherLister
	Events   EventLookup
	Legacy   LegacyLookup
	Sender   VoucherSender
	Queue    JobQueue
	Logger   *logger.Logger
}

func NewService(vouchers VoucherLister, events EventLookup, legacy LegacyLookup, sender VoucherSender, log *logger.Logger) *Service {
	return &Service{
		Vouchers: vouchers,
		Events:   events,
		Legacy:   legacy,
		Sender:   sender,
		Logger:   log,
	}
}

// EventReport is the outcome of mailing an event's vouchers.
type EventReport struct {
	Message      string   `json:"message"`
	Sent         int      `json:"sent_count"`
	Errors       int      `json:"error_count"`
	ErrorDetails []string `json:"error_details"`
}

// SendEventVouchers mails every registrant that has an email address and at
// least one voucher for the event. A failed send is counted and reported, it
// does not stop the run.
func (s *Service) SendEventVouchers(ctx context.Context, eventID string) (*EventReport, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", eventID, err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	registrants, err := s.Events.ListRegistrants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrants of %s: %w", eventID, err)
	}

	report := &EventReport{ErrorDetails: []string{}}
	for _, r := range registrants {
		if r.User == nil || r.User.Email == "" {
			continue
		}

		vouchers, err := s.Vouchers.ListForHolder(ctx, models.UserHolder(r.User.ID), eventID)
		if err != nil {
			return nil, fmt.Errorf("failed to list vouchers of %s: %w", r.User.ID, err)
		}
		if len(vouchers) == 0 {
			continue
		}

		if err := s.Sender.SendVouchers(ctx, r.User.Projection(), event, vouchers); err != nil {
			report.Errors++
			report.ErrorDetails = append(report.ErrorDetails, fmt.Sprintf("%s: %v", r.User.Email, err))
			continue
		}
		report.Sent++
	}

	report.Message = fmt.Sprintf("Proceso finalizado. Emails enviados: %d. Errores: %d", report.Sent, report.Errors)
	s.Logger.LogDispatch("EVENT", eventID, report.Message)
	return report, nil
}

// ResendLegacy mails a legacy attendee the vouchers of the event linked to
// their earliest event voucher, together with any orphan vouchers. It returns
// the address mailed.
func (s *Service) ResendLegacy(ctx context.Context, externalID string) (string, error) {
	attendee, err := s.Legacy.FindLegacy(ctx, externalID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch legacy attendee %s: %w", externalID, err)
	}
	if attendee == nil {
		return "", ErrAttendeeNotFound
	}

	vouchers, err := s.Vouchers.ListForHolder(ctx, models.LegacyHolder(externalID), "")
	if err != nil {
		return "", fmt.Errorf("failed to list vouchers of %s: %w", externalID, err)
	}
	if len(vouchers) == 0 {
		return "", ErrNoVouchers
	}
	if attendee.Email == "" {
		return "", ErrNoEmail
	}

	eventID := ""
	for _, v := range vouchers {
		if v.EventID != "" {
			eventID = v.EventID
			break
		}
	}
	if eventID == "" {
		return "", ErrNoEvent
	}
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch event %s: %w", eventID, err)
	}
	if event == nil {
		return "", ErrNoEvent
	}

	selected := make([]models.Voucher, 0, len(vouchers))
	for _, v := range vouchers {
		if v.EventID == "" || v.EventID == eventID {
			selected = append(selected, v)
		}
	}

	if err := s.Sender.SendVouchers(ctx, attendee.Projection(), event, selected); err != nil {
		return "", fmt.Errorf("failed to send vouchers to %s: %w", attendee.Email, err)
	}
	s.Logger.LogDispatch("LEGACY", attendee.Email, fmt.Sprintf("%d vouchers of event %s", len(selected), eventID))
	return attendee.Email, nil
}

// Enqueue hands a dispatch job to the queue for the dispatch worker.
func (s *Service) Enqueue(ctx context.Context, job models.DispatchJob) error {
	if s.Queue == nil {
		return ErrNoQueue
	}
	if job.EventID == "" && job.LegacyID == "" {
		return ErrInvalidJob
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	if err := s.Queue.PublishDispatch(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue dispatch job: %w", err)
	}
	return nil
}

// HandleJob runs a queued dispatch job.
func (s *Service) HandleJob(ctx context.Context, job models.DispatchJob) error {
	switch {
	case job.EventID != "":
		_, err := s.SendEventVouchers(ctx, job.EventID)
		return err
	case job.LegacyID != "":
		_, err := s.ResendLegacy(ctx, job.LegacyID)
		return err
	default:
		return ErrInvalidJob
	}
}

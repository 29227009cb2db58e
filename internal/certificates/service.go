package certificates

import (
	"context"
	"errors"
	"fmt"

	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

const (
	PreviewName     = "JUAN PEREZ (VISTA PREVIA)"
	PreviewIdentity = "123456789"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrNoTemplate    = errors.New("no certificate template configured for this event")
)

type EventStore interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListRegistrants(ctx context.Context, eventID string) ([]models.RegistrationWithUser, error)
	SetCertificateTemplate(ctx context.Context, eventID, templateKey string) error
}

type DocumentRenderer interface {
	Render(name, identity string, template []byte) ([]byte, error)
}

type CertificateSender interface {
	SendCertificate(ctx context.Context, holder models.HolderProjection, event *models.Event, pdf []byte) error
}

type Service struct {
	Events    EventStore
	Templates TemplateStore
	Renderer  DocumentRenderer
	Sender    CertificateSender
	Logger    *logger.Logger
}

func NewService(events EventStore, templates TemplateStore, renderer DocumentRenderer, sender CertificateSender, log *logger.Logger) *Service {
	return &Service{
		Events:    events,
		Templates: templates,
		Renderer:  renderer,
		Sender:    sender,
		Logger:    log,
	}
}

// Report is the outcome of a bulk certificate run.
type Report struct {
	Message   string   `json:"message"`
	Generated int      `json:"generated_count"`
	Sent      int      `json:"email_sent_count"`
	Errors    []string `json:"errors"`
}

func (s *Service) event(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", eventID, err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// UploadTemplate stores a new template for the event and links it.
func (s *Service) UploadTemplate(ctx context.Context, eventID string, data []byte) (string, error) {
	event, err := s.event(ctx, eventID)
	if err != nil {
		return "", err
	}
	return s.storeTemplate(ctx, event, data)
}

func (s *Service) storeTemplate(ctx context.Context, event *models.Event, data []byte) (string, error) {
	if !IsPDF(data) {
		return "", ErrInvalidTemplate
	}
	key := fmt.Sprintf("event-%s.pdf", event.ID)
	if err := s.Templates.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to store template: %w", err)
	}
	if err := s.Events.SetCertificateTemplate(ctx, event.ID, key); err != nil {
		return "", fmt.Errorf("failed to link template: %w", err)
	}
	event.CertificateTemplate = key
	s.Logger.Info("CERTIFICATES", fmt.Sprintf("Stored template %s for event %s", key, event.ID))
	return key, nil
}

func (s *Service) template(ctx context.Context, event *models.Event, upload []byte) ([]byte, error) {
	if len(upload) > 0 {
		if _, err := s.storeTemplate(ctx, event, upload); err != nil {
			return nil, err
		}
		return upload, nil
	}
	if event.CertificateTemplate == "" {
		return nil, ErrNoTemplate
	}
	data, err := s.Templates.Get(ctx, event.CertificateTemplate)
	if errors.Is(err, ErrTemplateNotFound) {
		return nil, ErrNoTemplate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return data, nil
}

// SendCertificates renders and mails a certificate to every registrant marked
// attended that has an email address. A non-empty upload replaces the event's
// template first.
func (s *Service) SendCertificates(ctx context.Context, eventID string, upload []byte) (*Report, error) {
	event, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	template, err := s.template(ctx, event, upload)
	if err != nil {
		return nil, err
	}

	registrants, err := s.Events.ListRegistrants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrants of %s: %w", eventID, err)
	}

	report := &Report{Errors: []string{}}
	for _, r := range registrants {
		if !r.Attended || r.User == nil || r.User.Email == "" {
			continue
		}

		pdf, err := s.Renderer.Render(r.User.FullName, r.User.ID, template)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", r.User.Email, err))
			continue
		}
		report.Generated++

		if err := s.Sender.SendCertificate(ctx, r.User.Projection(), event, pdf); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", r.User.Email, err))
			continue
		}
		report.Sent++
	}

	report.Message = fmt.Sprintf("Proceso finalizado. Certificados generados: %d. Emails enviados: %d.", report.Generated, report.Sent)
	s.Logger.Info("CERTIFICATES", fmt.Sprintf("Event %s: %s", eventID, report.Message))
	return report, nil
}

// Preview renders the template with placeholder attendee data.
func (s *Service) Preview(ctx context.Context, eventID string, upload []byte) ([]byte, error) {
	event, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	template, err := s.template(ctx, event, upload)
	if err != nil {
		return nil, err
	}
	return s.Renderer.Render(PreviewName, PreviewIdentity, template)
}

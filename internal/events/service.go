package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-attendance/internal/events/db"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrAlreadyEnrolled = errors.New("already enrolled in event")
	ErrUnknownUser     = errors.New("user not registered")
)

type EventDBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	ListEventsForUser(ctx context.Context, userID string) ([]models.Event, error)
	Enroll(ctx context.Context, registration *models.Registration) error
	ListRegistrants(ctx context.Context, eventID string) ([]models.RegistrationWithUser, error)
}

type UserLookup interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
}

type EventService struct {
	DB     EventDBLayer
	Users  UserLookup
	Logger *logger.Logger
}

func NewEventService(db EventDBLayer, users UserLookup, log *logger.Logger) *EventService {
	return &EventService{DB: db, Users: users, Logger: log}
}

// CreateEventInput is the body of an event creation request.
type CreateEventInput struct {
	Title             string                  `json:"title"`
	Description       string                  `json:"description"`
	Venue             string                  `json:"venue"`
	StartsAt          time.Time               `json:"starts_at"`
	EndsAt            *time.Time              `json:"ends_at,omitempty"`
	RequiresProvision bool                    `json:"requires_provision"`
	ProvisionQuota    int                     `json:"provision_quota"`
	ProvisionDetails  models.ProvisionDetails `json:"provision_details"`
}

func (in CreateEventInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	case in.StartsAt.IsZero():
		return fmt.Errorf("%w: starts_at is required", ErrInvalidEvent)
	case in.EndsAt != nil && in.EndsAt.Before(in.StartsAt):
		return fmt.Errorf("%w: ends_at is before starts_at", ErrInvalidEvent)
	case in.ProvisionQuota < 0:
		return fmt.Errorf("%w: provision_quota must not be negative", ErrInvalidEvent)
	}
	return nil
}

func (s *EventService) CreateEvent(ctx context.Context, in CreateEventInput, createdBy string) (*models.Event, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:                uuid.NewString(),
		Title:             strings.TrimSpace(in.Title),
		Description:       in.Description,
		Venue:             in.Venue,
		StartsAt:          in.StartsAt,
		EndsAt:            in.EndsAt,
		RequiresProvision: in.RequiresProvision,
		ProvisionQuota:    in.ProvisionQuota,
		ProvisionDetails:  in.ProvisionDetails,
		CreatedBy:         createdBy,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.Logger.Info("EVENT", fmt.Sprintf("Event %s created by %s with categories %v", event.ID, createdBy, event.VoucherCategories()))
	return event, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", id, err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (s *EventService) ListEvents(ctx context.Context) ([]models.Event, error) {
	events, err := s.DB.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// Join enrolls a registered user in an event.
func (s *EventService) Join(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	user, err := s.Users.FindUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}
	if user == nil {
		return nil, ErrUnknownUser
	}

	registration := &models.Registration{
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	err = s.DB.Enroll(ctx, registration)
	if errors.Is(err, db.ErrAlreadyEnrolled) {
		return nil, ErrAlreadyEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enroll user %s: %w", userID, err)
	}

	s.Logger.Info("EVENT", fmt.Sprintf("User %s joined event %s", userID, eventID))
	return registration, nil
}

func (s *EventService) Registrants(ctx context.Context, eventID string) ([]models.RegistrationWithUser, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	registrants, err := s.DB.ListRegistrants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrants of %s: %w", eventID, err)
	}
	return registrants, nil
}

func (s *EventService) MyEvents(ctx context.Context, userID string) ([]models.Event, error) {
	events, err := s.DB.ListEventsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of user %s: %w", userID, err)
	}
	return events, nil
}

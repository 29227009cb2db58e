package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-attendance/internal/database"
	"ms-attendance/internal/models"
)

var ErrAlreadyEnrolled = errors.New("already enrolled in event")

type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

// CreateEvent → insert new event
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

// GetEvent → nil, nil when the event does not exist
func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents → all events, most recent first
func (d *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Order("starts_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListEventsForUser → events the user is enrolled in
func (d *DB) ListEventsForUser(ctx context.Context, userID string) ([]models.Event, error) {
	enrolled := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Column("event_id").
		Where("user_id = ?", userID)

	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("id IN (?)", enrolled).
		Order("starts_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// SetCertificateTemplate → point the event at a stored certificate template
func (d *DB) SetCertificateTemplate(ctx context.Context, eventID, templateKey string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("certificate_template = ?", templateKey).
		Where("id = ?", eventID).
		Exec(ctx)
	return err
}

// ---------------- REGISTRATIONS ----------------

// Enroll → insert a registration, ErrAlreadyEnrolled when the pair exists
func (d *DB) Enroll(ctx context.Context, registration *models.Registration) error {
	_, err := d.Bun.NewInsert().Model(registration).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return ErrAlreadyEnrolled
	}
	return err
}

// GetRegistration → nil, nil when the user is not enrolled
func (d *DB) GetRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	var registration models.Registration
	err := d.Bun.NewSelect().
		Model(&registration).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &registration, nil
}

// SetAttended marks the registration attended. Repeating it is harmless.
func (d *DB) SetAttended(ctx context.Context, registration *models.Registration) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("attended = ?", true).
		Where("id = ?", registration.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	registration.Attended = true
	return nil
}

// ListRegistrations → registrations of an event in enrollment order
func (d *DB) ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	var registrations []models.Registration
	err := d.Bun.NewSelect().
		Model(&registrations).
		Where("event_id = ?", eventID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return registrations, nil
}

// ListRegistrants → registrations joined with their users. A registration
// whose user row is missing keeps a nil User.
func (d *DB) ListRegistrants(ctx context.Context, eventID string) ([]models.RegistrationWithUser, error) {
	registrations, err := d.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(registrations) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(registrations))
	for _, r := range registrations {
		ids = append(ids, r.UserID)
	}

	var users []models.User
	err = d.Bun.NewSelect().
		Model(&users).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	result := make([]models.RegistrationWithUser, 0, len(registrations))
	for _, r := range registrations {
		result = append(result, models.RegistrationWithUser{Registration: r, User: byID[r.UserID]})
	}
	return result, nil
}

// CountRegistrations → number of registrations of an event
func (d *DB) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
}

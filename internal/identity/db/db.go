package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-attendance/internal/database"
	"ms-attendance/internal/models"
)

var ErrUserExists = errors.New("user already exists")

type DB struct {
	Bun *bun.DB
}

// ---------------- USERS ----------------

// FindUser → nil, nil when no user has that id
func (d *DB) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser → insert a new user, ErrUserExists on duplicate id or email
func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(user).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return ErrUserExists
	}
	return err
}

// ---------------- LEGACY ATTENDEES ----------------

// FindLegacy → nil, nil when no legacy attendee has that external id
func (d *DB) FindLegacy(ctx context.Context, externalID string) (*models.LegacyAttendee, error) {
	var attendee models.LegacyAttendee
	err := d.Bun.NewSelect().
		Model(&attendee).
		Where("external_id = ?", externalID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attendee, nil
}

// UpsertLegacy creates the attendee or refreshes its contact fields.
// created reports whether a new row was inserted.
func (d *DB) UpsertLegacy(ctx context.Context, attendee *models.LegacyAttendee) (bool, error) {
	created := false
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*models.LegacyAttendee)(nil)).
			Where("external_id = ?", attendee.ExternalID).
			Exists(ctx)
		if err != nil {
			return err
		}

		if exists {
			_, err = tx.NewUpdate().
				Model(attendee).
				Column("full_name", "email", "phone", "affiliation").
				Where("external_id = ?", attendee.ExternalID).
				Exec(ctx)
			return err
		}

		if attendee.CreatedAt.IsZero() {
			attendee.CreatedAt = time.Now().UTC()
		}
		if _, err = tx.NewInsert().Model(attendee).Exec(ctx); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

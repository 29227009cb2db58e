package analytics

import (
	"context"

	"github.com/uptrace/bun"

	"ms-attendance/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// CategoryCount is the number of issued and redeemed vouchers of a category.
type CategoryCount struct {
	Category string `bun:"category" json:"category"`
	Issued   int    `bun:"issued" json:"issued"`
	Redeemed int    `bun:"redeemed" json:"redeemed"`
}

// GetEventByID returns nil when the event does not exist
func (db *DB) GetEventByID(ctx context.Context, eventID string) (*models.Event, error) {
	var events []models.Event
	err := db.bun.NewSelect().
		Model(&events).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// CountRegistrations counts enrollments of an event
func (db *DB) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	return db.bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
}

// GetVoucherCountsByCategory groups the vouchers of an event by category
func (db *DB) GetVoucherCountsByCategory(ctx context.Context, eventID string) ([]CategoryCount, error) {
	var counts []CategoryCount
	err := db.bun.NewRaw(`
		SELECT
			category,
			COUNT(*) AS issued,
			SUM(CASE WHEN redeemed THEN 1 ELSE 0 END) AS redeemed
		FROM
			vouchers
		WHERE
			event_id = ?
		GROUP BY
			category
		ORDER BY
			category`, eventID).
		Scan(ctx, &counts)
	return counts, err
}

// GetAttendeeAffiliations lists the affiliation of every holder whose entry
// voucher for the event was redeemed. A user's affiliation wins over a legacy
// attendee's; holders without one yield an empty string.
func (db *DB) GetAttendeeAffiliations(ctx context.Context, eventID string) ([]string, error) {
	var affiliations []string
	err := db.bun.NewRaw(`
		SELECT
			COALESCE(u.affiliation, l.affiliation, '') AS affiliation
		FROM
			vouchers v
		LEFT JOIN
			users u ON u.id = v.user_id
		LEFT JOIN
			legacy_attendees l ON l.external_id = v.legacy_id
		WHERE
			v.event_id = ? AND v.category = ? AND v.redeemed`, eventID, models.CategoryEntry).
		Scan(ctx, &affiliations)
	return affiliations, err
}

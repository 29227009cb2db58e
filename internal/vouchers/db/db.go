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

type DB struct {
	Bun *bun.DB
}

// GetVoucherByID returns nil without error when no voucher has that id.
func (d *DB) GetVoucherByID(ctx context.Context, id string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := d.Bun.NewSelect().
		Model(&voucher).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// GetVoucherByIssueKey returns the voucher covering an (event, holder, category) key.
func (d *DB) GetVoucherByIssueKey(ctx context.Context, key string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := d.Bun.NewSelect().
		Model(&voucher).
		Where("issue_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// ListVouchersByIdentity returns every voucher whose user or legacy attendee
// carries the given identity string.
func (d *DB) ListVouchersByIdentity(ctx context.Context, identity string) ([]models.Voucher, error) {
	var vouchers []models.Voucher
	err := d.Bun.NewSelect().
		Model(&vouchers).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("user_id = ?", identity).WhereOr("legacy_id = ?", identity)
		}).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

// ListVouchersByHolder returns the holder's vouchers, optionally restricted to one event.
func (d *DB) ListVouchersByHolder(ctx context.Context, holder models.Holder, eventID string) ([]models.Voucher, error) {
	var vouchers []models.Voucher
	q := d.Bun.NewSelect().Model(&vouchers)

	switch holder.Kind() {
	case models.HolderUser:
		q = q.Where("user_id = ?", holder.ID())
	case models.HolderLegacy:
		q = q.Where("legacy_id = ?", holder.ID())
	default:
		return nil, nil
	}
	if eventID != "" {
		q = q.Where("event_id = ?", eventID)
	}

	if err := q.Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (d *DB) ListVouchersByEvent(ctx context.Context, eventID string) ([]models.Voucher, error) {
	var vouchers []models.Voucher
	err := d.Bun.NewSelect().
		Model(&vouchers).
		Where("event_id = ?", eventID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

// InsertVoucherIfAbsent inserts the voucher unless its issue key is already
// taken. created is false when another voucher already covers the key,
// including when a concurrent insert won the race.
func (d *DB) InsertVoucherIfAbsent(ctx context.Context, voucher *models.Voucher) (bool, error) {
	q := d.Bun.NewInsert().Model(voucher)
	if voucher.IssueKey != "" {
		q = q.On("CONFLICT (issue_key) DO NOTHING")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkRedeemed flips redeemed from false to true in a single conditional
// update. It reports false when the voucher was already redeemed (or is gone).
func (d *DB) MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Voucher)(nil)).
		Set("redeemed = ?", true).
		Set("redeemed_at = ?", at).
		Where("id = ?", id).
		Where("redeemed = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CountVouchers returns the total number of vouchers.
func (d *DB) CountVouchers(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Voucher)(nil)).
		Count(ctx)
}

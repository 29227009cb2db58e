package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// CategoryEntry is the reserved category of event entry vouchers.
	CategoryEntry = "ENTRADA"
	// CategoryDefaultProvision is issued when an event only sets requires_provision.
	CategoryDefaultProvision = "REFRIGERIO"
)

// Voucher is a single-use code for event entry or for one provision category.
//
// UserID and LegacyID are the persisted form of Holder. They are set only by
// NewVoucher, so at most one of them is ever non-empty.
type Voucher struct {
	bun.BaseModel `bun:"table:vouchers"`

	ID         string     `bun:"id,pk" json:"id"`
	EventID    string     `bun:"event_id,nullzero" json:"event_id,omitempty"`
	UserID     string     `bun:"user_id,nullzero" json:"user_id,omitempty"`
	LegacyID   string     `bun:"legacy_id,nullzero" json:"legacy_id,omitempty"`
	Category   string     `bun:"category,notnull" json:"category"`
	IssueKey   string     `bun:"issue_key,nullzero,unique" json:"-"`
	Redeemed   bool       `bun:"redeemed,notnull" json:"redeemed"`
	RedeemedAt *time.Time `bun:"redeemed_at" json:"redeemed_at,omitempty"`
	CreatedAt  time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// NewVoucher builds an unredeemed voucher with a random id. eventID may be
// empty for vouchers that are not tied to an event.
func NewVoucher(eventID string, holder Holder, category string, now time.Time) Voucher {
	v := Voucher{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Category:  category,
		CreatedAt: now,
	}
	switch holder.Kind() {
	case HolderUser:
		v.UserID = holder.ID()
	case HolderLegacy:
		v.LegacyID = holder.ID()
	}
	if !holder.IsUnknown() {
		v.IssueKey = IssueKey(eventID, holder, category)
	}
	return v
}

// IssueKey is the uniqueness key of a voucher: one per (event, holder, category).
func IssueKey(eventID string, holder Holder, category string) string {
	if eventID == "" {
		eventID = "-"
	}
	return strings.Join([]string{eventID, holder.Key(), category}, "|")
}

func (v *Voucher) Holder() Holder {
	switch {
	case v.UserID != "":
		return UserHolder(v.UserID)
	case v.LegacyID != "":
		return LegacyHolder(v.LegacyID)
	default:
		return UnknownHolder()
	}
}

func (v *Voucher) IsEntry() bool {
	return v.Category == CategoryEntry
}

// CategoryLabel is the human label used in mails.
func (v *Voucher) CategoryLabel() string {
	if v.IsEntry() {
		return "Entrada al Evento"
	}
	return v.Category
}

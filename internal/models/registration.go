package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Registration enrolls a user in an event. Attended is only set by redeeming
// the user's entry voucher.
type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID   string    `bun:"event_id,notnull,unique:event_user" json:"event_id"`
	UserID    string    `bun:"user_id,notnull,unique:event_user" json:"user_id"`
	Attended  bool      `bun:"attended,notnull" json:"attended"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// RegistrationWithUser is a registration joined with its user.
type RegistrationWithUser struct {
	Registration
	User *User `json:"user"`
}

package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	UnknownName  = "Desconocido"
	UnknownField = "N/A"
)

// Role values of User.Role.
const (
	RoleStudent = "Estudiante"
	RoleGuest   = "Asistente"
	RoleTeacher = "Docente"
	RoleAdmin   = "Administrador"
)

// User is a registered account. ID is the person's identity document number.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          string    `bun:"id,pk" json:"id"`
	FullName    string    `bun:"full_name,notnull" json:"full_name"`
	Email       string    `bun:"email,nullzero,unique" json:"email,omitempty"`
	Role        string    `bun:"role,notnull" json:"role"`
	Affiliation string    `bun:"affiliation,nullzero" json:"affiliation,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// LegacyAttendee is an imported attendee without an account.
type LegacyAttendee struct {
	bun.BaseModel `bun:"table:legacy_attendees"`

	ExternalID  string    `bun:"external_id,pk" json:"external_id"`
	FullName    string    `bun:"full_name,notnull" json:"full_name"`
	Email       string    `bun:"email,nullzero" json:"email,omitempty"`
	Phone       string    `bun:"phone,nullzero" json:"phone,omitempty"`
	Affiliation string    `bun:"affiliation,nullzero" json:"affiliation,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// HolderProjection is the normalized view of a voucher holder used by scan
// responses and mails.
type HolderProjection struct {
	DisplayName string `json:"nombre_completo"`
	Identity    string `json:"identificacion"`
	Affiliation string `json:"sede"`
	Email       string `json:"email,omitempty"`
}

// Attendee is implemented by every kind of voucher holder.
type Attendee interface {
	Projection() HolderProjection
}

func (u *User) Projection() HolderProjection {
	return HolderProjection{
		DisplayName: u.FullName,
		Identity:    u.ID,
		Affiliation: orUnknown(u.Affiliation),
		Email:       u.Email,
	}
}

func (a *LegacyAttendee) Projection() HolderProjection {
	return HolderProjection{
		DisplayName: a.FullName,
		Identity:    a.ExternalID,
		Affiliation: orUnknown(a.Affiliation),
		Email:       a.Email,
	}
}

// UnknownProjection is used when a voucher has no holder or the holder no
// longer exists.
func UnknownProjection() HolderProjection {
	return HolderProjection{
		DisplayName: UnknownName,
		Identity:    UnknownField,
		Affiliation: UnknownField,
		Email:       UnknownField,
	}
}

// Reachable reports whether the projection carries a usable mail address.
func (p HolderProjection) Reachable() bool {
	return p.Email != "" && p.Email != UnknownField
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownField
	}
	return s
}

package models

// HolderKind tells which kind of attendee a voucher belongs to.
type HolderKind int

const (
	HolderUnknown HolderKind = iota
	HolderUser
	HolderLegacy
)

func (k HolderKind) String() string {
	switch k {
	case HolderUser:
		return "user"
	case HolderLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Holder is the owner of a voucher: a registered user, a legacy (imported)
// attendee, or nobody. The zero value is the unknown holder.
type Holder struct {
	kind HolderKind
	id   string
}

func UserHolder(userID string) Holder {
	if userID == "" {
		return Holder{}
	}
	return Holder{kind: HolderUser, id: userID}
}

func LegacyHolder(externalID string) Holder {
	if externalID == "" {
		return Holder{}
	}
	return Holder{kind: HolderLegacy, id: externalID}
}

func UnknownHolder() Holder {
	return Holder{}
}

func (h Holder) Kind() HolderKind { return h.kind }

// ID returns the user id or legacy external id, empty for the unknown holder.
func (h Holder) ID() string { return h.id }

func (h Holder) IsUser() bool    { return h.kind == HolderUser }
func (h Holder) IsLegacy() bool  { return h.kind == HolderLegacy }
func (h Holder) IsUnknown() bool { return h.kind == HolderUnknown }

// Key is the holder part of a voucher issue key.
func (h Holder) Key() string {
	if h.kind == HolderUnknown {
		return ""
	}
	return h.kind.String() + ":" + h.id
}

func (h Holder) String() string {
	if h.kind == HolderUnknown {
		return "unknown"
	}
	return h.Key()
}

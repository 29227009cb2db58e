package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-attendance/internal/identity/db"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

var (
	ErrInvalidUser     = errors.New("invalid user")
	ErrInvalidAttendee = errors.New("invalid legacy attendee")
	ErrUserExists      = db.ErrUserExists
)

var knownRoles = map[string]bool{
	models.RoleStudent: true,
	models.RoleGuest:   true,
	models.RoleTeacher: true,
	models.RoleAdmin:   true,
}

type IdentityDBLayer interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	FindLegacy(ctx context.Context, externalID string) (*models.LegacyAttendee, error)
	UpsertLegacy(ctx context.Context, attendee *models.LegacyAttendee) (bool, error)
}

// VoucherIssuer issues the entry voucher of a newly imported attendee.
type VoucherIssuer interface {
	IssueSingle(ctx context.Context, holder models.Holder, category, eventID string) (*models.Voucher, bool, error)
}

type IdentityService struct {
	DB       IdentityDBLayer
	Vouchers VoucherIssuer
	Logger   *logger.Logger
}

func NewIdentityService(db IdentityDBLayer, issuer VoucherIssuer, log *logger.Logger) *IdentityService {
	return &IdentityService{DB: db, Vouchers: issuer, Logger: log}
}

func (s *IdentityService) RegisterUser(ctx context.Context, user models.User) (*models.User, error) {
	user.ID = strings.TrimSpace(user.ID)
	user.FullName = strings.TrimSpace(user.FullName)
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Role == "" {
		user.Role = models.RoleStudent
	}

	switch {
	case user.ID == "":
		return nil, fmt.Errorf("%w: id is required", ErrInvalidUser)
	case user.FullName == "":
		return nil, fmt.Errorf("%w: full_name is required", ErrInvalidUser)
	case !knownRoles[user.Role]:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, user.Role)
	}

	if err := s.DB.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, db.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.Logger.Info("IDENTITY", fmt.Sprintf("User %s registered as %s", user.ID, user.Role))
	return &user, nil
}

func (s *IdentityService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.DB.FindUser(ctx, id)
}

// LegacyResult is the outcome of a legacy attendee upsert. Voucher is only set
// when the attendee was created.
type LegacyResult struct {
	Attendee *models.LegacyAttendee `json:"attendee"`
	Created  bool                   `json:"created"`
	Voucher  *models.Voucher        `json:"voucher,omitempty"`
}

// UpsertLegacy stores an imported attendee. A new attendee also receives an
// entry voucher that belongs to no event.
func (s *IdentityService) UpsertLegacy(ctx context.Context, attendee models.LegacyAttendee) (*LegacyResult, error) {
	attendee.ExternalID = strings.TrimSpace(attendee.ExternalID)
	attendee.FullName = strings.TrimSpace(attendee.FullName)
	attendee.Email = strings.ToLower(strings.TrimSpace(attendee.Email))
	if attendee.ExternalID == "" {
		return nil, fmt.Errorf("%w: external_id is required", ErrInvalidAttendee)
	}
	if attendee.FullName == "" {
		return nil, fmt.Errorf("%w: full_name is required", ErrInvalidAttendee)
	}

	created, err := s.DB.UpsertLegacy(ctx, &attendee)
	if err != nil {
		return nil, fmt.Errorf("failed to store legacy attendee: %w", err)
	}
	result := &LegacyResult{Attendee: &attendee, Created: created}
	if !created {
		return result, nil
	}

	voucher, _, err := s.Vouchers.IssueSingle(ctx, models.LegacyHolder(attendee.ExternalID), models.CategoryEntry, "")
	if err != nil {
		return nil, fmt.Errorf("failed to issue entry voucher for %s: %w", attendee.ExternalID, err)
	}
	result.Voucher = voucher
	s.Logger.Info("IDENTITY", fmt.Sprintf("Legacy attendee %s created with voucher %s", attendee.ExternalID, voucher.ID))
	return result, nil
}

package vouchers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

type VoucherStore interface {
	GetVoucherByID(ctx context.Context, id string) (*models.Voucher, error)
	GetVoucherByIssueKey(ctx context.Context, key string) (*models.Voucher, error)
	ListVouchersByIdentity(ctx context.Context, identity string) ([]models.Voucher, error)
	ListVouchersByHolder(ctx context.Context, holder models.Holder, eventID string) ([]models.Voucher, error)
	InsertVoucherIfAbsent(ctx context.Context, voucher *models.Voucher) (bool, error)
	MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error)
}

// IdentityStore returns nil, nil for an unknown id.
type IdentityStore interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
	FindLegacy(ctx context.Context, externalID string) (*models.LegacyAttendee, error)
}

// EventRegistry returns nil, nil for a missing event or registration.
type EventRegistry interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error)
	SetAttended(ctx context.Context, registration *models.Registration) error
	ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error)
}

// IssuanceLock serializes bulk issuance per event across instances.
type IssuanceLock interface {
	Acquire(ctx context.Context, eventID string) (token string, ok bool, err error)
	Release(ctx context.Context, eventID, token string) error
}

type RedemptionPublisher interface {
	PublishRedemption(ctx context.Context, event models.VoucherRedeemedEvent) error
}

type ScanEmitter interface {
	EmitRedemption(event models.VoucherRedeemedEvent)
}

type Outcome string

const (
	OutcomeRedeemed        Outcome = "redeemed"
	OutcomeAlreadyRedeemed Outcome = "already_used"
	OutcomeNotFound        Outcome = "not_found"
)

// RedeemResult is the outcome of a redemption or scan. Voucher, Holder and
// RedeemedAt are empty for OutcomeNotFound; Event is nil for orphan vouchers.
type RedeemResult struct {
	Outcome    Outcome
	Voucher    *models.Voucher
	Holder     models.HolderProjection
	Event      *models.Event
	RedeemedAt time.Time
}

// Err is nil for a fresh redemption.
func (r *RedeemResult) Err() error {
	switch r.Outcome {
	case OutcomeRedeemed:
		return nil
	case OutcomeAlreadyRedeemed:
		return &AlreadyRedeemedError{VoucherID: r.Voucher.ID, RedeemedAt: r.RedeemedAt}
	default:
		return ErrNotFound
	}
}

type VoucherService struct {
	DB       VoucherStore
	Identity IdentityStore
	Events   EventRegistry
	Logger   *logger.Logger

	// Optional collaborators.
	Lock      IssuanceLock
	Publisher RedemptionPublisher
	Emitter   ScanEmitter

	Now func() time.Time
}

func NewVoucherService(db VoucherStore, identity IdentityStore, events EventRegistry, log *logger.Logger) *VoucherService {
	return &VoucherService{
		DB:       db,
		Identity: identity,
		Events:   events,
		Logger:   log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *VoucherService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// ---------------- ISSUANCE ----------------

// IssueForEvent makes sure every registrant of the event holds one voucher per
// category of the event. It returns how many vouchers were created; re-running
// it only covers registrants that joined since.
func (s *VoucherService) IssueForEvent(ctx context.Context, eventID string) (int, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return 0, unavailable("get event", err)
	}
	if event == nil {
		return 0, ErrEventNotFound
	}

	if s.Lock != nil {
		token, acquired, err := s.Lock.Acquire(ctx, event.ID)
		switch {
		case err != nil:
			s.Logger.Warn("VOUCHER", fmt.Sprintf("Issuance lock unavailable for event %s, continuing without it: %v", event.ID, err))
		case !acquired:
			s.Logger.Info("VOUCHER", fmt.Sprintf("Issuance for event %s already running elsewhere, continuing unlocked", event.ID))
		default:
			defer func() {
				if err := s.Lock.Release(context.WithoutCancel(ctx), event.ID, token); err != nil {
					s.Logger.Warn("VOUCHER", fmt.Sprintf("Failed to release issuance lock for event %s: %v", event.ID, err))
				}
			}()
		}
	}

	registrations, err := s.Events.ListRegistrations(ctx, event.ID)
	if err != nil {
		return 0, unavailable("list registrations", err)
	}

	categories := event.VoucherCategories()
	created := 0
	for _, registration := range registrations {
		holder := models.UserHolder(registration.UserID)
		for _, category := range categories {
			voucher := models.NewVoucher(event.ID, holder, category, s.now())
			err := s.insert(ctx, &voucher)
			if errors.Is(err, ErrConflictOnIssue) {
				continue
			}
			if err != nil {
				return created, err
			}
			created++
		}
	}

	s.Logger.LogVoucher("ISSUE", event.ID, fmt.Sprintf("%d new vouchers for %d registrations x %d categories", created, len(registrations), len(categories)))
	return created, nil
}

// IssueSingle issues one voucher to a known holder. When the holder already has
// a voucher for the same event and category it is returned with created=false.
// eventID may be empty for a voucher that belongs to no event.
func (s *VoucherService) IssueSingle(ctx context.Context, holder models.Holder, category, eventID string) (*models.Voucher, bool, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, false, ErrInvalidCategory
	}
	if err := s.checkHolder(ctx, holder); err != nil {
		return nil, false, err
	}

	if eventID != "" {
		event, err := s.Events.GetEvent(ctx, eventID)
		if err != nil {
			return nil, false, unavailable("get event", err)
		}
		if event == nil {
			return nil, false, ErrEventNotFound
		}
	}

	voucher := models.NewVoucher(eventID, holder, category, s.now())
	err := s.insert(ctx, &voucher)
	if errors.Is(err, ErrConflictOnIssue) {
		existing, err := s.DB.GetVoucherByIssueKey(ctx, voucher.IssueKey)
		if err != nil {
			return nil, false, unavailable("get voucher by issue key", err)
		}
		if existing == nil {
			return nil, false, unavailable("get voucher by issue key", fmt.Errorf("no voucher for key %s", voucher.IssueKey))
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.Logger.LogVoucher("ISSUE", voucher.ID, fmt.Sprintf("%s voucher for %s", voucher.Category, holder))
	return &voucher, true, nil
}

func (s *VoucherService) checkHolder(ctx context.Context, holder models.Holder) error {
	switch holder.Kind() {
	case models.HolderUser:
		user, err := s.Identity.FindUser(ctx, holder.ID())
		if err != nil {
			return unavailable("find user", err)
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", holder.ID(), ErrInvalidHolder)
		}
	case models.HolderLegacy:
		attendee, err := s.Identity.FindLegacy(ctx, holder.ID())
		if err != nil {
			return unavailable("find legacy attendee", err)
		}
		if attendee == nil {
			return fmt.Errorf("legacy attendee %s: %w", holder.ID(), ErrInvalidHolder)
		}
	default:
		return ErrInvalidHolder
	}
	return nil
}

func (s *VoucherService) insert(ctx context.Context, voucher *models.Voucher) error {
	created, err := s.DB.InsertVoucherIfAbsent(ctx, voucher)
	if err != nil {
		return unavailable("insert voucher", err)
	}
	if !created {
		return ErrConflictOnIssue
	}
	return nil
}

// ---------------- LOOKUP ----------------

func (s *VoucherService) GetVoucher(ctx context.Context, id string) (*models.Voucher, error) {
	voucher, err := s.DB.GetVoucherByID(ctx, id)
	if err != nil {
		return nil, unavailable("get voucher", err)
	}
	if voucher == nil {
		return nil, ErrNotFound
	}
	return voucher, nil
}

func (s *VoucherService) ListForHolder(ctx context.Context, holder models.Holder, eventID string) ([]models.Voucher, error) {
	vouchers, err := s.DB.ListVouchersByHolder(ctx, holder, eventID)
	if err != nil {
		return nil, unavailable("list vouchers", err)
	}
	return vouchers, nil
}

// Resolve finds the voucher a scanned input refers to. The input is first
// tried as a voucher id; otherwise it is taken as the identity of a user or
// legacy attendee and PickFallback chooses among that person's vouchers.
func (s *VoucherService) Resolve(ctx context.Context, raw string) (*models.Voucher, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNotFound
	}

	if id, err := uuid.Parse(raw); err == nil {
		voucher, err := s.DB.GetVoucherByID(ctx, id.String())
		if err != nil {
			return nil, unavailable("get voucher", err)
		}
		if voucher != nil {
			return voucher, nil
		}
	}

	candidates, err := s.DB.ListVouchersByIdentity(ctx, raw)
	if err != nil {
		return nil, unavailable("list vouchers by identity", err)
	}
	voucher := PickFallback(candidates)
	if voucher == nil {
		return nil, ErrNotFound
	}
	return voucher, nil
}

// ---------------- REDEMPTION ----------------

// Redeem consumes the voucher exactly once. A voucher that was already
// consumed, by an earlier call or a concurrent one, yields
// OutcomeAlreadyRedeemed with the original redemption time and a nil error.
// Redeeming a user's entry voucher marks their registration attended.
func (s *VoucherService) Redeem(ctx context.Context, voucher *models.Voucher) (*RedeemResult, error) {
	if voucher == nil {
		return nil, ErrNotFound
	}

	holder, err := s.Project(ctx, voucher.Holder())
	if err != nil {
		return nil, err
	}
	var event *models.Event
	if voucher.EventID != "" {
		event, err = s.Events.GetEvent(ctx, voucher.EventID)
		if err != nil {
			return nil, unavailable("get event", err)
		}
	}

	result := &RedeemResult{Holder: holder, Event: event}
	if voucher.Redeemed {
		return s.alreadyRedeemed(result, voucher), nil
	}

	// Stored timestamps keep microseconds; report exactly what a rescan will read.
	at := s.now().Truncate(time.Microsecond)
	won, err := s.DB.MarkRedeemed(ctx, voucher.ID, at)
	if err != nil {
		return nil, unavailable("mark voucher redeemed", err)
	}
	if !won {
		current, err := s.DB.GetVoucherByID(ctx, voucher.ID)
		if err != nil {
			return nil, unavailable("get voucher", err)
		}
		if current == nil {
			return nil, ErrNotFound
		}
		return s.alreadyRedeemed(result, current), nil
	}

	redeemed := *voucher
	redeemed.Redeemed = true
	redeemed.RedeemedAt = &at
	result.Outcome = OutcomeRedeemed
	result.Voucher = &redeemed
	result.RedeemedAt = at

	s.confirmAttendance(ctx, &redeemed)
	s.Logger.LogVoucher("REDEEM", redeemed.ID, fmt.Sprintf("%s redeemed by %s", redeemed.Category, redeemed.Holder()))
	return result, nil
}

func (s *VoucherService) alreadyRedeemed(result *RedeemResult, voucher *models.Voucher) *RedeemResult {
	result.Outcome = OutcomeAlreadyRedeemed
	result.Voucher = voucher
	if voucher.RedeemedAt != nil {
		result.RedeemedAt = *voucher.RedeemedAt
	}
	return result
}

// confirmAttendance never fails the redemption it follows.
func (s *VoucherService) confirmAttendance(ctx context.Context, voucher *models.Voucher) {
	holder := voucher.Holder()
	if !voucher.IsEntry() || voucher.EventID == "" || !holder.IsUser() {
		return
	}

	registration, err := s.Events.GetRegistration(ctx, voucher.EventID, holder.ID())
	if err != nil {
		s.Logger.Error("VOUCHER", fmt.Sprintf("Attendance not confirmed for voucher %s: %v", voucher.ID, err))
		return
	}
	if registration == nil {
		s.Logger.Warn("VOUCHER", fmt.Sprintf("Entry voucher %s redeemed without registration for user %s in event %s", voucher.ID, holder.ID(), voucher.EventID))
		return
	}
	if registration.Attended {
		return
	}
	if err := s.Events.SetAttended(ctx, registration); err != nil {
		s.Logger.Error("VOUCHER", fmt.Sprintf("Attendance not confirmed for voucher %s: %v", voucher.ID, err))
	}
}

// Project returns the display data of a holder. Unknown holders, and holders
// whose record is gone, project to the sentinel values.
func (s *VoucherService) Project(ctx context.Context, holder models.Holder) (models.HolderProjection, error) {
	var attendee models.Attendee
	switch holder.Kind() {
	case models.HolderUser:
		user, err := s.Identity.FindUser(ctx, holder.ID())
		if err != nil {
			return models.HolderProjection{}, unavailable("find user", err)
		}
		if user != nil {
			attendee = user
		}
	case models.HolderLegacy:
		legacy, err := s.Identity.FindLegacy(ctx, holder.ID())
		if err != nil {
			return models.HolderProjection{}, unavailable("find legacy attendee", err)
		}
		if legacy != nil {
			attendee = legacy
		}
	}
	if attendee == nil {
		return models.UnknownProjection(), nil
	}
	return attendee.Projection(), nil
}

// ---------------- SCAN ----------------

// Scan resolves the input and redeems the voucher it refers to. Not found and
// already redeemed are outcomes, not errors.
func (s *VoucherService) Scan(ctx context.Context, raw string) (*RedeemResult, error) {
	voucher, err := s.Resolve(ctx, raw)
	if errors.Is(err, ErrNotFound) {
		s.Logger.LogScan(string(OutcomeNotFound), raw, "no voucher matches input")
		return &RedeemResult{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	result, err := s.Redeem(ctx, voucher)
	if err != nil {
		return nil, err
	}
	s.Logger.LogScan(string(result.Outcome), raw, fmt.Sprintf("voucher %s (%s)", result.Voucher.ID, result.Voucher.Category))

	if result.Outcome == OutcomeRedeemed {
		s.announce(ctx, result)
	}
	return result, nil
}

func (s *VoucherService) announce(ctx context.Context, result *RedeemResult) {
	event := models.VoucherRedeemedEvent{
		VoucherID:  result.Voucher.ID,
		EventID:    result.Voucher.EventID,
		Category:   result.Voucher.Category,
		Holder:     result.Holder,
		RedeemedAt: result.RedeemedAt,
	}
	if s.Emitter != nil {
		s.Emitter.EmitRedemption(event)
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishRedemption(ctx, event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish redemption of voucher %s: %v", event.VoucherID, err))
		}
	}
}

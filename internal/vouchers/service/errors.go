package vouchers

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means no voucher resolves from the given input.
	ErrNotFound = errors.New("voucher not found")
	// ErrAlreadyRedeemed means the voucher was consumed before. Match it with
	// errors.Is; errors.As with *AlreadyRedeemedError yields the original time.
	ErrAlreadyRedeemed = errors.New("voucher already redeemed")
	// ErrConflictOnIssue means a voucher already covers the issue key. It never
	// leaves this package.
	ErrConflictOnIssue = errors.New("voucher already issued")
	// ErrCollaboratorUnavailable wraps store and downstream failures.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	ErrInvalidHolder   = errors.New("voucher holder is unknown")
	ErrInvalidCategory = errors.New("voucher category is empty")
	ErrEventNotFound   = errors.New("event not found")
)

type AlreadyRedeemedError struct {
	VoucherID  string
	RedeemedAt time.Time
}

func (e *AlreadyRedeemedError) Error() string {
	return fmt.Sprintf("voucher %s already redeemed at %s", e.VoucherID, e.RedeemedAt.Format(time.RFC3339))
}

func (e *AlreadyRedeemedError) Is(target error) bool {
	return target == ErrAlreadyRedeemed
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCollaboratorUnavailable, err)
}

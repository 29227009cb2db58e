package vouchers

import (
	"sort"

	"ms-attendance/internal/models"
)

// PickFallback chooses the voucher a manually typed identity refers to.
// Unredeemed vouchers win over redeemed ones; within each group the earliest
// created wins, then entry before provisions, then the lowest id. It returns
// nil for an empty slice.
func PickFallback(candidates []models.Voucher) *models.Voucher {
	if len(candidates) == 0 {
		return nil
	}

	ordered := make([]models.Voucher, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Redeemed != b.Redeemed {
			return !a.Redeemed
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.IsEntry() != b.IsEntry() {
			return a.IsEntry()
		}
		return a.ID < b.ID
	})
	return &ordered[0]
}

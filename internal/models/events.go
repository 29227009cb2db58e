package models

import "time"

// VoucherRedeemedEvent is published after a successful scan.
type VoucherRedeemedEvent struct {
	VoucherID  string           `json:"voucher_id"`
	EventID    string           `json:"event_id,omitempty"`
	Category   string           `json:"category"`
	Holder     HolderProjection `json:"holder"`
	RedeemedAt time.Time        `json:"redeemed_at"`
}

// DispatchJob asks the mail worker to send vouchers.
type DispatchJob struct {
	EventID     string    `json:"event_id,omitempty"`
	LegacyID    string    `json:"legacy_id,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

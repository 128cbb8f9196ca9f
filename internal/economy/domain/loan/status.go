package loan

import "strings"

// Status describes the loan lifecycle label.
type Status string

const (
	StatusUnspecified Status = ""
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
	StatusActive      Status = "active"
	StatusPaidOff     Status = "paid_off"
)

// NormalizeStatus canonicalizes a loan status label.
func NormalizeStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusDenied:
		return StatusDenied, true
	case StatusActive:
		return StatusActive, true
	case StatusPaidOff:
		return StatusPaidOff, true
	default:
		return StatusUnspecified, false
	}
}

// IsOpen reports whether the status blocks a new application by the borrower.
// A borrower may hold at most one loan in pending, approved, or active.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusApproved || s == StatusActive
}

// CanTransition reports whether moving from s to next is permitted.
//
// pending → approved | denied; approved → active (disbursement completes the
// approval); active → paid_off. Nothing else, no re-entry.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusDenied
	case StatusApproved:
		return next == StatusActive
	case StatusActive:
		return next == StatusPaidOff
	default:
		return false
	}
}

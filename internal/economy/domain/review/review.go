// Package review models the teacher-gated approval lifecycle shared by
// pending transfers and land purchase requests.
package review

import "strings"

// Status describes the review lifecycle label.
//
// The only legal transitions are pending → approved and pending → denied;
// both outcomes are terminal and never re-entered.
type Status string

const (
	StatusUnspecified Status = ""
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
)

// NormalizeStatus canonicalizes a review status label.
func NormalizeStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusDenied:
		return StatusDenied, true
	default:
		return StatusUnspecified, false
	}
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// CanTransition reports whether moving from s to next is permitted.
func (s Status) CanTransition(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusApproved || next == StatusDenied
}

package booking

import "fmt"

// BookingStatus represents the current state of a booking in its lifecycle.
type BookingStatus string

const (
	StatusDraft          BookingStatus = "draft"
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusPending        BookingStatus = "pending"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusCancelled      BookingStatus = "cancelled"
	StatusCompleted      BookingStatus = "completed"
	StatusFailed         BookingStatus = "failed"
)

// validTransitions defines the state machine for booking status transitions.
// Statuses only ever move forward; confirmed and cancelled/failed are only
// reachable from pending.
var validTransitions = map[BookingStatus][]BookingStatus{
	StatusDraft:          {StatusPendingPayment},
	StatusPendingPayment: {StatusPending},
	StatusPending:        {StatusConfirmed, StatusCancelled, StatusFailed},
	StatusConfirmed:      {StatusCompleted},
	StatusCancelled:      {},
	StatusCompleted:      {},
	StatusFailed:         {},
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// IsPaymentFailure returns true for the statuses a failed payment can leave behind.
func (s BookingStatus) IsPaymentFailure() bool {
	return s == StatusCancelled || s == StatusFailed
}

// AwaitsPending returns true for statuses that come before pending, i.e. a
// payment outcome that finds the booking here arrived ahead of its checkout.
func (s BookingStatus) AwaitsPending() bool {
	return s == StatusDraft || s == StatusPendingPayment
}

// String returns the string representation of the status.
func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a stored string to a BookingStatus. An unknown
// value means the record is corrupt.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrCorruptStatus, s)
	}
	return status, nil
}

// ParseFailureStatus validates the configured terminal status for failed payments.
func ParseFailureStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsPaymentFailure() {
		return "", fmt.Errorf("payment failure status must be %q or %q, got %q", StatusCancelled, StatusFailed, s)
	}
	return status, nil
}

package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/dreamscape/service-voyage/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const referenceChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Booking is the aggregate root for the booking domain.
type Booking struct {
	id          uuid.UUID
	reference   string
	userID      string
	bookingType BookingType
	status      BookingStatus

	totalAmount decimal.Decimal
	currency    string

	paymentID    string
	statusReason string

	confirmedAt *time.Time
	cancelledAt *time.Time
	completedAt *time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// StatusChange describes one guarded status transition and the fields it sets.
// Repositories persist it with a compare-and-swap on From.
type StatusChange struct {
	From         BookingStatus
	To           BookingStatus
	PaymentID    string
	StatusReason string
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CompletedAt  *time.Time
	At           time.Time
}

// generateReference creates a booking reference in the format "BK-XXXXXX".
func generateReference() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate booking reference: %w", err)
		}
		result[i] = referenceChars[n.Int64()]
	}
	return "BK-" + string(result), nil
}

// NewBooking creates a new Booking aggregate with status=draft.
func NewBooking(userID string, bookingType BookingType, totalAmount decimal.Decimal, currency string) (*Booking, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user ID is required")
	}
	if !bookingType.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid booking type: %s", bookingType))
	}
	if !totalAmount.IsPositive() {
		return nil, domain.NewValidationError("total amount must be positive")
	}
	if !totalAmount.Equal(totalAmount.Round(2)) {
		return nil, domain.NewValidationError("total amount supports at most two decimal places")
	}
	if !currencyPattern.MatchString(currency) {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid ISO 4217 currency: %q", currency))
	}

	reference, err := generateReference()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Booking{
		id:          uuid.New(),
		reference:   reference,
		userID:      userID,
		bookingType: bookingType,
		status:      StatusDraft,
		totalAmount: totalAmount,
		currency:    currency,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(
	id uuid.UUID,
	reference string,
	userID string,
	bookingType BookingType,
	status BookingStatus,
	totalAmount decimal.Decimal,
	currency string,
	paymentID string,
	statusReason string,
	confirmedAt *time.Time,
	cancelledAt *time.Time,
	completedAt *time.Time,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
) *Booking {
	return &Booking{
		id:           id,
		reference:    reference,
		userID:       userID,
		bookingType:  bookingType,
		status:       status,
		totalAmount:  totalAmount,
		currency:     currency,
		paymentID:    paymentID,
		statusReason: statusReason,
		confirmedAt:  confirmedAt,
		cancelledAt:  cancelledAt,
		completedAt:  completedAt,
		version:      version,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's storage key.
func (b *Booking) ID() uuid.UUID { return b.id }

// Reference returns the human-readable booking reference.
func (b *Booking) Reference() string { return b.reference }

// UserID returns the owning user's ID.
func (b *Booking) UserID() string { return b.userID }

// BookingType returns the booked product kind.
func (b *Booking) BookingType() BookingType { return b.bookingType }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// TotalAmount returns the booking total.
func (b *Booking) TotalAmount() decimal.Decimal { return b.totalAmount }

// Currency returns the ISO 4217 currency code.
func (b *Booking) Currency() string { return b.currency }

// PaymentID returns the payment that moved the booking past pending, if any.
func (b *Booking) PaymentID() string { return b.paymentID }

// StatusReason returns why the booking was cancelled or failed.
func (b *Booking) StatusReason() string { return b.statusReason }

// ConfirmedAt returns the confirmation time.
func (b *Booking) ConfirmedAt() *time.Time { return b.confirmedAt }

// CancelledAt returns the time the booking was cancelled or failed.
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }

// CompletedAt returns the fulfilment time.
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }

// Version returns the entity version; every status change bumps it.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// IsOwnedBy reports whether userID owns the booking.
func (b *Booking) IsOwnedBy(userID string) bool { return b.userID == userID }

// --- Behavior ---

// SubmitForPayment transitions the booking from draft to pending_payment.
func (b *Booking) SubmitForPayment(at time.Time) (StatusChange, error) {
	return b.transition(StatusChange{To: StatusPendingPayment, At: at})
}

// MarkPaymentPending transitions the booking from pending_payment to pending
// once the payment provider has accepted a charge attempt.
func (b *Booking) MarkPaymentPending(paymentID string, at time.Time) (StatusChange, error) {
	return b.transition(StatusChange{To: StatusPending, PaymentID: paymentID, At: at})
}

// Confirm transitions the booking from pending to confirmed.
func (b *Booking) Confirm(paymentID string, at time.Time) (StatusChange, error) {
	at = at.UTC()
	return b.transition(StatusChange{To: StatusConfirmed, PaymentID: paymentID, ConfirmedAt: &at, At: at})
}

// FailPayment transitions the booking from pending to the given payment-failure status.
func (b *Booking) FailPayment(to BookingStatus, reason string, at time.Time) (StatusChange, error) {
	if !to.IsPaymentFailure() {
		return StatusChange{}, fmt.Errorf("%w: %s is not a payment failure status", ErrInvalidStateTransition, to)
	}
	at = at.UTC()
	return b.transition(StatusChange{To: to, StatusReason: reason, CancelledAt: &at, At: at})
}

// Complete transitions the booking from confirmed to completed.
func (b *Booking) Complete(at time.Time) (StatusChange, error) {
	at = at.UTC()
	return b.transition(StatusChange{To: StatusCompleted, CompletedAt: &at, At: at})
}

func (b *Booking) transition(change StatusChange) (StatusChange, error) {
	if !b.status.CanTransitionTo(change.To) {
		return StatusChange{}, fmt.Errorf("%w: booking %s cannot move from %s to %s",
			ErrInvalidStateTransition, b.reference, b.status, change.To)
	}
	change.From = b.status
	change.At = change.At.UTC()
	b.Apply(change)
	return change, nil
}

// Apply copies the fields of a status change onto the booking and bumps its version.
func (b *Booking) Apply(change StatusChange) {
	b.status = change.To
	if change.PaymentID != "" {
		b.paymentID = change.PaymentID
	}
	if change.StatusReason != "" {
		b.statusReason = change.StatusReason
	}
	if change.ConfirmedAt != nil {
		b.confirmedAt = change.ConfirmedAt
	}
	if change.CancelledAt != nil {
		b.cancelledAt = change.CancelledAt
	}
	if change.CompletedAt != nil {
		b.completedAt = change.CompletedAt
	}
	b.version++
	b.updatedAt = change.At
}

// Clone returns an independent copy of the booking.
func (b *Booking) Clone() *Booking {
	c := *b
	return &c
}

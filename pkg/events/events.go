// Package events defines the topics, event types and payloads exchanged
// between the booking and payment services.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics.
const (
	TopicPaymentEvents = "payment.events"
	TopicBookingEvents = "booking.events"
)

// Payment event types (consumed).
const (
	PaymentInitiated = "payment.initiated"
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"
)

// Booking event types (produced).
const (
	BookingPaymentRequested = "booking.payment_requested"
	BookingConfirmed        = "booking.confirmed"
	BookingCancelled        = "booking.cancelled"
	BookingCompleted        = "booking.completed"
)

// PaymentInitiatedEvent is emitted when the payment provider accepted a charge attempt.
type PaymentInitiatedEvent struct {
	PaymentID   string    `json:"paymentId"`
	BookingID   string    `json:"bookingId"`
	UserID      string    `json:"userId"`
	InitiatedAt time.Time `json:"initiatedAt"`
}

// PaymentCompletedEvent is emitted when a charge succeeded.
// BookingID carries the booking reference, not the storage key.
type PaymentCompletedEvent struct {
	PaymentID   string                 `json:"paymentId"`
	BookingID   string                 `json:"bookingId"`
	UserID      string                 `json:"userId"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency"`
	Method      string                 `json:"method"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CompletedAt time.Time              `json:"completedAt"`
}

// PaymentFailedEvent is emitted when a charge was declined or errored.
type PaymentFailedEvent struct {
	PaymentID    string    `json:"paymentId"`
	BookingID    string    `json:"bookingId"`
	UserID       string    `json:"userId"`
	ErrorCode    string    `json:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	FailedAt     time.Time `json:"failedAt"`
}

// BookingPaymentRequestedEvent asks the payment service to charge for a booking.
type BookingPaymentRequestedEvent struct {
	BookingID     string          `json:"bookingId"`
	UserID        string          `json:"userId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Currency      string          `json:"currency"`
	RequestedAt   time.Time       `json:"requestedAt"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// BookingConfirmedEvent is emitted after a booking was confirmed by payment.
type BookingConfirmedEvent struct {
	BookingID     string          `json:"bookingId"`
	UserID        string          `json:"userId"`
	BookingType   string          `json:"bookingType"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Currency      string          `json:"currency"`
	PaymentID     string          `json:"paymentId"`
	ConfirmedAt   time.Time       `json:"confirmedAt"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// BookingCancelledEvent is emitted after a booking was cancelled by a failed payment.
type BookingCancelledEvent struct {
	BookingID     string    `json:"bookingId"`
	UserID        string    `json:"userId"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelledAt"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// BookingCompletedEvent is emitted when a confirmed voyage has been fulfilled.
type BookingCompletedEvent struct {
	BookingID   string    `json:"bookingId"`
	UserID      string    `json:"userId"`
	CompletedAt time.Time `json:"completedAt"`
}

package application

import (
	"errors"

	bookingDomain "github.com/dreamscape/service-voyage/internal/domain/booking"
)

// Outcome tells the bus integration what to do with a consumed message.
type Outcome int

const (
	// OutcomeAck means the message was handled (or was a safe duplicate).
	OutcomeAck Outcome = iota
	// OutcomeRetry means the message should be redelivered later.
	OutcomeRetry
	// OutcomePoison means redelivery cannot help; dead-letter it now.
	OutcomePoison
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRetry:
		return "retry"
	case OutcomePoison:
		return "poison"
	default:
		return "unknown"
	}
}

// classify maps a lifecycle error to an outcome. current is the status the
// booking had when the error was raised, or "" when it was never read.
func classify(err error, current bookingDomain.BookingStatus) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, bookingDomain.ErrAuthorizationMismatch),
		errors.Is(err, bookingDomain.ErrInconsistentState),
		errors.Is(err, bookingDomain.ErrCorruptStatus):
		return OutcomePoison
	case errors.Is(err, bookingDomain.ErrInvalidStateTransition):
		// An event ahead of the booking may become valid once the earlier
		// step lands. Anything past pending never will.
		if current.AwaitsPending() {
			return OutcomeRetry
		}
		return OutcomePoison
	default:
		return OutcomeRetry
	}
}

package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingDomain "github.com/dreamscape/service-voyage/internal/domain/booking"
	"github.com/dreamscape/service-voyage/pkg/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxConflictRetries bounds the re-reads after a lost compare-and-swap.
const DefaultMaxConflictRetries = 3

// BookingStore is the slice of the booking repository the lifecycle handler needs.
type BookingStore interface {
	FindByReference(ctx context.Context, reference string) (*bookingDomain.Booking, error)
	ConditionalUpdateStatus(ctx context.Context, id uuid.UUID, change bookingDomain.StatusChange) error
}

// LifecycleConfig holds the deployment choices of the lifecycle handler.
type LifecycleConfig struct {
	// FailureStatus is where a failed payment leaves a booking: cancelled or failed.
	FailureStatus bookingDomain.BookingStatus
	// MaxConflictRetries is how many times a lost conditional write is re-read
	// and re-evaluated before the conflict is surfaced.
	MaxConflictRetries int
}

// LifecycleHandler moves bookings through their payment-driven states.
// Each call handles exactly one event and keeps no state between calls.
type LifecycleHandler struct {
	store     BookingStore
	publisher EventPublisher
	cfg       LifecycleConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(store BookingStore, publisher EventPublisher, cfg LifecycleConfig, logger *zap.Logger) *LifecycleHandler {
	if !cfg.FailureStatus.IsPaymentFailure() {
		cfg.FailureStatus = bookingDomain.StatusCancelled
	}
	if cfg.MaxConflictRetries < 0 {
		cfg.MaxConflictRetries = 0
	}
	return &LifecycleHandler{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FailureStatus returns the configured payment-failure terminal status.
func (h *LifecycleHandler) FailureStatus() bookingDomain.BookingStatus {
	return h.cfg.FailureStatus
}

// evaluation is the decision taken against one fresh read of a booking.
type evaluation struct {
	change bookingDomain.StatusChange
	apply  bool
}

var noop = evaluation{}

// HandlePaymentInitiated moves a booking awaiting payment to pending.
func (h *LifecycleHandler) HandlePaymentInitiated(ctx context.Context, evt events.PaymentInitiatedEvent, correlationID string) (Outcome, error) {
	log := h.logger.With(
		zap.String("event_type", events.PaymentInitiated),
		zap.String("booking_ref", evt.BookingID),
		zap.String("payment_id", evt.PaymentID),
		zap.String("correlation_id", correlationID),
	)

	return h.run(ctx, log, evt.BookingID, func(bk *bookingDomain.Booking) (evaluation, error) {
		if !bk.IsOwnedBy(evt.UserID) {
			return noop, authorizationMismatch(bk, evt.UserID, evt.PaymentID)
		}

		switch bk.Status() {
		case bookingDomain.StatusPendingPayment:
			change, err := bk.MarkPaymentPending(evt.PaymentID, h.now())
			return evaluation{change: change, apply: true}, err
		case bookingDomain.StatusDraft:
			return noop, fmt.Errorf("%w: booking %s has not been checked out",
				bookingDomain.ErrInvalidStateTransition, bk.Reference())
		default:
			log.Debug("payment already past initiation, skipping", zap.String("status", bk.Status().String()))
			return noop, nil
		}
	}, nil)
}

// HandlePaymentCompleted confirms a pending booking and announces it.
func (h *LifecycleHandler) HandlePaymentCompleted(ctx context.Context, evt events.PaymentCompletedEvent, correlationID string) (Outcome, error) {
	log := h.logger.With(
		zap.String("event_type", events.PaymentCompleted),
		zap.String("booking_ref", evt.BookingID),
		zap.String("payment_id", evt.PaymentID),
		zap.String("correlation_id", correlationID),
	)

	return h.run(ctx, log, evt.BookingID, func(bk *bookingDomain.Booking) (evaluation, error) {
		if !bk.IsOwnedBy(evt.UserID) {
			return noop, authorizationMismatch(bk, evt.UserID, evt.PaymentID)
		}

		switch bk.Status() {
		case bookingDomain.StatusConfirmed:
			if bk.PaymentID() != "" && bk.PaymentID() != evt.PaymentID {
				log.Warn("booking confirmed by a different payment",
					zap.String("confirmed_payment_id", bk.PaymentID()),
				)
			}
			log.Info("booking already confirmed, skipping")
			return noop, nil
		case bookingDomain.StatusPending:
			h.checkAmount(log, bk, evt)
			change, err := bk.Confirm(evt.PaymentID, h.now())
			return evaluation{change: change, apply: true}, err
		case bookingDomain.StatusCancelled, bookingDomain.StatusFailed:
			return noop, fmt.Errorf("%w: payment %s completed for booking %s which is %s",
				bookingDomain.ErrInconsistentState, evt.PaymentID, bk.Reference(), bk.Status())
		default:
			return noop, fmt.Errorf("%w: booking %s cannot be confirmed from %s",
				bookingDomain.ErrInvalidStateTransition, bk.Reference(), bk.Status())
		}
	}, func(bk *bookingDomain.Booking) {
		log.Info("booking confirmed", zap.String("booking_id", bk.ID().String()))
		publishBookingEvent(ctx, h.publisher, log, events.BookingConfirmed, bk.Reference(), correlationID,
			events.BookingConfirmedEvent{
				BookingID:     bk.Reference(),
				UserID:        bk.UserID(),
				BookingType:   string(bk.BookingType()),
				Status:        string(bookingDomain.StatusConfirmed),
				TotalAmount:   bk.TotalAmount(),
				Currency:      bk.Currency(),
				PaymentID:     evt.PaymentID,
				ConfirmedAt:   derefTime(bk.ConfirmedAt()),
				CorrelationID: correlationID,
			})
	})
}

// HandlePaymentFailed moves a pending booking to the failure status and announces it.
// A confirmed booking is never cancelled by a failed payment.
func (h *LifecycleHandler) HandlePaymentFailed(ctx context.Context, evt events.PaymentFailedEvent, correlationID string) (Outcome, error) {
	log := h.logger.With(
		zap.String("event_type", events.PaymentFailed),
		zap.String("booking_ref", evt.BookingID),
		zap.String("payment_id", evt.PaymentID),
		zap.String("correlation_id", correlationID),
	)
	target := h.cfg.FailureStatus

	return h.run(ctx, log, evt.BookingID, func(bk *bookingDomain.Booking) (evaluation, error) {
		if !bk.IsOwnedBy(evt.UserID) {
			return noop, authorizationMismatch(bk, evt.UserID, evt.PaymentID)
		}

		status := bk.Status()
		switch {
		case status == target:
			log.Info("booking already in failure status, skipping", zap.String("status", status.String()))
			return noop, nil
		case status == bookingDomain.StatusPending:
			change, err := bk.FailPayment(target, FailureReason(evt.ErrorCode, evt.ErrorMessage), h.now())
			return evaluation{change: change, apply: true}, err
		case status == bookingDomain.StatusConfirmed,
			status == bookingDomain.StatusCompleted,
			status.IsPaymentFailure():
			return noop, fmt.Errorf("%w: payment %s failed for booking %s which is %s",
				bookingDomain.ErrInconsistentState, evt.PaymentID, bk.Reference(), status)
		default:
			return noop, fmt.Errorf("%w: booking %s cannot fail payment from %s",
				bookingDomain.ErrInvalidStateTransition, bk.Reference(), status)
		}
	}, func(bk *bookingDomain.Booking) {
		log.Info("booking payment failed",
			zap.String("booking_id", bk.ID().String()),
			zap.String("status", bk.Status().String()),
			zap.String("reason", bk.StatusReason()),
		)
		publishBookingEvent(ctx, h.publisher, log, events.BookingCancelled, bk.Reference(), correlationID,
			events.BookingCancelledEvent{
				BookingID:     bk.Reference(),
				UserID:        bk.UserID(),
				Reason:        bk.StatusReason(),
				CancelledAt:   derefTime(bk.CancelledAt()),
				CorrelationID: correlationID,
			})
	})
}

// run reads the booking, evaluates it and applies the resulting change with a
// conditional write. A lost write is re-read and re-evaluated up to
// MaxConflictRetries times, which normally resolves to an idempotent no-op.
func (h *LifecycleHandler) run(
	ctx context.Context,
	log *zap.Logger,
	reference string,
	evaluate func(bk *bookingDomain.Booking) (evaluation, error),
	committed func(bk *bookingDomain.Booking),
) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		bk, err := h.store.FindByReference(ctx, reference)
		if err != nil {
			return h.fail(log, err, "")
		}
		current := bk.Status()

		decision, err := evaluate(bk)
		if err != nil {
			return h.fail(log, err, current)
		}
		if !decision.apply {
			return OutcomeAck, nil
		}

		// evaluate applied the change to bk, so after a successful write it
		// matches the stored row.
		err = h.store.ConditionalUpdateStatus(ctx, bk.ID(), decision.change)
		if err == nil {
			if committed != nil {
				committed(bk)
			}
			return OutcomeAck, nil
		}
		if errors.Is(err, bookingDomain.ErrConcurrencyConflict) && attempt < h.cfg.MaxConflictRetries {
			log.Info("booking changed concurrently, re-reading",
				zap.Int("attempt", attempt+1),
				zap.String("expected_status", current.String()),
			)
			continue
		}
		return h.fail(log, err, current)
	}
}

func (h *LifecycleHandler) fail(log *zap.Logger, err error, current bookingDomain.BookingStatus) (Outcome, error) {
	outcome := classify(err, current)
	fields := []zap.Field{zap.String("outcome", outcome.String()), zap.Error(err)}
	if current != "" {
		fields = append(fields, zap.String("status", current.String()))
	}
	if outcome == OutcomePoison {
		log.Error("payment event rejected", fields...)
	} else {
		log.Warn("payment event not applied", fields...)
	}
	return outcome, err
}

// checkAmount warns when the settled amount differs from the booking total.
// The payment service is authoritative, so the transition still proceeds.
func (h *LifecycleHandler) checkAmount(log *zap.Logger, bk *bookingDomain.Booking, evt events.PaymentCompletedEvent) {
	if evt.Amount.Equal(bk.TotalAmount()) && evt.Currency == bk.Currency() {
		return
	}
	log.Warn("payment amount differs from booking total",
		zap.String("booking_amount", bk.TotalAmount().StringFixed(2)),
		zap.String("booking_currency", bk.Currency()),
		zap.String("payment_amount", evt.Amount.String()),
		zap.String("payment_currency", evt.Currency),
	)
}

// FailureReason builds the stored reason for a failed payment.
func FailureReason(code, message string) string {
	switch {
	case code != "" && message != "":
		return fmt.Sprintf("payment_failed: %s - %s", code, message)
	case code != "":
		return "payment_failed: " + code
	case message != "":
		return "payment_failed: " + message
	default:
		return "payment_failed"
	}
}

func authorizationMismatch(bk *bookingDomain.Booking, userID, paymentID string) error {
	return fmt.Errorf("%w: payment %s from user %q targets booking %s",
		bookingDomain.ErrAuthorizationMismatch, paymentID, userID, bk.Reference())
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/dreamscape/service-voyage/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingBooking(t *testing.T) *Booking {
	t.Helper()
	bk, err := NewBooking("U1", TypeFlight, decimal.NewFromInt(250), "EUR")
	require.NoError(t, err)
	_, err = bk.SubmitForPayment(time.Now())
	require.NoError(t, err)
	_, err = bk.MarkPaymentPending("P1", time.Now())
	require.NoError(t, err)
	return bk
}

func TestNewBooking(t *testing.T) {
	bk, err := NewBooking("U1", TypeHotel, decimal.RequireFromString("199.90"), "EUR")
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, bk.Status())
	assert.Regexp(t, `^BK-[A-Z2-9]{6}$`, bk.Reference())
	assert.Equal(t, int64(1), bk.Version())
	assert.True(t, bk.IsOwnedBy("U1"))
	assert.False(t, bk.IsOwnedBy("U2"))
}

func TestNewBooking_Validation(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		typ      BookingType
		amount   decimal.Decimal
		currency string
	}{
		{"missing user", "", TypeFlight, decimal.NewFromInt(10), "EUR"},
		{"unknown type", "U1", BookingType("cruise"), decimal.NewFromInt(10), "EUR"},
		{"zero amount", "U1", TypeFlight, decimal.Zero, "EUR"},
		{"sub-cent amount", "U1", TypeFlight, decimal.RequireFromString("10.001"), "EUR"},
		{"lower-case currency", "U1", TypeFlight, decimal.NewFromInt(10), "eur"},
		{"long currency", "U1", TypeFlight, decimal.NewFromInt(10), "EURO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBooking(tt.userID, tt.typ, tt.amount, tt.currency)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestConfirm(t *testing.T) {
	bk := newPendingBooking(t)
	version := bk.Version()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	change, err := bk.Confirm("P9", at)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, change.From)
	assert.Equal(t, StatusConfirmed, change.To)
	assert.Equal(t, StatusConfirmed, bk.Status())
	assert.Equal(t, "P9", bk.PaymentID())
	require.NotNil(t, bk.ConfirmedAt())
	assert.Equal(t, at, *bk.ConfirmedAt())
	assert.Equal(t, version+1, bk.Version())
}

func TestFailPayment(t *testing.T) {
	bk := newPendingBooking(t)

	change, err := bk.FailPayment(StatusCancelled, "payment_failed: CARD_DECLINED", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, change.To)
	assert.Equal(t, "payment_failed: CARD_DECLINED", bk.StatusReason())
	assert.NotNil(t, bk.CancelledAt())
	assert.Nil(t, bk.ConfirmedAt())
}

func TestFailPayment_RejectsNonFailureTarget(t *testing.T) {
	bk := newPendingBooking(t)

	_, err := bk.FailPayment(StatusCompleted, "x", time.Now())
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))
	assert.Equal(t, StatusPending, bk.Status())
}

func TestTransitionsNeverMoveBackward(t *testing.T) {
	bk := newPendingBooking(t)
	_, err := bk.Confirm("P1", time.Now())
	require.NoError(t, err)

	_, err = bk.FailPayment(StatusCancelled, "late failure", time.Now())
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = bk.MarkPaymentPending("P2", time.Now())
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, StatusConfirmed, bk.Status())

	_, err = bk.Complete(time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, bk.Status())
	assert.True(t, bk.Status().IsTerminal())
}

func TestClone_IsIndependent(t *testing.T) {
	bk := newPendingBooking(t)
	c := bk.Clone()

	_, err := c.Confirm("P1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, bk.Status())
	assert.Equal(t, StatusConfirmed, c.Status())
}

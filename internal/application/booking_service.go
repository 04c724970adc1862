package application

import (
	"context"
	"fmt"
	"time"

	bookingDomain "github.com/dreamscape/service-voyage/internal/domain/booking"
	"github.com/dreamscape/service-voyage/pkg/auth"
	"github.com/dreamscape/service-voyage/pkg/domain"
	"github.com/dreamscape/service-voyage/pkg/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateBookingRequest holds the data needed to create a new booking.
type CreateBookingRequest struct {
	BookingType string          `json:"booking_type" binding:"required"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency" binding:"required,len=3"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID           uuid.UUID       `json:"id"`
	Reference    string          `json:"reference"`
	UserID       string          `json:"user_id"`
	BookingType  string          `json:"booking_type"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
	PaymentID    string          `json:"payment_id,omitempty"`
	StatusReason string          `json:"status_reason,omitempty"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BookingStatsDTO holds aggregate booking statistics.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// BookingService is the application service orchestrating booking use cases
// initiated over HTTP.
type BookingService struct {
	repo      bookingDomain.BookingRepository
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	repo bookingDomain.BookingRepository,
	publisher EventPublisher,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateBooking creates a new draft booking for the given user.
func (s *BookingService) CreateBooking(ctx context.Context, userID string, req CreateBookingRequest) (*BookingDTO, error) {
	bk, err := bookingDomain.NewBooking(userID, bookingDomain.BookingType(req.BookingType), req.TotalAmount, req.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, bk); err != nil {
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}

	s.logger.Info("booking created",
		zap.String("booking_ref", bk.Reference()),
		zap.String("user_id", userID),
		zap.String("booking_type", string(bk.BookingType())),
	)

	result := toBookingDTO(bk)
	return &result, nil
}

// Checkout submits the user's draft booking for payment.
func (s *BookingService) Checkout(ctx context.Context, userID, reference, correlationID string) (*BookingDTO, error) {
	bk, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !bk.IsOwnedBy(userID) {
		return nil, fmt.Errorf("%w: booking %s", bookingDomain.ErrAuthorizationMismatch, reference)
	}

	change, err := bk.SubmitForPayment(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.ConditionalUpdateStatus(ctx, bk.ID(), change); err != nil {
		return nil, err
	}

	publishBookingEvent(ctx, s.publisher, s.logger, events.BookingPaymentRequested, bk.Reference(), correlationID,
		events.BookingPaymentRequestedEvent{
			BookingID:     bk.Reference(),
			UserID:        bk.UserID(),
			TotalAmount:   bk.TotalAmount(),
			Currency:      bk.Currency(),
			RequestedAt:   bk.UpdatedAt(),
			CorrelationID: correlationID,
		})

	result := toBookingDTO(bk)
	return &result, nil
}

// CompleteBooking marks a confirmed booking as fulfilled (admin).
func (s *BookingService) CompleteBooking(ctx context.Context, reference string) (*BookingDTO, error) {
	bk, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	change, err := bk.Complete(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.ConditionalUpdateStatus(ctx, bk.ID(), change); err != nil {
		return nil, err
	}

	publishBookingEvent(ctx, s.publisher, s.logger, events.BookingCompleted, bk.Reference(), "",
		events.BookingCompletedEvent{
			BookingID:   bk.Reference(),
			UserID:      bk.UserID(),
			CompletedAt: derefTime(bk.CompletedAt()),
		})

	result := toBookingDTO(bk)
	return &result, nil
}

// GetBooking retrieves a booking visible to the caller.
func (s *BookingService) GetBooking(ctx context.Context, reference, userID, role string) (*BookingDTO, error) {
	bk, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if role != auth.RoleAdmin && !bk.IsOwnedBy(userID) {
		// Hide other users' bookings entirely.
		return nil, domain.NewNotFoundError("booking", reference)
	}

	result := toBookingDTO(bk)
	return &result, nil
}

// GetUserBookings returns a paginated list of the user's bookings.
func (s *BookingService) GetUserBookings(ctx context.Context, userID string, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	bookings, total, err := s.repo.FindByUserID(ctx, userID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}

	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit)
	return &result, nil
}

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, page, limit int) ([]BookingDTO, int64, error) {
	bookings, total, err := s.repo.ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return toBookingDTOs(bookings), total, nil
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      counts,
	}, nil
}

// --- Helpers ---

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:           bk.ID(),
		Reference:    bk.Reference(),
		UserID:       bk.UserID(),
		BookingType:  string(bk.BookingType()),
		Status:       string(bk.Status()),
		TotalAmount:  bk.TotalAmount(),
		Currency:     bk.Currency(),
		PaymentID:    bk.PaymentID(),
		StatusReason: bk.StatusReason(),
		ConfirmedAt:  bk.ConfirmedAt(),
		CancelledAt:  bk.CancelledAt(),
		CompletedAt:  bk.CompletedAt(),
		Version:      bk.Version(),
		CreatedAt:    bk.CreatedAt(),
		UpdatedAt:    bk.UpdatedAt(),
	}
}

func toBookingDTOs(bookings []*bookingDomain.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return dtos
}

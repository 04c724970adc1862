package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingDomain "github.com/dreamscape/service-voyage/internal/domain/booking"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Reference    string          `gorm:"uniqueIndex;not null;size:20"`
	UserID       string          `gorm:"index;not null;size:64"`
	BookingType  string          `gorm:"not null;size:20"`
	Status       string          `gorm:"not null;size:30;index"`
	TotalAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency     string          `gorm:"not null;size:3"`
	PaymentID    *string         `gorm:"size:64"`
	StatusReason *string         `gorm:"size:500"`
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CompletedAt  *time.Time
	Version      int64           `gorm:"not null;default:1"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its storage key.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %s", bookingDomain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByReference retrieves a booking by its reference.
func (r *GormBookingRepository) FindByReference(ctx context.Context, reference string) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reference %s", bookingDomain.ErrNotFound, reference)
		}
		return nil, fmt.Errorf("failed to find booking by reference: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByUserID retrieves bookings for a specific user with pagination.
func (r *GormBookingRepository) FindByUserID(ctx context.Context, userID string, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count user bookings: %w", err)
	}

	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find user bookings: %w", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// ListAll retrieves all bookings with pagination (admin).
func (r *GormBookingRepository) ListAll(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64, len(results))
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// ConditionalUpdateStatus applies a status change guarded by the previously
// read status. Zero affected rows means another writer got there first.
// The row is not read back: once the UPDATE succeeds the change is committed
// and a failing follow-up read must not be mistaken for a failed write.
func (r *GormBookingRepository) ConditionalUpdateStatus(ctx context.Context, id uuid.UUID, change bookingDomain.StatusChange) error {
	updates := map[string]interface{}{
		"status":     string(change.To),
		"version":    gorm.Expr("version + 1"),
		"updated_at": change.At,
	}
	if change.PaymentID != "" {
		updates["payment_id"] = change.PaymentID
	}
	if change.StatusReason != "" {
		updates["status_reason"] = change.StatusReason
	}
	if change.ConfirmedAt != nil {
		updates["confirmed_at"] = *change.ConfirmedAt
	}
	if change.CancelledAt != nil {
		updates["cancelled_at"] = *change.CancelledAt
	}
	if change.CompletedAt != nil {
		updates["completed_at"] = *change.CompletedAt
	}

	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND status = ?", id, string(change.From)).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update booking status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: booking %s is no longer %s", bookingDomain.ErrConcurrencyConflict, id, change.From)
	}
	return nil
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	return &BookingModel{
		ID:           bk.ID(),
		Reference:    bk.Reference(),
		UserID:       bk.UserID(),
		BookingType:  string(bk.BookingType()),
		Status:       string(bk.Status()),
		TotalAmount:  bk.TotalAmount(),
		Currency:     bk.Currency(),
		PaymentID:    nullable(bk.PaymentID()),
		StatusReason: nullable(bk.StatusReason()),
		ConfirmedAt:  bk.ConfirmedAt(),
		CancelledAt:  bk.CancelledAt(),
		CompletedAt:  bk.CompletedAt(),
		Version:      bk.Version(),
		CreatedAt:    bk.CreatedAt(),
		UpdatedAt:    bk.UpdatedAt(),
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", m.Reference, err)
	}

	return bookingDomain.ReconstructBooking(
		m.ID,
		m.Reference,
		m.UserID,
		bookingDomain.BookingType(m.BookingType),
		status,
		m.TotalAmount,
		m.Currency,
		deref(m.PaymentID),
		deref(m.StatusReason),
		m.ConfirmedAt,
		m.CancelledAt,
		m.CompletedAt,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

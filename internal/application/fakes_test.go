package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bookingDomain "github.com/dreamscape/service-voyage/internal/domain/booking"
	"github.com/dreamscape/service-voyage/pkg/cloudevent"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// memStore is an in-memory BookingRepository with a real compare-and-swap.
type memStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*bookingDomain.Booking

	reads     atomic.Int32
	updates   atomic.Int32
	conflicts atomic.Int32

	afterRead      func()
	afterUpdate    func()
	alwaysConflict bool
	readErr        error
}

func newMemStore() *memStore {
	return &memStore{bookings: make(map[uuid.UUID]*bookingDomain.Booking)}
}

func (s *memStore) put(bk *bookingDomain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[bk.ID()] = bk.Clone()
}

func (s *memStore) get(ref string) *bookingDomain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bk := range s.bookings {
		if bk.Reference() == ref {
			return bk.Clone()
		}
	}
	return nil
}

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bk, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", bookingDomain.ErrNotFound, id)
	}
	return bk.Clone(), nil
}

func (s *memStore) FindByReference(_ context.Context, reference string) (*bookingDomain.Booking, error) {
	s.reads.Add(1)
	if s.readErr != nil {
		return nil, s.readErr
	}
	bk := s.get(reference)
	if bk == nil {
		return nil, fmt.Errorf("%w: reference %s", bookingDomain.ErrNotFound, reference)
	}
	if s.afterRead != nil {
		s.afterRead()
	}
	return bk, nil
}

func (s *memStore) FindByUserID(_ context.Context, userID string, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var mine []*bookingDomain.Booking
	for _, bk := range s.sorted() {
		if bk.IsOwnedBy(userID) {
			mine = append(mine, bk)
		}
	}
	return paginate(mine, page, limit), int64(len(mine)), nil
}

func (s *memStore) ListAll(_ context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	all := s.sorted()
	return paginate(all, page, limit), int64(len(all)), nil
}

func (s *memStore) CountByStatus(_ context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, bk := range s.sorted() {
		counts[string(bk.Status())]++
	}
	return counts, nil
}

func (s *memStore) Save(_ context.Context, bk *bookingDomain.Booking) error {
	s.put(bk)
	return nil
}

func (s *memStore) ConditionalUpdateStatus(_ context.Context, id uuid.UUID, change bookingDomain.StatusChange) error {
	s.mu.Lock()
	bk, ok := s.bookings[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: id %s", bookingDomain.ErrNotFound, id)
	}
	if s.alwaysConflict || bk.Status() != change.From {
		s.conflicts.Add(1)
		s.mu.Unlock()
		return fmt.Errorf("%w: booking %s is no longer %s", bookingDomain.ErrConcurrencyConflict, id, change.From)
	}

	updated := bk.Clone()
	updated.Apply(change)
	s.bookings[id] = updated
	s.updates.Add(1)
	s.mu.Unlock()

	if s.afterUpdate != nil {
		s.afterUpdate()
	}
	return nil
}

func (s *memStore) sorted() []*bookingDomain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*bookingDomain.Booking, 0, len(s.bookings))
	for _, bk := range s.bookings {
		out = append(out, bk.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference() < out[j].Reference() })
	return out
}

func paginate(items []*bookingDomain.Booking, page, limit int) []*bookingDomain.Booking {
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// mockPublisher records published envelopes.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEvent(ctx context.Context, topic string, evt cloudevent.Event) error {
	args := m.Called(ctx, topic, evt)
	return args.Error(0)
}

var errBrokerDown = errors.New("broker unavailable")

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func seedBooking(t *testing.T, store *memStore, ref, userID string, status bookingDomain.BookingStatus, amount string) *bookingDomain.Booking {
	t.Helper()
	created := fixedNow.Add(-time.Hour)
	bk := bookingDomain.ReconstructBooking(
		uuid.New(),
		ref,
		userID,
		bookingDomain.TypeFlight,
		status,
		decimal.RequireFromString(amount),
		"EUR",
		"",
		"",
		nil,
		nil,
		nil,
		1,
		created,
		created,
	)
	store.put(bk)
	return bk
}

func newTestHandler(store *memStore, pub EventPublisher, failure bookingDomain.BookingStatus) *LifecycleHandler {
	h := NewLifecycleHandler(store, pub, LifecycleConfig{
		FailureStatus:      failure,
		MaxConflictRetries: DefaultMaxConflictRetries,
	}, zap.NewNop())
	h.now = func() time.Time { return fixedNow }
	return h
}

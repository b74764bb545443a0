package app

import (
	"context"
	"time"

	"casa_booking/internal/domain"
)

func bookingCacheKey(id string) string { return "booking:" + id }

// QueryService serves booking reads, cache-aside on the single-booking view.
type QueryService struct {
	repo     domain.BookingStore
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.BookingStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

// GetBooking returns a booking to its owner or to staff.
func (s *QueryService) GetBooking(ctx context.Context, id, requesterID string, role domain.Role) (domain.Booking, error) {
	key := bookingCacheKey(id)
	var b domain.Booking
	hit := false
	if s.cache != nil {
		hit, _ = s.cache.Get(ctx, key, &b)
	}
	if !hit {
		var err error
		if b, err = s.repo.GetBooking(ctx, id); err != nil {
			return domain.Booking{}, err
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, key, b, int(s.cacheTTL.Seconds()))
		}
	}

	if b.UserID != requesterID && !role.Elevated() {
		return domain.Booking{}, domain.Errorf(domain.CodeForbidden, "access denied")
	}
	return b, nil
}

// ListUserBookings pages through one user's bookings, newest first.
func (s *QueryService) ListUserBookings(ctx context.Context, q domain.BookingsQuery) (domain.BookingsPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Status != nil && !q.Status.Valid() {
		return domain.BookingsPage{}, domain.Errorf(domain.CodeValidation, "unknown status %q", *q.Status)
	}

	page, err := s.repo.ListUserBookings(ctx, q)
	if err != nil {
		return domain.BookingsPage{}, err
	}
	if page.Items == nil {
		page.Items = []domain.Booking{}
	}
	return page, nil
}

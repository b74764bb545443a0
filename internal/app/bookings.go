package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"casa_booking/internal/domain"
)

const (
	maxSessionKeys = 10
	maxItems       = 10
	maxNotesLen    = 500
)

type CreateBookingInput struct {
	SessionKeys    []string
	Items          []domain.Target
	Range          domain.DateRange
	Guests         int
	CouponCode     string
	Notes          *string
	PricingTier    domain.PricingTier
	IdempotencyKey string
}

type BookingDeps struct {
	Store   domain.Store
	Coupons domain.CouponValidator
	Cache   domain.Cache
	Events  domain.EventPublisher

	RefPrefix      string
	IdempotencyTTL time.Duration
	// CouponTimeout bounds each coupon validation made while unit rows are locked.
	CouponTimeout time.Duration
	// MaxConcurrentCommits bounds commit transactions in flight; 0 means unbounded.
	MaxConcurrentCommits int
}

// BookingService commits bookings and drives them through their status lifecycle.
type BookingService struct {
	store   domain.Store
	coupons domain.CouponValidator
	cache   domain.Cache
	events  domain.EventPublisher

	refPrefix     string
	idemTTL       time.Duration
	couponTimeout time.Duration
	commits       *semaphore.Weighted
	now           func() time.Time
}

func NewBookingService(d BookingDeps, opts ...Option) *BookingService {
	o := buildOptions(opts)
	prefix := d.RefPrefix
	if prefix == "" {
		prefix = "SCH"
	}
	ttl := d.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	couponTimeout := d.CouponTimeout
	if couponTimeout <= 0 {
		couponTimeout = 3 * time.Second
	}
	s := &BookingService{
		store:         d.Store,
		coupons:       d.Coupons,
		cache:         d.Cache,
		events:        d.Events,
		refPrefix:     prefix,
		idemTTL:       ttl,
		couponTimeout: couponTimeout,
		now:           o.now,
	}
	if d.MaxConcurrentCommits > 0 {
		s.commits = semaphore.NewWeighted(int64(d.MaxConcurrentCommits))
	}
	return s
}

func validateCreate(in CreateBookingInput) error {
	if n := len(in.SessionKeys); n < 1 || n > maxSessionKeys {
		return domain.Errorf(domain.CodeValidation, "between 1 and %d session keys required", maxSessionKeys)
	}
	if n := len(in.Items); n < 1 || n > maxItems {
		return domain.Errorf(domain.CodeValidation, "between 1 and %d items required", maxItems)
	}
	if in.Guests < 1 {
		return domain.Errorf(domain.CodeValidation, "guests must be at least 1")
	}
	if in.Notes != nil && len(*in.Notes) > maxNotesLen {
		return domain.Errorf(domain.CodeValidation, "notes must be at most %d characters", maxNotesLen)
	}
	seen := map[domain.Target]bool{}
	for _, it := range in.Items {
		if !it.Type.Bookable() || it.ID == "" {
			return domain.Errorf(domain.CodeValidation, "items must target a ROOM or UNIT by id")
		}
		if seen[it] {
			return domain.Errorf(domain.CodeValidation, "%s appears twice", it)
		}
		seen[it] = true
	}
	return nil
}

// CreateBooking runs the commit path: lock check, per-item re-validation, pricing,
// and the insert, all inside one serializable transaction. Nothing is written and
// no lock is released unless every step succeeds.
func (s *BookingService) CreateBooking(ctx context.Context, userID string, in CreateBookingInput) (domain.Booking, error) {
	if err := validateCreate(in); err != nil {
		return domain.Booking{}, err
	}

	idemKey := ""
	if in.IdempotencyKey != "" && s.cache != nil {
		idemKey = fmt.Sprintf("idem:booking:%s:%s", userID, in.IdempotencyKey)
		var prior domain.Booking
		if ok, _ := s.cache.Get(ctx, idemKey, &prior); ok {
			log.Info().Str("booking_id", prior.ID).Msg("idempotent replay")
			return prior, nil
		}
	}

	if s.commits != nil {
		if err := s.commits.Acquire(ctx, 1); err != nil {
			return domain.Booking{}, err
		}
		defer s.commits.Release(1)
	}

	now := s.now()
	if _, err := s.store.CleanExpiredLocks(ctx, now); err != nil {
		log.Warn().Err(err).Msg("expired lock purge failed")
	}

	// A dead session fails as LOCK_EXPIRED before any inventory is read. The
	// transaction checks again under the row locks.
	if err := checkLocks(ctx, s.store, in.SessionKeys, now); err != nil {
		return domain.Booking{}, err
	}
	unitIDs, err := s.guardUnits(ctx, in.Items)
	if err != nil {
		return domain.Booking{}, err
	}

	var booking domain.Booking
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		if err := tx.LockUnits(ctx, unitIDs); err != nil {
			return fmt.Errorf("lock units: %w", err)
		}
		b, err := s.commit(ctx, tx, userID, in, now)
		booking = b
		return err
	})
	if err != nil {
		return domain.Booking{}, err
	}

	if booking.CouponID != nil && s.coupons != nil {
		if err := s.coupons.RedeemCoupon(ctx, *booking.CouponID); err != nil {
			log.Error().Err(err).Str("coupon_id", *booking.CouponID).Msg("coupon redemption failed")
		}
	}
	if idemKey != "" {
		if _, err := s.cache.SetNX(ctx, idemKey, booking, int(s.idemTTL.Seconds())); err != nil {
			log.Warn().Err(err).Msg("idempotency store failed")
		}
	}
	s.publish(ctx, booking, domain.EventBookingCreated, "")

	log.Info().
		Str("booking_id", booking.ID).
		Str("ref", booking.BookingRef).
		Str("type", string(booking.BookingType)).
		Int("items", len(booking.Items)).
		Str("total", booking.TotalAmount.StringFixed(2)).
		Msg("booking created")
	return booking, nil
}

// checkLocks fails with LOCK_EXPIRED unless every key names a live lock.
func checkLocks(ctx context.Context, q domain.Store, keys []string, now time.Time) error {
	locks, err := q.GetLocks(ctx, keys)
	if err != nil {
		return fmt.Errorf("load locks: %w", err)
	}
	live := map[string]bool{}
	for _, l := range locks {
		if !l.Expired(now) {
			live[l.SessionKey] = true
		}
	}
	for _, k := range keys {
		if !live[k] {
			return domain.Errorf(domain.CodeLockExpired, "your reservation expired, please start again")
		}
	}
	return nil
}

func (s *BookingService) commit(ctx context.Context, tx domain.Store, userID string, in CreateBookingInput, now time.Time) (domain.Booking, error) {
	if err := checkLocks(ctx, tx, in.SessionKeys, now); err != nil {
		return domain.Booking{}, err
	}

	nights := in.Range.Nights()
	bookingType := domain.DeriveBookingType(nights, in.Items)

	resolver := NewTxConflictResolver(tx)
	items := make([]domain.BookingItem, 0, len(in.Items))
	for _, target := range in.Items {
		item, err := s.priceItem(ctx, tx, target, in.Range, nights, in.PricingTier)
		if err != nil {
			return domain.Booking{}, err
		}
		taken, err := resolver.HasConflict(ctx, ConflictQuery{
			Target:         target,
			Range:          in.Range,
			Now:            now,
			IgnoreSessions: in.SessionKeys,
		})
		if err != nil {
			return domain.Booking{}, err
		}
		if taken {
			return domain.Booking{}, domain.Errorf(domain.CodeConflict, "%s is no longer available", strings.ToLower(string(target.Type)))
		}
		items = append(items, item)
	}
	log.Debug().Int("items", len(items)).Msg("items validated")

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal)
	}

	discount := decimal.Zero
	var couponID, couponCode *string
	if code := strings.TrimSpace(in.CouponCode); code != "" {
		if s.coupons == nil {
			return domain.Booking{}, domain.Errorf(domain.CodeCouponNotFound, "coupon %q not found", code)
		}
		cctx, cancel := context.WithTimeout(ctx, s.couponTimeout)
		res, err := s.coupons.ValidateCoupon(cctx, code, nights, subtotal)
		cancel()
		if err != nil {
			var de *domain.Error
			if errors.As(err, &de) {
				return domain.Booking{}, err
			}
			return domain.Booking{}, fmt.Errorf("validate coupon: %w", err)
		}
		discount = decimal.Min(res.DiscountAmount, subtotal)
		couponID, couponCode = &res.CouponID, &res.Code
	}
	discounted := subtotal.Sub(discount)

	taxes, err := tx.ActiveTaxes(ctx)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("active taxes: %w", err)
	}
	taxAmount := domain.ComputeTax(taxes, bookingType, discounted)

	year := now.UTC().Year()
	seq, err := tx.NextBookingSeq(ctx, year)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking sequence: %w", err)
	}

	b := domain.Booking{
		ID:             uuid.NewString(),
		BookingRef:     domain.FormatBookingRef(s.refPrefix, year, seq),
		UserID:         userID,
		BookingType:    bookingType,
		CheckIn:        in.Range.CheckIn,
		CheckOut:       in.Range.CheckOut,
		Nights:         nights,
		Guests:         in.Guests,
		Status:         domain.StatusPending,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      taxAmount,
		TotalAmount:    discounted.Add(taxAmount),
		CouponID:       couponID,
		CouponCode:     couponCode,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].BookingID = b.ID
	}
	b.Items = items

	if err := tx.InsertBooking(ctx, b); err != nil {
		return domain.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	if _, err := tx.DeleteLocks(ctx, in.SessionKeys); err != nil {
		return domain.Booking{}, fmt.Errorf("release locks: %w", err)
	}
	return b, nil
}

// guardUnits returns, in id order, every unit the items touch; the commit row-locks
// them first. A booking asking for a unit together with one of its own rooms is rejected.
func (s *BookingService) guardUnits(ctx context.Context, items []domain.Target) ([]string, error) {
	wholeUnits := map[string]bool{}
	for _, t := range items {
		if t.Type == domain.TargetUnit {
			wholeUnits[t.ID] = true
		}
	}
	set := map[string]bool{}
	for _, t := range items {
		u, err := unitOf(ctx, s.store, t)
		if err != nil {
			return nil, err
		}
		if t.Type == domain.TargetRoom && wholeUnits[u] {
			return nil, domain.Errorf(domain.CodeValidation, "%s is already covered by unit %s", t, u)
		}
		set[u] = true
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *BookingService) priceItem(ctx context.Context, tx domain.Store, t domain.Target, dr domain.DateRange, nights int, tier domain.PricingTier) (domain.BookingItem, error) {
	var (
		rates []domain.Rate
		build func(domain.Rate) domain.BookingItem
	)
	switch t.Type {
	case domain.TargetRoom:
		l, err := tx.GetRoom(ctx, t.ID, dr.CheckIn)
		if err != nil {
			return domain.BookingItem{}, err
		}
		if !l.Room.IsActive {
			return domain.BookingItem{}, domain.Errorf(domain.CodeNotFound, "room not found or inactive")
		}
		rates = l.Rates
		build = func(r domain.Rate) domain.BookingItem { return roomItem(l, r, nights) }
	default:
		l, err := tx.GetUnit(ctx, t.ID, dr.CheckIn)
		if err != nil {
			return domain.BookingItem{}, err
		}
		if !l.Unit.IsActive {
			return domain.BookingItem{}, domain.Errorf(domain.CodeNotFound, "unit not found or inactive")
		}
		rates = l.Rates
		build = func(r domain.Rate) domain.BookingItem { return unitItem(l, r, nights) }
	}

	sel := domain.SelectRate(rates, nights, tier)
	if sel.RequiresQuote {
		return domain.BookingItem{}, domain.Errorf(domain.CodeRequiresQuote, "this stay requires a custom quote")
	}
	if sel.Rate == nil {
		return domain.BookingItem{}, domain.Errorf(domain.CodeNoPricing, "no pricing available for %s and dates", strings.ToLower(string(t.Type)))
	}
	return build(*sel.Rate), nil
}

// CancelBooking is the dedicated cancel path: owners and managers only, and only
// before check-in.
func (s *BookingService) CancelBooking(ctx context.Context, id, requesterID string, role domain.Role) (domain.Booking, error) {
	var (
		b    domain.Booking
		prev domain.BookingStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		var err error
		if b, err = tx.GetBooking(ctx, id); err != nil {
			return err
		}
		if b.UserID != requesterID && !role.CanManageBookings() {
			return domain.Errorf(domain.CodeForbidden, "access denied")
		}
		if !b.Status.CanCancel() {
			return domain.Errorf(domain.CodeCannotCancel, "booking cannot be cancelled in status %s", b.Status)
		}
		prev = b.Status
		now := s.now()
		if err := tx.UpdateBookingStatus(ctx, id, prev, domain.StatusCancelled, now); err != nil {
			return err
		}
		b.Status, b.UpdatedAt = domain.StatusCancelled, now
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.afterStatusChange(ctx, b, prev)
	return b, nil
}

// UpdateStatus moves a booking through the status table. Callers gate it to staff roles.
func (s *BookingService) UpdateStatus(ctx context.Context, id string, to domain.BookingStatus) (domain.Booking, error) {
	if !to.Valid() {
		return domain.Booking{}, domain.Errorf(domain.CodeValidation, "unknown status %q", to)
	}
	var (
		b    domain.Booking
		prev domain.BookingStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		var err error
		if b, err = tx.GetBooking(ctx, id); err != nil {
			return err
		}
		if err := domain.Transition(b.Status, to); err != nil {
			return err
		}
		prev = b.Status
		now := s.now()
		if err := tx.UpdateBookingStatus(ctx, id, prev, to, now); err != nil {
			return err
		}
		b.Status, b.UpdatedAt = to, now
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.afterStatusChange(ctx, b, prev)
	return b, nil
}

func (s *BookingService) afterStatusChange(ctx context.Context, b domain.Booking, prev domain.BookingStatus) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, bookingCacheKey(b.ID))
	}
	s.publish(ctx, b, domain.EventBookingStatusChanged, prev)
	log.Info().
		Str("booking_id", b.ID).
		Str("from", string(prev)).
		Str("to", string(b.Status)).
		Msg("booking status changed")
}

// publish is best-effort; a broker outage never fails a committed booking.
func (s *BookingService) publish(ctx context.Context, b domain.Booking, typ domain.EventType, prev domain.BookingStatus) {
	if s.events == nil {
		return
	}
	evt := domain.BookingEvent{
		Type:           typ,
		BookingID:      b.ID,
		BookingRef:     b.BookingRef,
		UserID:         b.UserID,
		Status:         b.Status,
		PreviousStatus: prev,
		TotalAmount:    b.TotalAmount,
		OccurredAt:     s.now(),
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID).Str("event", string(typ)).Msg("event publish failed")
	}
}

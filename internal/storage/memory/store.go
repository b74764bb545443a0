package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"casa_booking/internal/domain"
)

type data struct {
	properties    map[string]domain.Property
	units         map[string]domain.Unit
	rooms         map[string]domain.Room
	roomAmenities map[string][]domain.Amenity
	unitAmenities map[string][]domain.Amenity
	rates         []domain.Rate
	taxes         []domain.Tax
	blocks        []domain.MaintenanceBlock
	locks         map[string]domain.InventoryLock
	bookings      map[string]domain.Booking
	counters      map[int]int
}

func (d *data) clone() *data {
	return &data{
		properties:    maps.Clone(d.properties),
		units:         maps.Clone(d.units),
		rooms:         maps.Clone(d.rooms),
		roomAmenities: maps.Clone(d.roomAmenities),
		unitAmenities: maps.Clone(d.unitAmenities),
		rates:         slices.Clone(d.rates),
		taxes:         slices.Clone(d.taxes),
		blocks:        slices.Clone(d.blocks),
		locks:         maps.Clone(d.locks),
		bookings:      maps.Clone(d.bookings),
		counters:      maps.Clone(d.counters),
	}
}

// Store is an in-process implementation of domain.Store. A single mutex serializes
// transactions, which gives the same guarantees as the serializable MySQL commit.
//
// Coupons live outside the transactional state: the collaborator is called from
// inside commits and must not contend for the transaction mutex.
type Store struct {
	mu      *sync.Mutex
	d       **data
	inTx    bool
	now     func() time.Time
	coupons *couponBook
}

type couponBook struct {
	mu     sync.Mutex
	byCode map[string]domain.Coupon
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	d := &data{
		properties:    map[string]domain.Property{},
		units:         map[string]domain.Unit{},
		rooms:         map[string]domain.Room{},
		roomAmenities: map[string][]domain.Amenity{},
		unitAmenities: map[string][]domain.Amenity{},
		locks:         map[string]domain.InventoryLock{},
		bookings:      map[string]domain.Booking{},
		counters:      map[int]int{},
	}
	s := &Store{
		mu:      &sync.Mutex{},
		d:       &d,
		now:     time.Now,
		coupons: &couponBook{byCode: map[string]domain.Coupon{}},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var (
	_ domain.Store           = (*Store)(nil)
	_ domain.CouponValidator = (*Store)(nil)
)

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) data() *data { return *s.d }

// WithinTx snapshots the state and restores it when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data().clone()
	tx := &Store{mu: s.mu, d: s.d, inTx: true, now: s.now, coupons: s.coupons}
	if err := fn(ctx, tx); err != nil {
		*s.d = snapshot
		return err
	}
	return nil
}

// LockUnits is satisfied by the transaction mutex.
func (s *Store) LockUnits(ctx context.Context, unitIDs []string) error { return nil }

/********** seeding **********/

func (s *Store) AddProperty(p domain.Property) {
	defer s.lock()()
	s.data().properties[p.ID] = p
}

// AddUnit stores the unit and any rooms attached to it.
func (s *Store) AddUnit(u domain.Unit, amenities ...domain.Amenity) {
	defer s.lock()()
	d := s.data()
	for _, r := range u.Rooms {
		r.UnitID = u.ID
		d.rooms[r.ID] = r
	}
	u.Rooms = nil
	d.units[u.ID] = u
	if len(amenities) > 0 {
		d.unitAmenities[u.ID] = amenities
	}
}

func (s *Store) AddRoom(r domain.Room, amenities ...domain.Amenity) {
	defer s.lock()()
	d := s.data()
	d.rooms[r.ID] = r
	if len(amenities) > 0 {
		d.roomAmenities[r.ID] = amenities
	}
}

func (s *Store) AddRate(r domain.Rate) {
	defer s.lock()()
	s.data().rates = append(s.data().rates, r)
}

func (s *Store) AddTax(t domain.Tax) {
	defer s.lock()()
	s.data().taxes = append(s.data().taxes, t)
}

func (s *Store) AddCoupon(c domain.Coupon) {
	s.coupons.mu.Lock()
	defer s.coupons.mu.Unlock()
	s.coupons.byCode[strings.ToUpper(c.Code)] = c
}

// Coupon returns the stored coupon by code.
func (s *Store) Coupon(code string) (domain.Coupon, bool) {
	s.coupons.mu.Lock()
	defer s.coupons.mu.Unlock()
	c, ok := s.coupons.byCode[strings.ToUpper(code)]
	return c, ok
}

func (s *Store) AddMaintenanceBlock(b domain.MaintenanceBlock) {
	defer s.lock()()
	s.data().blocks = append(s.data().blocks, b)
}

/********** inventory **********/

func (s *Store) ratesFor(t domain.Target, on time.Time) []domain.Rate {
	var out []domain.Rate
	for _, r := range s.data().rates {
		if r.Target == t && r.ActiveOn(on) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ValidFrom.Equal(out[j].ValidFrom) {
			return out[i].ValidFrom.After(out[j].ValidFrom)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) roomListing(r domain.Room, ratesOn time.Time) domain.RoomListing {
	d := s.data()
	u := d.units[r.UnitID]
	p := d.properties[u.PropertyID]
	return domain.RoomListing{
		Room:         r,
		UnitNumber:   u.UnitNumber,
		Floor:        u.Floor,
		PropertyID:   p.ID,
		PropertyName: p.Name,
		Amenities:    d.roomAmenities[r.ID],
		Rates:        s.ratesFor(domain.RoomTarget(r.ID), ratesOn),
	}
}

func (s *Store) unitListing(u domain.Unit, ratesOn time.Time, activeRoomsOnly bool) domain.UnitListing {
	d := s.data()
	var rooms []domain.Room
	for _, r := range d.rooms {
		if r.UnitID == u.ID && (r.IsActive || !activeRoomsOnly) {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomNumber < rooms[j].RoomNumber })
	u.Rooms = rooms
	return domain.UnitListing{
		Unit:         u,
		PropertyName: d.properties[u.PropertyID].Name,
		Amenities:    d.unitAmenities[u.ID],
		Rates:        s.ratesFor(domain.UnitTarget(u.ID), ratesOn),
	}
}

func (s *Store) GetRoom(ctx context.Context, id string, ratesOn time.Time) (domain.RoomListing, error) {
	defer s.lock()()
	r, ok := s.data().rooms[id]
	if !ok {
		return domain.RoomListing{}, domain.Errorf(domain.CodeNotFound, "room not found or inactive")
	}
	return s.roomListing(r, ratesOn), nil
}

func (s *Store) GetUnit(ctx context.Context, id string, ratesOn time.Time) (domain.UnitListing, error) {
	defer s.lock()()
	u, ok := s.data().units[id]
	if !ok {
		return domain.UnitListing{}, domain.Errorf(domain.CodeNotFound, "unit not found or inactive")
	}
	return s.unitListing(u, ratesOn, true), nil
}

func (s *Store) liveUnit(id string) (domain.Unit, bool) {
	d := s.data()
	u, ok := d.units[id]
	if !ok || !u.IsActive {
		return u, false
	}
	p, ok := d.properties[u.PropertyID]
	return u, ok && p.IsActive
}

func (s *Store) SearchRooms(ctx context.Context, f domain.RoomFilter) ([]domain.RoomListing, error) {
	defer s.lock()()
	var out []domain.RoomListing
	for _, r := range s.data().rooms {
		if !r.IsActive {
			continue
		}
		if _, ok := s.liveUnit(r.UnitID); !ok {
			continue
		}
		if f.MaxOccupancy > 0 && r.MaxOccupancy != f.MaxOccupancy {
			continue
		}
		if f.HasAC != nil && r.HasAC != *f.HasAC {
			continue
		}
		out = append(out, s.roomListing(r, f.RatesOn))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room.ID < out[j].Room.ID })
	return out, nil
}

func (s *Store) SearchUnits(ctx context.Context, f domain.UnitFilter) ([]domain.UnitListing, error) {
	defer s.lock()()
	var out []domain.UnitListing
	for id := range s.data().units {
		u, ok := s.liveUnit(id)
		if !ok {
			continue
		}
		out = append(out, s.unitListing(u, f.RatesOn, true))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit.ID < out[j].Unit.ID })
	return out, nil
}

/********** holds & hierarchy **********/

func (s *Store) Holds(ctx context.Context, q domain.HoldQuery) ([]domain.Hold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()
	d := s.data()

	var scope map[domain.Target]bool
	if q.Targets != nil {
		scope = make(map[domain.Target]bool, len(q.Targets))
		for _, t := range q.Targets {
			scope[t] = true
		}
	}
	wantKind := func(k domain.HoldKind) bool {
		return len(q.Kinds) == 0 || slices.Contains(q.Kinds, k)
	}
	var out []domain.Hold
	add := func(h domain.Hold) {
		if scope != nil && !scope[h.Target] {
			return
		}
		if h.Range.Overlaps(q.Range) {
			out = append(out, h)
		}
	}

	if wantKind(domain.HoldBooking) {
		for _, b := range d.bookings {
			if !b.Status.Active() {
				continue
			}
			for _, it := range b.Items {
				add(domain.Hold{Kind: domain.HoldBooking, Target: it.Target, Range: b.Range(), Ref: b.ID})
			}
		}
	}
	if wantKind(domain.HoldLock) {
		for _, l := range d.locks {
			if l.Expired(q.Now) {
				continue
			}
			add(domain.Hold{Kind: domain.HoldLock, Target: l.Target, Range: l.Range(), Ref: l.SessionKey})
		}
	}
	if wantKind(domain.HoldMaintenance) {
		for _, b := range d.blocks {
			add(domain.Hold{Kind: domain.HoldMaintenance, Target: b.Target, Range: b.Range(), Ref: b.ID})
		}
	}
	return out, nil
}

func (s *Store) Ancestors(ctx context.Context, targets []domain.Target) (map[domain.Target][]domain.Target, error) {
	defer s.lock()()
	d := s.data()
	out := make(map[domain.Target][]domain.Target, len(targets))
	for _, t := range targets {
		switch t.Type {
		case domain.TargetRoom:
			r, ok := d.rooms[t.ID]
			if !ok {
				continue
			}
			up := []domain.Target{domain.UnitTarget(r.UnitID)}
			if u, ok := d.units[r.UnitID]; ok {
				up = append(up, domain.PropertyTarget(u.PropertyID))
			}
			out[t] = up
		case domain.TargetUnit:
			if u, ok := d.units[t.ID]; ok {
				out[t] = []domain.Target{domain.PropertyTarget(u.PropertyID)}
			}
		case domain.TargetProperty:
			if _, ok := d.properties[t.ID]; ok {
				out[t] = []domain.Target{}
			}
		}
	}
	return out, nil
}

func (s *Store) Descendants(ctx context.Context, targets []domain.Target) (map[domain.Target][]domain.Target, error) {
	defer s.lock()()
	d := s.data()
	out := make(map[domain.Target][]domain.Target, len(targets))
	roomsOf := func(unitID string) []domain.Target {
		var rs []domain.Target
		for _, r := range d.rooms {
			if r.UnitID == unitID {
				rs = append(rs, domain.RoomTarget(r.ID))
			}
		}
		return rs
	}
	for _, t := range targets {
		switch t.Type {
		case domain.TargetRoom:
			if _, ok := d.rooms[t.ID]; ok {
				out[t] = []domain.Target{}
			}
		case domain.TargetUnit:
			if _, ok := d.units[t.ID]; ok {
				out[t] = roomsOf(t.ID)
			}
		case domain.TargetProperty:
			if _, ok := d.properties[t.ID]; !ok {
				continue
			}
			down := []domain.Target{}
			for _, u := range d.units {
				if u.PropertyID == t.ID {
					down = append(down, domain.UnitTarget(u.ID))
					down = append(down, roomsOf(u.ID)...)
				}
			}
			out[t] = down
		}
	}
	return out, nil
}

/********** locks **********/

func (s *Store) CleanExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	defer s.lock()()
	var n int64
	for k, l := range s.data().locks {
		if l.Expired(now) {
			delete(s.data().locks, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) GetLocks(ctx context.Context, sessionKeys []string) ([]domain.InventoryLock, error) {
	defer s.lock()()
	var out []domain.InventoryLock
	for _, k := range sessionKeys {
		if l, ok := s.data().locks[k]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) InsertLock(ctx context.Context, l domain.InventoryLock) error {
	defer s.lock()()
	if _, dup := s.data().locks[l.SessionKey]; dup {
		return fmt.Errorf("memory: duplicate session key %s", l.SessionKey)
	}
	s.data().locks[l.SessionKey] = l
	return nil
}

func (s *Store) DeleteLocks(ctx context.Context, sessionKeys []string) (int64, error) {
	defer s.lock()()
	var n int64
	for _, k := range sessionKeys {
		if _, ok := s.data().locks[k]; ok {
			delete(s.data().locks, k)
			n++
		}
	}
	return n, nil
}

/********** bookings **********/

func (s *Store) NextBookingSeq(ctx context.Context, year int) (int, error) {
	defer s.lock()()
	s.data().counters[year]++
	return s.data().counters[year], nil
}

func (s *Store) InsertBooking(ctx context.Context, b domain.Booking) error {
	defer s.lock()()
	if _, dup := s.data().bookings[b.ID]; dup {
		return fmt.Errorf("memory: duplicate booking %s", b.ID)
	}
	for _, other := range s.data().bookings {
		if other.BookingRef == b.BookingRef {
			return fmt.Errorf("memory: duplicate booking ref %s", b.BookingRef)
		}
	}
	b.Items = slices.Clone(b.Items)
	s.data().bookings[b.ID] = b
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	defer s.lock()()
	b, ok := s.data().bookings[id]
	if !ok {
		return domain.Booking{}, domain.Errorf(domain.CodeNotFound, "booking not found")
	}
	b.Items = slices.Clone(b.Items)
	return b, nil
}

func (s *Store) ListUserBookings(ctx context.Context, q domain.BookingsQuery) (domain.BookingsPage, error) {
	defer s.lock()()
	var all []domain.Booking
	for _, b := range s.data().bookings {
		if b.UserID != q.UserID {
			continue
		}
		if q.Status != nil && b.Status != *q.Status {
			continue
		}
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].BookingRef > all[j].BookingRef
	})

	page := domain.BookingsPage{Total: len(all), Page: q.Page, Limit: q.Limit, Items: []domain.Booking{}}
	start := (q.Page - 1) * q.Limit
	if start < 0 || start >= len(all) {
		return page, nil
	}
	end := min(start+q.Limit, len(all))
	page.Items = append(page.Items, all[start:end]...)
	return page, nil
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id string, from, to domain.BookingStatus, at time.Time) error {
	defer s.lock()()
	b, ok := s.data().bookings[id]
	if !ok {
		return domain.Errorf(domain.CodeNotFound, "booking not found")
	}
	if b.Status != from {
		return domain.Errorf(domain.CodeConflict, "booking status changed concurrently")
	}
	b.Status, b.UpdatedAt = to, at
	s.data().bookings[id] = b
	return nil
}

/********** reference data **********/

func (s *Store) ActiveTaxes(ctx context.Context) ([]domain.Tax, error) {
	defer s.lock()()
	var out []domain.Tax
	for _, t := range s.data().taxes {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ValidateCoupon(ctx context.Context, code string, nights int, subtotal decimal.Decimal) (domain.CouponResult, error) {
	s.coupons.mu.Lock()
	defer s.coupons.mu.Unlock()
	c, ok := s.coupons.byCode[strings.ToUpper(code)]
	if !ok {
		return domain.CouponResult{}, domain.Errorf(domain.CodeCouponNotFound, "coupon %q not found", code)
	}
	return c.Validate(s.now(), nights, subtotal)
}

func (s *Store) RedeemCoupon(ctx context.Context, couponID string) error {
	s.coupons.mu.Lock()
	defer s.coupons.mu.Unlock()
	for k, c := range s.coupons.byCode {
		if c.ID == couponID {
			c.UsedCount++
			s.coupons.byCode[k] = c
			return nil
		}
	}
	return domain.Errorf(domain.CodeCouponNotFound, "coupon not found")
}

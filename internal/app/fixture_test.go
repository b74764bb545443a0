package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"casa_booking/internal/app"
	"casa_booking/internal/domain"
	"casa_booking/internal/storage/memory"
)

// ---- clock ----

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---- cache ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) SetNX(ctx context.Context, key string, v any, ttlSec int) (bool, error) {
	c.mu.Lock()
	_, exists := c.store[key]
	c.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, c.Set(ctx, key, v, ttlSec)
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

// ---- events ----

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.BookingEvent
}

func (f *fakeEvents) Publish(ctx context.Context, evt domain.BookingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

// ---- inventory fixture ----
//
// Casa Sol (p1)
//   unit u1 "1A": r1 single AC @50, r2 double @80; whole unit @120
//   unit u2 "2A": r3 double @70, r4 double AC @90; whole unit @150
// VAT 10% on everything.

type env struct {
	store    *memory.Store
	clock    *clock
	cache    *fakeCache
	events   *fakeEvents
	locks    *app.LockManager
	search   *app.SearchService
	bookings *app.BookingService
	queries  *app.QueryService
}

var (
	t0        = time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)
	rateStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := &clock{t: t0}
	st := memory.New(memory.WithClock(clk.Now))

	st.AddProperty(domain.Property{ID: "p1", Name: "Casa Sol", City: "Lisbon", IsActive: true})
	st.AddUnit(domain.Unit{ID: "u1", PropertyID: "p1", UnitNumber: "1A", Floor: 1, IsActive: true, Rooms: []domain.Room{
		{ID: "r1", RoomNumber: "101", MaxOccupancy: 1, HasAC: true, IsActive: true},
		{ID: "r2", RoomNumber: "102", MaxOccupancy: 2, IsActive: true},
	}}, domain.Amenity{Name: "Kitchen"})
	st.AddUnit(domain.Unit{ID: "u2", PropertyID: "p1", UnitNumber: "2A", Floor: 2, IsActive: true, Rooms: []domain.Room{
		{ID: "r3", RoomNumber: "201", MaxOccupancy: 2, IsActive: true},
		{ID: "r4", RoomNumber: "202", MaxOccupancy: 2, HasAC: true, IsActive: true},
	}})

	for id, price := range map[domain.Target]string{
		domain.RoomTarget("r1"): "50",
		domain.RoomTarget("r2"): "80",
		domain.RoomTarget("r3"): "70",
		domain.RoomTarget("r4"): "90",
		domain.UnitTarget("u1"): "120",
		domain.UnitTarget("u2"): "150",
	} {
		st.AddRate(domain.Rate{
			ID:          "rate-" + id.ID,
			Target:      id,
			RateType:    domain.RateNightly,
			PricingTier: domain.TierStandard,
			MinNights:   1,
			Price:       d(price),
			ValidFrom:   rateStart,
		})
	}
	st.AddTax(domain.Tax{ID: "vat", Name: "VAT", Rate: d("10"), TaxType: domain.TaxPercentage, AppliesTo: "ALL", IsActive: true})

	cache := &fakeCache{}
	events := &fakeEvents{}
	opt := app.WithClock(clk.Now)
	return &env{
		store:  st,
		clock:  clk,
		cache:  cache,
		events: events,
		locks:  app.NewLockManager(st, domain.DefaultLockTTL, opt),
		search: app.NewSearchService(st, opt),
		bookings: app.NewBookingService(app.BookingDeps{
			Store:   st,
			Coupons: st,
			Cache:   cache,
			Events:  events,
		}, opt),
		queries: app.NewQueryService(st, cache, 10*time.Minute),
	}
}

func dates(t *testing.T, in, out string) domain.DateRange {
	t.Helper()
	dr, err := domain.ParseDateRange(in, out)
	require.NoError(t, err)
	return dr
}

// book locks every target for dr and commits a booking for user.
func (e *env) book(t *testing.T, user string, dr domain.DateRange, targets ...domain.Target) (domain.Booking, error) {
	t.Helper()
	var keys []string
	for _, tg := range targets {
		l, err := e.locks.Acquire(context.Background(), tg, dr)
		if err != nil {
			return domain.Booking{}, err
		}
		keys = append(keys, l.SessionKey)
	}
	return e.bookings.CreateBooking(context.Background(), user, app.CreateBookingInput{
		SessionKeys: keys,
		Items:       targets,
		Range:       dr,
		Guests:      1,
	})
}

package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "casa_booking/internal/adapters/http_server"
	"casa_booking/internal/app"
	"casa_booking/internal/domain"
	"casa_booking/internal/storage/memory"
)

type fixture struct {
	handler http.Handler
	store   *memory.Store
}

func newFixture(t *testing.T, limiter *httpserver.ClientLimiter) fixture {
	t.Helper()
	st := memory.New()
	st.AddProperty(domain.Property{ID: "p1", Name: "Casa Sol", IsActive: true})
	st.AddUnit(domain.Unit{ID: "u1", PropertyID: "p1", UnitNumber: "1A", IsActive: true, Rooms: []domain.Room{
		{ID: "r1", RoomNumber: "101", MaxOccupancy: 1, HasAC: true, IsActive: true},
		{ID: "r2", RoomNumber: "102", MaxOccupancy: 2, IsActive: true},
	}})
	for _, tg := range []domain.Target{domain.RoomTarget("r1"), domain.RoomTarget("r2"), domain.UnitTarget("u1")} {
		st.AddRate(domain.Rate{
			ID: "rate-" + tg.ID, Target: tg, RateType: domain.RateNightly, PricingTier: domain.TierStandard,
			MinNights: 1, Price: decimal.NewFromInt(100), ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{
		Search:      app.NewSearchService(st),
		Locks:       app.NewLockManager(st, domain.DefaultLockTTL),
		Bookings:    app.NewBookingService(app.BookingDeps{Store: st, Coupons: st}),
		Queries:     app.NewQueryService(st, nil, time.Minute),
		LockLimiter: limiter,
	})
	return fixture{handler: srv.Mux(), store: st}
}

func (f fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func guest(id string) map[string]string { return map[string]string{"X-User-ID": id} }

func problemCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p struct {
		Code   string `json:"code"`
		Status int    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, rr.Code, p.Status)
	return p.Code
}

func lockBody(targetType, id string) map[string]string {
	return map[string]string{"targetType": targetType, "targetId": id, "checkIn": "2030-03-01", "checkOut": "2030-03-04"}
}

func (f fixture) lock(t *testing.T, targetType, id string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/locks", lockBody(targetType, id), nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var l domain.InventoryLock
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &l))
	return l.SessionKey
}

func (f fixture) book(t *testing.T, user string) domain.Booking {
	t.Helper()
	key := f.lock(t, "ROOM", "r1")
	rr := f.do(t, http.MethodPost, "/v1/bookings", map[string]any{
		"sessionKeys": []string{key},
		"items":       []map[string]string{{"targetType": "ROOM", "targetId": "r1"}},
		"checkIn":     "2030-03-01",
		"checkOut":    "2030-03-04",
		"guests":      1,
	}, guest(user))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var b domain.Booking
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	return b
}

func TestSearch_Handler(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(t, http.MethodGet, "/v1/availability?checkIn=2030-03-01&checkOut=2030-03-03&occupancyType=double", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res app.AvailabilityResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Results, 1)
	assert.Equal(t, "r2", res.Results[0].ID)
	assert.Equal(t, 2, res.Nights)

	rr = f.do(t, http.MethodGet, "/v1/availability?checkIn=2030-03-01&checkOut=2030-03-03&occupancyType=triple", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION", problemCode(t, rr))

	rr = f.do(t, http.MethodGet, "/v1/availability?checkIn=2030-03-03&checkOut=2030-03-01&occupancyType=single", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLocks_Handler(t *testing.T) {
	f := newFixture(t, nil)

	key := f.lock(t, "ROOM", "r1")

	rr := f.do(t, http.MethodPost, "/v1/locks", lockBody("UNIT", "u1"), nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "ALREADY_LOCKED", problemCode(t, rr))

	rr = f.do(t, http.MethodPost, "/v1/locks", lockBody("PROPERTY", "p1"), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION", problemCode(t, rr))

	rr = f.do(t, http.MethodPost, "/v1/locks", lockBody("ROOM", "nope"), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/locks/"+key, nil, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodDelete, "/v1/locks/"+key, nil, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code, "release is idempotent")

	f.lock(t, "UNIT", "u1")
}

func TestLocks_RateLimited(t *testing.T) {
	f := newFixture(t, httpserver.NewClientLimiter(0.001, 1))

	f.lock(t, "ROOM", "r1")
	rr := f.do(t, http.MethodPost, "/v1/locks", lockBody("ROOM", "r2"), nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMITED", problemCode(t, rr))
}

func TestCreateBooking_Handler(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(t, http.MethodPost, "/v1/bookings", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/bookings", map[string]any{"sessionKeys": []string{}, "guests": 0}, guest("g1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION", problemCode(t, rr))

	rr = f.do(t, http.MethodPost, "/v1/bookings", map[string]any{"surprise": true}, guest("g1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown fields are rejected")

	rr = f.do(t, http.MethodPost, "/v1/bookings", map[string]any{
		"sessionKeys": []string{"gone"},
		"items":       []map[string]string{{"targetType": "ROOM", "targetId": "r1"}},
		"checkIn":     "2030-03-01",
		"checkOut":    "2030-03-04",
		"guests":      1,
	}, guest("g1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "LOCK_EXPIRED", problemCode(t, rr))

	b := f.book(t, "g1")
	assert.Equal(t, domain.StatusPending, b.Status)
	assert.True(t, decimal.NewFromInt(300).Equal(b.TotalAmount))
	require.Len(t, b.Items, 1)
}

func TestGetBooking_Handler(t *testing.T) {
	f := newFixture(t, nil)
	b := f.book(t, "g1")

	rr := f.do(t, http.MethodGet, "/v1/bookings/"+b.ID, nil, guest("g2"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/bookings/"+b.ID, nil, map[string]string{"X-User-ID": "s1", "X-User-Role": "staff"})
	require.Equal(t, http.StatusOK, rr.Code)
	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rr = f.do(t, http.MethodGet, "/v1/bookings/"+b.ID, nil, map[string]string{"X-User-ID": "g1", "If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/bookings/missing", nil, guest("g1"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/bookings?limit=5", nil, guest("g1"))
	require.Equal(t, http.StatusOK, rr.Code)
	var page domain.BookingsPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.Limit)

	rr = f.do(t, http.MethodGet, "/v1/bookings?status=lost", nil, guest("g1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBookingStatus_Handler(t *testing.T) {
	f := newFixture(t, nil)
	b := f.book(t, "g1")
	path := "/v1/bookings/" + b.ID

	rr := f.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "CONFIRMED"}, guest("g1"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	staff := map[string]string{"X-User-ID": "s1", "X-User-Role": "STAFF"}
	rr = f.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "CANCELLED"}, staff)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "cancellation has its own route")

	rr = f.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "CHECKED_OUT"}, staff)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", problemCode(t, rr))

	rr = f.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "CONFIRMED"}, staff)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodPost, path+"/cancel", nil, guest("g2"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPost, path+"/cancel", nil, guest("g1"))
	require.Equal(t, http.StatusOK, rr.Code)
	var cancelled domain.Booking
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cancelled))
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	rr = f.do(t, http.MethodPost, path+"/cancel", nil, guest("g1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "CANNOT_CANCEL", problemCode(t, rr))
}

func TestUnknownRoute_Problem(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(t, http.MethodGet, "/v1/nothing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", problemCode(t, rr))

	rr = f.do(t, http.MethodPut, "/v1/locks", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", problemCode(t, rr))
}

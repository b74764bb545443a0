package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InventoryReader reads the property/unit/room tree. Listings carry the rate
// candidates active on RatesOn, most recent validFrom first.
type InventoryReader interface {
	GetRoom(ctx context.Context, id string, ratesOn time.Time) (RoomListing, error)
	GetUnit(ctx context.Context, id string, ratesOn time.Time) (UnitListing, error)
	// SearchRooms returns active rooms under active units and properties.
	SearchRooms(ctx context.Context, f RoomFilter) ([]RoomListing, error)
	// SearchUnits returns active units, with their active rooms, under active properties.
	SearchUnits(ctx context.Context, f UnitFilter) ([]UnitListing, error)
}

type RoomFilter struct {
	MaxOccupancy int
	HasAC        *bool
	RatesOn      time.Time
}

type UnitFilter struct {
	RatesOn time.Time
}

// HoldReader lists everything that can take inventory out of availability.
type HoldReader interface {
	// Holds returns active bookings, locks not expired at q.Now and maintenance blocks
	// overlapping q.Range. A nil q.Targets means every target.
	Holds(ctx context.Context, q HoldQuery) ([]Hold, error)
	// Ancestors maps each target to the levels above it (room -> unit, property; unit -> property).
	Ancestors(ctx context.Context, targets []Target) (map[Target][]Target, error)
	// Descendants maps each target to the levels below it (unit -> rooms; property -> units, rooms).
	// Both traversals omit targets that do not exist.
	Descendants(ctx context.Context, targets []Target) (map[Target][]Target, error)
}

type HoldQuery struct {
	Range   DateRange
	Targets []Target
	Kinds   []HoldKind
	Now     time.Time
}

type LockStore interface {
	// CleanExpiredLocks deletes locks with expiresAt < now.
	CleanExpiredLocks(ctx context.Context, now time.Time) (int64, error)
	GetLocks(ctx context.Context, sessionKeys []string) ([]InventoryLock, error)
	InsertLock(ctx context.Context, l InventoryLock) error
	// DeleteLocks is idempotent; it reports how many rows went away.
	DeleteLocks(ctx context.Context, sessionKeys []string) (int64, error)
}

type BookingStore interface {
	// NextBookingSeq atomically advances and returns the booking counter for year.
	NextBookingSeq(ctx context.Context, year int) (int, error)
	InsertBooking(ctx context.Context, b Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListUserBookings(ctx context.Context, q BookingsQuery) (BookingsPage, error)
	// UpdateBookingStatus moves a booking from -> to, failing with CONFLICT when the
	// stored status is no longer from.
	UpdateBookingStatus(ctx context.Context, id string, from, to BookingStatus, at time.Time) error
}

type BookingsQuery struct {
	UserID string
	Status *BookingStatus
	Page   int
	Limit  int
}

type BookingsPage struct {
	Items []Booking `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// TaxSource supplies the active tax list, read fresh on every call.
type TaxSource interface {
	ActiveTaxes(ctx context.Context) ([]Tax, error)
}

// Store is the relational store behind the reservation core.
type Store interface {
	InventoryReader
	HoldReader
	LockStore
	BookingStore
	TaxSource

	// LockUnits takes row locks on the given unit rows for the rest of the transaction.
	// Callers pass ids sorted ascending.
	LockUnits(ctx context.Context, unitIDs []string) error
	// WithinTx runs fn in one serializable transaction; fn's error rolls it back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// CouponValidator is the coupon collaborator.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code string, nights int, subtotal decimal.Decimal) (CouponResult, error)
	RedeemCoupon(ctx context.Context, couponID string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	// SetNX stores v only when key is absent.
	SetNX(ctx context.Context, key string, v any, ttlSec int) (bool, error)
	Del(ctx context.Context, key string) error
}

type EventType string

const (
	EventBookingCreated       EventType = "booking.created"
	EventBookingStatusChanged EventType = "booking.status_changed"
)

type BookingEvent struct {
	Type           EventType       `json:"type"`
	BookingID      string          `json:"bookingId"`
	BookingRef     string          `json:"bookingRef"`
	UserID         string          `json:"userId"`
	Status         BookingStatus   `json:"status"`
	PreviousStatus BookingStatus   `json:"previousStatus,omitempty"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, evt BookingEvent) error
}

package domain

import "time"

// DefaultLockTTL bounds how long a shopper may hold inventory during checkout.
const DefaultLockTTL = 10 * time.Minute

// InventoryLock is an advisory, time-boxed hold on a room or a whole unit.
type InventoryLock struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"sessionKey"`
	Target     Target    `json:"target"`
	CheckIn    time.Time `json:"checkIn"`
	CheckOut   time.Time `json:"checkOut"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Expired locks are inert and never conflict.
func (l InventoryLock) Expired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}

func (l InventoryLock) Range() DateRange {
	return DateRange{CheckIn: l.CheckIn, CheckOut: l.CheckOut}
}

type HoldKind string

const (
	HoldBooking     HoldKind = "BOOKING"
	HoldLock        HoldKind = "LOCK"
	HoldMaintenance HoldKind = "MAINTENANCE"
)

// Hold is anything that takes a target out of availability for a date range.
// Ref is the booking id, lock session key, or maintenance block id.
type Hold struct {
	Kind   HoldKind
	Target Target
	Range  DateRange
	Ref    string
}

package domain

import "time"

// TargetType tags which level of the inventory tree a hold or rate points at.
type TargetType string

const (
	TargetRoom     TargetType = "ROOM"
	TargetUnit     TargetType = "UNIT"
	TargetProperty TargetType = "PROPERTY"
)

func (t TargetType) Valid() bool {
	return t == TargetRoom || t == TargetUnit || t == TargetProperty
}

// Bookable reports whether guests can reserve this level directly.
func (t TargetType) Bookable() bool {
	return t == TargetRoom || t == TargetUnit
}

// Target is the tagged union over {ROOM, UNIT, PROPERTY}.
type Target struct {
	Type TargetType `json:"targetType"`
	ID   string     `json:"targetId"`
}

func RoomTarget(id string) Target     { return Target{Type: TargetRoom, ID: id} }
func UnitTarget(id string) Target     { return Target{Type: TargetUnit, ID: id} }
func PropertyTarget(id string) Target { return Target{Type: TargetProperty, ID: id} }

func (t Target) String() string { return string(t.Type) + ":" + t.ID }

type Property struct {
	ID       string
	Name     string
	City     string
	IsActive bool
}

type Unit struct {
	ID         string
	PropertyID string
	UnitNumber string
	Floor      int
	IsActive   bool
	Rooms      []Room
}

// Capacity is the sum of its rooms' occupancy.
func (u Unit) Capacity() int {
	n := 0
	for _, r := range u.Rooms {
		n += r.MaxOccupancy
	}
	return n
}

func (u Unit) HasAC() bool {
	for _, r := range u.Rooms {
		if r.HasAC {
			return true
		}
	}
	return false
}

type Room struct {
	ID           string
	UnitID       string
	RoomNumber   string
	MaxOccupancy int
	HasAC        bool
	IsActive     bool
}

type Amenity struct {
	Name string  `json:"name"`
	Icon *string `json:"icon"`
}

// RoomListing is a room with the metadata and rate candidates search needs.
type RoomListing struct {
	Room         Room
	UnitNumber   string
	Floor        int
	PropertyID   string
	PropertyName string
	Amenities    []Amenity
	Rates        []Rate
}

// UnitListing is a whole unit with its rooms, metadata and rate candidates.
type UnitListing struct {
	Unit         Unit
	PropertyName string
	Amenities    []Amenity
	Rates        []Rate
}

// MaintenanceBlock takes inventory out of service for whole days, end day included.
// PROPERTY-scoped blocks apply to every unit and room underneath.
type MaintenanceBlock struct {
	ID        string
	Target    Target
	Reason    string
	StartDate time.Time
	EndDate   time.Time
}

func (b MaintenanceBlock) Range() DateRange {
	return InclusiveDays(b.StartDate, b.EndDate)
}

package app

import (
	"fmt"

	"github.com/shopspring/decimal"

	"casa_booking/internal/domain"
)

/********** availability result shapes **********/

type RoomSummary struct {
	RoomNumber   string `json:"roomNumber"`
	HasAC        bool   `json:"hasAC"`
	MaxOccupancy int    `json:"maxOccupancy"`
}

// AvailableResult is one bookable candidate, priced for the searched stay.
type AvailableResult struct {
	TargetType     domain.TargetType `json:"targetType"`
	ID             string            `json:"id"`
	Label          string            `json:"label"`
	PropertyName   string            `json:"propertyName"`
	UnitNumber     string            `json:"unitNumber"`
	Floor          int               `json:"floor"`
	HasAC          bool              `json:"hasAC"`
	MaxOccupancy   int               `json:"maxOccupancy"`
	TotalCapacity  int               `json:"totalCapacity"`
	OccupancyLabel string            `json:"occupancyLabel"`
	Rooms          []RoomSummary     `json:"rooms,omitempty"`
	RateType       domain.RateType   `json:"rateType"`
	PricePerNight  decimal.Decimal   `json:"pricePerNight"`
	Nights         int               `json:"nights"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	TaxInclusive   bool              `json:"taxInclusive"`
	Amenities      []domain.Amenity  `json:"amenities"`
	MinNights      int               `json:"minNights"`
}

type TaxPreview struct {
	Name    string          `json:"name"`
	Rate    decimal.Decimal `json:"rate"`
	TaxType domain.TaxType  `json:"taxType"`
}

/********** builders **********/

func roomLabel(roomNumber, unitNumber, propertyName string) string {
	return fmt.Sprintf("Room %s, Unit %s, %s", roomNumber, unitNumber, propertyName)
}

func unitLabel(unitNumber, propertyName string) string {
	return fmt.Sprintf("Unit %s, %s (Whole Apartment)", unitNumber, propertyName)
}

func occupancyLabel(maxOccupancy int) string {
	if maxOccupancy == 1 {
		return "Single"
	}
	return "Double"
}

func lineTotal(price decimal.Decimal, nights int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(nights)))
}

func buildRoomResult(l domain.RoomListing, r domain.Rate, nights int) AvailableResult {
	return AvailableResult{
		TargetType:     domain.TargetRoom,
		ID:             l.Room.ID,
		Label:          roomLabel(l.Room.RoomNumber, l.UnitNumber, l.PropertyName),
		PropertyName:   l.PropertyName,
		UnitNumber:     l.UnitNumber,
		Floor:          l.Floor,
		HasAC:          l.Room.HasAC,
		MaxOccupancy:   l.Room.MaxOccupancy,
		TotalCapacity:  l.Room.MaxOccupancy,
		OccupancyLabel: occupancyLabel(l.Room.MaxOccupancy),
		RateType:       r.RateType,
		PricePerNight:  r.Price,
		Nights:         nights,
		Subtotal:       lineTotal(r.Price, nights),
		TaxInclusive:   r.TaxInclusive,
		Amenities:      nonNilAmenities(l.Amenities),
		MinNights:      r.MinNights,
	}
}

func buildUnitResult(l domain.UnitListing, r domain.Rate, nights int) AvailableResult {
	rooms := make([]RoomSummary, 0, len(l.Unit.Rooms))
	for _, rm := range l.Unit.Rooms {
		rooms = append(rooms, RoomSummary{RoomNumber: rm.RoomNumber, HasAC: rm.HasAC, MaxOccupancy: rm.MaxOccupancy})
	}
	capacity := l.Unit.Capacity()
	return AvailableResult{
		TargetType:     domain.TargetUnit,
		ID:             l.Unit.ID,
		Label:          unitLabel(l.Unit.UnitNumber, l.PropertyName),
		PropertyName:   l.PropertyName,
		UnitNumber:     l.Unit.UnitNumber,
		Floor:          l.Unit.Floor,
		HasAC:          l.Unit.HasAC(),
		MaxOccupancy:   capacity,
		TotalCapacity:  capacity,
		OccupancyLabel: "Whole Apartment",
		Rooms:          rooms,
		RateType:       r.RateType,
		PricePerNight:  r.Price,
		Nights:         nights,
		Subtotal:       lineTotal(r.Price, nights),
		TaxInclusive:   r.TaxInclusive,
		Amenities:      nonNilAmenities(l.Amenities),
		MinNights:      r.MinNights,
	}
}

func buildTaxPreview(taxes []domain.Tax) []TaxPreview {
	out := make([]TaxPreview, 0, len(taxes))
	for _, t := range taxes {
		if !t.IsActive {
			continue
		}
		out = append(out, TaxPreview{Name: t.Name, Rate: t.Rate, TaxType: t.TaxType})
	}
	return out
}

func nonNilAmenities(in []domain.Amenity) []domain.Amenity {
	if in == nil {
		return []domain.Amenity{}
	}
	return in
}

/********** booking line items **********/

func roomItem(l domain.RoomListing, r domain.Rate, nights int) domain.BookingItem {
	return domain.BookingItem{
		Target:        domain.RoomTarget(l.Room.ID),
		PricingID:     r.ID,
		RateType:      r.RateType,
		PricePerNight: r.Price,
		Nights:        nights,
		Subtotal:      lineTotal(r.Price, nights),
		Label:         roomLabel(l.Room.RoomNumber, l.UnitNumber, l.PropertyName),
	}
}

func unitItem(l domain.UnitListing, r domain.Rate, nights int) domain.BookingItem {
	return domain.BookingItem{
		Target:        domain.UnitTarget(l.Unit.ID),
		PricingID:     r.ID,
		RateType:      r.RateType,
		PricePerNight: r.Price,
		Nights:        nights,
		Subtotal:      lineTotal(r.Price, nights),
		Label:         unitLabel(l.Unit.UnitNumber, l.PropertyName),
	}
}

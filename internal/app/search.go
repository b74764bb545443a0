package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"casa_booking/internal/domain"
)

type OccupancyType string

const (
	OccupancySingle OccupancyType = "single"
	OccupancyDouble OccupancyType = "double"
	OccupancyUnit   OccupancyType = "unit"
)

type SearchQuery struct {
	Range         domain.DateRange
	OccupancyType OccupancyType
	Guests        int
	HasAC         *bool
	PricingTier   domain.PricingTier
}

type AvailabilityResult struct {
	CheckIn             string            `json:"checkIn"`
	CheckOut            string            `json:"checkOut"`
	Nights              int               `json:"nights"`
	OccupancyType       OccupancyType     `json:"occupancyType"`
	Results             []AvailableResult `json:"results"`
	Taxes               []TaxPreview      `json:"taxes"`
	RequiresQuote       bool              `json:"requiresQuote"`
	RequiresQuoteReason string            `json:"requiresQuoteReason,omitempty"`
	GroupMode           bool              `json:"groupMode"`
	GroupGuestsRequired int               `json:"groupGuestsRequired"`
}

// SearchService answers "what is bookable for these dates and guests".
type SearchService struct {
	store    domain.Store
	resolver *ConflictResolver
	now      func() time.Time
}

func NewSearchService(s domain.Store, opts ...Option) *SearchService {
	o := buildOptions(opts)
	return &SearchService{store: s, resolver: NewConflictResolver(s), now: o.now}
}

func (s *SearchService) Search(ctx context.Context, q SearchQuery) (AvailabilityResult, error) {
	var maxOcc int
	switch q.OccupancyType {
	case OccupancySingle:
		maxOcc = 1
	case OccupancyDouble:
		maxOcc = 2
	case OccupancyUnit:
		if q.Guests < 1 {
			return AvailabilityResult{}, domain.Errorf(domain.CodeValidation, "guests is required for unit search")
		}
	default:
		return AvailabilityResult{}, domain.Errorf(domain.CodeValidation, "occupancyType must be single, double or unit")
	}

	nights := q.Range.Nights()
	out := AvailabilityResult{
		CheckIn:       q.Range.CheckIn.Format(time.DateOnly),
		CheckOut:      q.Range.CheckOut.Format(time.DateOnly),
		Nights:        nights,
		OccupancyType: q.OccupancyType,
		Results:       []AvailableResult{},
	}

	if nights >= domain.LongStayNights {
		taxes, err := s.store.ActiveTaxes(ctx)
		if err != nil {
			return AvailabilityResult{}, fmt.Errorf("active taxes: %w", err)
		}
		out.Taxes = buildTaxPreview(taxes)
		out.RequiresQuote = true
		out.RequiresQuoteReason = domain.ReasonLongStay
		return out, nil
	}

	var (
		blocked BlockedSet
		taxes   []domain.Tax
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		blocked, err = s.resolver.Blocked(gctx, q.Range, s.now())
		return err
	})
	g.Go(func() error {
		var err error
		if taxes, err = s.store.ActiveTaxes(gctx); err != nil {
			return fmt.Errorf("active taxes: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return AvailabilityResult{}, err
	}
	out.Taxes = buildTaxPreview(taxes)

	if q.OccupancyType != OccupancyUnit {
		rooms, err := s.pricedRooms(ctx, q, maxOcc, q.HasAC, blocked, nights)
		if err != nil {
			return AvailabilityResult{}, err
		}
		sortByPrice(rooms)
		out.Results = rooms
		return out, nil
	}

	units, err := s.store.SearchUnits(ctx, domain.UnitFilter{RatesOn: q.Range.CheckIn})
	if err != nil {
		return AvailabilityResult{}, fmt.Errorf("search units: %w", err)
	}
	var open, fitting []domain.UnitListing
	for _, u := range units {
		if blocked.UnitBlocked(u.Unit.ID) {
			continue
		}
		open = append(open, u)
		if u.Unit.Capacity() >= q.Guests {
			fitting = append(fitting, u)
		}
	}
	out.GroupGuestsRequired = q.Guests

	// Fit is judged before pricing: fitting units without a rate do not trigger group mode.
	if len(fitting) > 0 {
		results := priceUnits(fitting, nights, q.PricingTier)
		sortByPrice(results)
		out.Results = results
		return out, nil
	}

	unitResults := priceUnits(open, nights, q.PricingTier)
	sort.SliceStable(unitResults, func(i, j int) bool {
		return unitResults[i].TotalCapacity > unitResults[j].TotalCapacity
	})
	roomResults, err := s.pricedRooms(ctx, q, 0, nil, blocked, nights)
	if err != nil {
		return AvailabilityResult{}, err
	}
	sortByPrice(roomResults)

	out.Results = append(unitResults, roomResults...)
	out.GroupMode = true
	return out, nil
}

func (s *SearchService) pricedRooms(ctx context.Context, q SearchQuery, maxOcc int, hasAC *bool, blocked BlockedSet, nights int) ([]AvailableResult, error) {
	rooms, err := s.store.SearchRooms(ctx, domain.RoomFilter{MaxOccupancy: maxOcc, HasAC: hasAC, RatesOn: q.Range.CheckIn})
	if err != nil {
		return nil, fmt.Errorf("search rooms: %w", err)
	}
	out := []AvailableResult{}
	for _, r := range rooms {
		if blocked.RoomBlocked(r.Room.ID) {
			continue
		}
		sel := domain.SelectRate(r.Rates, nights, q.PricingTier)
		if sel.Rate == nil || sel.RequiresQuote {
			continue
		}
		out = append(out, buildRoomResult(r, *sel.Rate, nights))
	}
	return out, nil
}

func priceUnits(units []domain.UnitListing, nights int, tier domain.PricingTier) []AvailableResult {
	out := []AvailableResult{}
	for _, u := range units {
		sel := domain.SelectRate(u.Rates, nights, tier)
		if sel.Rate == nil || sel.RequiresQuote {
			continue
		}
		out = append(out, buildUnitResult(u, *sel.Rate, nights))
	}
	return out
}

func sortByPrice(rs []AvailableResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].PricePerNight.LessThan(rs[j].PricePerNight)
	})
}

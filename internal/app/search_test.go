package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casa_booking/internal/app"
	"casa_booking/internal/domain"
)

func singleQuery(dr domain.DateRange) app.SearchQuery {
	return app.SearchQuery{Range: dr, OccupancyType: app.OccupancySingle}
}

func ids(rs []app.AvailableResult) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestSearch_RoomsByOccupancySortedByPrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dr := dates(t, "2025-03-01", "2025-03-04")

	res, err := e.search.Search(ctx, singleQuery(dr))
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(res.Results))
	r1 := res.Results[0]
	assert.Equal(t, "Single", r1.OccupancyLabel)
	assert.Equal(t, "Room 101, Unit 1A, Casa Sol", r1.Label)
	assert.True(t, d("150").Equal(r1.Subtotal))
	assert.Equal(t, 3, res.Nights)
	require.Len(t, res.Taxes, 1)
	assert.Equal(t, "VAT", res.Taxes[0].Name)

	res, err = e.search.Search(ctx, app.SearchQuery{Range: dr, OccupancyType: app.OccupancyDouble})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r2", "r4"}, ids(res.Results))

	res, err = e.search.Search(ctx, app.SearchQuery{Range: dr, OccupancyType: app.OccupancyDouble, HasAC: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, []string{"r4"}, ids(res.Results))
}

func TestSearch_BookedRoomBlocksItsUnitButNotSiblings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dr := dates(t, "2025-03-01", "2025-03-04")

	_, err := e.book(t, "guest-1", dr, domain.RoomTarget("r2"))
	require.NoError(t, err)

	res, err := e.search.Search(ctx, app.SearchQuery{Range: dr, OccupancyType: app.OccupancyDouble})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r4"}, ids(res.Results))

	res, err = e.search.Search(ctx, singleQuery(dr))
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(res.Results), "sibling room stays available")

	res, err = e.search.Search(ctx, app.SearchQuery{Range: dr, OccupancyType: app.OccupancyUnit, Guests: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, ids(res.Results))
	assert.False(t, res.GroupMode)
}

func TestSearch_UnitLockBlocksRooms(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dr := dates(t, "2025-03-01", "2025-03-04")

	_, err := e.locks.Acquire(ctx, domain.UnitTarget("u1"), dr)
	require.NoError(t, err)

	res, err := e.search.Search(ctx, singleQuery(dr))
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestSearch_PropertyMaintenanceBlocksEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.AddMaintenanceBlock(domain.MaintenanceBlock{
		ID:        "mb1",
		Target:    domain.PropertyTarget("p1"),
		Reason:    "roof",
		StartDate: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
	})

	res, err := e.search.Search(ctx, app.SearchQuery{Range: dates(t, "2025-03-01", "2025-03-04"), OccupancyType: app.OccupancyUnit, Guests: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Results)

	// The block covers 3 March only; a stay checking out that morning is clear.
	res, err = e.search.Search(ctx, app.SearchQuery{Range: dates(t, "2025-03-01", "2025-03-03"), OccupancyType: app.OccupancyUnit, Guests: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids(res.Results))
}

func TestSearch_UnitModeFittingUnits(t *testing.T) {
	e := newEnv(t)
	res, err := e.search.Search(context.Background(), app.SearchQuery{
		Range: dates(t, "2025-03-01", "2025-03-04"), OccupancyType: app.OccupancyUnit, Guests: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids(res.Results))
	assert.False(t, res.GroupMode)
	assert.Equal(t, 3, res.GroupGuestsRequired)
	assert.Equal(t, "Whole Apartment", res.Results[0].OccupancyLabel)
	assert.Equal(t, 3, res.Results[0].TotalCapacity)
	assert.Len(t, res.Results[0].Rooms, 2)

	res, err = e.search.Search(context.Background(), app.SearchQuery{
		Range: dates(t, "2025-03-01", "2025-03-04"), OccupancyType: app.OccupancyUnit, Guests: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, ids(res.Results))
}

func TestSearch_GroupModeWhenNoUnitFits(t *testing.T) {
	e := newEnv(t)
	res, err := e.search.Search(context.Background(), app.SearchQuery{
		Range: dates(t, "2025-03-01", "2025-03-04"), OccupancyType: app.OccupancyUnit, Guests: 7,
	})
	require.NoError(t, err)
	assert.True(t, res.GroupMode)
	assert.Equal(t, 7, res.GroupGuestsRequired)
	// Units by capacity descending, then every room by price ascending.
	assert.Equal(t, []string{"u2", "u1", "r1", "r3", "r2", "r4"}, ids(res.Results))
}

func TestSearch_LongStayRequiresQuote(t *testing.T) {
	e := newEnv(t)
	res, err := e.search.Search(context.Background(), app.SearchQuery{
		Range: dates(t, "2025-03-01", "2025-03-31"), OccupancyType: app.OccupancyDouble,
	})
	require.NoError(t, err)
	assert.True(t, res.RequiresQuote)
	assert.Equal(t, domain.ReasonLongStay, res.RequiresQuoteReason)
	assert.Empty(t, res.Results)
	assert.Len(t, res.Taxes, 1)
}

func TestSearch_DropsCandidatesWithoutRate(t *testing.T) {
	e := newEnv(t)
	// Weekly entry with a 14-night minimum shadows the nightly rate at 10 nights.
	e.store.AddRate(domain.Rate{
		ID: "weekly-r3", Target: domain.RoomTarget("r3"), RateType: domain.RateWeekly,
		PricingTier: domain.TierStandard, MinNights: 14, Price: d("60"), ValidFrom: rateStart,
	})
	res, err := e.search.Search(context.Background(), app.SearchQuery{
		Range: dates(t, "2025-03-01", "2025-03-11"), OccupancyType: app.OccupancyDouble,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r4"}, ids(res.Results))
}

func TestSearch_Validation(t *testing.T) {
	e := newEnv(t)
	dr := dates(t, "2025-03-01", "2025-03-04")

	_, err := e.search.Search(context.Background(), app.SearchQuery{Range: dr, OccupancyType: "triple"})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = e.search.Search(context.Background(), app.SearchQuery{Range: dr, OccupancyType: app.OccupancyUnit})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

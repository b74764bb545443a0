package mysql

import (
	"context"
	"database/sql"
	"time"

	"casa_booking/internal/domain"
)

func (r *Repo) GetRoom(ctx context.Context, id string, ratesOn time.Time) (domain.RoomListing, error) {
	l, err := scanRoomListing(r.q.QueryRowContext(ctx, getRoomSQL, id))
	if err != nil {
		return domain.RoomListing{}, notFound(err, "room")
	}
	out := []domain.RoomListing{l}
	if err := r.decorateRooms(ctx, out, ratesOn); err != nil {
		return domain.RoomListing{}, err
	}
	return out[0], nil
}

func (r *Repo) SearchRooms(ctx context.Context, f domain.RoomFilter) ([]domain.RoomListing, error) {
	q := searchRoomsSQL
	var args []any
	if f.MaxOccupancy > 0 {
		q += " AND r.max_occupancy = ?"
		args = append(args, f.MaxOccupancy)
	}
	if f.HasAC != nil {
		q += " AND r.has_ac = ?"
		args = append(args, *f.HasAC)
	}
	rows, err := r.q.QueryContext(ctx, q+" ORDER BY r.id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoomListing
	for rows.Next() {
		l, err := scanRoomListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.decorateRooms(ctx, out, f.RatesOn); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetUnit(ctx context.Context, id string, ratesOn time.Time) (domain.UnitListing, error) {
	l, err := scanUnitListing(r.q.QueryRowContext(ctx, getUnitSQL, id))
	if err != nil {
		return domain.UnitListing{}, notFound(err, "unit")
	}
	out := []domain.UnitListing{l}
	if err := r.decorateUnits(ctx, out, ratesOn); err != nil {
		return domain.UnitListing{}, err
	}
	return out[0], nil
}

func (r *Repo) SearchUnits(ctx context.Context, f domain.UnitFilter) ([]domain.UnitListing, error) {
	rows, err := r.q.QueryContext(ctx, searchUnitsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UnitListing
	for rows.Next() {
		l, err := scanUnitListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.decorateUnits(ctx, out, f.RatesOn); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoomListing(s scanner) (domain.RoomListing, error) {
	var l domain.RoomListing
	err := s.Scan(
		&l.Room.ID,
		&l.Room.UnitID,
		&l.Room.RoomNumber,
		&l.Room.MaxOccupancy,
		&l.Room.HasAC,
		&l.Room.IsActive,
		&l.UnitNumber,
		&l.Floor,
		&l.PropertyID,
		&l.PropertyName,
	)
	return l, err
}

func scanUnitListing(s scanner) (domain.UnitListing, error) {
	var l domain.UnitListing
	err := s.Scan(
		&l.Unit.ID,
		&l.Unit.PropertyID,
		&l.Unit.UnitNumber,
		&l.Unit.Floor,
		&l.Unit.IsActive,
		&l.PropertyName,
	)
	return l, err
}

// decorateRooms batch-loads amenities and rates for the listings in place.
func (r *Repo) decorateRooms(ctx context.Context, ls []domain.RoomListing, ratesOn time.Time) error {
	if len(ls) == 0 {
		return nil
	}
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.Room.ID
	}
	amen, err := r.amenities(ctx, roomAmenitiesPrefix, ids)
	if err != nil {
		return err
	}
	rates, err := r.ratesFor(ctx, "room_id", ids, ratesOn)
	if err != nil {
		return err
	}
	for i := range ls {
		ls[i].Amenities = amen[ls[i].Room.ID]
		ls[i].Rates = rates[ls[i].Room.ID]
	}
	return nil
}

// decorateUnits loads active rooms, amenities and whole-unit rates.
func (r *Repo) decorateUnits(ctx context.Context, ls []domain.UnitListing, ratesOn time.Time) error {
	if len(ls) == 0 {
		return nil
	}
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.Unit.ID
	}
	rooms, err := r.unitRooms(ctx, ids)
	if err != nil {
		return err
	}
	amen, err := r.amenities(ctx, unitAmenitiesPrefix, ids)
	if err != nil {
		return err
	}
	rates, err := r.ratesFor(ctx, "unit_id", ids, ratesOn)
	if err != nil {
		return err
	}
	for i := range ls {
		id := ls[i].Unit.ID
		ls[i].Unit.Rooms = rooms[id]
		ls[i].Amenities = amen[id]
		ls[i].Rates = rates[id]
	}
	return nil
}

func (r *Repo) unitRooms(ctx context.Context, unitIDs []string) (map[string][]domain.Room, error) {
	list, args := inList(unitIDs)
	rows, err := r.q.QueryContext(ctx, unitRoomsPrefix+list+" ORDER BY room_number, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Room, len(unitIDs))
	for rows.Next() {
		var rm domain.Room
		if err := rows.Scan(&rm.ID, &rm.UnitID, &rm.RoomNumber, &rm.MaxOccupancy, &rm.HasAC, &rm.IsActive); err != nil {
			return nil, err
		}
		out[rm.UnitID] = append(out[rm.UnitID], rm)
	}
	return out, rows.Err()
}

func (r *Repo) amenities(ctx context.Context, prefix string, ids []string) (map[string][]domain.Amenity, error) {
	list, args := inList(ids)
	rows, err := r.q.QueryContext(ctx, prefix+list+" ORDER BY a.name", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Amenity, len(ids))
	for rows.Next() {
		var (
			owner string
			a     domain.Amenity
			icon  sql.NullString
		)
		if err := rows.Scan(&owner, &a.Name, &icon); err != nil {
			return nil, err
		}
		a.Icon = ptrStr(icon)
		out[owner] = append(out[owner], a)
	}
	return out, rows.Err()
}

// ratesFor returns the rate candidates keyed by owner id. col is a fixed column name.
func (r *Repo) ratesFor(ctx context.Context, col string, ids []string, on time.Time) (map[string][]domain.Rate, error) {
	list, idArgs := inList(ids)
	args := append([]any{on, on}, idArgs...)
	rows, err := r.q.QueryContext(ctx, ratesSelect+col+" IN "+list+ratesOrder, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Rate, len(ids))
	for rows.Next() {
		var (
			rt        domain.Rate
			maxNights sql.NullInt64
			validTo   sql.NullTime
		)
		if err := rows.Scan(
			&rt.ID,
			&rt.Target.Type,
			&rt.Target.ID,
			&rt.RateType,
			&rt.PricingTier,
			&rt.MinNights,
			&maxNights,
			&rt.Price,
			&rt.TaxInclusive,
			&rt.ValidFrom,
			&validTo,
		); err != nil {
			return nil, err
		}
		rt.MaxNights = ptrInt(maxNights)
		rt.ValidTo = ptrTime(validTo)
		rt.ValidFrom = rt.ValidFrom.UTC()
		out[rt.Target.ID] = append(out[rt.Target.ID], rt)
	}
	return out, rows.Err()
}

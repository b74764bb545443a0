package mysql

import (
	"context"
	"strings"

	"casa_booking/internal/domain"
)

// Holds reads each source with its own statement so the target filter lands on indexed
// columns; under SERIALIZABLE this keeps the shared locks to the rows in scope.
func (r *Repo) Holds(ctx context.Context, q domain.HoldQuery) ([]domain.Hold, error) {
	scoped := q.Targets != nil
	rooms, units, props := splitTargets(q.Targets)
	if scoped && len(rooms)+len(units)+len(props) == 0 {
		return nil, nil
	}

	type source struct {
		kind  domain.HoldKind
		query string
		alias string
		args  []any
		props bool
	}
	sources := []source{
		{domain.HoldBooking, bookingHoldsSQL, "bi", []any{q.Range.CheckOut, q.Range.CheckIn}, false},
		{domain.HoldLock, lockHoldsSQL, "l", []any{q.Now, q.Range.CheckOut, q.Range.CheckIn}, false},
		{domain.HoldMaintenance, maintenanceHoldsSQL, "m", []any{q.Range.CheckOut, q.Range.CheckIn}, true},
	}

	var out []domain.Hold
	for _, s := range sources {
		if !wantKind(q.Kinds, s.kind) {
			continue
		}
		query, args := s.query, s.args
		if scoped {
			var ps []string
			if s.props {
				ps = props
			}
			cond, condArgs := scopeCond(s.alias, rooms, units, ps)
			if cond == "" {
				continue
			}
			query += " AND " + cond
			args = append(append([]any{}, args...), condArgs...)
		}
		hs, err := r.scanHolds(ctx, query, args)
		if err != nil {
			return nil, err
		}
		out = append(out, hs...)
	}
	return out, nil
}

func wantKind(kinds []domain.HoldKind, k domain.HoldKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// scopeCond builds "(a.room_id IN (...) OR a.unit_id IN (...) OR a.property_id IN (...))".
func scopeCond(alias string, rooms, units, props []string) (string, []any) {
	var parts []string
	var args []any
	add := func(col string, ids []string) {
		if len(ids) == 0 {
			return
		}
		list, a := inList(ids)
		parts = append(parts, alias+"."+col+" IN "+list)
		args = append(args, a...)
	}
	add("room_id", rooms)
	add("unit_id", units)
	add("property_id", props)
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func (r *Repo) scanHolds(ctx context.Context, query string, args []any) ([]domain.Hold, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Hold
	for rows.Next() {
		var h domain.Hold
		if err := rows.Scan(&h.Kind, &h.Target.Type, &h.Target.ID, &h.Range.CheckIn, &h.Range.CheckOut, &h.Ref); err != nil {
			return nil, err
		}
		h.Range.CheckIn, h.Range.CheckOut = h.Range.CheckIn.UTC(), h.Range.CheckOut.UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) Ancestors(ctx context.Context, targets []domain.Target) (map[domain.Target][]domain.Target, error) {
	rooms, units, props := splitTargets(targets)
	out := make(map[domain.Target][]domain.Target, len(targets))

	if len(rooms) > 0 {
		list, args := inList(rooms)
		err := r.eachRow(ctx, roomAncestorsPrefix+list, args, func(scan func(...any) error) error {
			var id, unitID, propID string
			if err := scan(&id, &unitID, &propID); err != nil {
				return err
			}
			out[domain.RoomTarget(id)] = []domain.Target{domain.UnitTarget(unitID), domain.PropertyTarget(propID)}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(units) > 0 {
		list, args := inList(units)
		err := r.eachRow(ctx, unitAncestorsPrefix+list, args, func(scan func(...any) error) error {
			var id, propID string
			if err := scan(&id, &propID); err != nil {
				return err
			}
			out[domain.UnitTarget(id)] = []domain.Target{domain.PropertyTarget(propID)}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(props) > 0 {
		list, args := inList(props)
		err := r.eachRow(ctx, propertyIDsPrefix+list, args, func(scan func(...any) error) error {
			var id string
			if err := scan(&id); err != nil {
				return err
			}
			out[domain.PropertyTarget(id)] = []domain.Target{}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) Descendants(ctx context.Context, targets []domain.Target) (map[domain.Target][]domain.Target, error) {
	rooms, units, props := splitTargets(targets)
	out := make(map[domain.Target][]domain.Target, len(targets))

	if len(rooms) > 0 {
		list, args := inList(rooms)
		err := r.eachRow(ctx, roomIDsPrefix+list, args, func(scan func(...any) error) error {
			var id string
			if err := scan(&id); err != nil {
				return err
			}
			out[domain.RoomTarget(id)] = []domain.Target{}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(units) > 0 {
		list, args := inList(units)
		err := r.eachRow(ctx, unitDescendantsPrefix+list+" ORDER BY u.id, r.id", args, func(scan func(...any) error) error {
			var id string
			var roomID *string
			if err := scan(&id, &roomID); err != nil {
				return err
			}
			key := domain.UnitTarget(id)
			if _, ok := out[key]; !ok {
				out[key] = []domain.Target{}
			}
			if roomID != nil {
				out[key] = append(out[key], domain.RoomTarget(*roomID))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(props) > 0 {
		list, args := inList(props)
		seenUnit := map[string]bool{}
		err := r.eachRow(ctx, propertyDescendantsPrefix+list+" ORDER BY p.id, u.id, r.id", args, func(scan func(...any) error) error {
			var id string
			var unitID, roomID *string
			if err := scan(&id, &unitID, &roomID); err != nil {
				return err
			}
			key := domain.PropertyTarget(id)
			if _, ok := out[key]; !ok {
				out[key] = []domain.Target{}
			}
			if unitID != nil && !seenUnit[*unitID] {
				seenUnit[*unitID] = true
				out[key] = append(out[key], domain.UnitTarget(*unitID))
			}
			if roomID != nil {
				out[key] = append(out[key], domain.RoomTarget(*roomID))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) eachRow(ctx context.Context, query string, args []any, fn func(scan func(...any) error) error) error {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows.Scan); err != nil {
			return err
		}
	}
	return rows.Err()
}

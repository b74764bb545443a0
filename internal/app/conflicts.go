package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"casa_booking/internal/domain"
)

// ConflictResolver decides which inventory is unavailable for a date range,
// expanding holds through the property -> unit -> room hierarchy.
type ConflictResolver struct {
	holds  domain.HoldReader
	serial bool
}

// NewConflictResolver reads through a pooled store; independent hierarchy lookups
// run concurrently.
func NewConflictResolver(h domain.HoldReader) *ConflictResolver {
	return &ConflictResolver{holds: h}
}

// NewTxConflictResolver reads through a transaction. A transaction owns a single
// connection that carries one statement at a time, so lookups run one after another.
func NewTxConflictResolver(tx domain.HoldReader) *ConflictResolver {
	return &ConflictResolver{holds: tx, serial: true}
}

// BlockedSet is the union of room and unit ids that cannot be offered.
type BlockedSet struct {
	Rooms map[string]struct{}
	Units map[string]struct{}
}

func (b BlockedSet) RoomBlocked(id string) bool { _, ok := b.Rooms[id]; return ok }
func (b BlockedSet) UnitBlocked(id string) bool { _, ok := b.Units[id]; return ok }

// Blocked resolves every hold overlapping dr into blocked room and unit ids.
//
// A room-level hold blocks the room and its unit as a whole; sibling rooms stay
// available. A unit-level hold blocks the unit and all of its rooms. A property-level
// hold blocks everything underneath.
func (r *ConflictResolver) Blocked(ctx context.Context, dr domain.DateRange, now time.Time) (BlockedSet, error) {
	out := BlockedSet{Rooms: map[string]struct{}{}, Units: map[string]struct{}{}}

	holds, err := r.holds.Holds(ctx, domain.HoldQuery{Range: dr, Now: now})
	if err != nil {
		return out, fmt.Errorf("list holds: %w", err)
	}
	if len(holds) == 0 {
		return out, nil
	}

	var up, down []domain.Target
	seen := map[domain.Target]bool{}
	for _, h := range holds {
		if seen[h.Target] {
			continue
		}
		seen[h.Target] = true
		if h.Target.Type == domain.TargetRoom {
			up = append(up, h.Target)
		} else {
			down = append(down, h.Target)
		}
	}

	ancestors, descendants, err := r.expand(ctx, up, down)
	if err != nil {
		return out, fmt.Errorf("expand hierarchy: %w", err)
	}

	mark := func(t domain.Target) {
		switch t.Type {
		case domain.TargetRoom:
			out.Rooms[t.ID] = struct{}{}
		case domain.TargetUnit:
			out.Units[t.ID] = struct{}{}
		}
	}
	for t := range seen {
		mark(t)
		if t.Type == domain.TargetRoom {
			for _, a := range ancestors[t] {
				if a.Type == domain.TargetUnit {
					mark(a)
				}
			}
			continue
		}
		for _, d := range descendants[t] {
			mark(d)
		}
	}
	return out, nil
}

// ConflictQuery is a targeted check for one bookable item.
type ConflictQuery struct {
	Target domain.Target
	Range  domain.DateRange
	Now    time.Time
	// IgnoreSessions excludes the caller's own locks.
	IgnoreSessions []string
}

// Conflicts returns the holds that collide with q.Target. A room is checked together
// with its unit and property; a unit together with its rooms and property.
func (r *ConflictResolver) Conflicts(ctx context.Context, q ConflictQuery) ([]domain.Hold, error) {
	scope, err := r.scope(ctx, q.Target)
	if err != nil {
		return nil, err
	}

	holds, err := r.holds.Holds(ctx, domain.HoldQuery{Range: q.Range, Targets: scope, Now: q.Now})
	if err != nil {
		return nil, fmt.Errorf("list holds for %s: %w", q.Target, err)
	}

	ignore := make(map[string]bool, len(q.IgnoreSessions))
	for _, k := range q.IgnoreSessions {
		ignore[k] = true
	}
	out := holds[:0]
	for _, h := range holds {
		if h.Kind == domain.HoldLock && ignore[h.Ref] {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// HasConflict is the boolean form of Conflicts.
func (r *ConflictResolver) HasConflict(ctx context.Context, q ConflictQuery) (bool, error) {
	hs, err := r.Conflicts(ctx, q)
	if err != nil {
		return false, err
	}
	return len(hs) > 0, nil
}

func (r *ConflictResolver) scope(ctx context.Context, t domain.Target) ([]domain.Target, error) {
	if !t.Type.Bookable() {
		return nil, domain.Errorf(domain.CodeValidation, "targetType must be ROOM or UNIT")
	}

	var down []domain.Target
	if t.Type == domain.TargetUnit {
		down = []domain.Target{t}
	}
	ancestors, descendants, err := r.expand(ctx, []domain.Target{t}, down)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", t, err)
	}

	up, ok := ancestors[t]
	if !ok {
		return nil, domain.Errorf(domain.CodeNotFound, "%s not found", t)
	}
	scope := append([]domain.Target{t}, up...)
	return append(scope, descendants[t]...), nil
}

// expand looks up the ancestors of up and the descendants of down. Empty inputs
// skip their query.
func (r *ConflictResolver) expand(ctx context.Context, up, down []domain.Target) (ancestors, descendants map[domain.Target][]domain.Target, err error) {
	ancestorsOf := func(ctx context.Context) error {
		if len(up) == 0 {
			return nil
		}
		var err error
		ancestors, err = r.holds.Ancestors(ctx, up)
		return err
	}
	descendantsOf := func(ctx context.Context) error {
		if len(down) == 0 {
			return nil
		}
		var err error
		descendants, err = r.holds.Descendants(ctx, down)
		return err
	}

	if r.serial {
		if err := ancestorsOf(ctx); err != nil {
			return nil, nil, err
		}
		if err := descendantsOf(ctx); err != nil {
			return nil, nil, err
		}
		return ancestors, descendants, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ancestorsOf(gctx) })
	g.Go(func() error { return descendantsOf(gctx) })
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ancestors, descendants, nil
}

// unitOf returns the unit row that guards t.
func unitOf(ctx context.Context, h domain.HoldReader, t domain.Target) (string, error) {
	if t.Type == domain.TargetUnit {
		return t.ID, nil
	}
	anc, err := h.Ancestors(ctx, []domain.Target{t})
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", t, err)
	}
	up, ok := anc[t]
	if !ok {
		return "", domain.Errorf(domain.CodeNotFound, "%s not found", t)
	}
	for _, a := range up {
		if a.Type == domain.TargetUnit {
			return a.ID, nil
		}
	}
	return "", domain.Errorf(domain.CodeNotFound, "%s has no unit", t)
}

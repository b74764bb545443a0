package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"casa_booking/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valNonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ptrStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
func ptrInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}
func ptrTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	db  *sql.DB
	q   querier
	now func() time.Time
}

var (
	_ domain.Store           = (*Repo)(nil)
	_ domain.CouponValidator = (*Repo)(nil)
)

func New(db *sql.DB) *Repo {
	return &Repo{db: db, q: db, now: func() time.Time { return time.Now().UTC() }}
}

// txAttempts bounds how often a transaction InnoDB chose as a deadlock victim is replayed.
const txAttempts = 3

// WithinTx runs fn in a SERIALIZABLE transaction. The Repo handed to fn issues every
// statement on that transaction. Deadlock victims are retried from the start, so fn
// must not keep side effects outside the transaction.
func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if _, nested := r.q.(*sql.Tx); nested {
		return fn(ctx, r)
	}
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		if err = r.runTx(ctx, fn); !isDeadlock(err) {
			if err == nil && attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("transaction committed after deadlock replay")
			}
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("transaction deadlocked, retrying")
	}
	return err
}

func (r *Repo) runTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(ctx, &Repo{db: r.db, q: tx, now: r.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	return tx.Commit()
}

// ER_LOCK_DEADLOCK
const errDeadlock = 1213

func isDeadlock(err error) bool {
	var me *gomysql.MySQLError
	return errors.As(err, &me) && me.Number == errDeadlock
}

// LockUnits takes FOR UPDATE row locks in id order so concurrent writers queue
// instead of deadlocking.
func (r *Repo) LockUnits(ctx context.Context, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	list, args := inList(unitIDs)
	rows, err := r.q.QueryContext(ctx, lockUnitsPrefix+list+" ORDER BY id FOR UPDATE", args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

// inList renders "(?,?,...)" with the matching args.
func inList(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}

// targetCols maps a target onto its (room_id, unit_id) column pair.
func targetCols(t domain.Target) (room, unit any) {
	switch t.Type {
	case domain.TargetRoom:
		return t.ID, nil
	case domain.TargetUnit:
		return nil, t.ID
	}
	return nil, nil
}

func splitTargets(ts []domain.Target) (rooms, units, props []string) {
	for _, t := range ts {
		switch t.Type {
		case domain.TargetRoom:
			rooms = append(rooms, t.ID)
		case domain.TargetUnit:
			units = append(units, t.ID)
		case domain.TargetProperty:
			props = append(props, t.ID)
		}
	}
	return rooms, units, props
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Errorf(domain.CodeNotFound, "%s not found", what)
	}
	return err
}

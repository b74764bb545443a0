package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"casa_booking/internal/domain"
)

/********** locks **********/

func (r *Repo) CleanExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, cleanExpiredLocksSQL, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) GetLocks(ctx context.Context, sessionKeys []string) ([]domain.InventoryLock, error) {
	if len(sessionKeys) == 0 {
		return nil, nil
	}
	list, args := inList(sessionKeys)
	rows, err := r.q.QueryContext(ctx, getLocksPrefix+list, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InventoryLock
	for rows.Next() {
		var l domain.InventoryLock
		if err := rows.Scan(&l.ID, &l.SessionKey, &l.Target.Type, &l.Target.ID, &l.CheckIn, &l.CheckOut, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.CheckIn, l.CheckOut = l.CheckIn.UTC(), l.CheckOut.UTC()
		l.ExpiresAt, l.CreatedAt = l.ExpiresAt.UTC(), l.CreatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) InsertLock(ctx context.Context, l domain.InventoryLock) error {
	room, unit := targetCols(l.Target)
	_, err := r.q.ExecContext(ctx, insertLockSQL,
		l.ID,
		l.SessionKey,
		string(l.Target.Type),
		room,
		unit,
		l.CheckIn,
		l.CheckOut,
		l.ExpiresAt,
		l.CreatedAt,
	)
	return err
}

func (r *Repo) DeleteLocks(ctx context.Context, sessionKeys []string) (int64, error) {
	if len(sessionKeys) == 0 {
		return 0, nil
	}
	list, args := inList(sessionKeys)
	res, err := r.q.ExecContext(ctx, deleteLocksPrefix+list, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

/********** bookings **********/

func (r *Repo) NextBookingSeq(ctx context.Context, year int) (int, error) {
	res, err := r.q.ExecContext(ctx, nextBookingSeqSQL, year)
	if err != nil {
		return 0, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(seq), nil
}

func (r *Repo) InsertBooking(ctx context.Context, b domain.Booking) error {
	_, err := r.q.ExecContext(ctx, insertBookingSQL,
		b.ID,
		b.BookingRef,
		b.UserID,
		string(b.BookingType),
		b.CheckIn,
		b.CheckOut,
		b.Nights,
		b.Guests,
		string(b.Status),
		b.Subtotal,
		b.DiscountAmount,
		b.TaxAmount,
		b.TotalAmount,
		valStr(b.CouponID),
		valStr(b.CouponCode),
		valStr(b.Notes),
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	for _, it := range b.Items {
		room, unit := targetCols(it.Target)
		if _, err := r.q.ExecContext(ctx, insertBookingItemSQL,
			it.ID,
			b.ID,
			string(it.Target.Type),
			room,
			unit,
			valNonEmpty(it.PricingID),
			string(it.RateType),
			it.PricePerNight,
			it.Nights,
			it.Subtotal,
			it.Label,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	b, err := scanBooking(r.q.QueryRowContext(ctx, getBookingSQL, id))
	if err != nil {
		return domain.Booking{}, notFound(err, "booking")
	}
	items, err := r.bookingItems(ctx, []string{b.ID})
	if err != nil {
		return domain.Booking{}, err
	}
	b.Items = nonNilItems(items[b.ID])
	return b, nil
}

func (r *Repo) ListUserBookings(ctx context.Context, q domain.BookingsQuery) (domain.BookingsPage, error) {
	where := " WHERE user_id = ?"
	args := []any{q.UserID}
	if q.Status != nil {
		where += " AND status = ?"
		args = append(args, string(*q.Status))
	}

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings"+where, args...).Scan(&total); err != nil {
		return domain.BookingsPage{}, err
	}

	page := domain.BookingsPage{Items: []domain.Booking{}, Total: total, Page: q.Page, Limit: q.Limit}
	offset := (q.Page - 1) * q.Limit
	if total == 0 || offset >= total {
		return page, nil
	}

	rows, err := r.q.QueryContext(ctx,
		bookingColumns+where+" ORDER BY created_at DESC, booking_ref DESC LIMIT ? OFFSET ?",
		append(args, q.Limit, offset)...,
	)
	if err != nil {
		return domain.BookingsPage{}, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return domain.BookingsPage{}, err
		}
		page.Items = append(page.Items, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return domain.BookingsPage{}, err
	}

	items, err := r.bookingItems(ctx, ids)
	if err != nil {
		return domain.BookingsPage{}, err
	}
	for i := range page.Items {
		page.Items[i].Items = nonNilItems(items[page.Items[i].ID])
	}
	return page, nil
}

func (r *Repo) UpdateBookingStatus(ctx context.Context, id string, from, to domain.BookingStatus, at time.Time) error {
	res, err := r.q.ExecContext(ctx, updateBookingStatusSQL, string(to), at, id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var current string
	if err := r.q.QueryRowContext(ctx, bookingStatusSQL, id).Scan(&current); err != nil {
		return notFound(err, "booking")
	}
	return domain.Errorf(domain.CodeConflict, "booking status changed concurrently")
}

func scanBooking(s scanner) (domain.Booking, error) {
	var (
		b                           domain.Booking
		couponID, couponCode, notes sql.NullString
	)
	err := s.Scan(
		&b.ID,
		&b.BookingRef,
		&b.UserID,
		&b.BookingType,
		&b.CheckIn,
		&b.CheckOut,
		&b.Nights,
		&b.Guests,
		&b.Status,
		&b.Subtotal,
		&b.DiscountAmount,
		&b.TaxAmount,
		&b.TotalAmount,
		&couponID,
		&couponCode,
		&notes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.CouponID, b.CouponCode, b.Notes = ptrStr(couponID), ptrStr(couponCode), ptrStr(notes)
	b.CheckIn, b.CheckOut = b.CheckIn.UTC(), b.CheckOut.UTC()
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	return b, nil
}

func (r *Repo) bookingItems(ctx context.Context, bookingIDs []string) (map[string][]domain.BookingItem, error) {
	if len(bookingIDs) == 0 {
		return nil, nil
	}
	list, args := inList(bookingIDs)
	rows, err := r.q.QueryContext(ctx, bookingItemsPrefix+list+" ORDER BY booking_id, label, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.BookingItem, len(bookingIDs))
	for rows.Next() {
		var (
			it        domain.BookingItem
			pricingID sql.NullString
		)
		if err := rows.Scan(
			&it.ID,
			&it.BookingID,
			&it.Target.Type,
			&it.Target.ID,
			&pricingID,
			&it.RateType,
			&it.PricePerNight,
			&it.Nights,
			&it.Subtotal,
			&it.Label,
		); err != nil {
			return nil, err
		}
		it.PricingID = pricingID.String
		out[it.BookingID] = append(out[it.BookingID], it)
	}
	return out, rows.Err()
}

func nonNilItems(items []domain.BookingItem) []domain.BookingItem {
	if items == nil {
		return []domain.BookingItem{}
	}
	return items
}

/********** reference data **********/

func (r *Repo) ActiveTaxes(ctx context.Context) ([]domain.Tax, error) {
	rows, err := r.q.QueryContext(ctx, activeTaxesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tax
	for rows.Next() {
		var t domain.Tax
		if err := rows.Scan(&t.ID, &t.Name, &t.Rate, &t.TaxType, &t.AppliesTo, &t.IsActive); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ValidateCoupon reads through the Repo's querier, so inside WithinTx it sees the
// transaction's snapshot.
func (r *Repo) ValidateCoupon(ctx context.Context, code string, nights int, subtotal decimal.Decimal) (domain.CouponResult, error) {
	var (
		c                 domain.Coupon
		maxUses, minNight sql.NullInt64
		minAmount         decimal.NullDecimal
		from, to          sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, getCouponSQL, code).Scan(
		&c.ID,
		&c.Code,
		&c.Name,
		&c.DiscountType,
		&c.DiscountValue,
		&maxUses,
		&c.UsedCount,
		&minNight,
		&minAmount,
		&from,
		&to,
		&c.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CouponResult{}, domain.Errorf(domain.CodeCouponNotFound, "coupon %q not found", code)
	}
	if err != nil {
		return domain.CouponResult{}, err
	}
	c.MaxUses, c.MinNights = ptrInt(maxUses), ptrInt(minNight)
	if minAmount.Valid {
		c.MinAmount = &minAmount.Decimal
	}
	c.ValidFrom, c.ValidTo = ptrTime(from), ptrTime(to)
	return c.Validate(r.now(), nights, subtotal)
}

func (r *Repo) RedeemCoupon(ctx context.Context, couponID string) error {
	res, err := r.q.ExecContext(ctx, redeemCouponSQL, couponID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errorf(domain.CodeCouponNotFound, "coupon not found")
	}
	return nil
}

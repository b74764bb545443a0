package domain

import "time"

const day = 24 * time.Hour

// DateRange is a half-open stay interval [CheckIn, CheckOut) on UTC calendar days.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewDateRange truncates both ends to UTC midnight and requires CheckOut after CheckIn.
func NewDateRange(checkIn, checkOut time.Time) (DateRange, error) {
	dr := DateRange{CheckIn: truncateDay(checkIn), CheckOut: truncateDay(checkOut)}
	if dr.CheckIn.IsZero() || dr.CheckOut.IsZero() || !dr.CheckOut.After(dr.CheckIn) {
		return DateRange{}, Errorf(CodeValidation, "checkOut must be after checkIn")
	}
	return dr, nil
}

// ParseDateRange parses YYYY-MM-DD (or RFC3339) boundaries.
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	in, err := ParseDay(checkIn)
	if err != nil {
		return DateRange{}, err
	}
	out, err := ParseDay(checkOut)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(in, out)
}

// ParseDay accepts a calendar date or a full RFC3339 timestamp.
func ParseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, Errorf(CodeValidation, "invalid date %q", s)
	}
	return truncateDay(t), nil
}

// Nights rounds to whole days so DST-shifted inputs still count correctly.
func (dr DateRange) Nights() int {
	return int((dr.CheckOut.Sub(dr.CheckIn) + day/2) / day)
}

// Overlaps is the strict half-open test: touching boundaries do not overlap.
func (dr DateRange) Overlaps(other DateRange) bool {
	return other.CheckIn.Before(dr.CheckOut) && other.CheckOut.After(dr.CheckIn)
}

func (dr DateRange) String() string {
	return dr.CheckIn.Format(time.DateOnly) + ".." + dr.CheckOut.Format(time.DateOnly)
}

// InclusiveDays converts a [start, end] block of whole days into the equivalent half-open range.
func InclusiveDays(start, end time.Time) DateRange {
	return DateRange{CheckIn: truncateDay(start), CheckOut: truncateDay(end).Add(day)}
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

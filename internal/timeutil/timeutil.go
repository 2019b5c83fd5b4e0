package timeutil

import (
	"net/http"
	"time"

	"github.com/gravityfall/calendar-booking-backend/internal/pkg/apperror"
)

var ErrInvalidRange = apperror.New(http.StatusBadRequest, "start time must be before end time")

// WallClockLayout is the layout accepted for host-local wall-clock input
// (no zone designator; the zone comes from the host's configured timezone).
const WallClockLayout = "2006-01-02T15:04:05"

// Range is a half-open time interval [Start, End) in UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange normalizes both instants to UTC and validates ordering.
func NewRange(start, end time.Time) (Range, error) {
	r := Range{Start: start.UTC(), End: end.UTC()}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Validate checks that the range is well-formed.
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidRange
	}
	if !r.End.After(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints (a.End == b.Start) do not overlap.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Duration returns the length of the range.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// ParseWallClock interprets a wall-clock string without zone designator in the
// given IANA timezone and returns the canonical UTC instant. An RFC3339 string
// (with zone) is also accepted and simply normalized to UTC.
func ParseWallClock(value, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}

	loc, err := loadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.ParseInLocation(WallClockLayout, value, loc)
	if err != nil {
		return time.Time{}, apperror.Wrap(err, http.StatusBadRequest, "invalid time format")
	}
	return t.UTC(), nil
}

// DayWindow returns the UTC range covering the local calendar day that
// contains t in the given timezone. Used for date-bucketed queries.
func DayWindow(t time.Time, tz string) (Range, error) {
	loc, err := loadLocation(tz)
	if err != nil {
		return Range{}, err
	}

	local := t.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Range{Start: dayStart.UTC(), End: dayStart.AddDate(0, 0, 1).UTC()}, nil
}

// SameLocalDate reports whether two instants fall on the same calendar date
// in the given timezone.
func SameLocalDate(a, b time.Time, tz string) (bool, error) {
	loc, err := loadLocation(tz)
	if err != nil {
		return false, err
	}

	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd, nil
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, apperror.Wrap(err, http.StatusBadRequest, "unknown timezone")
	}
	return loc, nil
}

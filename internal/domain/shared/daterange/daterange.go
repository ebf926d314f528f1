package daterange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

var (
	ErrInvalidDay   = errors.New("daterange: invalid calendar date")
	ErrInvalidRange = errors.New("daterange: end date must not precede start date")
	ErrInvalidTime  = errors.New("daterange: invalid time of day")
)

// Day is a calendar date without a time component.
type Day struct {
	t time.Time
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay reads a YYYY-MM-DD date.
func ParseDay(raw string) (Day, error) {
	t, err := time.Parse(dayLayout, strings.TrimSpace(raw))
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, raw)
	}
	return Day{t: t}, nil
}

// DayOf returns the calendar date of t as observed in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewDay(local.Year(), local.Month(), local.Day())
}

func (d Day) IsZero() bool                 { return d.t.IsZero() }
func (d Day) String() string               { return d.t.Format(dayLayout) }
func (d Day) AddDays(n int) Day            { return Day{t: d.t.AddDate(0, 0, n)} }
func (d Day) Before(other Day) bool        { return d.t.Before(other.t) }
func (d Day) After(other Day) bool         { return d.t.After(other.t) }
func (d Day) Equal(other Day) bool         { return d.t.Equal(other.t) }
func (d Day) Time() time.Time              { return d.t }
func (d Day) DaysUntil(other Day) int      { return int(other.t.Sub(d.t).Hours() / 24) }
func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Range is an inclusive span of calendar days.
type Range struct {
	Start Day
	End   Day
}

func New(start, end Day) (Range, error) {
	r := Range{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Single is the one-day range used by hourly bookings.
func Single(d Day) Range {
	return Range{Start: d, End: d}
}

func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidRange
	}
	if r.End.Before(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Days counts the days in the range, both ends included.
func (r Range) Days() int {
	return r.Start.DaysUntil(r.End) + 1
}

func (r Range) Contains(d Day) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r Range) Overlaps(other Range) bool {
	return !r.End.Before(other.Start) && !other.End.Before(r.Start)
}

// Each lists every day of the range in order.
func (r Range) Each() []Day {
	n := r.Days()
	if n <= 0 {
		return nil
	}
	out := make([]Day, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.Start.AddDays(i))
	}
	return out
}

// TimeOfDay is a wall-clock time stored as minutes since midnight.
type TimeOfDay int

const MinutesPerDay = 24 * 60

// ParseTimeOfDay accepts HH:mm or HH:mm:ss. "24:00" is accepted as end of day.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	return TimeOfDay(h*60 + m), nil
}

// MustTime is ParseTimeOfDay for fixtures and tests.
func MustTime(raw string) TimeOfDay {
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func AtHour(h int) TimeOfDay { return TimeOfDay(h * 60) }

// Hour is the hour containing this time (floor).
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// CeilHour rounds up to the next whole hour.
func (t TimeOfDay) CeilHour() int { return (int(t) + 59) / 60 }

func (t TimeOfDay) Minutes() int { return int(t) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

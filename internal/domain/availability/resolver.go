package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
)

var (
	ErrInvalidRequest      = errors.New("availability: invalid booking window")
	ErrPastDate            = errors.New("availability: date is in the past")
	ErrDateBlocked         = errors.New("availability: date is blocked")
	ErrSlotUnavailable     = errors.New("availability: requested time is not available")
	ErrHourlyDisabled      = errors.New("availability: hourly booking is disabled")
	ErrDailyDisabled       = errors.New("availability: daily booking is disabled")
	ErrDurationOutOfBounds = errors.New("availability: duration outside allowed hours")
	ErrRangeTooLong        = errors.New("availability: calendar range too long")
)

// MaxCalendarDays bounds a single calendar request.
const MaxCalendarDays = 93

const hoursPerDay = 24

// Occupancy is a booking that currently blocks the calendar.
type Occupancy struct {
	Reference string
	Dates     daterange.Range
	IsHourly  bool
	Start     daterange.TimeOfDay
	End       daterange.TimeOfDay
}

// hourSpan returns [start, end) in whole hours, widened outward.
func (o Occupancy) hourSpan() (int, int) {
	start, end := o.Start.Hour(), o.End.CeilHour()
	if end <= start {
		end = hoursPerDay
	}
	return start, end
}

// Snapshot is everything the resolver reads for one listing, fetched fresh per call.
type Snapshot struct {
	Schedule    listings.ScheduleConfig
	Occupancies []Occupancy
	Blackouts   Blackouts
}

func (s Snapshot) dateBlocked(d daterange.Day) bool {
	for _, blocked := range s.Blackouts.Dates {
		if blocked.Equal(d) {
			return true
		}
	}
	return false
}

func (s Snapshot) slotsOn(d daterange.Day) []BlockedSlot {
	var out []BlockedSlot
	for _, slot := range s.Blackouts.Slots {
		if slot.Date.Equal(d) {
			out = append(out, slot)
		}
	}
	return out
}

// occupancyOn splits bookings touching d into hourly ones and a daily flag.
func (s Snapshot) occupancyOn(d daterange.Day) ([]Occupancy, bool) {
	var hourly []Occupancy
	daily := false
	for _, occ := range s.Occupancies {
		if !occ.Dates.Contains(d) {
			continue
		}
		if occ.IsHourly {
			hourly = append(hourly, occ)
			continue
		}
		daily = true
	}
	return hourly, daily
}

// Window is a contiguous bookable run of whole hours.
type Window struct {
	Start daterange.TimeOfDay
	End   daterange.TimeOfDay
}

func (w Window) Hours() int {
	return w.End.Hour() - w.Start.Hour()
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Covers reports whether [startHour, endHour) fits inside the window.
func (w Window) Covers(startHour, endHour int) bool {
	return w.Start.Hour() <= startHour && endHour <= w.End.Hour()
}

// DayAvailability is the bookability of one calendar date.
type DayAvailability struct {
	Date             daterange.Day
	Unavailable      bool
	Past             bool
	FullDayAvailable bool
	HasHourlyBooking bool
	HasDailyBooking  bool
	HourlyWindows    []Window
	Summary          string
}

// Resolver computes bookable time from a snapshot. It holds no state besides
// its clock and the listing's time zone.
type Resolver struct {
	Now      func() time.Time
	Location *time.Location
}

func (r Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now().In(r.location())
	}
	return time.Now().In(r.location())
}

func (r Resolver) location() *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return time.UTC
}

// ResolveDay classifies a single date.
func (r Resolver) ResolveDay(s Snapshot, date daterange.Day) DayAvailability {
	now := r.now()
	today := daterange.DayOf(now, r.location())

	hourlyOcc, dailyOcc := s.occupancyOn(date)
	slots := s.slotsOn(date)
	day := DayAvailability{
		Date:             date,
		Unavailable:      s.dateBlocked(date),
		Past:             date.Before(today),
		HasHourlyBooking: len(hourlyOcc) > 0,
		HasDailyBooking:  dailyOcc,
	}
	if day.Unavailable || day.Past {
		return day
	}

	cfg := s.Schedule
	day.FullDayAvailable = cfg.DailyEnabled && len(hourlyOcc) == 0 && !dailyOcc && len(slots) == 0
	if cfg.HourlyEnabled && !dailyOcc {
		currentHour := -1
		if date.Equal(today) {
			currentHour = now.Hour()
		}
		day.HourlyWindows = hourlyWindows(cfg, hourlyOcc, slots, currentHour)
	}
	day.Summary = Summarize(day.HourlyWindows)
	return day
}

// ResolveRange classifies every date of an inclusive range.
func (r Resolver) ResolveRange(s Snapshot, dates daterange.Range) ([]DayAvailability, error) {
	if err := dates.Validate(); err != nil {
		return nil, err
	}
	if dates.Days() > MaxCalendarDays {
		return nil, ErrRangeTooLong
	}
	out := make([]DayAvailability, 0, dates.Days())
	for _, d := range dates.Each() {
		out = append(out, r.ResolveDay(s, d))
	}
	return out, nil
}

// hourlyWindows runs the 24-slot sweep. currentHour is negative unless the
// date is today.
func hourlyWindows(cfg listings.ScheduleConfig, booked []Occupancy, slots []BlockedSlot, currentHour int) []Window {
	var open [hoursPerDay]bool
	start, end := cfg.OperatingHours()
	for h := start; h < end; h++ {
		open[h] = true
	}
	buffer := cfg.BufferHours()
	for _, occ := range booked {
		s, e := occ.hourSpan()
		clearHours(&open, s-buffer, e+buffer)
	}
	for _, slot := range slots {
		clearHours(&open, slot.Start.Hour(), slot.End.CeilHour())
	}
	if currentHour >= 0 {
		clearHours(&open, 0, currentHour+cfg.NoticeHours()+1)
	}

	minHours := cfg.EffectiveMinHours()
	var windows []Window
	runStart := -1
	for h := 0; h <= hoursPerDay; h++ {
		isOpen := h < hoursPerDay && open[h]
		switch {
		case isOpen && runStart < 0:
			runStart = h
		case !isOpen && runStart >= 0:
			if h-runStart >= minHours {
				windows = append(windows, Window{Start: daterange.AtHour(runStart), End: daterange.AtHour(h)})
			}
			runStart = -1
		}
	}
	return windows
}

func clearHours(open *[hoursPerDay]bool, from, to int) {
	if from < 0 {
		from = 0
	}
	if to > hoursPerDay {
		to = hoursPerDay
	}
	for h := from; h < to; h++ {
		open[h] = false
	}
}

const summaryLimit = 2

// Summarize renders up to two windows plus an overflow count for display.
func Summarize(windows []Window) string {
	if len(windows) == 0 {
		return ""
	}
	n := len(windows)
	if n > summaryLimit {
		n = summaryLimit
	}
	parts := make([]string, 0, n)
	for _, w := range windows[:n] {
		parts = append(parts, w.String())
	}
	out := strings.Join(parts, ", ")
	if extra := len(windows) - n; extra > 0 {
		out += fmt.Sprintf(" +%d more", extra)
	}
	return out
}

// Request is a prospective booking checked against a snapshot.
type Request struct {
	Dates    daterange.Range
	IsHourly bool
	Start    daterange.TimeOfDay
	End      daterange.TimeOfDay
}

// Hours is the billable length of an hourly request.
func (q Request) Hours() int {
	return q.End.CeilHour() - q.Start.Hour()
}

// Occupancy converts the request into the calendar entry it would create.
func (q Request) Occupancy(reference string) Occupancy {
	occ := Occupancy{Reference: reference, Dates: q.Dates, IsHourly: q.IsHourly}
	if q.IsHourly {
		occ.Start, occ.End = q.Start, q.End
	}
	return occ
}

// CheckRequest verifies a prospective booking against current availability.
func (r Resolver) CheckRequest(s Snapshot, q Request) error {
	if err := q.Dates.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	today := daterange.DayOf(r.now(), r.location())
	if q.Dates.Start.Before(today) {
		return ErrPastDate
	}
	cfg := s.Schedule

	if q.IsHourly {
		if !cfg.HourlyEnabled {
			return ErrHourlyDisabled
		}
		if !q.Dates.Start.Equal(q.Dates.End) || q.End <= q.Start {
			return ErrInvalidRequest
		}
		hours := q.Hours()
		if hours < cfg.EffectiveMinHours() || (cfg.EffectiveMaxHours() > 0 && hours > cfg.EffectiveMaxHours()) {
			return ErrDurationOutOfBounds
		}
		day := r.ResolveDay(s, q.Dates.Start)
		if day.Unavailable {
			return ErrDateBlocked
		}
		for _, w := range day.HourlyWindows {
			if w.Covers(q.Start.Hour(), q.End.CeilHour()) {
				return nil
			}
		}
		return ErrSlotUnavailable
	}

	if !cfg.DailyEnabled {
		return ErrDailyDisabled
	}
	if q.Dates.Days() > MaxCalendarDays {
		return ErrRangeTooLong
	}
	for _, d := range q.Dates.Each() {
		day := r.ResolveDay(s, d)
		if day.Unavailable {
			return ErrDateBlocked
		}
		if !day.FullDayAvailable {
			return ErrSlotUnavailable
		}
	}
	return nil
}

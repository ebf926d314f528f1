package dto

import (
	"rigshare/internal/domain/availability"
)

type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type DayAvailability struct {
	Date             string       `json:"date"`
	Unavailable      bool         `json:"is_unavailable"`
	Past             bool         `json:"is_past"`
	FullDayAvailable bool         `json:"full_day_available"`
	HasHourlyBooking bool         `json:"has_hourly_booking"`
	HasDailyBooking  bool         `json:"has_daily_booking"`
	HourlyWindows    []TimeWindow `json:"hourly_windows"`
	WindowsSummary   string       `json:"windows_summary"`
}

type Calendar struct {
	ListingID string            `json:"listing_id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Days      []DayAvailability `json:"days"`
}

func MapDayAvailability(day availability.DayAvailability) DayAvailability {
	windows := make([]TimeWindow, 0, len(day.HourlyWindows))
	for _, w := range day.HourlyWindows {
		windows = append(windows, TimeWindow{Start: w.Start.String(), End: w.End.String()})
	}
	return DayAvailability{
		Date:             day.Date.String(),
		Unavailable:      day.Unavailable,
		Past:             day.Past,
		FullDayAvailable: day.FullDayAvailable,
		HasHourlyBooking: day.HasHourlyBooking,
		HasDailyBooking:  day.HasDailyBooking,
		HourlyWindows:    windows,
		WindowsSummary:   day.Summary,
	}
}

func MapCalendar(listingID string, days []availability.DayAvailability) Calendar {
	out := Calendar{ListingID: listingID, Days: make([]DayAvailability, 0, len(days))}
	for _, d := range days {
		out.Days = append(out.Days, MapDayAvailability(d))
	}
	if len(days) > 0 {
		out.From = days[0].Date.String()
		out.To = days[len(days)-1].Date.String()
	}
	return out
}

type BlackoutResult struct {
	ListingID string `json:"listing_id"`
	Date      string `json:"date"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	Blocked   bool   `json:"blocked"`
}

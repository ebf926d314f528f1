package booking

import (
	"errors"
	"strings"

	"rigshare/internal/domain/availability"
	"rigshare/internal/domain/shared/daterange"
)

var ErrTimesRequired = errors.New("booking: start and end time required for hourly bookings")

// ParseRequest turns raw start/end fields into a calendar request. Daily
// bookings include their end date; an empty end date means a single day.
func ParseRequest(startDate, endDate, startTime, endTime string, hourly bool) (availability.Request, error) {
	start, err := daterange.ParseDay(startDate)
	if err != nil {
		return availability.Request{}, err
	}
	end := start
	if strings.TrimSpace(endDate) != "" && !hourly {
		if end, err = daterange.ParseDay(endDate); err != nil {
			return availability.Request{}, err
		}
	}
	dates, err := daterange.New(start, end)
	if err != nil {
		return availability.Request{}, err
	}
	req := availability.Request{Dates: dates, IsHourly: hourly}
	if !hourly {
		return req, nil
	}
	if strings.TrimSpace(startTime) == "" || strings.TrimSpace(endTime) == "" {
		return availability.Request{}, ErrTimesRequired
	}
	if req.Start, err = daterange.ParseTimeOfDay(startTime); err != nil {
		return availability.Request{}, err
	}
	if req.End, err = daterange.ParseTimeOfDay(endTime); err != nil {
		return availability.Request{}, err
	}
	if req.End <= req.Start {
		return availability.Request{}, availability.ErrInvalidRequest
	}
	return req, nil
}

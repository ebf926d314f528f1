package availability

import (
	"context"
	"errors"
	"fmt"

	"rigshare/internal/domain/listings"
)

var ErrSlotTaken = errors.New("availability: slot already taken")

// ClaimStore reserves calendar hours under a storage uniqueness constraint.
// A failed Claim leaves no partial claims behind.
type ClaimStore interface {
	Claim(ctx context.Context, id listings.ListingID, reference string, keys []string) error
	Release(ctx context.Context, id listings.ListingID, reference string) error
}

// ClaimKeys lists the hour keys an occupancy holds. Daily bookings claim every
// hour of every day so they collide with any hourly booking on the same date.
// Hourly bookings also claim the buffer hours after their end, clamped to the
// day: two spans extended this way overlap exactly when the gap between the
// bookings is shorter than the buffer.
func ClaimKeys(o Occupancy, bufferHours int) []string {
	if o.IsHourly {
		start, end := o.hourSpan()
		if bufferHours > 0 {
			end += bufferHours
		}
		if end > hoursPerDay {
			end = hoursPerDay
		}
		keys := make([]string, 0, end-start)
		for h := start; h < end; h++ {
			keys = append(keys, hourKey(o.Dates.Start.String(), h))
		}
		return keys
	}
	days := o.Dates.Each()
	keys := make([]string, 0, len(days)*hoursPerDay)
	for _, d := range days {
		for h := 0; h < hoursPerDay; h++ {
			keys = append(keys, hourKey(d.String(), h))
		}
	}
	return keys
}

func hourKey(day string, hour int) string {
	return fmt.Sprintf("%s#h%02d", day, hour)
}

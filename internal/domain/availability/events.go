package availability

import (
	"time"

	"rigshare/internal/domain/listings"
)

// BlackoutChanged is emitted when a host blocks or unblocks calendar time.
type BlackoutChanged struct {
	ListingID listings.ListingID
	Date      string
	Start     string
	End       string
	Removed   bool
	At        time.Time
}

func (e BlackoutChanged) EventName() string     { return "availability.blackout_changed" }
func (e BlackoutChanged) AggregateID() string   { return string(e.ListingID) }
func (e BlackoutChanged) OccurredAt() time.Time { return e.At }

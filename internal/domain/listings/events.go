package listings

import "time"

type ListingCreated struct {
	ListingID ListingID
	Host      HostID
	At        time.Time
}

func (e ListingCreated) EventName() string     { return "listing.created" }
func (e ListingCreated) AggregateID() string   { return string(e.ListingID) }
func (e ListingCreated) OccurredAt() time.Time { return e.At }

type ScheduleUpdated struct {
	ListingID ListingID
	At        time.Time
}

func (e ScheduleUpdated) EventName() string     { return "listing.schedule_updated" }
func (e ScheduleUpdated) AggregateID() string   { return string(e.ListingID) }
func (e ScheduleUpdated) OccurredAt() time.Time { return e.At }

type ListingSoldEvent struct {
	ListingID ListingID
	At        time.Time
}

func (e ListingSoldEvent) EventName() string     { return "listing.sold" }
func (e ListingSoldEvent) AggregateID() string   { return string(e.ListingID) }
func (e ListingSoldEvent) OccurredAt() time.Time { return e.At }

package memory

import (
	"context"
	"sort"
	"sync"

	domainavailability "rigshare/internal/domain/availability"
	domainbooking "rigshare/internal/domain/booking"
	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
	"rigshare/internal/domain/shared/events"
)

// ListingRepository keeps listings in memory. Stored values are copies so
// callers cannot mutate them without Save.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrNotFound
	}
	return cloneListing(listing), nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[listing.ID]; ok && existing.Version != listing.Version {
		return domainlistings.ErrConcurrentEdit
	}
	listing.Version++
	r.items[listing.ID] = cloneListing(listing)
	return nil
}

func (r *ListingRepository) ListByHost(ctx context.Context, host domainlistings.HostID) ([]*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainlistings.Listing, 0)
	for _, l := range r.items {
		if l.Host == host {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneListing(l *domainlistings.Listing) *domainlistings.Listing {
	c := *l
	c.EventRecorder = events.EventRecorder{}
	return &c
}

// BlackoutRepository stores blocked dates and time slots per listing.
type BlackoutRepository struct {
	mu    sync.RWMutex
	dates map[domainlistings.ListingID]map[string]daterange.Day
	slots map[domainlistings.ListingID][]domainavailability.BlockedSlot
}

func NewBlackoutRepository() *BlackoutRepository {
	return &BlackoutRepository{
		dates: make(map[domainlistings.ListingID]map[string]daterange.Day),
		slots: make(map[domainlistings.ListingID][]domainavailability.BlockedSlot),
	}
}

func (r *BlackoutRepository) Blackouts(ctx context.Context, id domainlistings.ListingID, rng daterange.Range) (domainavailability.Blackouts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out domainavailability.Blackouts
	for _, d := range r.dates[id] {
		if rng.Contains(d) {
			out.Dates = append(out.Dates, d)
		}
	}
	sort.Slice(out.Dates, func(i, j int) bool { return out.Dates[i].Before(out.Dates[j]) })
	for _, s := range r.slots[id] {
		if rng.Contains(s.Date) {
			out.Slots = append(out.Slots, s)
		}
	}
	return out, nil
}

func (r *BlackoutRepository) AddBlockedDate(ctx context.Context, id domainlistings.ListingID, date daterange.Day) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dates[id] == nil {
		r.dates[id] = make(map[string]daterange.Day)
	}
	r.dates[id][date.String()] = date
	return nil
}

func (r *BlackoutRepository) RemoveBlockedDate(ctx context.Context, id domainlistings.ListingID, date daterange.Day) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dates[id], date.String())
	return nil
}

func (r *BlackoutRepository) AddBlockedSlot(ctx context.Context, id domainlistings.ListingID, slot domainavailability.BlockedSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[id] = append(r.slots[id], slot)
	return nil
}

// BookingRepository stores bookings with a version check on Save.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	booking, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	return cloneBooking(booking), nil
}

func (r *BookingRepository) Save(ctx context.Context, booking *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[booking.ID]
	if (ok && existing.Version != booking.Version) || (!ok && booking.Version != 0) {
		return domainbooking.ErrConcurrentUpdate
	}
	booking.Version++
	r.items[booking.ID] = cloneBooking(booking)
	return nil
}

func (r *BookingRepository) ListByListing(ctx context.Context, id domainlistings.ListingID, rng daterange.Range) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.ListingID == id && b.Dates.Overlaps(rng)
	}), nil
}

func (r *BookingRepository) ListByHost(ctx context.Context, hostID string) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool { return b.HostID == hostID }), nil
}

func (r *BookingRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool { return b.BuyerID == buyerID }), nil
}

func (r *BookingRepository) PendingRefunds(ctx context.Context, limit int) ([]*domainbooking.Booking, error) {
	out := r.filter(func(b *domainbooking.Booking) bool {
		return b.PaymentStatus == domainbooking.PaymentPaid && b.Refund.State == domainbooking.RefundFailed
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Refund.LastAttemptAt.Before(out[j].Refund.LastAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *BookingRepository) filter(keep func(*domainbooking.Booking) bool) []*domainbooking.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func cloneBooking(b *domainbooking.Booking) *domainbooking.Booking {
	c := *b
	c.EventRecorder = events.EventRecorder{}
	return &c
}

// ClaimStore enforces one booking per (listing, hour key).
type ClaimStore struct {
	mu     sync.Mutex
	owners map[domainlistings.ListingID]map[string]string
}

func NewClaimStore() *ClaimStore {
	return &ClaimStore{owners: make(map[domainlistings.ListingID]map[string]string)}
}

func (s *ClaimStore) Claim(ctx context.Context, id domainlistings.ListingID, reference string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.owners[id]
	if owned == nil {
		owned = make(map[string]string)
		s.owners[id] = owned
	}
	for _, k := range keys {
		if owner, ok := owned[k]; ok && owner != reference {
			return domainavailability.ErrSlotTaken
		}
	}
	for _, k := range keys {
		owned[k] = reference
	}
	return nil
}

func (s *ClaimStore) Release(ctx context.Context, id domainlistings.ListingID, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, owner := range s.owners[id] {
		if owner == reference {
			delete(s.owners[id], k)
		}
	}
	return nil
}

var (
	_ domainlistings.ListingRepository = (*ListingRepository)(nil)
	_ domainavailability.Repository    = (*BlackoutRepository)(nil)
	_ domainavailability.ClaimStore    = (*ClaimStore)(nil)
	_ domainbooking.Repository         = (*BookingRepository)(nil)
)

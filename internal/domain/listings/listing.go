package listings

import (
	"context"
	"errors"
	"strings"
	"time"

	"rigshare/internal/domain/pricing"
	"rigshare/internal/domain/shared/daterange"
	"rigshare/internal/domain/shared/events"
	"rigshare/internal/domain/shared/money"
)

var (
	ErrTitleRequired  = errors.New("listings: title is required")
	ErrHostRequired   = errors.New("listings: host is required")
	ErrInvalidKind    = errors.New("listings: unknown asset kind")
	ErrNotFound       = errors.New("listings: not found")
	ErrNotOwned       = errors.New("listings: not owned by host")
	ErrNotForSale     = errors.New("listings: listing has no sale price")
	ErrInvalidState   = errors.New("listings: invalid state transition")
	ErrNegativeRate   = errors.New("listings: rates must be non-negative")
	ErrHoursRange     = errors.New("listings: min hours must be <= max hours")
	ErrConcurrentEdit = errors.New("listings: concurrent update detected")
)

type ListingID string
type HostID string

type Kind string

const (
	KindFoodTruck Kind = "food_truck"
	KindTrailer   Kind = "trailer"
	KindKitchen   Kind = "kitchen"
	KindVendorLot Kind = "vendor_lot"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindFoodTruck:
		return KindFoodTruck, nil
	case KindTrailer:
		return KindTrailer, nil
	case KindKitchen:
		return KindKitchen, nil
	case KindVendorLot:
		return KindVendorLot, nil
	}
	return "", ErrInvalidKind
}

type ListingState string

const (
	ListingActive   ListingState = "ACTIVE"
	ListingArchived ListingState = "ARCHIVED"
	ListingSold     ListingState = "SOLD"
)

// Default operating window applied when the host has not configured one.
const (
	DefaultOperatingStart = "06:00"
	DefaultOperatingEnd   = "22:00"
)

// ScheduleConfig is the host-controlled booking configuration of a listing.
type ScheduleConfig struct {
	HourlyRate     *money.Money
	HourlyEnabled  bool
	DailyEnabled   bool
	MinHours       int
	MaxHours       int
	BufferMinutes  int
	MinNoticeHours int
	OperatingStart string
	OperatingEnd   string
	DailyRate      *money.Money
	WeeklyRate     *money.Money
}

// OperatingHours returns [start, end) in whole hours. Start rounds up and end
// rounds down so partial hours are never offered. Unparsable or inverted
// values fall back to the default window; an end of 00:00 means midnight.
func (c ScheduleConfig) OperatingHours() (int, int) {
	def := func() (int, int) {
		s := daterange.MustTime(DefaultOperatingStart)
		e := daterange.MustTime(DefaultOperatingEnd)
		return s.Hour(), e.Hour()
	}
	startRaw := strings.TrimSpace(c.OperatingStart)
	endRaw := strings.TrimSpace(c.OperatingEnd)
	if startRaw == "" {
		startRaw = DefaultOperatingStart
	}
	if endRaw == "" {
		endRaw = DefaultOperatingEnd
	}
	start, err := daterange.ParseTimeOfDay(startRaw)
	if err != nil {
		return def()
	}
	end, err := daterange.ParseTimeOfDay(endRaw)
	if err != nil {
		return def()
	}
	startHour, endHour := start.CeilHour(), end.Hour()
	if end == 0 {
		endHour = 24
	}
	if startHour >= endHour || endHour > 24 {
		return def()
	}
	return startHour, endHour
}

// EffectiveMinHours is never below one hour.
func (c ScheduleConfig) EffectiveMinHours() int {
	if c.MinHours < 1 {
		return 1
	}
	return c.MinHours
}

// EffectiveMaxHours returns zero when unbounded.
func (c ScheduleConfig) EffectiveMaxHours() int {
	if c.MaxHours < c.EffectiveMinHours() {
		return 0
	}
	return c.MaxHours
}

func (c ScheduleConfig) BufferHours() int {
	if c.BufferMinutes <= 0 {
		return 0
	}
	return (c.BufferMinutes + 59) / 60
}

func (c ScheduleConfig) NoticeHours() int {
	if c.MinNoticeHours < 0 {
		return 0
	}
	return c.MinNoticeHours
}

func (c ScheduleConfig) Validate() error {
	for _, rate := range []*money.Money{c.HourlyRate, c.DailyRate, c.WeeklyRate} {
		if rate != nil && rate.IsNegative() {
			return ErrNegativeRate
		}
	}
	if c.MaxHours > 0 && c.MinHours > c.MaxHours {
		return ErrHoursRange
	}
	return nil
}

// SaleTerms describe an outright purchase offer for the asset.
type SaleTerms struct {
	Price             *money.Money
	FreightCost       money.Money
	FreightSellerPaid bool
}

type Listing struct {
	ID        ListingID
	Host      HostID
	Title     string
	Kind      Kind
	Currency  string
	Schedule  ScheduleConfig
	Sale      SaleTerms
	State     ListingState
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	events.EventRecorder
}

type ListingRepository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
	ListByHost(ctx context.Context, host HostID) ([]*Listing, error)
}

type CreateListingParams struct {
	ID       ListingID
	Host     HostID
	Title    string
	Kind     Kind
	Currency string
	Schedule ScheduleConfig
	Sale     SaleTerms
	Now      time.Time
}

func NewListing(params CreateListingParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("listings: id is required")
	}
	if strings.TrimSpace(string(params.Host)) == "" {
		return nil, ErrHostRequired
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if _, err := ParseKind(string(params.Kind)); err != nil {
		return nil, err
	}
	if len(params.Currency) != 3 {
		return nil, money.ErrInvalidCurrency
	}
	if err := params.Schedule.Validate(); err != nil {
		return nil, err
	}
	now := params.Now.UTC()
	l := &Listing{
		ID:        params.ID,
		Host:      params.Host,
		Title:     title,
		Kind:      params.Kind,
		Currency:  strings.ToUpper(params.Currency),
		Schedule:  params.Schedule,
		Sale:      params.Sale,
		State:     ListingActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.Record(ListingCreated{ListingID: l.ID, Host: l.Host, At: now})
	return l, nil
}

func (l *Listing) OwnedBy(host HostID) bool {
	return l.Host == host
}

// UpdateSchedule replaces the schedule configuration.
func (l *Listing) UpdateSchedule(cfg ScheduleConfig, now time.Time) error {
	if l.State != ListingActive {
		return ErrInvalidState
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.Schedule = cfg
	l.UpdatedAt = now.UTC()
	l.Record(ScheduleUpdated{ListingID: l.ID, At: l.UpdatedAt})
	return nil
}

// RateCard exposes the schedule's prices to the pricing engine.
func (l *Listing) RateCard() pricing.RateCard {
	return pricing.RateCard{
		Currency: l.Currency,
		Hourly:   l.Schedule.HourlyRate,
		Daily:    l.Schedule.DailyRate,
		Weekly:   l.Schedule.WeeklyRate,
	}
}

func (l *Listing) ForSale() bool {
	return l.Sale.Price != nil && l.State == ListingActive
}

// MarkSold takes the asset off the market after a completed purchase.
func (l *Listing) MarkSold(now time.Time) error {
	if l.State == ListingSold {
		return nil
	}
	if l.State != ListingActive {
		return ErrInvalidState
	}
	l.State = ListingSold
	l.UpdatedAt = now.UTC()
	l.Record(ListingSoldEvent{ListingID: l.ID, At: l.UpdatedAt})
	return nil
}

// UpdateSaleTerms changes or withdraws the purchase price.
func (l *Listing) UpdateSaleTerms(terms SaleTerms, now time.Time) error {
	if l.State != ListingActive {
		return ErrInvalidState
	}
	for _, m := range []*money.Money{terms.Price, &terms.FreightCost} {
		if m != nil && m.IsNegative() {
			return ErrNegativeRate
		}
	}
	l.Sale = terms
	l.UpdatedAt = now.UTC()
	return nil
}

// Archive hides the listing from new bookings and purchases.
func (l *Listing) Archive(now time.Time) error {
	switch l.State {
	case ListingArchived:
		return nil
	case ListingSold:
		return ErrInvalidState
	}
	l.State = ListingArchived
	l.UpdatedAt = now.UTC()
	return nil
}

func (l *Listing) Activate(now time.Time) error {
	switch l.State {
	case ListingActive:
		return nil
	case ListingSold:
		return ErrInvalidState
	}
	l.State = ListingActive
	l.UpdatedAt = now.UTC()
	return nil
}

package dto

import (
	"time"

	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/money"
)

type ScheduleConfig struct {
	HourlyRate     *string `json:"price_hourly"`
	HourlyEnabled  bool    `json:"hourly_enabled"`
	DailyEnabled   bool    `json:"daily_enabled"`
	MinHours       int     `json:"min_hours"`
	MaxHours       int     `json:"max_hours"`
	BufferMinutes  int     `json:"buffer_time_mins"`
	MinNoticeHours int     `json:"min_notice_hours"`
	OperatingStart string  `json:"operating_hours_start"`
	OperatingEnd   string  `json:"operating_hours_end"`
	DailyRate      *string `json:"price_daily"`
	WeeklyRate     *string `json:"price_weekly"`
}

type Listing struct {
	ID                string         `json:"id"`
	HostID            string         `json:"host_id"`
	Title             string         `json:"title"`
	Kind              string         `json:"kind"`
	Currency          string         `json:"currency"`
	State             string         `json:"state"`
	Schedule          ScheduleConfig `json:"schedule"`
	SalePrice         *string        `json:"price_sale"`
	FreightCost       string         `json:"freight_cost"`
	FreightSellerPaid bool           `json:"freight_seller_paid"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type ListingCollection struct {
	Items []Listing `json:"items"`
}

func MapListing(l *domainlistings.Listing) Listing {
	cfg := l.Schedule
	out := Listing{
		ID:       string(l.ID),
		HostID:   string(l.Host),
		Title:    l.Title,
		Kind:     string(l.Kind),
		Currency: l.Currency,
		State:    string(l.State),
		Schedule: ScheduleConfig{
			HourlyRate:     optionalAmount(cfg.HourlyRate),
			HourlyEnabled:  cfg.HourlyEnabled,
			DailyEnabled:   cfg.DailyEnabled,
			MinHours:       cfg.MinHours,
			MaxHours:       cfg.MaxHours,
			BufferMinutes:  cfg.BufferMinutes,
			MinNoticeHours: cfg.MinNoticeHours,
			OperatingStart: cfg.OperatingStart,
			OperatingEnd:   cfg.OperatingEnd,
			DailyRate:      optionalAmount(cfg.DailyRate),
			WeeklyRate:     optionalAmount(cfg.WeeklyRate),
		},
		SalePrice:         optionalAmount(l.Sale.Price),
		FreightCost:       l.Sale.FreightCost.String(),
		FreightSellerPaid: l.Sale.FreightSellerPaid,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
	return out
}

func optionalAmount(m *money.Money) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}

package pricing

import (
	"errors"

	"rigshare/internal/domain/shared/money"
)

var (
	ErrCurrencyUnset = errors.New("pricing: currency must be defined")
	ErrInvalidUnits  = errors.New("pricing: duration must be positive")
)

const DaysPerWeek = 7

// RateCard is the subset of a listing's schedule that carries prices.
// Nil rates are treated as absent and price to zero.
type RateCard struct {
	Currency string
	Hourly   *money.Money
	Daily    *money.Money
	Weekly   *money.Money
}

// HourlyPrice is hours * hourly rate, or zero when the listing has no hourly rate.
func (c RateCard) HourlyPrice(hours int) money.Money {
	if c.Hourly == nil || hours <= 0 {
		return money.Zero(c.Currency)
	}
	return c.Hourly.Multiply(int64(hours))
}

// DailyPrice prices whole weeks at the weekly rate when one exists and the
// remaining days at the daily rate.
func (c RateCard) DailyPrice(days int) money.Money {
	if days <= 0 {
		return money.Zero(c.Currency)
	}
	daily := money.Zero(c.Currency)
	if c.Daily != nil {
		daily = *c.Daily
	}
	weeks := days / DaysPerWeek
	remainder := days % DaysPerWeek
	if c.Weekly != nil && weeks > 0 {
		total := c.Weekly.Multiply(int64(weeks))
		total.Amount += daily.Multiply(int64(remainder)).Amount
		return total
	}
	return daily.Multiply(int64(days))
}

// Shape distinguishes hour-priced from day-priced rentals.
type Shape string

const (
	ShapeHourly Shape = "hourly"
	ShapeDaily  Shape = "daily"
)

// Quote is the base price of a rental before commission.
type Quote struct {
	Shape Shape
	Units int
	Base  money.Money
}

// QuoteRental prices a rental of the given shape and length.
func QuoteRental(card RateCard, shape Shape, units int) (Quote, error) {
	if card.Currency == "" {
		return Quote{}, ErrCurrencyUnset
	}
	if units <= 0 {
		return Quote{}, ErrInvalidUnits
	}
	q := Quote{Shape: shape, Units: units}
	switch shape {
	case ShapeHourly:
		q.Base = card.HourlyPrice(units)
	default:
		q.Shape = ShapeDaily
		q.Base = card.DailyPrice(units)
	}
	return q, nil
}

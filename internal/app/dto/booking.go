package dto

import (
	"time"

	domainbooking "rigshare/internal/domain/booking"
)

type Booking struct {
	ID                 string    `json:"id"`
	ListingID          string    `json:"listing_id"`
	BuyerID            string    `json:"buyer_id"`
	HostID             string    `json:"host_id"`
	StartDate          string    `json:"start_date"`
	EndDate            string    `json:"end_date"`
	StartTime          string    `json:"start_time,omitempty"`
	EndTime            string    `json:"end_time,omitempty"`
	IsHourly           bool      `json:"is_hourly_booking"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"payment_status"`
	Total              string    `json:"total"`
	DeliveryFee        string    `json:"delivery_fee"`
	Currency           string    `json:"currency"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CancelledBy        string    `json:"cancelled_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type BookingCollection struct {
	Items []Booking `json:"items"`
}

func MapBooking(b *domainbooking.Booking) Booking {
	out := Booking{
		ID:                 string(b.ID),
		ListingID:          string(b.ListingID),
		BuyerID:            b.BuyerID,
		HostID:             b.HostID,
		StartDate:          b.Dates.Start.String(),
		EndDate:            b.Dates.End.String(),
		IsHourly:           b.IsHourly,
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		Total:              b.Total.String(),
		DeliveryFee:        b.DeliveryFee.String(),
		Currency:           b.Total.Currency,
		CancellationReason: b.CancellationReason,
		CancelledBy:        string(b.CancelledBy),
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if b.IsHourly {
		out.StartTime = b.StartTime.String()
		out.EndTime = b.EndTime.String()
	}
	return out
}

// RefundOutcome reports the compensating payment attempted by a cancellation.
type RefundOutcome struct {
	Attempted bool   `json:"attempted"`
	Succeeded bool   `json:"succeeded"`
	RefundID  string `json:"refund_id,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Error     string `json:"error,omitempty"`
}

type CancelBookingResult struct {
	Success       bool          `json:"success"`
	BookingID     string        `json:"booking_id"`
	Status        string        `json:"status"`
	PaymentStatus string        `json:"payment_status"`
	Refund        RefundOutcome `json:"refund"`
	InitiatedBy   string        `json:"initiated_by"`
}

type BookingActionResult struct {
	BookingID     string `json:"booking_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

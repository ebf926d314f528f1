package dto

import (
	"rigshare/internal/domain/pricing"
)

type RentalQuote struct {
	ListingID     string `json:"listing_id"`
	Shape         string `json:"shape"`
	Units         int    `json:"units"`
	Currency      string `json:"currency"`
	BasePrice     string `json:"base_price"`
	DeliveryFee   string `json:"delivery_fee"`
	Subtotal      string `json:"subtotal"`
	RenterFee     string `json:"renter_fee"`
	HostFee       string `json:"host_fee"`
	CustomerTotal string `json:"customer_total"`
	HostReceives  string `json:"host_receives"`
	PlatformFee   string `json:"platform_fee"`
}

func MapRentalQuote(listingID string, q pricing.Quote, split pricing.RentalSplit) RentalQuote {
	delivery, _ := split.Subtotal.Sub(q.Base)
	return RentalQuote{
		ListingID:     listingID,
		Shape:         string(q.Shape),
		Units:         q.Units,
		Currency:      q.Base.Currency,
		BasePrice:     q.Base.String(),
		DeliveryFee:   delivery.String(),
		Subtotal:      split.Subtotal.String(),
		RenterFee:     split.RenterFee.String(),
		HostFee:       split.HostFee.String(),
		CustomerTotal: split.CustomerTotal.String(),
		HostReceives:  split.HostReceives.String(),
		PlatformFee:   split.PlatformFee.String(),
	}
}

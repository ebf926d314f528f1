package dto

import (
	"time"

	domainoffers "rigshare/internal/domain/offers"
)

type Offer struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	BuyerID   string    `json:"buyer_id"`
	SellerID  string    `json:"seller_id"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func MapOffer(o *domainoffers.Offer) Offer {
	return Offer{
		ID:        string(o.ID),
		ListingID: o.ListingID,
		BuyerID:   o.BuyerID,
		SellerID:  o.SellerID,
		Amount:    o.Amount.String(),
		Currency:  o.Amount.Currency,
		Status:    string(o.Status),
		Message:   o.Message,
		UpdatedAt: o.UpdatedAt,
	}
}

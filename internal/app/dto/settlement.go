package dto

import (
	"time"

	domainsettlement "rigshare/internal/domain/settlement"
)

type Settlement struct {
	ID                string     `json:"id"`
	ListingID         string     `json:"listing_id"`
	BuyerID           string     `json:"buyer_id"`
	SellerID          string     `json:"seller_id"`
	CheckoutSessionID string     `json:"session_id"`
	Status            string     `json:"status"`
	Gross             string     `json:"gross_amount"`
	PlatformFee       string     `json:"platform_fee"`
	SellerPayout      string     `json:"seller_payout"`
	FreightCost       string     `json:"freight_cost"`
	Currency          string     `json:"currency"`
	DisputeReason     string     `json:"dispute_reason,omitempty"`
	Resolution        string     `json:"resolution,omitempty"`
	TransferID        string     `json:"transfer_id,omitempty"`
	PaidOutAt         *time.Time `json:"paid_out_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func MapSettlement(s *domainsettlement.Settlement) Settlement {
	out := Settlement{
		ID:                string(s.ID),
		ListingID:         s.ListingID,
		BuyerID:           s.BuyerID,
		SellerID:          s.SellerID,
		CheckoutSessionID: s.CheckoutSessionID,
		Status:            string(s.Status),
		Gross:             s.Gross.String(),
		PlatformFee:       s.PlatformFee.String(),
		SellerPayout:      s.SellerPayout.String(),
		FreightCost:       s.FreightCost.String(),
		Currency:          s.Gross.Currency,
		TransferID:        s.TransferID,
		PaidOutAt:         s.PaidOutAt,
		CreatedAt:         s.CreatedAt,
	}
	if s.Dispute != nil {
		out.DisputeReason = s.Dispute.Reason
	}
	if s.Resolution != nil {
		out.Resolution = string(s.Resolution.Choice)
	}
	return out
}

type RecordSettlementResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

type SettlementActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

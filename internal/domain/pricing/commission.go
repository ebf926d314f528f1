package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"rigshare/internal/domain/shared/money"
)

var ErrNegativeAmount = errors.New("pricing: amounts must be non-negative")

// Commission rates. Every fee computation in the service reads these values.
var (
	RentalRenterRate = decimal.RequireFromString("0.129")
	RentalHostRate   = decimal.RequireFromString("0.129")
	SaleSellerRate   = decimal.RequireFromString("0.15")
)

// RentalSplit is the dual-sided rental commission breakdown.
type RentalSplit struct {
	Subtotal      money.Money `json:"subtotal"`
	RenterFee     money.Money `json:"renter_fee"`
	HostFee       money.Money `json:"host_fee"`
	CustomerTotal money.Money `json:"customer_total"`
	HostReceives  money.Money `json:"host_receives"`
	PlatformFee   money.Money `json:"platform_fee"`
}

// SplitRental charges the renter and the host a percentage of base+delivery each.
func SplitRental(base, delivery money.Money) (RentalSplit, error) {
	if base.IsNegative() || delivery.IsNegative() {
		return RentalSplit{}, ErrNegativeAmount
	}
	if delivery.Currency == "" {
		delivery = money.Zero(base.Currency)
	}
	subtotal, err := base.Add(delivery)
	if err != nil {
		return RentalSplit{}, err
	}
	renterFee := subtotal.MulRate(RentalRenterRate)
	hostFee := subtotal.MulRate(RentalHostRate)
	customerTotal, _ := subtotal.Add(renterFee)
	hostReceives, _ := subtotal.Sub(hostFee)
	platformFee, _ := renterFee.Add(hostFee)
	return RentalSplit{
		Subtotal:      subtotal,
		RenterFee:     renterFee,
		HostFee:       hostFee,
		CustomerTotal: customerTotal,
		HostReceives:  hostReceives,
		PlatformFee:   platformFee,
	}, nil
}

// SaleSplit is the seller-paid sale commission breakdown.
type SaleSplit struct {
	SalePrice         money.Money `json:"sale_price"`
	FreightCost       money.Money `json:"freight_cost"`
	FreightSellerPaid bool        `json:"freight_seller_paid"`
	SellerFee         money.Money `json:"seller_fee"`
	FreightDeduction  money.Money `json:"freight_deduction"`
	CustomerTotal     money.Money `json:"customer_total"`
	SellerReceives    money.Money `json:"seller_receives"`
}

// PlatformFee is the commission retained on a sale.
func (s SaleSplit) PlatformFee() money.Money {
	return s.SellerFee
}

// SplitSale charges the seller a commission on the sale price. Seller-paid
// freight is deducted from the payout; otherwise the buyer pays it on top.
func SplitSale(salePrice, freight money.Money, sellerPaidFreight bool) (SaleSplit, error) {
	if salePrice.IsNegative() || freight.IsNegative() {
		return SaleSplit{}, ErrNegativeAmount
	}
	if freight.Currency == "" {
		freight = money.Zero(salePrice.Currency)
	}
	if salePrice.Currency != freight.Currency {
		return SaleSplit{}, money.ErrCurrencyMismatch
	}
	sellerFee := salePrice.MulRate(SaleSellerRate)
	split := SaleSplit{
		SalePrice:         salePrice,
		FreightCost:       freight,
		FreightSellerPaid: sellerPaidFreight,
		SellerFee:         sellerFee,
	}
	if sellerPaidFreight {
		split.CustomerTotal = salePrice
		split.FreightDeduction = freight
	} else {
		split.CustomerTotal, _ = salePrice.Add(freight)
		split.FreightDeduction = money.Zero(salePrice.Currency)
	}
	receives := salePrice.Amount - sellerFee.Amount - split.FreightDeduction.Amount
	split.SellerReceives = money.Money{Amount: receives, Currency: salePrice.Currency}
	return split, nil
}

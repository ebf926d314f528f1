package checkout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rigshare/internal/domain/shared/money"
)

var (
	ErrUnknownMode     = errors.New("checkout: unknown transaction mode")
	ErrMetadataInvalid = errors.New("checkout: payment metadata invalid")
	ErrNotEscrow       = errors.New("checkout: payment is not an escrowed sale")
)

type Mode string

const (
	ModeRent Mode = "rent"
	ModeSale Mode = "sale"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeRent:
		return ModeRent, nil
	case ModeSale:
		return ModeSale, nil
	}
	return "", ErrUnknownMode
}

// MetadataVersion tags the payment-intent metadata layout.
const MetadataVersion = "1"

const (
	keyVersion           = "rs_version"
	keyMode              = "mode"
	keyEscrow            = "escrow"
	keyListingID         = "listing_id"
	keyBookingID         = "booking_id"
	keyBuyerID           = "buyer_id"
	keyPayeeID           = "payee_id"
	keyOfferID           = "offer_id"
	keySalePrice         = "sale_price"
	keyFreightCost       = "freight_cost"
	keyFreightSellerPaid = "freight_seller_paid"
	keyPlatformFee       = "platform_fee"
	keySellerReceives    = "seller_receives"
	keyFulfillmentType   = "fulfillment_type"
	keyDeliveryAddress   = "delivery_address"
	keyBuyerName         = "buyer_name"
	keyBuyerEmail        = "buyer_email"
	keyBuyerPhone        = "buyer_phone"
)

// RentalMetadata links a rent-mode payment back to its booking.
type RentalMetadata struct {
	BookingID string
	ListingID string
	BuyerID   string
	HostID    string
}

func (m RentalMetadata) Encode() map[string]string {
	return map[string]string{
		keyVersion:   MetadataVersion,
		keyMode:      string(ModeRent),
		keyBookingID: m.BookingID,
		keyListingID: m.ListingID,
		keyBuyerID:   m.BuyerID,
		keyPayeeID:   m.HostID,
	}
}

// SaleMetadata is everything settlement needs from an escrowed sale. Fee
// fields are optional; absent fees are recomputed from the sale price.
type SaleMetadata struct {
	ListingID         string
	BuyerID           string
	SellerID          string
	OfferID           string
	SalePrice         money.Money
	FreightCost       money.Money
	FreightSellerPaid bool
	PlatformFee       *money.Money
	SellerReceives    *money.Money
	FulfillmentType   string
	DeliveryAddress   string
	BuyerName         string
	BuyerEmail        string
	BuyerPhone        string
}

func (m SaleMetadata) Encode() map[string]string {
	out := map[string]string{
		keyVersion:           MetadataVersion,
		keyMode:              string(ModeSale),
		keyEscrow:            "true",
		keyListingID:         m.ListingID,
		keyBuyerID:           m.BuyerID,
		keyPayeeID:           m.SellerID,
		keySalePrice:         m.SalePrice.String(),
		keyFreightCost:       m.FreightCost.String(),
		keyFreightSellerPaid: strconv.FormatBool(m.FreightSellerPaid),
	}
	if m.PlatformFee != nil {
		out[keyPlatformFee] = m.PlatformFee.String()
	}
	if m.SellerReceives != nil {
		out[keySellerReceives] = m.SellerReceives.String()
	}
	optional := map[string]string{
		keyOfferID:         m.OfferID,
		keyFulfillmentType: m.FulfillmentType,
		keyDeliveryAddress: m.DeliveryAddress,
		keyBuyerName:       m.BuyerName,
		keyBuyerEmail:      m.BuyerEmail,
		keyBuyerPhone:      m.BuyerPhone,
	}
	for k, v := range optional {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// ModeOf reads the discriminator of a payment's metadata.
func ModeOf(md map[string]string) (Mode, error) {
	if md[keyVersion] != MetadataVersion {
		return "", fmt.Errorf("%w: unsupported version %q", ErrMetadataInvalid, md[keyVersion])
	}
	return ParseMode(md[keyMode])
}

// DecodeSale validates escrow metadata and fails closed on anything missing
// or unparsable. Fee fields must be both present or both absent.
func DecodeSale(md map[string]string, currency string) (SaleMetadata, error) {
	mode, err := ModeOf(md)
	if err != nil {
		return SaleMetadata{}, err
	}
	if mode != ModeSale || md[keyEscrow] != "true" {
		return SaleMetadata{}, ErrNotEscrow
	}
	out := SaleMetadata{
		ListingID:       strings.TrimSpace(md[keyListingID]),
		BuyerID:         strings.TrimSpace(md[keyBuyerID]),
		SellerID:        strings.TrimSpace(md[keyPayeeID]),
		OfferID:         strings.TrimSpace(md[keyOfferID]),
		FulfillmentType: md[keyFulfillmentType],
		DeliveryAddress: md[keyDeliveryAddress],
		BuyerName:       md[keyBuyerName],
		BuyerEmail:      md[keyBuyerEmail],
		BuyerPhone:      md[keyBuyerPhone],
	}
	if out.ListingID == "" || out.BuyerID == "" || out.SellerID == "" {
		return SaleMetadata{}, fmt.Errorf("%w: party ids missing", ErrMetadataInvalid)
	}
	if out.SalePrice, err = requiredAmount(md, keySalePrice, currency); err != nil {
		return SaleMetadata{}, err
	}
	if out.FreightCost, err = requiredAmount(md, keyFreightCost, currency); err != nil {
		return SaleMetadata{}, err
	}
	if out.FreightSellerPaid, err = strconv.ParseBool(md[keyFreightSellerPaid]); err != nil {
		return SaleMetadata{}, fmt.Errorf("%w: %s", ErrMetadataInvalid, keyFreightSellerPaid)
	}
	_, hasFee := md[keyPlatformFee]
	_, hasReceives := md[keySellerReceives]
	switch {
	case hasFee && hasReceives:
		fee, err := requiredAmount(md, keyPlatformFee, currency)
		if err != nil {
			return SaleMetadata{}, err
		}
		receives, err := requiredAmount(md, keySellerReceives, currency)
		if err != nil {
			return SaleMetadata{}, err
		}
		out.PlatformFee, out.SellerReceives = &fee, &receives
	case hasFee || hasReceives:
		return SaleMetadata{}, fmt.Errorf("%w: partial fee fields", ErrMetadataInvalid)
	}
	return out, nil
}

// DecodeRental validates rent-mode metadata.
func DecodeRental(md map[string]string) (RentalMetadata, error) {
	mode, err := ModeOf(md)
	if err != nil {
		return RentalMetadata{}, err
	}
	if mode != ModeRent {
		return RentalMetadata{}, fmt.Errorf("%w: mode %q", ErrMetadataInvalid, mode)
	}
	out := RentalMetadata{
		BookingID: strings.TrimSpace(md[keyBookingID]),
		ListingID: strings.TrimSpace(md[keyListingID]),
		BuyerID:   strings.TrimSpace(md[keyBuyerID]),
		HostID:    strings.TrimSpace(md[keyPayeeID]),
	}
	if out.BookingID == "" {
		return RentalMetadata{}, fmt.Errorf("%w: booking id missing", ErrMetadataInvalid)
	}
	return out, nil
}

func requiredAmount(md map[string]string, key, currency string) (money.Money, error) {
	raw, ok := md[key]
	if !ok {
		return money.Money{}, fmt.Errorf("%w: %s missing", ErrMetadataInvalid, key)
	}
	m, err := money.Parse(raw, currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("%w: %s: %v", ErrMetadataInvalid, key, err)
	}
	if m.IsNegative() {
		return money.Money{}, fmt.Errorf("%w: %s negative", ErrMetadataInvalid, key)
	}
	return m, nil
}

package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"rigshare/internal/domain/pricing"
	"rigshare/internal/domain/shared/money"
)

// SessionRequest describes a hosted payment page with a single line item.
// Destination and ApplicationFee are set only for split-transfer rentals;
// sales leave them empty so funds stay with the platform.
type SessionRequest struct {
	Mode            Mode
	Description     string
	Amount          money.Money
	CustomerEmail   string
	ClientReference string
	Destination     string
	ApplicationFee  money.Money
	Metadata        map[string]string
	IdempotencyKey  string
}

func (r SessionRequest) SplitTransfer() bool {
	return r.Destination != ""
}

// Session is the processor's handle for a created checkout.
type Session struct {
	ID  string
	URL string
}

// Confirmation is the processor's authoritative view of a checkout session.
type Confirmation struct {
	SessionID       string
	Paid            bool
	PaymentIntentID string
	Metadata        map[string]string
	AmountTotal     money.Money
}

// Summary is returned to the buyer before redirecting to payment.
type Summary struct {
	CustomerTotal money.Money
	PlatformFee   money.Money
	PayeeReceives money.Money
}

// RentalSession charges the renter the customer total, routes the host's
// share to their payout account and keeps the platform fee.
func RentalSession(title, hostAccount string, split pricing.RentalSplit, md RentalMetadata) (SessionRequest, Summary) {
	req := SessionRequest{
		Mode:            ModeRent,
		Description:     title,
		Amount:          split.CustomerTotal,
		ClientReference: md.BookingID,
		Destination:     hostAccount,
		ApplicationFee:  split.PlatformFee,
		Metadata:        md.Encode(),
	}
	return req, Summary{CustomerTotal: split.CustomerTotal, PlatformFee: split.PlatformFee, PayeeReceives: split.HostReceives}
}

// SaleSession charges the buyer without any transfer. The split travels as
// metadata until the escrow is released or refunded.
func SaleSession(title string, split pricing.SaleSplit, md SaleMetadata) (SessionRequest, Summary) {
	fee := split.PlatformFee()
	receives := split.SellerReceives
	md.SalePrice = split.SalePrice
	md.FreightCost = split.FreightCost
	md.FreightSellerPaid = split.FreightSellerPaid
	md.PlatformFee = &fee
	md.SellerReceives = &receives
	req := SessionRequest{
		Mode:            ModeSale,
		Description:     title,
		Amount:          split.CustomerTotal,
		CustomerEmail:   md.BuyerEmail,
		ClientReference: md.ListingID,
		Metadata:        md.Encode(),
	}
	return req, Summary{CustomerTotal: split.CustomerTotal, PlatformFee: fee, PayeeReceives: receives}
}

// IdempotencyKey derives a stable key from the identifying parts of a request.
func IdempotencyKey(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return prefix + "-" + hex.EncodeToString(sum[:12])
}

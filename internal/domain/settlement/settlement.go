package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"rigshare/internal/domain/shared/events"
	"rigshare/internal/domain/shared/money"
)

var (
	ErrNotFound          = errors.New("settlement: not found")
	ErrDuplicateSession  = errors.New("settlement: checkout session already recorded")
	ErrConcurrentUpdate  = errors.New("settlement: concurrent update detected")
	ErrNotDisputed       = errors.New("settlement: settlement is not disputed")
	ErrNotPaid           = errors.New("settlement: settlement is not in paid status")
	ErrNotParticipant    = errors.New("settlement: caller is not a party to this sale")
	ErrOnlyBuyerConfirms = errors.New("settlement: only the buyer can confirm receipt")
	ErrInvalidResolution = errors.New("settlement: unknown resolution")
	ErrNoPaymentIntent   = errors.New("settlement: no payment intent on record")
	ErrReasonRequired    = errors.New("settlement: dispute reason required")
	ErrResolutionPending = errors.New("settlement: another resolution is in progress")
)

type ID string

type Status string

const (
	StatusPaid      Status = "paid"
	StatusDisputed  Status = "disputed"
	StatusResolving Status = "resolving"
	StatusReleasing Status = "releasing"
	StatusRefunded  Status = "refunded"
	StatusCompleted Status = "completed"
)

func (s Status) Terminal() bool {
	return s == StatusRefunded || s == StatusCompleted
}

type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

type Resolution string

const (
	ResolutionRefundBuyer     Resolution = "refund_buyer"
	ResolutionReleaseToSeller Resolution = "release_to_seller"
)

func ParseResolution(raw string) (Resolution, error) {
	switch Resolution(strings.ToLower(strings.TrimSpace(raw))) {
	case ResolutionRefundBuyer:
		return ResolutionRefundBuyer, nil
	case ResolutionReleaseToSeller:
		return ResolutionReleaseToSeller, nil
	}
	return "", ErrInvalidResolution
}

type Fulfillment struct {
	Type    string
	Address string
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

type Dispute struct {
	Reason     string
	OpenedBy   Party
	OpenedByID string
	OpenedAt   time.Time
}

type ResolutionRecord struct {
	Choice  Resolution
	AdminID string
	Notes   string
	At      time.Time
}

// Settlement is the ledger entry of one escrowed sale.
type Settlement struct {
	ID                ID
	ListingID         string
	OfferID           string
	BuyerID           string
	SellerID          string
	CheckoutSessionID string
	PaymentIntentID   string
	Gross             money.Money
	PlatformFee       money.Money
	SellerPayout      money.Money
	FreightCost       money.Money
	FreightSellerPaid bool
	Fulfillment       Fulfillment
	Buyer             Contact
	Status            Status
	Dispute           *Dispute
	Resolution        *ResolutionRecord
	Pending           Resolution
	TransferID        string
	RefundID          string
	PaidOutAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Settlement, error)
	BySessionID(ctx context.Context, sessionID string) (*Settlement, error)
	// Insert fails with ErrDuplicateSession when the checkout session is
	// already recorded; uniqueness is enforced by the store.
	Insert(ctx context.Context, s *Settlement) error
	// Save performs a compare-and-swap on Version.
	Save(ctx context.Context, s *Settlement) error
}

type RecordParams struct {
	ID                ID
	ListingID         string
	OfferID           string
	BuyerID           string
	SellerID          string
	CheckoutSessionID string
	PaymentIntentID   string
	Gross             money.Money
	PlatformFee       money.Money
	SellerPayout      money.Money
	FreightCost       money.Money
	FreightSellerPaid bool
	Fulfillment       Fulfillment
	Buyer             Contact
	Now               time.Time
}

// Record creates a settlement in paid status from a confirmed payment.
func Record(p RecordParams) (*Settlement, error) {
	if strings.TrimSpace(p.CheckoutSessionID) == "" {
		return nil, errors.New("settlement: checkout session id required")
	}
	if p.BuyerID == "" || p.SellerID == "" {
		return nil, ErrNotParticipant
	}
	now := p.Now.UTC()
	s := &Settlement{
		ID:                p.ID,
		ListingID:         p.ListingID,
		OfferID:           p.OfferID,
		BuyerID:           p.BuyerID,
		SellerID:          p.SellerID,
		CheckoutSessionID: p.CheckoutSessionID,
		PaymentIntentID:   p.PaymentIntentID,
		Gross:             p.Gross,
		PlatformFee:       p.PlatformFee,
		SellerPayout:      p.SellerPayout,
		FreightCost:       p.FreightCost,
		FreightSellerPaid: p.FreightSellerPaid,
		Fulfillment:       p.Fulfillment,
		Buyer:             p.Buyer,
		Status:            StatusPaid,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.Record(SettlementRecorded{SettlementID: s.ID, ListingID: s.ListingID, BuyerID: s.BuyerID, SellerID: s.SellerID, Gross: s.Gross, At: now})
	return s, nil
}

// PartyOf maps a user to their side of the sale.
func (s *Settlement) PartyOf(userID string) (Party, error) {
	switch {
	case userID == "":
		return "", ErrNotParticipant
	case userID == s.BuyerID:
		return PartyBuyer, nil
	case userID == s.SellerID:
		return PartySeller, nil
	}
	return "", ErrNotParticipant
}

// OpenDispute lets either party freeze a paid settlement.
func (s *Settlement) OpenDispute(userID, reason string, now time.Time) error {
	party, err := s.PartyOf(userID)
	if err != nil {
		return err
	}
	if s.Status != StatusPaid {
		return ErrNotPaid
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	s.Status = StatusDisputed
	s.Dispute = &Dispute{Reason: reason, OpenedBy: party, OpenedByID: userID, OpenedAt: now.UTC()}
	s.UpdatedAt = now.UTC()
	s.Record(DisputeOpened{SettlementID: s.ID, By: party, Reason: reason, At: s.UpdatedAt})
	return nil
}

// BeginResolution claims a disputed settlement for one admin resolution.
// The claim must be persisted before money moves; a settlement already
// resolving with the same choice is resumed so a crashed attempt can finish
// under the same idempotency key.
func (s *Settlement) BeginResolution(choice Resolution, now time.Time) error {
	switch {
	case s.Status == StatusResolving && s.Pending == choice:
	case s.Status == StatusResolving:
		return ErrResolutionPending
	case s.Status != StatusDisputed:
		return ErrNotDisputed
	}
	if strings.TrimSpace(s.PaymentIntentID) == "" {
		return ErrNoPaymentIntent
	}
	s.Status = StatusResolving
	s.Pending = choice
	s.UpdatedAt = now.UTC()
	return nil
}

// AbandonResolution returns a claimed settlement to disputed when the
// processor refused the money movement.
func (s *Settlement) AbandonResolution(now time.Time) {
	if s.Status != StatusResolving {
		return
	}
	s.Status = StatusDisputed
	s.Pending = ""
	s.UpdatedAt = now.UTC()
}

// ResolveRefunded closes a dispute after the buyer has been refunded.
func (s *Settlement) ResolveRefunded(refundID, adminID, notes string, now time.Time) error {
	if s.Status != StatusResolving || s.Pending != ResolutionRefundBuyer {
		return ErrNotDisputed
	}
	s.Status = StatusRefunded
	s.RefundID = refundID
	s.resolve(ResolutionRefundBuyer, adminID, notes, now)
	return nil
}

// ResolveReleased closes a dispute after the seller has been paid out.
func (s *Settlement) ResolveReleased(transferID, adminID, notes string, now time.Time) error {
	if s.Status != StatusResolving || s.Pending != ResolutionReleaseToSeller {
		return ErrNotDisputed
	}
	s.markPaidOut(transferID, now)
	s.resolve(ResolutionReleaseToSeller, adminID, notes, now)
	return nil
}

// BeginRelease claims a paid settlement for a buyer-confirmed release. Once
// persisted, a dispute can no longer be opened against it.
func (s *Settlement) BeginRelease(userID string, now time.Time) error {
	party, err := s.PartyOf(userID)
	if err != nil {
		return err
	}
	if party != PartyBuyer {
		return ErrOnlyBuyerConfirms
	}
	if s.Status != StatusPaid && s.Status != StatusReleasing {
		return ErrNotPaid
	}
	s.Status = StatusReleasing
	s.UpdatedAt = now.UTC()
	return nil
}

// AbandonRelease returns a claimed settlement to paid.
func (s *Settlement) AbandonRelease(now time.Time) {
	if s.Status != StatusReleasing {
		return
	}
	s.Status = StatusPaid
	s.UpdatedAt = now.UTC()
}

// ConfirmReceipt completes a claimed release once the transfer went out.
func (s *Settlement) ConfirmReceipt(userID, transferID string, now time.Time) error {
	if userID != s.BuyerID || userID == "" {
		return ErrOnlyBuyerConfirms
	}
	if s.Status != StatusReleasing {
		return ErrNotPaid
	}
	s.markPaidOut(transferID, now)
	s.Record(SettlementReleased{SettlementID: s.ID, TransferID: transferID, Amount: s.SellerPayout, At: s.UpdatedAt})
	return nil
}

func (s *Settlement) markPaidOut(transferID string, now time.Time) {
	at := now.UTC()
	s.Status = StatusCompleted
	s.TransferID = transferID
	s.PaidOutAt = &at
	s.UpdatedAt = at
}

func (s *Settlement) resolve(choice Resolution, adminID, notes string, now time.Time) {
	s.Pending = ""
	s.Resolution = &ResolutionRecord{Choice: choice, AdminID: adminID, Notes: strings.TrimSpace(notes), At: now.UTC()}
	s.UpdatedAt = now.UTC()
	s.Record(DisputeResolved{SettlementID: s.ID, Resolution: choice, AdminID: adminID, At: s.UpdatedAt})
}

// ResolutionKey is the processor idempotency key for a resolution attempt.
func ResolutionKey(id ID, choice Resolution) string {
	return "settlement:" + string(id) + ":" + string(choice)
}

// ReleaseKey is the processor idempotency key for a buyer-confirmed release.
func ReleaseKey(id ID) string {
	return "settlement:" + string(id) + ":release"
}

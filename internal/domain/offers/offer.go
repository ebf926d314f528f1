package offers

import (
	"context"
	"errors"
	"time"

	"rigshare/internal/domain/shared/events"
	"rigshare/internal/domain/shared/money"
)

var (
	ErrNotFound         = errors.New("offers: not found")
	ErrConcurrentUpdate = errors.New("offers: concurrent update detected")
	ErrInvalidAmount    = errors.New("offers: amount must be positive")
	ErrSelfOffer        = errors.New("offers: cannot make an offer on own listing")
	ErrNotOpen          = errors.New("offers: offer is no longer open")
	ErrNotAccepted      = errors.New("offers: offer has not been accepted")
	ErrWrongParty       = errors.New("offers: caller cannot act on this offer now")
)

type ID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusCountered Status = "countered"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusPurchased Status = "purchased"
)

func (s Status) Open() bool {
	return s == StatusPending || s == StatusCountered
}

// Offer is a price negotiation between a buyer and the seller of a listing.
// The party who did not make the latest amount is the one who may respond.
type Offer struct {
	ID        ID
	ListingID string
	BuyerID   string
	SellerID  string
	Amount    money.Money
	Message   string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Offer, error)
	// AcceptedFor returns the accepted offer a buyer holds on a listing.
	AcceptedFor(ctx context.Context, listingID, buyerID string) (*Offer, error)
	// ListByParty returns offers where the user is buyer or seller.
	ListByParty(ctx context.Context, userID string) ([]*Offer, error)
	Save(ctx context.Context, offer *Offer) error
}

type CreateParams struct {
	ID        ID
	ListingID string
	BuyerID   string
	SellerID  string
	Amount    money.Money
	Message   string
	Now       time.Time
}

func NewOffer(p CreateParams) (*Offer, error) {
	if p.BuyerID == p.SellerID {
		return nil, ErrSelfOffer
	}
	if p.Amount.IsZero() || p.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	now := p.Now.UTC()
	o := &Offer{
		ID:        p.ID,
		ListingID: p.ListingID,
		BuyerID:   p.BuyerID,
		SellerID:  p.SellerID,
		Amount:    p.Amount,
		Message:   p.Message,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Record(OfferChanged{OfferID: o.ID, ListingID: o.ListingID, Status: o.Status, Amount: o.Amount, At: now})
	return o, nil
}

// awaiting reports whose move it is.
func (o *Offer) awaiting() string {
	if o.Status == StatusCountered {
		return o.BuyerID
	}
	return o.SellerID
}

// Counter lets the seller propose a different amount.
func (o *Offer) Counter(userID string, amount money.Money, now time.Time) error {
	if !o.Status.Open() {
		return ErrNotOpen
	}
	if userID != o.SellerID || o.awaiting() != userID {
		return ErrWrongParty
	}
	if amount.IsZero() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	o.Amount = amount
	return o.transition(StatusCountered, now)
}

func (o *Offer) Accept(userID string, now time.Time) error {
	if !o.Status.Open() {
		return ErrNotOpen
	}
	if o.awaiting() != userID {
		return ErrWrongParty
	}
	return o.transition(StatusAccepted, now)
}

func (o *Offer) Decline(userID string, now time.Time) error {
	if !o.Status.Open() {
		return ErrNotOpen
	}
	if o.awaiting() != userID {
		return ErrWrongParty
	}
	return o.transition(StatusDeclined, now)
}

// Cancel withdraws the offer; only the buyer may do so.
func (o *Offer) Cancel(userID string, now time.Time) error {
	if !o.Status.Open() && o.Status != StatusAccepted {
		return ErrNotOpen
	}
	if userID != o.BuyerID {
		return ErrWrongParty
	}
	return o.transition(StatusCancelled, now)
}

// MarkPurchased closes an accepted offer once its sale is paid.
func (o *Offer) MarkPurchased(now time.Time) error {
	if o.Status == StatusPurchased {
		return nil
	}
	if o.Status != StatusAccepted {
		return ErrNotAccepted
	}
	return o.transition(StatusPurchased, now)
}

func (o *Offer) transition(status Status, now time.Time) error {
	o.Status = status
	o.UpdatedAt = now.UTC()
	o.Record(OfferChanged{OfferID: o.ID, ListingID: o.ListingID, Status: status, Amount: o.Amount, At: o.UpdatedAt})
	return nil
}

type OfferChanged struct {
	OfferID   ID
	ListingID string
	Status    Status
	Amount    money.Money
	At        time.Time
}

func (e OfferChanged) EventName() string     { return "offer." + string(e.Status) }
func (e OfferChanged) AggregateID() string   { return string(e.OfferID) }
func (e OfferChanged) OccurredAt() time.Time { return e.At }

package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"rigshare/internal/domain/availability"
	"rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
	"rigshare/internal/domain/shared/events"
	"rigshare/internal/domain/shared/money"
)

var (
	ErrBookingNotFound       = errors.New("booking: not found")
	ErrInvalidState          = errors.New("booking: invalid state transition")
	ErrAlreadyCancelled      = errors.New("booking: already cancelled")
	ErrCannotCancelCompleted = errors.New("booking: cannot cancel a completed booking")
	ErrBuyerCannotCancel     = errors.New("booking: buyer may only cancel a pending booking")
	ErrNotParticipant        = errors.New("booking: caller is not a party to this booking")
	ErrConcurrentUpdate      = errors.New("booking: concurrent update detected")
	ErrBuyerRequired         = errors.New("booking: buyer id required")
	ErrSelfBooking           = errors.New("booking: hosts cannot book their own listing")
)

type BookingID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Actor is the role a caller plays relative to a booking.
type Actor string

const (
	ActorBuyer Actor = "buyer"
	ActorHost  Actor = "host"
	ActorAdmin Actor = "admin"
)

type RefundState string

const (
	RefundNone      RefundState = ""
	RefundSucceeded RefundState = "succeeded"
	RefundFailed    RefundState = "failed"
)

// Refund tracks the compensating payment of a cancelled booking. A failed
// refund stays queued for reconciliation.
type Refund struct {
	State         RefundState
	RefundID      string
	Amount        money.Money
	Error         string
	Attempts      int
	LastAttemptAt time.Time
}

type Booking struct {
	ID                 BookingID
	ListingID          listings.ListingID
	BuyerID            string
	HostID             string
	Dates              daterange.Range
	IsHourly           bool
	StartTime          daterange.TimeOfDay
	EndTime            daterange.TimeOfDay
	Total              money.Money
	DeliveryFee        money.Money
	Status             Status
	PaymentStatus      PaymentStatus
	PaymentIntentID    string
	CheckoutSessionID  string
	CancellationReason string
	CancelledBy        Actor
	Refund             Refund
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	// Save performs a compare-and-swap on Version and returns
	// ErrConcurrentUpdate when another writer got there first.
	Save(ctx context.Context, booking *Booking) error
	ListByListing(ctx context.Context, id listings.ListingID, r daterange.Range) ([]*Booking, error)
	ListByHost(ctx context.Context, hostID string) ([]*Booking, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Booking, error)
	// PendingRefunds returns paid bookings whose refund attempt failed.
	PendingRefunds(ctx context.Context, limit int) ([]*Booking, error)
}

type CreateParams struct {
	ID          BookingID
	ListingID   listings.ListingID
	BuyerID     string
	HostID      string
	Request     availability.Request
	Total       money.Money
	DeliveryFee money.Money
	CreatedAt   time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	buyer := strings.TrimSpace(params.BuyerID)
	if buyer == "" {
		return nil, ErrBuyerRequired
	}
	if buyer == strings.TrimSpace(params.HostID) {
		return nil, ErrSelfBooking
	}
	if err := params.Request.Dates.Validate(); err != nil {
		return nil, err
	}
	if params.Total.IsNegative() {
		return nil, errors.New("booking: total must be non-negative")
	}
	now := params.CreatedAt.UTC()
	b := &Booking{
		ID:            params.ID,
		ListingID:     params.ListingID,
		BuyerID:       buyer,
		HostID:        params.HostID,
		Dates:         params.Request.Dates,
		IsHourly:      params.Request.IsHourly,
		Total:         params.Total,
		DeliveryFee:   params.DeliveryFee,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if b.IsHourly {
		b.StartTime, b.EndTime = params.Request.Start, params.Request.End
	}
	b.Record(BookingRequested{BookingID: b.ID, ListingID: b.ListingID, BuyerID: b.BuyerID, HostID: b.HostID, Total: b.Total, At: now})
	return b, nil
}

// OccupiesCalendar reports whether the booking blocks availability.
func (b *Booking) OccupiesCalendar() bool {
	switch b.Status {
	case StatusPending, StatusApproved, StatusCompleted:
	default:
		return false
	}
	return b.PaymentStatus == PaymentPaid || b.PaymentStatus == PaymentPending
}

// Occupancy is the calendar footprint of the booking.
func (b *Booking) Occupancy() availability.Occupancy {
	return availability.Request{
		Dates:    b.Dates,
		IsHourly: b.IsHourly,
		Start:    b.StartTime,
		End:      b.EndTime,
	}.Occupancy(string(b.ID))
}

// ActorFor resolves the caller's role. Admin wins over host, host over buyer.
func (b *Booking) ActorFor(userID string, isAdmin bool) (Actor, error) {
	switch {
	case isAdmin:
		return ActorAdmin, nil
	case userID != "" && userID == b.HostID:
		return ActorHost, nil
	case userID != "" && userID == b.BuyerID:
		return ActorBuyer, nil
	}
	return "", ErrNotParticipant
}

// Cancel moves the booking to cancelled. The refund is settled separately.
func (b *Booking) Cancel(actor Actor, reason string, now time.Time) error {
	switch b.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusCompleted:
		return ErrCannotCancelCompleted
	}
	if actor == ActorBuyer && b.Status != StatusPending {
		return ErrBuyerCannotCancel
	}
	b.Status = StatusCancelled
	b.CancellationReason = strings.TrimSpace(reason)
	b.CancelledBy = actor
	b.UpdatedAt = now.UTC()
	b.Record(BookingCancelled{BookingID: b.ID, By: actor, Reason: b.CancellationReason, At: b.UpdatedAt})
	return nil
}

// RefundDue reports whether money must be returned to the buyer.
func (b *Booking) RefundDue() bool {
	return b.PaymentStatus == PaymentPaid && b.Refund.State != RefundSucceeded
}

func (b *Booking) RecordRefundSucceeded(refundID string, amount money.Money, now time.Time) {
	b.PaymentStatus = PaymentRefunded
	b.Refund.State = RefundSucceeded
	b.Refund.RefundID = refundID
	b.Refund.Amount = amount
	b.Refund.Error = ""
	b.Refund.Attempts++
	b.Refund.LastAttemptAt = now.UTC()
	b.UpdatedAt = now.UTC()
	b.Record(BookingRefunded{BookingID: b.ID, RefundID: refundID, Amount: amount, At: b.UpdatedAt})
}

func (b *Booking) RecordRefundFailed(reason string, now time.Time) {
	b.Refund.State = RefundFailed
	b.Refund.Error = reason
	b.Refund.Attempts++
	b.Refund.LastAttemptAt = now.UTC()
	b.UpdatedAt = now.UTC()
}

func (b *Booking) Approve(now time.Time) error {
	if b.Status != StatusPending {
		return ErrInvalidState
	}
	b.Status = StatusApproved
	b.UpdatedAt = now.UTC()
	b.Record(BookingApproved{BookingID: b.ID, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Complete(now time.Time) error {
	if b.Status != StatusApproved {
		return ErrInvalidState
	}
	b.Status = StatusCompleted
	b.UpdatedAt = now.UTC()
	b.Record(BookingCompleted{BookingID: b.ID, At: b.UpdatedAt})
	return nil
}

// AttachCheckout remembers the processor session created for this booking.
func (b *Booking) AttachCheckout(sessionID string, now time.Time) error {
	if b.Status == StatusCancelled || b.Status == StatusCompleted {
		return ErrInvalidState
	}
	if b.PaymentStatus != PaymentPending {
		return ErrInvalidState
	}
	b.CheckoutSessionID = sessionID
	b.UpdatedAt = now.UTC()
	return nil
}

// MarkPaid records a confirmed rental payment. It reports false when the
// payment was already recorded. Money arriving for a cancelled booking is
// queued for refund.
func (b *Booking) MarkPaid(paymentIntentID string, now time.Time) bool {
	if b.PaymentStatus != PaymentPending {
		return false
	}
	b.PaymentStatus = PaymentPaid
	b.PaymentIntentID = paymentIntentID
	b.UpdatedAt = now.UTC()
	if b.Status == StatusCancelled {
		b.Refund.State = RefundFailed
		b.Refund.Error = "payment received after cancellation"
	}
	b.Record(BookingPaid{BookingID: b.ID, PaymentIntentID: paymentIntentID, Amount: b.Total, At: b.UpdatedAt})
	return true
}

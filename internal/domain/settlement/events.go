package settlement

import (
	"time"

	"rigshare/internal/domain/shared/money"
)

type SettlementRecorded struct {
	SettlementID ID
	ListingID    string
	BuyerID      string
	SellerID     string
	Gross        money.Money
	At           time.Time
}

func (e SettlementRecorded) EventName() string     { return "settlement.recorded" }
func (e SettlementRecorded) AggregateID() string   { return string(e.SettlementID) }
func (e SettlementRecorded) OccurredAt() time.Time { return e.At }

type DisputeOpened struct {
	SettlementID ID
	By           Party
	Reason       string
	At           time.Time
}

func (e DisputeOpened) EventName() string     { return "settlement.dispute_opened" }
func (e DisputeOpened) AggregateID() string   { return string(e.SettlementID) }
func (e DisputeOpened) OccurredAt() time.Time { return e.At }

type DisputeResolved struct {
	SettlementID ID
	Resolution   Resolution
	AdminID      string
	At           time.Time
}

func (e DisputeResolved) EventName() string     { return "settlement.dispute_resolved" }
func (e DisputeResolved) AggregateID() string   { return string(e.SettlementID) }
func (e DisputeResolved) OccurredAt() time.Time { return e.At }

type SettlementReleased struct {
	SettlementID ID
	TransferID   string
	Amount       money.Money
	At           time.Time
}

func (e SettlementReleased) EventName() string     { return "settlement.released" }
func (e SettlementReleased) AggregateID() string   { return string(e.SettlementID) }
func (e SettlementReleased) OccurredAt() time.Time { return e.At }

package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainsettlement "rigshare/internal/domain/settlement"
	domainuser "rigshare/internal/domain/user"
)

const (
	openDisputeKey    = "settlement.open_dispute"
	confirmReceiptKey = "settlement.confirm_receipt"
	resolveDisputeKey = "settlement.resolve_dispute"
)

type OpenDisputeCommand struct {
	Actor        policies.Actor
	SettlementID string `validate:"required"`
	Reason       string `validate:"required,max=2000"`
}

func (c OpenDisputeCommand) Key() string                   { return openDisputeKey }
func (c OpenDisputeCommand) Caller() policies.Actor        { return c.Actor }
func (c OpenDisputeCommand) RequiredRole() domainuser.Role { return "" }

type ConfirmReceiptCommand struct {
	Actor        policies.Actor
	SettlementID string `validate:"required"`
}

func (c ConfirmReceiptCommand) Key() string                   { return confirmReceiptKey }
func (c ConfirmReceiptCommand) Caller() policies.Actor        { return c.Actor }
func (c ConfirmReceiptCommand) RequiredRole() domainuser.Role { return "" }
func (c ConfirmReceiptCommand) Autocommit() bool              { return true }

type ResolveDisputeCommand struct {
	Actor        policies.Actor
	SettlementID string `validate:"required"`
	Resolution   string `validate:"required,oneof=refund_buyer release_to_seller"`
	AdminNotes   string `validate:"max=2000"`
}

func (c ResolveDisputeCommand) Key() string                   { return resolveDisputeKey }
func (c ResolveDisputeCommand) Caller() policies.Actor        { return c.Actor }
func (c ResolveDisputeCommand) RequiredRole() domainuser.Role { return domainuser.RoleAdmin }
func (c ResolveDisputeCommand) Autocommit() bool              { return true }

// ActionHandler runs the post-payment transitions of a settlement. Each
// money movement is preceded by a version-checked claim (resolving or
// releasing) so only one caller can reach the processor. A processor failure
// rolls the claim back and the same idempotency key is reused on retry.
type ActionHandler struct {
	Processor policies.PaymentProcessor
	Archive   policies.AuditArchive
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Notify    *notify.BestEffort
	Logger    *slog.Logger
	Clock     func() time.Time
}

func (h *ActionHandler) OpenDispute(ctx context.Context, cmd OpenDisputeCommand) (*dto.SettlementActionResult, error) {
	const op = "settlement.open_dispute"
	unit, s, err := h.load(ctx, op, cmd.SettlementID)
	if err != nil {
		return nil, err
	}
	if err := s.OpenDispute(cmd.Actor.ID, cmd.Reason, h.now()); err != nil {
		return nil, classify(op, err)
	}
	if err := h.save(ctx, op, unit, s); err != nil {
		return nil, err
	}
	h.Notify.Send(ctx, notify.Pair(
		policies.TemplateDisputeOpened,
		"A dispute was opened on your purchase",
		string(s.ID)+":disputed",
		map[string]string{"settlement_id": string(s.ID), "reason": s.Dispute.Reason, "opened_by": string(s.Dispute.OpenedBy)},
		s.BuyerID, s.SellerID,
	)...)
	handlersupport.Logger(h.Logger).Info("dispute opened", "settlement_id", s.ID, "actor_id", cmd.Actor.ID)
	return &dto.SettlementActionResult{Success: true, Message: "dispute opened; funds stay in escrow", Status: string(s.Status)}, nil
}

func (h *ActionHandler) ConfirmReceipt(ctx context.Context, cmd ConfirmReceiptCommand) (*dto.SettlementActionResult, error) {
	const op = "settlement.confirm_receipt"
	unit, s, err := h.load(ctx, op, cmd.SettlementID)
	if err != nil {
		return nil, err
	}
	if err := s.BeginRelease(cmd.Actor.ID, h.now()); err != nil {
		return nil, classify(op, err)
	}
	destination, err := h.payoutDestination(ctx, op, unit, s)
	if err != nil {
		return nil, err
	}
	if err := h.save(ctx, op, unit, s); err != nil {
		return nil, err
	}
	transferID, err := h.transfer(ctx, op, s, destination, domainsettlement.ReleaseKey(s.ID))
	if err != nil {
		h.rollback(ctx, unit, s, s.AbandonRelease)
		return nil, err
	}
	if err := s.ConfirmReceipt(cmd.Actor.ID, transferID, h.now()); err != nil {
		return nil, classify(op, err)
	}
	if err := h.finalize(ctx, op, unit, s); err != nil {
		return nil, err
	}
	h.Notify.Send(ctx, policies.Notification{
		Template:    policies.TemplateFundsReleased,
		RecipientID: s.SellerID,
		Subject:     "Your sale proceeds are on the way",
		Data:        map[string]string{"settlement_id": string(s.ID), "amount": s.SellerPayout.String()},
		DedupeKey:   string(s.ID) + ":released",
	})
	handlersupport.Logger(h.Logger).Info("escrow released", "settlement_id", s.ID, "transfer_id", transferID)
	return &dto.SettlementActionResult{Success: true, Message: "funds released to the seller", Status: string(s.Status)}, nil
}

func (h *ActionHandler) ResolveDispute(ctx context.Context, cmd ResolveDisputeCommand) (*dto.SettlementActionResult, error) {
	const op = "settlement.resolve_dispute"
	if !cmd.Actor.IsAdmin() {
		return nil, apperr.Forbidden(op, "admin role required")
	}
	choice, err := domainsettlement.ParseResolution(cmd.Resolution)
	if err != nil {
		return nil, classify(op, err)
	}
	unit, s, err := h.load(ctx, op, cmd.SettlementID)
	if err != nil {
		return nil, err
	}
	if err := s.BeginResolution(choice, h.now()); err != nil {
		return nil, classify(op, err)
	}
	var destination string
	if choice == domainsettlement.ResolutionReleaseToSeller {
		if destination, err = h.payoutDestination(ctx, op, unit, s); err != nil {
			return nil, err
		}
	} else if h.Processor == nil {
		return nil, apperr.External(op, errors.New("payment processor not configured"), false)
	}
	if err := h.save(ctx, op, unit, s); err != nil {
		return nil, err
	}

	key := domainsettlement.ResolutionKey(s.ID, choice)
	now := h.now()
	var message string
	switch choice {
	case domainsettlement.ResolutionRefundBuyer:
		receipt, err := h.Processor.Refund(ctx, s.PaymentIntentID, key)
		if err != nil {
			h.rollback(ctx, unit, s, s.AbandonResolution)
			return nil, handlersupport.ExternalError(op, err)
		}
		if err := s.ResolveRefunded(receipt.ID, cmd.Actor.ID, cmd.AdminNotes, now); err != nil {
			return nil, classify(op, err)
		}
		message = "buyer refunded"
	default:
		transferID, err := h.transfer(ctx, op, s, destination, key)
		if err != nil {
			h.rollback(ctx, unit, s, s.AbandonResolution)
			return nil, err
		}
		if err := s.ResolveReleased(transferID, cmd.Actor.ID, cmd.AdminNotes, now); err != nil {
			return nil, classify(op, err)
		}
		message = "funds released to the seller"
	}
	if err := h.finalize(ctx, op, unit, s); err != nil {
		return nil, err
	}
	h.archive(ctx, s)
	h.Notify.Send(ctx, notify.Pair(
		policies.TemplateDisputeResolved,
		"Your dispute has been resolved",
		string(s.ID)+":resolved",
		map[string]string{"settlement_id": string(s.ID), "resolution": string(choice)},
		s.BuyerID, s.SellerID,
	)...)
	handlersupport.Logger(h.Logger).Info("dispute resolved",
		"settlement_id", s.ID, "resolution", choice, "actor_id", cmd.Actor.ID)
	return &dto.SettlementActionResult{Success: true, Message: message, Status: string(s.Status)}, nil
}

func (h *ActionHandler) load(ctx context.Context, op, id string) (uow.UnitOfWork, *domainsettlement.Settlement, error) {
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, err := unit.Settlements().ByID(ctx, domainsettlement.ID(strings.TrimSpace(id)))
	if err != nil {
		return nil, nil, classify(op, err)
	}
	return unit, s, nil
}

func (h *ActionHandler) save(ctx context.Context, op string, unit uow.UnitOfWork, s *domainsettlement.Settlement) error {
	if err := unit.Settlements().Save(ctx, s); err != nil {
		return classify(op, err)
	}
	if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, s); err != nil {
		handlersupport.Logger(h.Logger).Error("flush settlement events", "settlement_id", s.ID, "error", err)
	}
	return nil
}

// finalize writes the outcome of a claim whose money already moved. A failure
// leaves the claim in place; repeating the same action resumes it with the
// same idempotency key.
func (h *ActionHandler) finalize(ctx context.Context, op string, unit uow.UnitOfWork, s *domainsettlement.Settlement) error {
	if err := h.save(ctx, op, unit, s); err != nil {
		handlersupport.Logger(h.Logger).Error("settlement outcome not recorded after money moved",
			"settlement_id", s.ID, "status", s.Status, "transfer_id", s.TransferID, "refund_id", s.RefundID, "error", err)
		return err
	}
	return nil
}

func (h *ActionHandler) rollback(ctx context.Context, unit uow.UnitOfWork, s *domainsettlement.Settlement, abandon func(time.Time)) {
	abandon(h.now())
	if err := unit.Settlements().Save(ctx, s); err != nil {
		handlersupport.Logger(h.Logger).Warn("settlement claim not released", "settlement_id", s.ID, "error", err)
	}
}

// payoutDestination resolves the seller's connected account before a claim
// is taken, so a seller without payouts never blocks the settlement.
func (h *ActionHandler) payoutDestination(ctx context.Context, op string, unit uow.UnitOfWork, s *domainsettlement.Settlement) (string, error) {
	seller, err := unit.Users().ByID(ctx, domainuser.ID(s.SellerID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return "", apperr.NotOnboarded(op, domainuser.ErrPayoutsNotReady)
		}
		return "", err
	}
	destination, err := seller.PayoutDestination()
	if err != nil {
		return "", classify(op, err)
	}
	if h.Processor == nil {
		return "", apperr.External(op, errors.New("payment processor not configured"), false)
	}
	return destination, nil
}

func (h *ActionHandler) transfer(ctx context.Context, op string, s *domainsettlement.Settlement, destination, key string) (string, error) {
	receipt, err := h.Processor.Transfer(ctx, s.SellerPayout, destination, key)
	if err != nil {
		return "", handlersupport.ExternalError(op, err)
	}
	return receipt.ID, nil
}

type auditRecord struct {
	SettlementID string    `json:"settlement_id"`
	Resolution   string    `json:"resolution"`
	AdminID      string    `json:"admin_id"`
	Notes        string    `json:"notes,omitempty"`
	Status       string    `json:"status"`
	RefundID     string    `json:"refund_id,omitempty"`
	TransferID   string    `json:"transfer_id,omitempty"`
	Gross        string    `json:"gross_amount"`
	DisputedBy   string    `json:"disputed_by,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

func (h *ActionHandler) archive(ctx context.Context, s *domainsettlement.Settlement) {
	if h.Archive == nil || s.Resolution == nil {
		return
	}
	rec := auditRecord{
		SettlementID: string(s.ID),
		Resolution:   string(s.Resolution.Choice),
		AdminID:      s.Resolution.AdminID,
		Notes:        s.Resolution.Notes,
		Status:       string(s.Status),
		RefundID:     s.RefundID,
		TransferID:   s.TransferID,
		Gross:        s.Gross.String(),
		ResolvedAt:   s.Resolution.At,
	}
	if s.Dispute != nil {
		rec.DisputedBy = string(s.Dispute.OpenedBy)
		rec.Reason = s.Dispute.Reason
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}
	key := "disputes/" + string(s.ID) + "/" + s.Resolution.At.Format("20060102T150405Z") + ".json"
	if err := h.Archive.Archive(ctx, key, body); err != nil {
		handlersupport.Logger(h.Logger).Warn("dispute audit not archived", "settlement_id", s.ID, "error", err)
	}
}

func (h *ActionHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

var (
	_ commands.Command = OpenDisputeCommand{}
	_ commands.Command = ConfirmReceiptCommand{}
	_ commands.Command = ResolveDisputeCommand{}
)

package booking

import (
	"context"
	"log/slog"
	"time"

	"rigshare/internal/app/commands"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
)

const (
	reconcileRefundsKey   = "booking.reconcile_refunds"
	defaultReconcileBatch = 50
)

// ReconcileRefundsCommand retries refunds that failed during cancellation.
type ReconcileRefundsCommand struct {
	Limit int
}

func (c ReconcileRefundsCommand) Key() string      { return reconcileRefundsKey }
func (c ReconcileRefundsCommand) Autocommit() bool { return true }

type ReconcileResult struct {
	Attempted int
	Succeeded int
}

type ReconcileRefundsHandler struct {
	Processor policies.PaymentProcessor
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Metrics   policies.Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
}

func (h *ReconcileRefundsHandler) Handle(ctx context.Context, cmd ReconcileRefundsCommand) (ReconcileResult, error) {
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultReconcileBatch
	}
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}
	pending, err := unit.Bookings().PendingRefunds(ctx, limit)
	if err != nil {
		return ReconcileResult{}, err
	}

	logger := handlersupport.Logger(h.Logger)
	metrics := h.Metrics
	if metrics == nil {
		metrics = policies.NopMetrics{}
	}
	var res ReconcileResult
	for _, booking := range pending {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++
		if err := refundBooking(ctx, h.Processor, booking, h.now()); err != nil {
			metrics.RefundAttempted(policies.RefundOutcomeFailed)
			logger.Warn("refund retry failed", "booking_id", booking.ID, "attempts", booking.Refund.Attempts, "error", err)
		} else {
			metrics.RefundAttempted(policies.RefundOutcomeSucceeded)
			res.Succeeded++
		}
		if err := saveRefundOutcome(ctx, unit.Bookings(), booking, h.now()); err != nil {
			logger.Error("persist refund retry", "booking_id", booking.ID, "error", err)
			continue
		}
		if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, booking); err != nil {
			logger.Error("flush refund events", "booking_id", booking.ID, "error", err)
		}
	}
	if res.Attempted > 0 {
		logger.Info("refund reconciliation finished", "attempted", res.Attempted, "succeeded", res.Succeeded)
	}
	return res, nil
}

func (h *ReconcileRefundsHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

var _ commands.Handler[ReconcileRefundsCommand, ReconcileResult] = (*ReconcileRefundsHandler)(nil)

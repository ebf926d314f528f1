package schedule

import (
	"context"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/handlers/booking"
)

// Job is a recurring background task. Spec uses cron syntax, including the
// "@every 15m" shorthand.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler interface {
	Register(job Job) error
}

// RefundReconciliation retries failed cancellation refunds through the
// command bus, so the job runs under the same middleware as API commands.
func RefundReconciliation(bus commands.Bus, spec string, batch int) Job {
	return Job{
		Name: "refund-reconciliation",
		Spec: spec,
		Run: func(ctx context.Context) error {
			_, err := commands.Dispatch[booking.ReconcileRefundsCommand, booking.ReconcileResult](ctx, bus, booking.ReconcileRefundsCommand{Limit: batch})
			return err
		},
	}
}

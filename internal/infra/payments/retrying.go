package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/policies"
	"rigshare/internal/domain/checkout"
	"rigshare/internal/domain/shared/money"
)

// CallMetrics counts processor calls by operation and outcome.
type CallMetrics interface {
	ProcessorCall(operation, outcome string)
}

const (
	OutcomeOK      = "ok"
	OutcomeRetried = "retried"
	OutcomeFailed  = "failed"
)

// Retrying bounds every processor call with Timeout and retries retryable
// failures once per Backoff entry. Callers supply idempotency keys, so a
// retried mutation is never applied twice by the provider.
type Retrying struct {
	Next    policies.PaymentProcessor
	Timeout time.Duration
	Backoff []time.Duration
	Metrics CallMetrics
	Logger  *slog.Logger
	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (r *Retrying) CreateSession(ctx context.Context, req checkout.SessionRequest) (checkout.Session, error) {
	return call(ctx, r, "create_session", func(ctx context.Context) (checkout.Session, error) {
		return r.Next.CreateSession(ctx, req)
	})
}

func (r *Retrying) RetrieveSession(ctx context.Context, sessionID string) (checkout.Confirmation, error) {
	return call(ctx, r, "retrieve_session", func(ctx context.Context) (checkout.Confirmation, error) {
		return r.Next.RetrieveSession(ctx, sessionID)
	})
}

func (r *Retrying) Refund(ctx context.Context, paymentIntentID, idempotencyKey string) (policies.RefundReceipt, error) {
	return call(ctx, r, "refund", func(ctx context.Context) (policies.RefundReceipt, error) {
		return r.Next.Refund(ctx, paymentIntentID, idempotencyKey)
	})
}

func (r *Retrying) Transfer(ctx context.Context, amount money.Money, destination, idempotencyKey string) (policies.TransferReceipt, error) {
	return call(ctx, r, "transfer", func(ctx context.Context) (policies.TransferReceipt, error) {
		return r.Next.Transfer(ctx, amount, destination, idempotencyKey)
	})
}

func (r *Retrying) CreatePayoutAccount(ctx context.Context, email string) (string, error) {
	return call(ctx, r, "create_account", func(ctx context.Context) (string, error) {
		return r.Next.CreatePayoutAccount(ctx, email)
	})
}

func (r *Retrying) OnboardingLink(ctx context.Context, accountID string) (string, error) {
	return call(ctx, r, "onboarding_link", func(ctx context.Context) (string, error) {
		return r.Next.OnboardingLink(ctx, accountID)
	})
}

func call[T any](ctx context.Context, r *Retrying, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		res, err := once(ctx, r, op, fn)
		if err == nil {
			r.count(op, OutcomeOK)
			return res, nil
		}
		if !apperr.IsRetryable(err) || attempt >= len(r.Backoff) || ctx.Err() != nil {
			r.count(op, OutcomeFailed)
			return zero, err
		}
		r.count(op, OutcomeRetried)
		r.logger().Warn("payment processor call failed, retrying",
			"operation", op, "attempt", attempt+1, "backoff", r.Backoff[attempt], "error", err)
		if err := r.sleep(ctx, r.Backoff[attempt]); err != nil {
			r.count(op, OutcomeFailed)
			return zero, apperr.External("payments."+op, err, true)
		}
	}
}

func once[T any](ctx context.Context, r *Retrying, op string, fn func(context.Context) (T, error)) (T, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	res, err := fn(ctx)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && apperr.KindOf(err) == apperr.KindUnknown {
		return res, apperr.External("payments."+op, err, true)
	}
	return res, err
}

func (r *Retrying) count(op, outcome string) {
	if r.Metrics != nil {
		r.Metrics.ProcessorCall(op, outcome)
	}
}

func (r *Retrying) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Retrying) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

var _ policies.PaymentProcessor = (*Retrying)(nil)

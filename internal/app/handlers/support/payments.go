package support

import (
	"context"
	"errors"
	"strings"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/policies"
	"rigshare/internal/domain/checkout"
)

var ErrPaymentIncomplete = errors.New("checkout: payment has not completed")

// RetrieveSession fetches the authoritative session state and maps
// processor failures onto the external error kind.
func RetrieveSession(ctx context.Context, processor policies.PaymentProcessor, op, sessionID string) (checkout.Confirmation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return checkout.Confirmation{}, apperr.Invalid(op, "session id is required")
	}
	if processor == nil {
		return checkout.Confirmation{}, apperr.External(op, errors.New("payment processor not configured"), false)
	}
	conf, err := processor.RetrieveSession(ctx, sessionID)
	if err != nil {
		return checkout.Confirmation{}, ExternalError(op, err)
	}
	if conf.SessionID == "" {
		conf.SessionID = sessionID
	}
	return conf, nil
}

// ExternalError keeps an already classified processor error and wraps
// anything else as a non-retryable external failure.
func ExternalError(op string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.External(op, err, false)
}

// Confirmation returns conf when set, otherwise it asks the processor.
func Confirmation(ctx context.Context, processor policies.PaymentProcessor, op, sessionID string, conf *checkout.Confirmation) (checkout.Confirmation, error) {
	if conf != nil {
		return *conf, nil
	}
	return RetrieveSession(ctx, processor, op, sessionID)
}

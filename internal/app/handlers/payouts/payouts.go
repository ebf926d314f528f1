package payouts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainuser "rigshare/internal/domain/user"
)

const (
	startOnboardingKey = "payouts.start_onboarding"
	syncAccountKey     = "payouts.sync_account"
)

// StartOnboardingCommand creates the caller's connected account on first
// use and returns a fresh onboarding link.
type StartOnboardingCommand struct {
	Actor policies.Actor
}

func (c StartOnboardingCommand) Key() string                   { return startOnboardingKey }
func (c StartOnboardingCommand) Caller() policies.Actor        { return c.Actor }
func (c StartOnboardingCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }
func (c StartOnboardingCommand) Autocommit() bool              { return true }

// SyncAccountCommand applies an account.updated callback from the processor.
type SyncAccountCommand struct {
	AccountID      string `validate:"required"`
	PayoutsEnabled bool
}

func (c SyncAccountCommand) Key() string { return syncAccountKey }

type Handler struct {
	Processor policies.PaymentProcessor
	Logger    *slog.Logger
	Clock     func() time.Time
}

func (h *Handler) StartOnboarding(ctx context.Context, cmd StartOnboardingCommand) (*dto.PayoutOnboarding, error) {
	const op = "payouts.start_onboarding"
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if h.Processor == nil {
		return nil, apperr.External(op, errors.New("payment processor not configured"), false)
	}
	user, err := unit.Users().ByID(ctx, domainuser.ID(cmd.Actor.ID))
	if err != nil {
		return nil, classify(op, err)
	}
	if user.Payout.AccountID == "" {
		accountID, err := h.Processor.CreatePayoutAccount(ctx, user.Email)
		if err != nil {
			return nil, handlersupport.ExternalError(op, err)
		}
		user.AttachPayoutAccount(accountID, h.now())
		if err := unit.Users().Save(ctx, user); err != nil {
			return nil, err
		}
		handlersupport.Logger(h.Logger).Info("payout account created", "actor_id", user.ID, "account_id", accountID)
	}
	link, err := h.Processor.OnboardingLink(ctx, user.Payout.AccountID)
	if err != nil {
		return nil, handlersupport.ExternalError(op, err)
	}
	return &dto.PayoutOnboarding{
		AccountID:      user.Payout.AccountID,
		OnboardingURL:  link,
		PayoutsEnabled: user.Payout.OnboardingComplete,
	}, nil
}

// Sync is idempotent; unknown accounts are ignored so the webhook is acked.
func (h *Handler) Sync(ctx context.Context, cmd SyncAccountCommand) (*dto.PayoutOnboarding, error) {
	const op = "payouts.sync_account"
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	accountID := strings.TrimSpace(cmd.AccountID)
	user, err := unit.Users().ByPayoutAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			handlersupport.Logger(h.Logger).Warn("payout account unknown", "account_id", accountID)
			return &dto.PayoutOnboarding{AccountID: accountID}, nil
		}
		return nil, classify(op, err)
	}
	if user.Payout.OnboardingComplete != cmd.PayoutsEnabled {
		user.SetPayoutOnboarded(cmd.PayoutsEnabled, h.now())
		if err := unit.Users().Save(ctx, user); err != nil {
			return nil, err
		}
		handlersupport.Logger(h.Logger).Info("payout account synced", "actor_id", user.ID, "account_id", accountID, "payouts_enabled", cmd.PayoutsEnabled)
	}
	return &dto.PayoutOnboarding{AccountID: accountID, PayoutsEnabled: user.Payout.OnboardingComplete}, nil
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

func classify(op string, err error) error {
	if errors.Is(err, domainuser.ErrNotFound) {
		return apperr.NotFound(op, err)
	}
	return err
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	bookingapp "rigshare/internal/app/handlers/booking"
	checkoutapp "rigshare/internal/app/handlers/checkout"
	listingapp "rigshare/internal/app/handlers/listings"
	offersapp "rigshare/internal/app/handlers/offers"
	payoutsapp "rigshare/internal/app/handlers/payouts"
	pricingapp "rigshare/internal/app/handlers/pricing"
	settlementapp "rigshare/internal/app/handlers/settlement"
	"rigshare/internal/app/middleware"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/queries"
	"rigshare/internal/app/schedule"
	authsvc "rigshare/internal/app/services/auth"
	domainavailability "rigshare/internal/domain/availability"
	"rigshare/internal/infra/config"
	ginserver "rigshare/internal/infra/http/gin"
	"rigshare/internal/infra/jobs"
	"rigshare/internal/infra/obs"
	"rigshare/internal/infra/security"
)

type application struct {
	handlers   ginserver.Handlers
	health     obs.HealthHandlers
	metrics    *obs.Metrics
	jobs       *jobs.Runner
	background map[string]func(ctx context.Context) error

	closeOnce sync.Once
	closers   []func(ctx context.Context) error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	metrics := obs.NewMetrics()
	infra, err := buildInfrastructure(ctx, cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	app := &application{
		metrics:    metrics,
		health:     obs.HealthHandlers{Checks: infra.checks},
		background: infra.background,
		closers:    infra.closers,
	}

	encoder := outbox.JSONEventEncoder{}
	best := &notify.BestEffort{
		Notifier: notify.OutboxNotifier{Outbox: infra.outbox},
		Logger:   logger,
		OnDrop:   metrics.NotificationDropped,
	}
	resolver := domainavailability.Resolver{}
	factory := infra.factory

	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()

	hostListings := &listingapp.HostListingHandler{Outbox: infra.outbox, Encoder: encoder, DefaultCurrency: cfg.PaymentCurrency, Logger: logger}
	commands.RegisterHandler(commandBus, listingapp.CreateListingCommand{}.Key(),
		commands.HandlerFunc[listingapp.CreateListingCommand, *dto.Listing](hostListings.Create))
	commands.RegisterHandler(commandBus, listingapp.UpdateScheduleCommand{}.Key(),
		commands.HandlerFunc[listingapp.UpdateScheduleCommand, *dto.Listing](hostListings.UpdateSchedule))
	commands.RegisterHandler(commandBus, listingapp.UpdateSaleTermsCommand{}.Key(),
		commands.HandlerFunc[listingapp.UpdateSaleTermsCommand, *dto.Listing](hostListings.UpdateSaleTerms))
	commands.RegisterHandler(commandBus, listingapp.ChangeListingStateCommand{}.Key(),
		commands.HandlerFunc[listingapp.ChangeListingStateCommand, *dto.Listing](hostListings.ChangeState))

	blackouts := &listingapp.BlackoutHandler{Outbox: infra.outbox, Encoder: encoder, Logger: logger}
	commands.RegisterHandler(commandBus, listingapp.BlockDateCommand{}.Key(),
		commands.HandlerFunc[listingapp.BlockDateCommand, *dto.BlackoutResult](blackouts.BlockDate))
	commands.RegisterHandler(commandBus, listingapp.BlockSlotCommand{}.Key(),
		commands.HandlerFunc[listingapp.BlockSlotCommand, *dto.BlackoutResult](blackouts.BlockSlot))

	commands.RegisterHandler(commandBus, bookingapp.RequestBookingCommand{}.Key(), &bookingapp.RequestBookingHandler{
		Resolver: resolver, Outbox: infra.outbox, Encoder: encoder, Notify: best, Logger: logger,
	})
	commands.RegisterHandler(commandBus, bookingapp.CancelBookingCommand{}.Key(), &bookingapp.CancelBookingHandler{
		Processor: infra.processor, Outbox: infra.outbox, Encoder: encoder, Notify: best, Metrics: metrics, Logger: logger,
	})
	hostTransitions := &bookingapp.HostTransitionHandler{Outbox: infra.outbox, Encoder: encoder, Notify: best, Logger: logger}
	commands.RegisterHandler(commandBus, bookingapp.ApproveBookingCommand{}.Key(),
		commands.HandlerFunc[bookingapp.ApproveBookingCommand, *dto.BookingActionResult](hostTransitions.Approve))
	commands.RegisterHandler(commandBus, bookingapp.CompleteBookingCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CompleteBookingCommand, *dto.BookingActionResult](hostTransitions.Complete))
	commands.RegisterHandler(commandBus, bookingapp.ConfirmRentalPaymentCommand{}.Key(), &bookingapp.ConfirmRentalPaymentHandler{
		Processor: infra.processor, Outbox: infra.outbox, Encoder: encoder, Notify: best, Logger: logger,
	})
	commands.RegisterHandler(commandBus, bookingapp.ReconcileRefundsCommand{}.Key(), &bookingapp.ReconcileRefundsHandler{
		Processor: infra.processor, Outbox: infra.outbox, Encoder: encoder, Metrics: metrics, Logger: logger,
	})

	commands.RegisterHandler(commandBus, checkoutapp.BuildCheckoutCommand{}.Key(), &checkoutapp.BuildCheckoutHandler{
		Processor: infra.processor, Logger: logger,
	})
	confirmPayment := &checkoutapp.ConfirmPaymentHandler{Processor: infra.processor}
	commands.RegisterHandler(commandBus, checkoutapp.ConfirmPaymentCommand{}.Key(), confirmPayment)

	commands.RegisterHandler(commandBus, settlementapp.RecordSettlementCommand{}.Key(), &settlementapp.RecordSettlementHandler{
		Processor: infra.processor, Outbox: infra.outbox, Encoder: encoder, Notify: best, Metrics: metrics, Logger: logger,
		Currency: cfg.PaymentCurrency,
	})
	settlementActions := &settlementapp.ActionHandler{
		Processor: infra.processor, Archive: infra.archive, Outbox: infra.outbox, Encoder: encoder, Notify: best, Logger: logger,
	}
	commands.RegisterHandler(commandBus, settlementapp.OpenDisputeCommand{}.Key(),
		commands.HandlerFunc[settlementapp.OpenDisputeCommand, *dto.SettlementActionResult](settlementActions.OpenDispute))
	commands.RegisterHandler(commandBus, settlementapp.ConfirmReceiptCommand{}.Key(),
		commands.HandlerFunc[settlementapp.ConfirmReceiptCommand, *dto.SettlementActionResult](settlementActions.ConfirmReceipt))
	commands.RegisterHandler(commandBus, settlementapp.ResolveDisputeCommand{}.Key(),
		commands.HandlerFunc[settlementapp.ResolveDisputeCommand, *dto.SettlementActionResult](settlementActions.ResolveDispute))

	offers := &offersapp.Handler{Outbox: infra.outbox, Encoder: encoder, Notify: best, Logger: logger}
	commands.RegisterHandler(commandBus, offersapp.MakeOfferCommand{}.Key(),
		commands.HandlerFunc[offersapp.MakeOfferCommand, *dto.Offer](offers.Make))
	commands.RegisterHandler(commandBus, offersapp.RespondOfferCommand{}.Key(),
		commands.HandlerFunc[offersapp.RespondOfferCommand, *dto.Offer](offers.Respond))

	payouts := &payoutsapp.Handler{Processor: infra.processor, Logger: logger}
	commands.RegisterHandler(commandBus, payoutsapp.StartOnboardingCommand{}.Key(),
		commands.HandlerFunc[payoutsapp.StartOnboardingCommand, *dto.PayoutOnboarding](payouts.StartOnboarding))
	commands.RegisterHandler(commandBus, payoutsapp.SyncAccountCommand{}.Key(),
		commands.HandlerFunc[payoutsapp.SyncAccountCommand, *dto.PayoutOnboarding](payouts.Sync))

	queries.RegisterHandler(queryBus, availabilityapp.GetDayQuery{}.Key(), &availabilityapp.GetDayHandler{UoWFactory: factory, Resolver: resolver})
	queries.RegisterHandler(queryBus, availabilityapp.GetCalendarQuery{}.Key(), &availabilityapp.GetCalendarHandler{UoWFactory: factory, Resolver: resolver})
	queries.RegisterHandler(queryBus, pricingapp.QuoteQuery{}.Key(), &pricingapp.QuoteHandler{UoWFactory: factory})
	queries.RegisterHandler(queryBus, listingapp.GetListingQuery{}.Key(), &listingapp.GetListingHandler{UoWFactory: factory})
	queries.RegisterHandler(queryBus, listingapp.ListHostListingsQuery{}.Key(), &listingapp.ListHostListingsHandler{UoWFactory: factory})
	queries.RegisterHandler(queryBus, bookingapp.ListBookingsQuery{}.Key(), &bookingapp.ListBookingsHandler{UoWFactory: factory, Logger: logger})
	queries.RegisterHandler(queryBus, settlementapp.GetSettlementQuery{}.Key(), &settlementapp.GetSettlementHandler{UoWFactory: factory})
	offerQueries := &offersapp.QueryHandler{UoWFactory: factory}
	queries.RegisterHandler(queryBus, offersapp.ListOffersQuery{}.Key(),
		queries.HandlerFunc[offersapp.ListOffersQuery, []dto.Offer](offerQueries.List))
	queries.RegisterHandler(queryBus, offersapp.GetOfferQuery{}.Key(),
		queries.HandlerFunc[offersapp.GetOfferQuery, dto.Offer](offerQueries.Get))

	validator := middleware.NewStructValidator()
	authorizer := policies.RoleAuthorizer{}
	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Validation(validator),
		middleware.Authorization(authorizer),
		middleware.Idempotency(infra.idempotency, nil),
		middleware.OutboxFlush(infra.outbox, logger),
		middleware.Transaction(factory, nil),
	)
	queryBusWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryValidation(validator),
		middleware.QueryAuthorization(authorizer),
	)
	confirmPayment.Bus = commandBusWithMiddleware

	app.jobs = jobs.NewRunner(logger, 5*time.Minute)
	if err := app.jobs.Register(schedule.RefundReconciliation(commandBusWithMiddleware, cfg.ReconcileSchedule, cfg.ReconcileBatch)); err != nil {
		app.close(logger)
		return nil, fmt.Errorf("schedule refund reconciliation: %w", err)
	}

	authService := &authsvc.Service{
		Users:      infra.users,
		Sessions:   infra.sessions,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.SessionTokens{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	app.handlers = ginserver.Handlers{
		Auth:         &ginserver.AuthHandler{Service: authService, Logger: logger},
		Listing:      &ginserver.ListingHandler{Commands: commandBusWithMiddleware, Queries: queryBusWithMiddleware, Logger: logger},
		Availability: &ginserver.AvailabilityHandler{Queries: queryBusWithMiddleware, Logger: logger},
		Booking:      &ginserver.BookingHandler{Commands: commandBusWithMiddleware, Queries: queryBusWithMiddleware, Logger: logger},
		Checkout:     &ginserver.CheckoutHandler{Commands: commandBusWithMiddleware, Logger: logger},
		Settlement:   &ginserver.SettlementHandler{Commands: commandBusWithMiddleware, Queries: queryBusWithMiddleware, Logger: logger},
		Offer:        &ginserver.OfferHandler{Commands: commandBusWithMiddleware, Queries: queryBusWithMiddleware, Logger: logger},
		Payout:       &ginserver.PayoutHandler{Commands: commandBusWithMiddleware, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{
			Service: authService,
			Logger:  logger,
		}.Handle,
	}
	if infra.verifier != nil {
		app.handlers.Webhook = &ginserver.WebhookHandler{Commands: commandBusWithMiddleware, Verifier: infra.verifier, Logger: logger}
	}
	return app, nil
}

// close releases infrastructure in reverse order of acquisition.
func (a *application) close(logger *slog.Logger) {
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				logger.Warn("shutdown step failed", "error", err)
			}
		}
	})
}

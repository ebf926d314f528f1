package stripepay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/policies"
	"rigshare/internal/domain/checkout"
	"rigshare/internal/domain/shared/money"
)

type Config struct {
	SecretKey            string
	WebhookSecret        string
	SuccessURL           string
	CancelURL            string
	OnboardingReturnURL  string
	OnboardingRefreshURL string
	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Processor talks to the hosted checkout provider. Network retries are
// disabled here; the payments.Retrying decorator owns retry policy.
type Processor struct {
	api    *client.API
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Processor, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripepay: secret key is required")
	}
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		HTTPClient:        cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{api: api, cfg: cfg, logger: logger}, nil
}

func (p *Processor) CreateSession(ctx context.Context, req checkout.SessionRequest) (checkout.Session, error) {
	const op = "stripe.create_session"
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.cfg.SuccessURL),
		CancelURL:  stripe.String(p.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Amount.Currency)),
				UnitAmount: stripe.Int64(req.Amount.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.ClientReference != "" {
		params.ClientReferenceID = stripe.String(req.ClientReference)
	}
	if req.SplitTransfer() {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(req.ApplicationFee.Amount),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(req.Destination),
			},
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	// Escrowed sales keep their metadata on the payment intent as well, so
	// it survives on the charge after the session expires.
	if req.Mode == checkout.ModeSale && len(req.Metadata) > 0 {
		if params.PaymentIntentData == nil {
			params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{}
		}
		params.PaymentIntentData.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.PaymentIntentData.Metadata[k] = v
		}
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return checkout.Session{}, classify(op, err)
	}
	p.logger.Info("checkout session created", "session_id", s.ID, "mode", req.Mode)
	return checkout.Session{ID: s.ID, URL: s.URL}, nil
}

func (p *Processor) RetrieveSession(ctx context.Context, sessionID string) (checkout.Confirmation, error) {
	const op = "stripe.retrieve_session"
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return checkout.Confirmation{}, classify(op, err)
	}
	conf := checkout.Confirmation{
		SessionID: s.ID,
		Paid:      s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:  s.Metadata,
	}
	if s.PaymentIntent != nil {
		conf.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Currency != "" {
		conf.AmountTotal = money.Money{Amount: s.AmountTotal, Currency: strings.ToUpper(string(s.Currency))}
	}
	return conf, nil
}

func (p *Processor) Refund(ctx context.Context, paymentIntentID, idempotencyKey string) (policies.RefundReceipt, error) {
	const op = "stripe.refund"
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	r, err := p.api.Refunds.New(params)
	if err != nil {
		return policies.RefundReceipt{}, classify(op, err)
	}
	p.logger.Info("refund issued", "refund_id", r.ID, "payment_intent_id", paymentIntentID)
	return policies.RefundReceipt{
		ID:     r.ID,
		Amount: money.Money{Amount: r.Amount, Currency: strings.ToUpper(string(r.Currency))},
	}, nil
}

func (p *Processor) Transfer(ctx context.Context, amount money.Money, destination, idempotencyKey string) (policies.TransferReceipt, error) {
	const op = "stripe.transfer"
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount.Amount),
		Currency:    stripe.String(strings.ToLower(amount.Currency)),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	t, err := p.api.Transfers.New(params)
	if err != nil {
		return policies.TransferReceipt{}, classify(op, err)
	}
	p.logger.Info("transfer issued", "transfer_id", t.ID, "destination", destination)
	return policies.TransferReceipt{ID: t.ID}, nil
}

func (p *Processor) CreatePayoutAccount(ctx context.Context, email string) (string, error) {
	const op = "stripe.create_account"
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(checkout.IdempotencyKey("acct", email))
	a, err := p.api.Accounts.New(params)
	if err != nil {
		return "", classify(op, err)
	}
	return a.ID, nil
}

func (p *Processor) OnboardingLink(ctx context.Context, accountID string) (string, error) {
	const op = "stripe.onboarding_link"
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(p.cfg.OnboardingRefreshURL),
		ReturnURL:  stripe.String(p.cfg.OnboardingReturnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx
	link, err := p.api.AccountLinks.New(params)
	if err != nil {
		return "", classify(op, err)
	}
	return link.URL, nil
}

// classify marks rate limits, provider 5xx, transport failures and
// deadlines as retryable. Card and request errors are final.
func classify(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		retryable := se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError
		return apperr.External(op, fmt.Errorf("%s (status %d): %w", se.Type, se.HTTPStatusCode, err), retryable)
	}
	return apperr.External(op, err, true)
}

var _ policies.PaymentProcessor = (*Processor)(nil)

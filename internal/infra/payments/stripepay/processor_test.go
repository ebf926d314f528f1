package stripepay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/policies"
	"rigshare/internal/domain/checkout"
	"rigshare/internal/domain/shared/money"
)

func newTestProcessor(t *testing.T, h http.HandlerFunc) *Processor {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := New(Config{
		SecretKey:  "sk_test_123",
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/cancel",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	}, nil)
	require.NoError(t, err)
	return p
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestCreateSessionSendsSplitTransfer(t *testing.T) {
	var form map[string]string
	var idem string
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		idem = r.Header.Get("Idempotency-Key")
		writeJSON(w, http.StatusOK, map[string]any{"id": "cs_test_1", "object": "checkout.session", "url": "https://pay.test/cs_test_1"})
	})

	s, err := p.CreateSession(context.Background(), checkout.SessionRequest{
		Mode:            checkout.ModeRent,
		Description:     "Taco truck",
		Amount:          money.Must(23000, "USD"),
		ClientReference: "bk-1",
		Destination:     "acct_host",
		ApplicationFee:  money.Must(3000, "USD"),
		Metadata:        map[string]string{"booking_id": "bk-1"},
		IdempotencyKey:  "checkout-abc",
	})
	require.NoError(t, err)
	require.Equal(t, checkout.Session{ID: "cs_test_1", URL: "https://pay.test/cs_test_1"}, s)
	require.Equal(t, "checkout-abc", idem)
	require.Equal(t, "usd", form["line_items[0][price_data][currency]"])
	require.Equal(t, "23000", form["line_items[0][price_data][unit_amount]"])
	require.Equal(t, "3000", form["payment_intent_data[application_fee_amount]"])
	require.Equal(t, "acct_host", form["payment_intent_data[transfer_data][destination]"])
	require.Equal(t, "bk-1", form["metadata[booking_id]"])
	require.Equal(t, "bk-1", form["client_reference_id"])
	require.NotContains(t, form, "payment_intent_data[metadata][booking_id]")
}

func TestCreateSaleSessionCopiesMetadataToPaymentIntent(t *testing.T) {
	var form map[string]string
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "cs_sale_1", "object": "checkout.session", "url": "https://pay.test/cs_sale_1"})
	})

	_, err := p.CreateSession(context.Background(), checkout.SessionRequest{
		Mode:        checkout.ModeSale,
		Description: "2019 kitchen trailer",
		Amount:      money.Must(1050000, "USD"),
		Metadata:    map[string]string{"mode": "sale", "escrow": "true", "listing_id": "lst-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "sale", form["metadata[mode]"])
	require.Equal(t, "sale", form["payment_intent_data[metadata][mode]"])
	require.Equal(t, "true", form["payment_intent_data[metadata][escrow]"])
	require.Equal(t, "lst-1", form["payment_intent_data[metadata][listing_id]"])
	require.NotContains(t, form, "payment_intent_data[transfer_data][destination]")
}

func TestRetrieveSessionMapsPaidState(t *testing.T) {
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"id":             "cs_test_1",
			"object":         "checkout.session",
			"payment_status": "paid",
			"payment_intent": "pi_123",
			"amount_total":   23000,
			"currency":       "usd",
			"metadata":       map[string]string{"mode": "rent"},
		})
	})
	conf, err := p.RetrieveSession(context.Background(), "cs_test_1")
	require.NoError(t, err)
	require.True(t, conf.Paid)
	require.Equal(t, "pi_123", conf.PaymentIntentID)
	require.Equal(t, money.Must(23000, "USD"), conf.AmountTotal)
	require.Equal(t, "rent", conf.Metadata["mode"])
}

func TestProcessorErrorsCarryRetryability(t *testing.T) {
	status := http.StatusInternalServerError
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]any{"error": map[string]any{"type": "api_error", "message": "boom"}})
	})
	_, err := p.Refund(context.Background(), "pi_1", "refund-bk-1")
	require.True(t, apperr.Is(err, apperr.KindExternal))
	require.True(t, apperr.IsRetryable(err))

	status = http.StatusBadRequest
	_, err = p.Transfer(context.Background(), money.Must(100, "USD"), "acct_x", "xfer-1")
	require.True(t, apperr.Is(err, apperr.KindExternal))
	require.False(t, apperr.IsRetryable(err))
}

func TestWebhookVerifierProjectsEvents(t *testing.T) {
	v := WebhookVerifier{Secret: "whsec_test"}
	payload := []byte(`{"id":"evt_1","object":"event","type":"account.updated","data":{"object":{"id":"acct_9","object":"account","payouts_enabled":true}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    v.Secret,
		Timestamp: time.Now(),
	})
	ev, err := v.Verify(signed.Payload, signed.Header)
	require.NoError(t, err)
	require.Equal(t, policies.WebhookEvent{ID: "evt_1", Type: policies.WebhookAccountUpdated, AccountID: "acct_9", PayoutsEnabled: true}, ev)

	_, err = v.Verify(payload, "t=1,v1=deadbeef")
	require.Error(t, err)

	_, err = WebhookVerifier{}.Verify(payload, signed.Header)
	require.ErrorIs(t, err, ErrWebhookSecretMissing)
}

package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	bookingapp "rigshare/internal/app/handlers/booking"
	checkoutapp "rigshare/internal/app/handlers/checkout"
	settlementapp "rigshare/internal/app/handlers/settlement"
	"rigshare/internal/app/middleware"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/queries"
	authsvc "rigshare/internal/app/services/auth"
	"rigshare/internal/infra/config"
	"rigshare/internal/infra/obs"
	"rigshare/internal/infra/security"
	"rigshare/internal/infra/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	event policies.WebhookEvent
	err   error
}

func (f fakeVerifier) Verify([]byte, string) (policies.WebhookEvent, error) {
	return f.event, f.err
}

type harness struct {
	router   *gin.Engine
	base     *commands.InMemoryBus
	queries  *queries.InMemoryBus
	verifier *fakeVerifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		base:     commands.NewInMemoryBus(),
		queries:  queries.NewInMemoryBus(),
		verifier: &fakeVerifier{},
	}
	bus := middleware.ChainCommands(h.base, middleware.Authorization(policies.RoleAuthorizer{}))
	service := &authsvc.Service{
		Users:     memory.NewUserRepository(),
		Sessions:  memory.NewSessionStore(),
		Passwords: security.BcryptHasher{Cost: 4},
		Tokens:    security.SessionTokens{},
	}
	h.router = NewRouter(config.Config{}, obs.Middleware{Metrics: obs.NewMetrics()}, obs.HealthHandlers{}, Handlers{
		Auth:           &AuthHandler{Service: service},
		Booking:        &BookingHandler{Commands: bus, Queries: h.queries},
		Checkout:       &CheckoutHandler{Commands: bus},
		Settlement:     &SettlementHandler{Commands: bus, Queries: h.queries},
		Webhook:        &WebhookHandler{Commands: bus, Verifier: h.verifier},
		AuthMiddleware: AuthMiddleware{Service: service}.Handle,
	})
	return h
}

func (h *harness) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) register(t *testing.T, email string) dto.AuthResponse {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Email:    email,
		Name:     "Sam",
		Password: "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out dto.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t)
	auth := h.register(t, "sam@example.com")
	require.NotEmpty(t, auth.Token)
	require.Equal(t, []string{"renter"}, auth.User.Roles)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{Email: "sam@example.com", Name: "Sam", Password: "correct horse"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "sam@example.com", Password: "wrong password"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/auth/me", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/logout", auth.Token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/auth/me", auth.Token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingCarriesActorAndIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	var got bookingapp.RequestBookingCommand
	commands.RegisterHandler[bookingapp.RequestBookingCommand, *dto.Booking](h.base, bookingapp.RequestBookingCommand{}.Key(),
		commands.HandlerFunc[bookingapp.RequestBookingCommand, *dto.Booking](func(_ context.Context, cmd bookingapp.RequestBookingCommand) (*dto.Booking, error) {
			got = cmd
			return &dto.Booking{ID: "bk-1", Status: "pending"}, nil
		}))

	body := createBookingRequest{ListingID: "lst-1", StartDate: "2026-05-10", StartTime: "10:00", EndTime: "12:00", Hourly: true}
	rec := h.do(t, http.MethodPost, "/api/v1/bookings", "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	auth := h.register(t, "renter@example.com")
	rec = h.do(t, http.MethodPost, "/api/v1/bookings", auth.Token, body, "Idempotency-Key", "req-42")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, auth.User.ID, got.Actor.ID)
	require.Equal(t, "req-42", got.IdempotencyKeyV)
	require.True(t, got.Hourly)
	require.Equal(t, "10:00", got.StartTime)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	h := newHarness(t)
	var next error
	commands.RegisterHandler[settlementapp.OpenDisputeCommand, *dto.SettlementActionResult](h.base, settlementapp.OpenDisputeCommand{}.Key(),
		commands.HandlerFunc[settlementapp.OpenDisputeCommand, *dto.SettlementActionResult](func(context.Context, settlementapp.OpenDisputeCommand) (*dto.SettlementActionResult, error) {
			return nil, next
		}))
	auth := h.register(t, "buyer@example.com")

	cases := []struct {
		err    error
		status int
	}{
		{apperr.Invalid("op", "bad"), http.StatusBadRequest},
		{apperr.NotFound("op", errors.New("missing")), http.StatusNotFound},
		{apperr.Conflict("op", errors.New("not disputed")), http.StatusConflict},
		{apperr.NotOnboarded("op", errors.New("no account")), http.StatusUnprocessableEntity},
		{apperr.External("op", errors.New("card declined"), false), http.StatusBadGateway},
		{apperr.External("op", errors.New("timeout"), true), http.StatusServiceUnavailable},
		{apperr.Forbidden("op", "not a participant"), http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		next = tc.err
		rec := h.do(t, http.MethodPost, "/api/v1/settlements/st-1/dispute", auth.Token, disputeRequest{Reason: "arrived broken"})
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		if tc.status == http.StatusInternalServerError {
			require.NotContains(t, rec.Body.String(), "disk on fire")
		}
	}
}

func TestResolveRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	commands.RegisterHandler[settlementapp.ResolveDisputeCommand, *dto.SettlementActionResult](h.base, settlementapp.ResolveDisputeCommand{}.Key(),
		commands.HandlerFunc[settlementapp.ResolveDisputeCommand, *dto.SettlementActionResult](func(context.Context, settlementapp.ResolveDisputeCommand) (*dto.SettlementActionResult, error) {
			return &dto.SettlementActionResult{Success: true}, nil
		}))
	auth := h.register(t, "buyer@example.com")

	rec := h.do(t, http.MethodPost, "/api/v1/admin/settlements/st-1/resolve", auth.Token, resolveRequest{Resolution: "refund_buyer"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/settlements/st-1/resolve", "", resolveRequest{Resolution: "refund_buyer"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentWebhook(t *testing.T) {
	h := newHarness(t)
	var confirmed []string
	var fail error
	commands.RegisterHandler[checkoutapp.ConfirmPaymentCommand, *dto.PaymentConfirmation](h.base, checkoutapp.ConfirmPaymentCommand{}.Key(),
		commands.HandlerFunc[checkoutapp.ConfirmPaymentCommand, *dto.PaymentConfirmation](func(_ context.Context, cmd checkoutapp.ConfirmPaymentCommand) (*dto.PaymentConfirmation, error) {
			if fail != nil {
				return nil, fail
			}
			confirmed = append(confirmed, cmd.SessionID)
			return &dto.PaymentConfirmation{Success: true}, nil
		}))

	h.verifier.err = errors.New("bad signature")
	rec := h.do(t, http.MethodPost, "/webhooks/payments", "", map[string]string{"id": "evt_1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	h.verifier.err = nil
	h.verifier.event = policies.WebhookEvent{ID: "evt_2", Type: policies.WebhookCheckoutCompleted, SessionID: "cs_1"}
	rec = h.do(t, http.MethodPost, "/webhooks/payments", "", map[string]string{"id": "evt_2"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"cs_1"}, confirmed)

	fail = apperr.Conflict("confirm", errors.New("payment incomplete"))
	rec = h.do(t, http.MethodPost, "/webhooks/payments", "", map[string]string{"id": "evt_3"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"handled":false`)

	fail = apperr.External("confirm", errors.New("processor down"), true)
	rec = h.do(t, http.MethodPost, "/webhooks/payments", "", map[string]string{"id": "evt_4"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.verifier.event = policies.WebhookEvent{ID: "evt_5", Type: "invoice.paid"}
	rec = h.do(t, http.MethodPost, "/webhooks/payments", "", map[string]string{"id": "evt_5"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(obs.RequestIDHeader))

	rec = h.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "rigshare_http_request_duration_seconds")
}

package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubSessionAPI struct {
	newParams *stripe.CheckoutSessionParams
	newResult *stripe.CheckoutSession
	newErr    error
	getID     string
	getResult *stripe.CheckoutSession
	getErr    error
	newCalls  int
	getCalls  int
}

func (s *stubSessionAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.newCalls++
	s.newParams = params
	if s.newErr != nil {
		return nil, s.newErr
	}
	return s.newResult, nil
}

func (s *stubSessionAPI) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.getCalls++
	s.getID = id
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.getResult, nil
}

func newTestProvider(t *testing.T, api *stubSessionAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{sessions: api},
		Clock:   func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func TestStripeProviderCreateCheckoutSession(t *testing.T) {
	api := &stubSessionAPI{
		newResult: &stripe.CheckoutSession{
			ID:        "cs_test_123",
			URL:       "https://checkout.stripe.com/pay/cs_test_123",
			ExpiresAt: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC).Unix(),
			Currency:  stripe.CurrencyUSD,
		},
	}
	provider := newTestProvider(t, api)

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		TicketID:    "tkt_01ABC",
		Amount:      500,
		Currency:    "USD",
		ProductName: "Hi-res ticket unlock",
		SuccessURL:  "https://app.example.com/return?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   "https://app.example.com/cancel",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.ID != "cs_test_123" {
		t.Fatalf("unexpected session id %q", session.ID)
	}
	if session.RedirectURL != "https://checkout.stripe.com/pay/cs_test_123" {
		t.Fatalf("unexpected redirect url %q", session.RedirectURL)
	}
	if got := session.ExpiresAt; !got.Equal(time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", got)
	}

	params := api.newParams
	if params == nil {
		t.Fatal("expected session params")
	}
	if got := stripe.StringValue(params.ClientReferenceID); got != "tkt_01ABC" {
		t.Fatalf("unexpected client reference id %q", got)
	}
	if got := params.Metadata["ticketId"]; got != "tkt_01ABC" {
		t.Fatalf("unexpected ticket metadata %q", got)
	}
	if len(params.LineItems) != 1 {
		t.Fatalf("expected one line item, got %d", len(params.LineItems))
	}
	if got := stripe.Int64Value(params.LineItems[0].PriceData.UnitAmount); got != 500 {
		t.Fatalf("unexpected unit amount %d", got)
	}
	if got := stripe.StringValue(params.LineItems[0].PriceData.Currency); got != "usd" {
		t.Fatalf("unexpected currency %q", got)
	}
}

func TestStripeProviderCreateCheckoutSessionRequiresTicket(t *testing.T) {
	provider := newTestProvider(t, &stubSessionAPI{})
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{}); err == nil {
		t.Fatal("expected error for missing ticket id")
	}
}

func TestStripeProviderLookupCheckoutSessionPaid(t *testing.T) {
	api := &stubSessionAPI{
		getResult: &stripe.CheckoutSession{
			ID:                "cs_test_123",
			Status:            stripe.CheckoutSessionStatusComplete,
			PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
			ClientReferenceID: "tkt_01ABC",
			Metadata:          map[string]string{"ticketId": "tkt_01ABC"},
			AmountTotal:       500,
			Currency:          stripe.CurrencyUSD,
			PaymentIntent: &stripe.PaymentIntent{
				ID:      "pi_100",
				Created: time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC).Unix(),
			},
		},
	}
	provider := newTestProvider(t, api)

	details, err := provider.LookupCheckoutSession(context.Background(), "cs_test_123")
	if err != nil {
		t.Fatalf("LookupCheckoutSession: %v", err)
	}
	if api.getID != "cs_test_123" {
		t.Fatalf("unexpected lookup id %q", api.getID)
	}
	if details.Status != StatusPaid {
		t.Fatalf("unexpected status %q", details.Status)
	}
	if details.TicketID != "tkt_01ABC" {
		t.Fatalf("unexpected ticket id %q", details.TicketID)
	}
	if details.IntentID != "pi_100" {
		t.Fatalf("unexpected intent id %q", details.IntentID)
	}
	if details.PaidAt == nil || !details.PaidAt.Equal(time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected paidAt %v", details.PaidAt)
	}
	if details.Currency != "USD" {
		t.Fatalf("unexpected currency %q", details.Currency)
	}
}

func TestStripeProviderLookupCheckoutSessionExpired(t *testing.T) {
	api := &stubSessionAPI{
		getResult: &stripe.CheckoutSession{
			ID:            "cs_test_456",
			Status:        stripe.CheckoutSessionStatusExpired,
			PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		},
	}
	provider := newTestProvider(t, api)

	details, err := provider.LookupCheckoutSession(context.Background(), "cs_test_456")
	if err != nil {
		t.Fatalf("LookupCheckoutSession: %v", err)
	}
	if details.Status != StatusFailed {
		t.Fatalf("unexpected status %q", details.Status)
	}
	if details.PaidAt != nil {
		t.Fatalf("expected no paidAt, got %v", details.PaidAt)
	}
}

func TestStripeProviderLookupCheckoutSessionMissing(t *testing.T) {
	api := &stubSessionAPI{
		getErr: &stripe.Error{Code: stripe.ErrorCodeResourceMissing},
	}
	provider := newTestProvider(t, api)

	if _, err := provider.LookupCheckoutSession(context.Background(), "cs_missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

package bdd

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cucumber/godog"

	internalapi "github.com/13132klain/Cyber-Mtandao/internal/api"
	"github.com/13132klain/Cyber-Mtandao/internal/mpesa"
	"github.com/13132klain/Cyber-Mtandao/internal/order"
	"github.com/13132klain/Cyber-Mtandao/internal/payment"
)

// memoryStore stands in for the Postgres repository so scenarios run with no
// external services. It mirrors the repository's conditional-update semantics.
type memoryStore struct {
	mu         sync.Mutex
	orders     map[string]*order.Order
	byCheckout map[string]string
	unmatched  []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{orders: map[string]*order.Order{}, byCheckout: map[string]string{}}
}

func (s *memoryStore) InsertOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memoryStore) GetOrder(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return o, nil
}

func (s *memoryStore) ListOrdersByUser(_ context.Context, userID string, _ int) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memoryStore) SetPaymentRequest(_ context.Context, orderID, merchantRequestID, checkoutRequestID, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return sql.ErrNoRows
	}
	o.MerchantRequestID = merchantRequestID
	o.CheckoutRequestID = checkoutRequestID
	o.PhoneNumber = phoneNumber
	o.PaymentStatus = order.PaymentProcessing
	o.Status = order.StatusPaymentPending
	s.byCheckout[checkoutRequestID] = orderID
	return nil
}

func (s *memoryStore) ApplyPaymentResult(_ context.Context, checkoutRequestID string, paymentStatus order.PaymentStatus, status order.Status, details *order.PaymentDetails) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCheckout[checkoutRequestID]
	if !ok {
		return false, nil
	}
	o := s.orders[id]
	if o.PaymentStatus.Terminal() {
		return false, nil
	}
	o.PaymentStatus = paymentStatus
	o.Status = status
	if details != nil {
		o.PaymentDetails = details
	}
	return true, nil
}

func (s *memoryStore) OrderByCheckoutRequestID(_ context.Context, checkoutRequestID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCheckout[checkoutRequestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.orders[id], nil
}

func (s *memoryStore) InsertUnmatchedCallback(_ context.Context, checkoutRequestID string, _ []byte, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmatched = append(s.unmatched, checkoutRequestID+":"+reason)
	return nil
}

// PaymentWorld wires the API mux against the in-memory store and a fake
// Daraja endpoint for the lifetime of one scenario.
type PaymentWorld struct {
	t *testing.T

	store  *memoryStore
	daraja *httptest.Server
	api    *httptest.Server

	servicePrices map[string]float64
	pushCount     int

	orderID    string
	checkoutID string

	httpStatus int
	httpJSON   map[string]any
}

func NewPaymentWorld(t *testing.T) *PaymentWorld {
	return &PaymentWorld{t: t, servicePrices: map[string]float64{}}
}

func (w *PaymentWorld) Register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		w.reset()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		w.teardown()
		return ctx, nil
	})

	w.registerPaymentSteps(sc)
}

func (w *PaymentWorld) reset() {
	w.teardown()
	w.store = newMemoryStore()
	w.servicePrices = map[string]float64{}
	w.pushCount = 0
	w.orderID = ""
	w.checkoutID = ""
	w.httpStatus = 0
	w.httpJSON = nil

	w.daraja = httptest.NewServer(w.fakeDaraja())

	client := mpesa.NewClient(mpesa.Config{
		Environment:    mpesa.EnvironmentSandbox,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		PassKey:        "passkey",
		CallbackURL:    "https://example.test/api/mpesa/callback",
		BaseURL:        w.daraja.URL,
	})

	mux := http.NewServeMux()
	internalapi.RegisterPaymentRoutes(mux, w.store,
		payment.NewInitiator(w.store, client),
		payment.NewProcessor(w.store, nil), "")
	w.api = httptest.NewServer(mux)
}

func (w *PaymentWorld) teardown() {
	if w.api != nil {
		w.api.Close()
		w.api = nil
	}
	if w.daraja != nil {
		w.daraja.Close()
		w.daraja = nil
	}
}

// fakeDaraja serves the two Daraja endpoints the client calls.
func (w *PaymentWorld) fakeDaraja() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]string{"access_token": "test-token", "expires_in": "3599"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(rw http.ResponseWriter, r *http.Request) {
		w.pushCount++
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]string{
			"MerchantRequestID":   "29115-34620561-1",
			"CheckoutRequestID":   "ws_CO_bdd_1",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage":     "Success. Request accepted for processing",
		})
	})
	return mux
}

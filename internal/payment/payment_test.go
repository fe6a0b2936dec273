package payment

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/13132klain/Cyber-Mtandao/internal/events"
	"github.com/13132klain/Cyber-Mtandao/internal/mpesa"
	"github.com/13132klain/Cyber-Mtandao/internal/order"
)

type fakeStore struct {
	mu         sync.Mutex
	orders     map[string]*order.Order // keyed by order id
	byCheckout map[string]string       // checkout id -> order id
	deadLetter []string
	applyErr   error
	setReqErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:     make(map[string]*order.Order),
		byCheckout: make(map[string]string),
	}
}

func (s *fakeStore) addOrder(o *order.Order) {
	s.orders[o.ID] = o
	if o.CheckoutRequestID != "" {
		s.byCheckout[o.CheckoutRequestID] = o.ID
	}
}

func (s *fakeStore) SetPaymentRequest(_ context.Context, orderID, merchantRequestID, checkoutRequestID, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setReqErr != nil {
		return s.setReqErr
	}
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

func (s *fakeStore) ApplyPaymentResult(_ context.Context, checkoutRequestID string, paymentStatus order.PaymentStatus, status order.Status, details *order.PaymentDetails) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return false, s.applyErr
	}
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

func (s *fakeStore) OrderByCheckoutRequestID(_ context.Context, checkoutRequestID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCheckout[checkoutRequestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.orders[id], nil
}

func (s *fakeStore) InsertUnmatchedCallback(_ context.Context, checkoutRequestID string, _ []byte, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetter = append(s.deadLetter, checkoutRequestID+":"+reason)
	return nil
}

type fakePusher struct {
	result *mpesa.STKPushResult
	err    error
	pushes []mpesa.PushRequest
}

func (p *fakePusher) STKPush(_ context.Context, push mpesa.PushRequest) (*mpesa.STKPushResult, error) {
	p.pushes = append(p.pushes, push)
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []events.Envelope
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, evt events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, evt)
	return nil
}

func successCallback(checkoutID string) *mpesa.CallbackEnvelope {
	env := &mpesa.CallbackEnvelope{}
	env.Body.STKCallback = &mpesa.STKCallback{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &mpesa.CallbackMetadata{
			Item: []mpesa.MetadataItem{
				{Name: "Amount", Value: float64(500)},
				{Name: "MpesaReceiptNumber", Value: "QCA12345XY"},
				{Name: "TransactionDate", Value: float64(20250307143000)},
				{Name: "PhoneNumber", Value: float64(254712345678)},
			},
		},
	}
	return env
}

func failureCallback(checkoutID string) *mpesa.CallbackEnvelope {
	env := &mpesa.CallbackEnvelope{}
	env.Body.STKCallback = &mpesa.STKCallback{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}
	return env
}

func TestInitiatePersistsCorrelationIDs(t *testing.T) {
	store := newFakeStore()
	store.addOrder(&order.Order{ID: "ORD-1", PaymentStatus: order.PaymentPending, Status: order.StatusPending})
	pusher := &fakePusher{result: &mpesa.STKPushResult{
		MerchantRequestID: "mr-1",
		CheckoutRequestID: "ws_CO_123",
		ResponseCode:      "0",
	}}

	res, err := NewInitiator(store, pusher).Initiate(context.Background(), "ORD-1", "254712345678", 500, "Payment for cyber services")
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_123", res.CheckoutRequestID)

	o := store.orders["ORD-1"]
	assert.Equal(t, "ws_CO_123", o.CheckoutRequestID)
	assert.Equal(t, "mr-1", o.MerchantRequestID)
	assert.Equal(t, order.PaymentProcessing, o.PaymentStatus)
	assert.Equal(t, order.StatusPaymentPending, o.Status)
	require.Len(t, pusher.pushes, 1)
	assert.Equal(t, "ORD-1", pusher.pushes[0].AccountReference)
}

func TestInitiatePushFailure(t *testing.T) {
	store := newFakeStore()
	store.addOrder(&order.Order{ID: "ORD-1", PaymentStatus: order.PaymentPending})
	pusher := &fakePusher{err: &mpesa.Error{Code: "500.001.1001", Description: "Unable to lock subscriber"}}

	_, err := NewInitiator(store, pusher).Initiate(context.Background(), "ORD-1", "254712345678", 500, "desc")
	require.Error(t, err)
	var mpesaErr *mpesa.Error
	assert.ErrorAs(t, err, &mpesaErr)
	assert.Empty(t, store.orders["ORD-1"].CheckoutRequestID)
}

func TestInitiateStoreFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.setReqErr = errors.New("connection reset")
	pusher := &fakePusher{result: &mpesa.STKPushResult{CheckoutRequestID: "ws_CO_123", ResponseCode: "0"}}

	_, err := NewInitiator(store, pusher).Initiate(context.Background(), "ORD-1", "254712345678", 500, "desc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record payment request")
}

func TestProcessSuccessTransitionsOrder(t *testing.T) {
	store := newFakeStore()
	store.addOrder(&order.Order{ID: "ORD-1", UserID: "user-1", CheckoutRequestID: "ws_CO_123", PaymentStatus: order.PaymentProcessing, Status: order.StatusPaymentPending})
	pub := &fakePublisher{}
	proc := NewProcessor(store, pub)
	proc.now = func() time.Time { return time.Date(2025, 3, 7, 14, 30, 0, 0, time.UTC) }

	out, err := proc.Process(context.Background(), successCallback("ws_CO_123"), nil)
	require.NoError(t, err)
	assert.Equal(t, Applied, out.Disposition)

	o := store.orders["ORD-1"]
	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, order.StatusPaid, o.Status)
	require.NotNil(t, o.PaymentDetails)
	assert.Equal(t, "QCA12345XY", o.PaymentDetails.MpesaReceiptNumber)
	assert.Equal(t, "ws_CO_123", o.PaymentDetails.TransactionID)
	assert.Equal(t, float64(500), o.PaymentDetails.Amount)
	assert.Equal(t, "254712345678", o.PaymentDetails.PhoneNumber)
	assert.Equal(t, "20250307143000", o.PaymentDetails.TransactionDate)

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.EventPaymentCompleted, pub.published[0].EventType)
	assert.Equal(t, "ORD-1", pub.published[0].AggregateID)
}

func TestProcessFailureTransitionsOrder(t *testing.T) {
	store := newFakeStore()
	store.addOrder(&order.Order{ID: "ORD-1", CheckoutRequestID: "ws_CO_123", PaymentStatus: order.PaymentProcessing})
	pub := &fakePublisher{}

	out, err := NewProcessor(store, pub).Process(context.Background(), failureCallback("ws_CO_123"), nil)
	require.NoError(t, err)
	assert.Equal(t, Applied, out.Disposition)

	o := store.orders["ORD-1"]
	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, order.StatusPaymentPending, o.Status)
	assert.Nil(t, o.PaymentDetails)

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.EventPaymentFailed, pub.published[0].EventType)
}

func TestProcessDuplicateCallbackIsIgnored(t *testing.T) {
	store := newFakeStore()
	store.addOrder(&order.Order{ID: "ORD-1", CheckoutRequestID: "ws_CO_123", PaymentStatus: order.PaymentProcessing})
	pub := &fakePublisher{}
	proc := NewProcessor(store, pub)

	first, err := proc.Process(context.Background(), successCallback("ws_CO_123"), nil)
	require.NoError(t, err)
	require.Equal(t, Applied, first.Disposition)
	receipt := store.orders["ORD-1"].PaymentDetails.MpesaReceiptNumber

	// A replayed failure must not flip a completed payment.
	second, err := proc.Process(context.Background(), failureCallback("ws_CO_123"), nil)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, second.Disposition)
	assert.Equal(t, order.PaymentCompleted, store.orders["ORD-1"].PaymentStatus)
	assert.Equal(t, receipt, store.orders["ORD-1"].PaymentDetails.MpesaReceiptNumber)
	assert.Len(t, pub.published, 1)
}

func TestProcessUnknownCheckoutDeadLetters(t *testing.T) {
	store := newFakeStore()

	out, err := NewProcessor(store, nil).Process(context.Background(), successCallback("ws_CO_missing"), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, Unmatched, out.Disposition)
	require.Len(t, store.deadLetter, 1)
	assert.Equal(t, "ws_CO_missing:no_matching_order", store.deadLetter[0])
}

func TestProcessStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.applyErr = errors.New("deadlock detected")

	out, err := NewProcessor(store, nil).Process(context.Background(), successCallback("ws_CO_123"), []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, StoreFailed, out.Disposition)
	require.Len(t, store.deadLetter, 1)
}

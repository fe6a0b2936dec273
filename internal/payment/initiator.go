package payment

import (
	"context"
	"fmt"
	"log"

	"github.com/13132klain/Cyber-Mtandao/internal/mpesa"
	"github.com/13132klain/Cyber-Mtandao/internal/order"
)

// Store is the slice of persistence the payment flow needs. Implemented by
// *postgres.Repository.
type Store interface {
	SetPaymentRequest(ctx context.Context, orderID, merchantRequestID, checkoutRequestID, phoneNumber string) error
	ApplyPaymentResult(ctx context.Context, checkoutRequestID string, paymentStatus order.PaymentStatus, status order.Status, details *order.PaymentDetails) (bool, error)
	OrderByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*order.Order, error)
	InsertUnmatchedCallback(ctx context.Context, checkoutRequestID string, payload []byte, reason string) error
}

// Pusher issues the STK push. Implemented by *mpesa.Client.
type Pusher interface {
	STKPush(ctx context.Context, push mpesa.PushRequest) (*mpesa.STKPushResult, error)
}

// Initiator drives the synchronous half of an M-Pesa payment: push the
// prompt to the customer's phone and persist the provider correlation ids
// on the order so the asynchronous callback can find its way back.
type Initiator struct {
	store  Store
	pusher Pusher
}

func NewInitiator(store Store, pusher Pusher) *Initiator {
	return &Initiator{store: store, pusher: pusher}
}

// Initiate sends the STK push for the given order and records the
// CheckoutRequestID before returning. Callers validate and normalize the
// phone number beforehand; amounts arrive as the order total and are
// truncated to whole shillings by the client.
//
// The correlation id is persisted before Initiate returns: a callback that
// races the initiation response must still resolve to this order.
func (i *Initiator) Initiate(ctx context.Context, orderID, phoneNumber string, amount float64, description string) (*mpesa.STKPushResult, error) {
	log.Printf("[Payment] Initiating STK push for order %s: %.2f to %s", orderID, amount, phoneNumber)

	res, err := i.pusher.STKPush(ctx, mpesa.PushRequest{
		PhoneNumber:      phoneNumber,
		Amount:           amount,
		AccountReference: orderID,
		TransactionDesc:  description,
	})
	if err != nil {
		return nil, fmt.Errorf("stk push for order %s: %w", orderID, err)
	}

	if err := i.store.SetPaymentRequest(ctx, orderID, res.MerchantRequestID, res.CheckoutRequestID, phoneNumber); err != nil {
		// The prompt is already on the customer's phone; without the
		// correlation id on record the callback will dead-letter.
		log.Printf("[Payment] Failed to persist checkout id %s for order %s: %v", res.CheckoutRequestID, orderID, err)
		return nil, fmt.Errorf("record payment request for order %s: %w", orderID, err)
	}

	log.Printf("[Payment] STK push accepted for order %s: checkout=%s", orderID, res.CheckoutRequestID)
	return res, nil
}

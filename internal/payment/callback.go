package payment

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/13132klain/Cyber-Mtandao/internal/events"
	"github.com/13132klain/Cyber-Mtandao/internal/mpesa"
	"github.com/13132klain/Cyber-Mtandao/internal/order"
)

// Disposition classifies what the processor did with a callback.
type Disposition int

const (
	// Applied: the order transitioned to a terminal payment state.
	Applied Disposition = iota
	// Duplicate: the order was already terminal; nothing changed.
	Duplicate
	// Unmatched: no order carries the callback's CheckoutRequestID.
	Unmatched
	// StoreFailed: the database rejected the transition attempt.
	StoreFailed
)

func (d Disposition) String() string {
	switch d {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Unmatched:
		return "unmatched"
	case StoreFailed:
		return "store_failed"
	}
	return "unknown"
}

// Outcome is the processor's internal result. The HTTP layer acknowledges
// Daraja independently of this; Daraja retries on anything but a success
// ack, and a retried callback can never double-apply.
type Outcome struct {
	Disposition       Disposition
	CheckoutRequestID string
	Result            mpesa.CallbackResult
	Order             *order.Order
}

// Publisher emits domain events after a payment reaches a terminal state.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, evt events.Envelope) error
}

// Processor applies asynchronous STK callbacks to orders. Safe to call
// concurrently; idempotency lives in the store's conditional update, not
// in any state held here.
type Processor struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

func NewProcessor(store Store, pub Publisher) *Processor {
	return &Processor{store: store, pub: pub, now: time.Now}
}

// Process normalizes the callback and attempts the terminal transition.
// The raw payload is kept only for dead-lettering unmatched deliveries.
func (p *Processor) Process(ctx context.Context, env *mpesa.CallbackEnvelope, raw []byte) (*Outcome, error) {
	cb := env.Body.STKCallback
	result := cb.Result()
	out := &Outcome{CheckoutRequestID: result.CheckoutRequestID, Result: result}

	log.Printf("[Payment] Callback for checkout %s: code=%d desc=%q", result.CheckoutRequestID, result.ResultCode, result.ResultDesc)

	// A failed prompt keeps the order at payment_pending so the customer can
	// retry the push; only the payment attempt itself is terminal.
	paymentStatus := order.PaymentFailed
	orderStatus := order.StatusPaymentPending
	var details *order.PaymentDetails
	if result.Succeeded {
		paymentStatus = order.PaymentCompleted
		orderStatus = order.StatusPaid
		details = &order.PaymentDetails{
			Method:             "mpesa",
			TransactionID:      result.CheckoutRequestID,
			PhoneNumber:        result.PhoneNumber,
			Amount:             result.Amount,
			MpesaReceiptNumber: result.ReceiptNumber,
			TransactionDate:    result.TransactionDate,
			ProcessedAt:        p.now().UTC(),
		}
	}

	applied, err := p.store.ApplyPaymentResult(ctx, result.CheckoutRequestID, paymentStatus, orderStatus, details)
	if err != nil {
		log.Printf("[Payment] Store failed applying callback for checkout %s: %v", result.CheckoutRequestID, err)
		out.Disposition = StoreFailed
		p.deadLetter(ctx, result.CheckoutRequestID, raw, "store_error: "+err.Error())
		return out, err
	}

	if !applied {
		// Zero rows means either a replayed callback for a terminal
		// order or a correlation id we never issued. The follow-up
		// read only classifies; the transition decision already
		// happened atomically above.
		ord, lookupErr := p.store.OrderByCheckoutRequestID(ctx, result.CheckoutRequestID)
		switch {
		case lookupErr == nil:
			log.Printf("[Payment] Duplicate callback for checkout %s ignored (order %s already %s)", result.CheckoutRequestID, ord.ID, ord.PaymentStatus)
			out.Disposition = Duplicate
			out.Order = ord
		case errors.Is(lookupErr, sql.ErrNoRows):
			log.Printf("[Payment] Callback for unknown checkout %s", result.CheckoutRequestID)
			out.Disposition = Unmatched
			p.deadLetter(ctx, result.CheckoutRequestID, raw, "no_matching_order")
		default:
			log.Printf("[Payment] Lookup failed for checkout %s: %v", result.CheckoutRequestID, lookupErr)
			out.Disposition = StoreFailed
		}
		return out, nil
	}

	out.Disposition = Applied
	if ord, lookupErr := p.store.OrderByCheckoutRequestID(ctx, result.CheckoutRequestID); lookupErr == nil {
		out.Order = ord
	}
	p.publish(ctx, out, paymentStatus)
	return out, nil
}

func (p *Processor) publish(ctx context.Context, out *Outcome, paymentStatus order.PaymentStatus) {
	if p.pub == nil || out.Order == nil {
		return
	}
	eventType := events.EventPaymentFailed
	if paymentStatus == order.PaymentCompleted {
		eventType = events.EventPaymentCompleted
	}
	evt := events.Envelope{
		EventType:    eventType,
		EventVersion: "1",
		AggregateID:  out.Order.ID,
		Data: map[string]interface{}{
			"orderId":           out.Order.ID,
			"userId":            out.Order.UserID,
			"checkoutRequestId": out.CheckoutRequestID,
			"resultCode":        out.Result.ResultCode,
			"resultDesc":        out.Result.ResultDesc,
			"amount":            out.Result.Amount,
			"receiptNumber":     out.Result.ReceiptNumber,
			"phoneNumber":       out.Result.PhoneNumber,
		},
	}
	if err := p.pub.Publish(ctx, events.TopicPayments, out.Order.ID, evt); err != nil {
		// Event delivery is best effort; the order row is the source of truth.
		log.Printf("[Payment] Failed to publish %s for order %s: %v", eventType, out.Order.ID, err)
	}
}

func (p *Processor) deadLetter(ctx context.Context, checkoutRequestID string, raw []byte, reason string) {
	if err := p.store.InsertUnmatchedCallback(ctx, checkoutRequestID, raw, reason); err != nil {
		log.Printf("[Payment] Failed to dead-letter callback for checkout %s: %v", checkoutRequestID, err)
	}
}

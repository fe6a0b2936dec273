package bdd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"

	"github.com/13132klain/Cyber-Mtandao/internal/order"
)

func (w *PaymentWorld) registerPaymentSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the service "([^"]+)" is priced at ([\d\.]+)$`, w.setServicePrice)
	sc.Step(`^a customer order for service "([^"]+)"$`, w.createOrder)
	sc.Step(`^an STK push is requested with phone "([^"]+)"$`, w.requestSTKPush)
	sc.Step(`^the push is accepted and a checkout id is recorded$`, w.assertPushAccepted)
	sc.Step(`^the push is rejected with status (\d+)$`, w.assertPushRejected)
	sc.Step(`^no push reached the payment provider$`, w.assertNoPush)
	sc.Step(`^Daraja delivers a successful callback with receipt "([^"]+)"$`, w.deliverSuccessCallback)
	sc.Step(`^Daraja delivers a successful callback for checkout "([^"]+)"$`, w.deliverCallbackForCheckout)
	sc.Step(`^Daraja delivers a failed callback with result code (\d+)$`, w.deliverFailureCallback)
	sc.Step(`^the callback is acknowledged with result code (\d+)$`, w.assertCallbackAck)
	sc.Step(`^the order payment status is "([^"]+)"$`, w.assertPaymentStatus)
	sc.Step(`^the order status is "([^"]+)"$`, w.assertOrderStatus)
	sc.Step(`^the payment details include receipt "([^"]+)"$`, w.assertReceipt)
	sc.Step(`^the callback is recorded as unmatched$`, w.assertUnmatched)
}

func (w *PaymentWorld) setServicePrice(serviceID string, price float64) error {
	w.servicePrices[serviceID] = price
	return nil
}

func (w *PaymentWorld) createOrder(serviceID string) error {
	price, ok := w.servicePrices[serviceID]
	if !ok {
		return fmt.Errorf("service %s not priced", serviceID)
	}
	o := &order.Order{
		ID:            order.NewID(),
		UserID:        "user-bdd",
		ServiceID:     serviceID,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		TotalAmount:   price,
	}
	if err := w.store.InsertOrder(context.Background(), o); err != nil {
		return err
	}
	w.orderID = o.ID
	return nil
}

func (w *PaymentWorld) requestSTKPush(phoneNumber string) error {
	body := fmt.Sprintf(`{"orderId":%q,"phoneNumber":%q}`, w.orderID, phoneNumber)
	if err := w.post("/api/mpesa/stkpush", body); err != nil {
		return err
	}
	if id, _ := w.httpJSON["checkoutRequestId"].(string); id != "" {
		w.checkoutID = id
	}
	return nil
}

func (w *PaymentWorld) assertPushAccepted() error {
	if w.httpStatus != http.StatusOK {
		return fmt.Errorf("expected 200, got %d (%v)", w.httpStatus, w.httpJSON)
	}
	id, _ := w.httpJSON["checkoutRequestId"].(string)
	if id == "" {
		return fmt.Errorf("no checkoutRequestId in response: %v", w.httpJSON)
	}
	w.checkoutID = id

	o, err := w.store.GetOrder(context.Background(), w.orderID)
	if err != nil {
		return err
	}
	if o.CheckoutRequestID != id {
		return fmt.Errorf("checkout id not persisted: order has %q, response said %q", o.CheckoutRequestID, id)
	}
	if o.PaymentStatus != order.PaymentProcessing {
		return fmt.Errorf("expected payment status processing, got %s", o.PaymentStatus)
	}
	return nil
}

func (w *PaymentWorld) assertPushRejected(status int) error {
	if w.httpStatus != status {
		return fmt.Errorf("expected %d, got %d (%v)", status, w.httpStatus, w.httpJSON)
	}
	return nil
}

func (w *PaymentWorld) assertNoPush() error {
	if w.pushCount != 0 {
		return fmt.Errorf("expected no provider calls, saw %d", w.pushCount)
	}
	return nil
}

func (w *PaymentWorld) deliverSuccessCallback(receipt string) error {
	return w.deliverCallback(w.checkoutID, 0, receipt)
}

func (w *PaymentWorld) deliverCallbackForCheckout(checkoutID string) error {
	return w.deliverCallback(checkoutID, 0, "QCA00000ZZ")
}

func (w *PaymentWorld) deliverFailureCallback(resultCode int) error {
	return w.deliverCallback(w.checkoutID, resultCode, "")
}

func (w *PaymentWorld) deliverCallback(checkoutID string, resultCode int, receipt string) error {
	cb := map[string]any{
		"MerchantRequestID": "29115-34620561-1",
		"CheckoutRequestID": checkoutID,
		"ResultCode":        resultCode,
		"ResultDesc":        "The service request is processed successfully.",
	}
	if resultCode == 0 {
		cb["CallbackMetadata"] = map[string]any{
			"Item": []map[string]any{
				{"Name": "Amount", "Value": 500},
				{"Name": "MpesaReceiptNumber", "Value": receipt},
				{"Name": "TransactionDate", "Value": 20250307143000},
				{"Name": "PhoneNumber", "Value": 254712345678},
			},
		}
	} else {
		cb["ResultDesc"] = "Request cancelled by user"
	}
	env := map[string]any{"Body": map[string]any{"stkCallback": cb}}
	b, _ := json.Marshal(env)
	return w.post("/api/mpesa/callback", string(b))
}

func (w *PaymentWorld) assertCallbackAck(resultCode int) error {
	if w.httpStatus != http.StatusOK {
		return fmt.Errorf("expected 200, got %d (%v)", w.httpStatus, w.httpJSON)
	}
	got, ok := w.httpJSON["ResultCode"].(float64)
	if !ok || int(got) != resultCode {
		return fmt.Errorf("expected ResultCode %d, got %v", resultCode, w.httpJSON["ResultCode"])
	}
	return nil
}

func (w *PaymentWorld) assertPaymentStatus(want string) error {
	o, err := w.store.GetOrder(context.Background(), w.orderID)
	if err != nil {
		return err
	}
	if string(o.PaymentStatus) != want {
		return fmt.Errorf("expected payment status %s, got %s", want, o.PaymentStatus)
	}
	return nil
}

func (w *PaymentWorld) assertOrderStatus(want string) error {
	o, err := w.store.GetOrder(context.Background(), w.orderID)
	if err != nil {
		return err
	}
	if string(o.Status) != want {
		return fmt.Errorf("expected order status %s, got %s", want, o.Status)
	}
	return nil
}

func (w *PaymentWorld) assertReceipt(receipt string) error {
	o, err := w.store.GetOrder(context.Background(), w.orderID)
	if err != nil {
		return err
	}
	if o.PaymentDetails == nil {
		return fmt.Errorf("no payment details recorded")
	}
	if o.PaymentDetails.MpesaReceiptNumber != receipt {
		return fmt.Errorf("expected receipt %s, got %s", receipt, o.PaymentDetails.MpesaReceiptNumber)
	}
	return nil
}

func (w *PaymentWorld) assertUnmatched() error {
	if len(w.store.unmatched) == 0 {
		return fmt.Errorf("expected an unmatched callback record")
	}
	if !strings.Contains(w.store.unmatched[0], "no_matching_order") {
		return fmt.Errorf("unexpected dead-letter reason: %s", w.store.unmatched[0])
	}
	return nil
}

func (w *PaymentWorld) post(path, body string) error {
	resp, err := http.Post(w.api.URL+path, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	w.httpStatus = resp.StatusCode
	w.httpJSON = map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&w.httpJSON)
	return nil
}

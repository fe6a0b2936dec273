package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/13132klain/Cyber-Mtandao/internal/mpesa"
	"github.com/13132klain/Cyber-Mtandao/internal/order"
	"github.com/13132klain/Cyber-Mtandao/internal/payment"
	"github.com/13132klain/Cyber-Mtandao/internal/phone"
)

// OrderStore is the slice of the repository the HTTP layer reads from.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*order.Order, error)
	InsertOrder(ctx context.Context, o *order.Order) error
}

// RegisterPaymentRoutes mounts the STK push and Daraja callback endpoints.
// callbackToken, when non-empty, must match the x-callback-token header on
// callback posts.
func RegisterPaymentRoutes(mux *http.ServeMux, store OrderStore, initiator *payment.Initiator, processor *payment.Processor, callbackToken string) {
	mux.Handle("/api/mpesa/stkpush", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleSTKPush(store, initiator, w, r)
	}), "mpesa-stkpush"))

	mux.Handle("/api/mpesa/callback", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCallback(processor, callbackToken, w, r)
	}), "mpesa-callback"))
}

type stkPushRequest struct {
	OrderID     string `json:"orderId"`
	PhoneNumber string `json:"phoneNumber"`
}

func handleSTKPush(store OrderStore, initiator *payment.Initiator, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req stkPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "orderId is required"})
		return
	}
	if !phone.IsValid(req.PhoneNumber) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid phone number. Use format 0712345678 or 254712345678"})
		return
	}

	ord, err := store.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "order not found"})
		return
	}
	// Failed attempts may be retried; only a completed payment blocks a new push.
	if ord.PaymentStatus == order.PaymentCompleted {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "order is already paid"})
		return
	}

	msisdn := phone.Normalize(req.PhoneNumber)
	res, err := initiator.Initiate(r.Context(), ord.ID, msisdn, ord.TotalAmount, "Payment for cyber services")
	if err != nil {
		var mpesaErr *mpesa.Error
		if errors.As(err, &mpesaErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": mpesaErr.Description})
			return
		}
		log.Printf("[API] STK push failed for order %s: %v", ord.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Payment processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"message":           "STK push sent. Check your phone to complete payment.",
		"checkoutRequestId": res.CheckoutRequestID,
		"merchantRequestId": res.MerchantRequestID,
		"customerMessage":   res.CustomerMessage,
	})
}

// handleCallback acknowledges Daraja. Daraja retries anything that is not a
// ResultCode 0 ack, so processed callbacks always ack success even when the
// outcome was a duplicate or an unknown correlation id; retrying those can
// never change the order. Only a panic mid-processing acks ResultCode 1 to
// invite a redelivery.
func handleCallback(processor *payment.Processor, callbackToken string, w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		// Liveness probe for callback URL registration.
		writeJSON(w, http.StatusOK, map[string]any{"message": "M-Pesa callback endpoint is active"})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if callbackToken != "" && r.Header.Get("x-callback-token") != callbackToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[API] panic processing callback: %v", rec)
			writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 1, "ResultDesc": "Callback processing failed"})
		}
	}()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid callback data"})
		return
	}

	var env mpesa.CallbackEnvelope
	if err := json.Unmarshal(bytes.TrimSpace(raw), &env); err != nil || env.Body.STKCallback == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid callback data"})
		return
	}

	out, err := processor.Process(r.Context(), &env, raw)
	if err != nil {
		log.Printf("[API] callback for checkout %s not applied: %v", out.CheckoutRequestID, err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Callback processed successfully"})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

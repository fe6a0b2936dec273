package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/13132klain/Cyber-Mtandao/internal/authz"
	"github.com/13132klain/Cyber-Mtandao/internal/catalog"
	"github.com/13132klain/Cyber-Mtandao/internal/events"
	"github.com/13132klain/Cyber-Mtandao/internal/order"
)

// ServiceStore resolves catalog services for order creation.
type ServiceStore interface {
	GetService(ctx context.Context, serviceID string) (*catalog.Service, error)
}

// Publisher emits order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, evt events.Envelope) error
}

// RegisterOrdersRoutes wires the orders API endpoints into the provided mux.
// Reads on a specific order are gated on the viewer relation via OpenFGA.
func RegisterOrdersRoutes(mux *http.ServeMux, store OrderStore, services ServiceStore, prod Publisher, az authz.Client) {
	mux.Handle("/api/orders", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleCreateOrder(store, services, prod, w, r)
		case http.MethodGet:
			handleListOrders(store, w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}), "orders"))

	guard := authz.Require(az, func(r *http.Request) (string, string) {
		orderID := strings.TrimPrefix(r.URL.Path, "/api/orders/")
		if orderID == "" || strings.Contains(orderID, "/") {
			return "", ""
		}
		if r.Method == http.MethodGet {
			return "order:" + orderID, "viewer"
		}
		return "", ""
	})

	mux.Handle("/api/orders/", otelhttp.NewHandler(guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleGetOrder(store, w, r)
	})), "order-detail"))
}

type createOrderRequest struct {
	UserID      string `json:"userId"`
	ServiceID   string `json:"serviceId"`
	PhoneNumber string `json:"phoneNumber"`
	Notes       string `json:"notes"`
}

func handleCreateOrder(store OrderStore, services ServiceStore, prod Publisher, w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if req.UserID == "" || req.ServiceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "userId and serviceId are required"})
		return
	}

	svc, err := services.GetService(r.Context(), req.ServiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown service"})
			return
		}
		log.Printf("[API] service lookup failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create order"})
		return
	}

	ord := &order.Order{
		ID:            order.NewID(),
		UserID:        req.UserID,
		ServiceID:     svc.ID,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		TotalAmount:   svc.Price,
		PhoneNumber:   req.PhoneNumber,
		Notes:         req.Notes,
	}
	if err := store.InsertOrder(r.Context(), ord); err != nil {
		log.Printf("[API] insert order failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create order"})
		return
	}

	if prod != nil {
		evt := events.Envelope{
			EventType:    events.EventOrderCreated,
			EventVersion: "1",
			AggregateID:  ord.ID,
			Data: map[string]any{
				"orderId":     ord.ID,
				"userId":      ord.UserID,
				"serviceId":   ord.ServiceID,
				"totalAmount": ord.TotalAmount,
			},
		}
		if err := prod.Publish(r.Context(), events.TopicOrders, ord.ID, evt); err != nil {
			log.Printf("[API] failed to publish OrderCreated for %s: %v", ord.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          ord.ID,
		"serviceId":   ord.ServiceID,
		"status":      ord.Status,
		"totalAmount": ord.TotalAmount,
	})
}

func handleListOrders(store OrderStore, w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "userId query parameter is required"})
		return
	}
	orders, err := store.ListOrdersByUser(r.Context(), userID, 50)
	if err != nil {
		log.Printf("[API] list orders failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"orders": orders})
}

func handleGetOrder(store OrderStore, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	orderID := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	if orderID == "" {
		http.Error(w, "order id required", http.StatusBadRequest)
		return
	}
	ord, err := store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		log.Printf("[API] get order failed: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ord)
}

package order

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks the lifecycle of the M-Pesa payment attached to an
// order. Transitions only ever run pending -> processing -> {completed,failed};
// completed and failed are terminal and must never be overwritten by a late or
// duplicate callback.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// Terminal reports whether no further payment transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// Status is the fulfillment status of the order itself. Everything past
// "paid" is owned by downstream fulfillment workflows.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPaymentPending Status = "payment_pending"
	StatusPaid           Status = "paid"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

// PaymentDetails is populated exactly once, by the callback handler, when a
// payment reaches a terminal state with metadata attached.
type PaymentDetails struct {
	Method             string    `json:"method"`
	TransactionID      string    `json:"transactionId"`
	PhoneNumber        string    `json:"phoneNumber,omitempty"`
	Amount             float64   `json:"amount,omitempty"`
	MpesaReceiptNumber string    `json:"mpesaReceiptNumber,omitempty"`
	TransactionDate    string    `json:"transactionDate,omitempty"`
	ProcessedAt        time.Time `json:"processedAt"`
}

// Order is the persisted order record. The order id doubles as the merchant
// account reference sent to Daraja; CheckoutRequestID is the provider-issued
// correlation id that ties the asynchronous callback back to this row.
type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	ServiceID         string          `json:"serviceId"`
	Status            Status          `json:"status"`
	PaymentStatus     PaymentStatus   `json:"paymentStatus"`
	TotalAmount       float64         `json:"totalAmount"`
	PhoneNumber       string          `json:"phoneNumber,omitempty"`
	MerchantRequestID string          `json:"merchantRequestId,omitempty"`
	CheckoutRequestID string          `json:"checkoutRequestId,omitempty"`
	PaymentDetails    *PaymentDetails `json:"paymentDetails,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// NewID generates a human-facing order id like ORD-MBF3K2X1-A4F9C2.
func NewID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString()[:6], "-", "")
	return strings.ToUpper("ORD-" + ts + "-" + suffix)
}

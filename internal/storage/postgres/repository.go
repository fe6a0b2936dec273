package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/lib/pq"

	"github.com/13132klain/Cyber-Mtandao/internal/catalog"
	"github.com/13132klain/Cyber-Mtandao/internal/order"
)

// Repository is a thin wrapper around *sql.DB intended for dependency injection.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

const orderColumns = `
	id, user_id, service_id, status, payment_status, total_amount,
	COALESCE(phone_number, ''), COALESCE(merchant_request_id, ''),
	COALESCE(checkout_request_id, ''), payment_details, COALESCE(notes, ''),
	created_at, updated_at`

// InsertOrder inserts a new order row.
func (r *Repository) InsertOrder(ctx context.Context, o *order.Order) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
		INSERT INTO orders (id, user_id, service_id, status, payment_status, total_amount, phone_number, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.DB.ExecContext(ctx, query,
		o.ID, o.UserID, o.ServiceID, string(o.Status), string(o.PaymentStatus),
		o.TotalAmount, o.PhoneNumber, o.Notes,
	); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	log.Printf("[DB] Inserted order: %s", o.ID)
	return nil
}

// GetOrder returns a single order by id. sql.ErrNoRows when absent.
func (r *Repository) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

// ListOrdersByUser returns the user's orders, newest first.
func (r *Repository) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*order.Order, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return out, nil
}

// SetPaymentRequest records the provider correlation identifiers on the order
// and moves it into the processing/payment_pending state. Called by the
// initiator before initiation is reported complete.
func (r *Repository) SetPaymentRequest(ctx context.Context, orderID, merchantRequestID, checkoutRequestID, phoneNumber string) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
		UPDATE orders
		SET merchant_request_id = $2,
		    checkout_request_id = $3,
		    phone_number = $4,
		    payment_status = $5,
		    status = $6,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	res, err := r.DB.ExecContext(ctx, query, orderID, merchantRequestID, checkoutRequestID,
		phoneNumber, string(order.PaymentProcessing), string(order.StatusPaymentPending))
	if err != nil {
		return fmt.Errorf("failed to record payment request: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("order not found: %s", orderID)
	}
	log.Printf("[DB] Recorded payment request for order %s: checkout=%s", orderID, checkoutRequestID)
	return nil
}

// OrderByCheckoutRequestID resolves an order from the provider correlation
// id. sql.ErrNoRows when no order carries that id.
func (r *Repository) OrderByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*order.Order, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE checkout_request_id = $1`, checkoutRequestID)
	return scanOrder(row)
}

// ApplyPaymentResult performs the terminal payment transition as a single
// conditional update: the row changes only while payment_status is still
// pending or processing, which closes the race between near-simultaneous
// duplicate callback deliveries. Returns false when no row transitioned
// (unknown correlation id or an already-terminal order).
func (r *Repository) ApplyPaymentResult(ctx context.Context, checkoutRequestID string, paymentStatus order.PaymentStatus, status order.Status, details *order.PaymentDetails) (bool, error) {
	if r.DB == nil {
		return false, fmt.Errorf("database not initialized")
	}
	var detailsJSON interface{}
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return false, fmt.Errorf("failed to marshal payment details: %w", err)
		}
		detailsJSON = string(b)
	}
	query := `
		UPDATE orders
		SET payment_status = $2,
		    status = $3,
		    payment_details = COALESCE($4::jsonb, payment_details),
		    updated_at = CURRENT_TIMESTAMP
		WHERE checkout_request_id = $1
		  AND payment_status IN ($5, $6)
	`
	res, err := r.DB.ExecContext(ctx, query, checkoutRequestID, string(paymentStatus), string(status),
		detailsJSON, string(order.PaymentPending), string(order.PaymentProcessing))
	if err != nil {
		return false, fmt.Errorf("failed to apply payment result: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return false, nil
	}
	log.Printf("[DB] Applied payment result for checkout %s: %s", checkoutRequestID, paymentStatus)
	return true, nil
}

// InsertUnmatchedCallback dead-letters a callback the handler could not apply
// so it can be reconciled manually instead of vanishing into a log line.
func (r *Repository) InsertUnmatchedCallback(ctx context.Context, checkoutRequestID string, payload []byte, reason string) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
		INSERT INTO unmatched_callbacks (checkout_request_id, payload, reason)
		VALUES ($1, $2, $3)
	`
	if _, err := r.DB.ExecContext(ctx, query, checkoutRequestID, string(payload), reason); err != nil {
		return fmt.Errorf("failed to record unmatched callback: %w", err)
	}
	log.Printf("[DB] Dead-lettered callback for checkout %s (%s)", checkoutRequestID, reason)
	return nil
}

// ListServices returns the active service catalog ordered by title.
func (r *Repository) ListServices(ctx context.Context) ([]catalog.Service, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, title, description, category, price, estimated_time, requirements, active
		FROM services
		WHERE active = TRUE
		ORDER BY title
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var out []catalog.Service
	for rows.Next() {
		var svc catalog.Service
		if err := rows.Scan(&svc.ID, &svc.Title, &svc.Description, &svc.Category,
			&svc.Price, &svc.EstimatedTime, pq.Array(&svc.Requirements), &svc.Active); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating services: %w", err)
	}
	return out, nil
}

// GetService returns one catalog row by id. sql.ErrNoRows when absent.
func (r *Repository) GetService(ctx context.Context, serviceID string) (*catalog.Service, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	var svc catalog.Service
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, title, description, category, price, estimated_time, requirements, active
		FROM services
		WHERE id = $1`, serviceID).
		Scan(&svc.ID, &svc.Title, &svc.Description, &svc.Category,
			&svc.Price, &svc.EstimatedTime, pq.Array(&svc.Requirements), &svc.Active)
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// UpsertService inserts or updates a catalog row, used by cmd/seed-services.
func (r *Repository) UpsertService(ctx context.Context, svc catalog.Service) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
		INSERT INTO services (id, title, description, category, price, estimated_time, requirements, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			estimated_time = EXCLUDED.estimated_time,
			requirements = EXCLUDED.requirements,
			active = EXCLUDED.active,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.DB.ExecContext(ctx, query, svc.ID, svc.Title, svc.Description, svc.Category,
		svc.Price, svc.EstimatedTime, pq.Array(svc.Requirements), svc.Active); err != nil {
		return fmt.Errorf("failed to upsert service %s: %w", svc.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o           order.Order
		status      string
		payStatus   string
		detailsJSON []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.ServiceID, &status, &payStatus, &o.TotalAmount,
		&o.PhoneNumber, &o.MerchantRequestID, &o.CheckoutRequestID, &detailsJSON, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	if len(detailsJSON) > 0 {
		var details order.PaymentDetails
		if err := json.Unmarshal(detailsJSON, &details); err != nil {
			return nil, fmt.Errorf("failed to decode payment details: %w", err)
		}
		o.PaymentDetails = &details
	}
	return &o, nil
}

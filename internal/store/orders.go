package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// GenerateOrderNumber produces a globally unique order number from a dedicated
// database sequence.
func (s *Store) GenerateOrderNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, "SELECT nextval('order_number_seq')"); err != nil {
		return "", fmt.Errorf("failed to generate order number: %w", err)
	}
	return fmt.Sprintf("V2X-%06d", seq), nil
}

// CreateOrder inserts a completed one-time payment order. The unique index on
// checkout_session_id rejects duplicate webhook deliveries of the same session.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO stripe_orders (
			order_number, checkout_session_id, payment_intent_id, customer_id,
			amount_subtotal, amount_total, currency, payment_status, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, order, query,
		order.OrderNumber, order.CheckoutSessionID, order.PaymentIntentID, order.CustomerID,
		order.AmountSubtotal, order.AmountTotal, order.Currency, order.PaymentStatus, order.Status)
}

// GetOrderByCheckoutSession returns the order recorded for a checkout session,
// or nil when none exists.
func (s *Store) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM stripe_orders WHERE checkout_session_id = $1", sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// InsertWebhookLog records the intake of a webhook event with status
// processing before any reconciliation work begins.
func (s *Store) InsertWebhookLog(ctx context.Context, eventID, eventType string, customerID *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stripe_webhook_logs (event_id, event_type, customer_id, processing_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, customerID, models.WebhookStatusProcessing)
	return err
}

// UpdateWebhookLog records the terminal outcome for an event.
func (s *Store) UpdateWebhookLog(ctx context.Context, eventID, status, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stripe_webhook_logs
		SET processing_status = $1, error_message = $2, updated_at = NOW()
		WHERE event_id = $3`,
		status, message, eventID)
	return err
}

// GetWebhookLogByEventID returns the audit row for an event, or nil.
func (s *Store) GetWebhookLogByEventID(ctx context.Context, eventID string) (*models.WebhookLog, error) {
	var wl models.WebhookLog
	err := s.db.GetContext(ctx, &wl,
		"SELECT * FROM stripe_webhook_logs WHERE event_id = $1", eventID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wl, nil
}

package models

import "time"

// Customer maps a local user to a Stripe customer. An authenticated user has
// at most one non-deleted mapping at any time.
type Customer struct {
	ID         int64      `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	CustomerID string     `db:"customer_id" json:"customer_id"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Subscription mirrors the current known subscription state for a customer.
// It is an upsert target keyed by customer_id, not a history.
type Subscription struct {
	CustomerID         string    `db:"customer_id" json:"customer_id"`
	SubscriptionID     *string   `db:"subscription_id" json:"subscription_id,omitempty"`
	PriceID            *string   `db:"price_id" json:"price_id,omitempty"`
	CurrentPeriodStart *int64    `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *int64    `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool      `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	PaymentMethodBrand *string   `db:"payment_method_brand" json:"payment_method_brand,omitempty"`
	PaymentMethodLast4 *string   `db:"payment_method_last4" json:"payment_method_last4,omitempty"`
	Status             string    `db:"status" json:"status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Order records a completed one-time payment. Created exactly once per
// completed checkout session and immutable thereafter.
type Order struct {
	ID                int64     `db:"id" json:"id"`
	OrderNumber       string    `db:"order_number" json:"order_number"`
	CheckoutSessionID string    `db:"checkout_session_id" json:"checkout_session_id"`
	PaymentIntentID   *string   `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CustomerID        string    `db:"customer_id" json:"customer_id"`
	AmountSubtotal    int64     `db:"amount_subtotal" json:"amount_subtotal"`
	AmountTotal       int64     `db:"amount_total" json:"amount_total"`
	Currency          string    `db:"currency" json:"currency"`
	PaymentStatus     string    `db:"payment_status" json:"payment_status"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// WebhookLog is the audit trail for webhook processing. A row is inserted with
// status processing on receipt and updated once with the terminal outcome.
type WebhookLog struct {
	ID               int64     `db:"id" json:"id"`
	EventID          string    `db:"event_id" json:"event_id"`
	EventType        string    `db:"event_type" json:"event_type"`
	CustomerID       *string   `db:"customer_id" json:"customer_id,omitempty"`
	ProcessingStatus string    `db:"processing_status" json:"processing_status"`
	ErrorMessage     *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Webhook processing statuses
const (
	WebhookStatusProcessing = "processing"
	WebhookStatusCompleted  = "completed"
	WebhookStatusSkipped    = "skipped"
	WebhookStatusFailed     = "failed"
)

// Subscription statuses (beyond what Stripe reports)
const (
	SubscriptionStatusNotStarted = "not_started"
)

// Order statuses
const (
	OrderStatusCompleted = "completed"
)

// Checkout modes
const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetCustomerIDByUser returns the Stripe customer id mapped to a user,
// ignoring soft-deleted mappings. Returns "" when no mapping exists.
func (s *Store) GetCustomerIDByUser(ctx context.Context, userID string) (string, error) {
	var customerID string
	err := s.db.GetContext(ctx, &customerID,
		"SELECT customer_id FROM stripe_customers WHERE user_id = $1 AND deleted_at IS NULL",
		userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return customerID, nil
}

// CreateCustomerMapping persists a user -> Stripe customer mapping.
func (s *Store) CreateCustomerMapping(ctx context.Context, userID, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO stripe_customers (user_id, customer_id) VALUES ($1, $2)",
		userID, customerID)
	return err
}

// GetSubscriptionByCustomer returns the subscription row for a customer, or
// nil when none exists.
func (s *Store) GetSubscriptionByCustomer(ctx context.Context, customerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.GetContext(ctx, &sub,
		"SELECT * FROM stripe_subscriptions WHERE customer_id = $1", customerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription seeds a subscription row with the given status.
func (s *Store) CreateSubscription(ctx context.Context, customerID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO stripe_subscriptions (customer_id, status) VALUES ($1, $2)",
		customerID, status)
	return err
}

// UpsertSubscriptionStatus upserts only the status for a customer, leaving
// any other columns at their defaults on insert.
func (s *Store) UpsertSubscriptionStatus(ctx context.Context, customerID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stripe_subscriptions (customer_id, status)
		VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()`,
		customerID, status)
	return err
}

// UpsertSubscription stores the full subscription state keyed by customer.
func (s *Store) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO stripe_subscriptions (
			customer_id, subscription_id, price_id,
			current_period_start, current_period_end, cancel_at_period_end,
			payment_method_brand, payment_method_last4, status
		) VALUES (
			:customer_id, :subscription_id, :price_id,
			:current_period_start, :current_period_end, :cancel_at_period_end,
			:payment_method_brand, :payment_method_last4, :status
		)
		ON CONFLICT (customer_id) DO UPDATE SET
			subscription_id = EXCLUDED.subscription_id,
			price_id = EXCLUDED.price_id,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			payment_method_brand = EXCLUDED.payment_method_brand,
			payment_method_last4 = EXCLUDED.payment_method_last4,
			status = EXCLUDED.status,
			updated_at = NOW()`,
		sub)
	return err
}

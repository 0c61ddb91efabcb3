package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"
)

type reconcilerStore interface {
	InsertWebhookLog(ctx context.Context, eventID, eventType string, customerID *string) error
	UpdateWebhookLog(ctx context.Context, eventID, status, message string) error
	UpsertSubscriptionStatus(ctx context.Context, customerID, status string) error
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	GenerateOrderNumber(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, order *models.Order) error
}

// Reconciler turns verified Stripe events into durable order and subscription
// state. It is the source of truth for both; the browser session that started
// a checkout plays no part here.
type Reconciler struct {
	store    reconcilerStore
	provider PaymentProvider
	logger   *zap.Logger
}

// NewReconciler creates a new webhook event reconciler
func NewReconciler(store reconcilerStore, provider PaymentProvider) *Reconciler {
	return &Reconciler{
		store:    store,
		provider: provider,
		logger:   util.GetLogger(),
	}
}

// LogIntake records the receipt of a verified event with status processing.
// The insert is best-effort; a failure is logged but never blocks processing.
func (r *Reconciler) LogIntake(ctx context.Context, event stripe.Event) {
	if err := r.store.InsertWebhookLog(ctx, event.ID, string(event.Type), extractCustomerID(event)); err != nil {
		r.logger.Error("Failed to log webhook intake",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// HandleEvent classifies a verified event and reconciles it into durable
// state, recording exactly one terminal outcome in the webhook log. A non-nil
// return means an unexpected processing failure; the caller observes it but
// must not trigger redelivery.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleEvent")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	r.logger.Info("Processing webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	if event.Data == nil || event.Data.Object == nil {
		r.markLog(ctx, event.ID, models.WebhookStatusFailed, "No stripe data found in event")
		return nil
	}
	obj := event.Data.Object

	if _, ok := obj["customer"]; !ok {
		r.markLog(ctx, event.ID, models.WebhookStatusSkipped, "No customer field found")
		return nil
	}

	// One-time payments are reconciled exclusively via
	// checkout.session.completed to avoid double booking.
	if event.Type == "payment_intent.succeeded" && obj["invoice"] == nil {
		r.markLog(ctx, event.ID, models.WebhookStatusSkipped,
			"One-time payment handled by checkout.session.completed")
		return nil
	}

	customerID, ok := obj["customer"].(string)
	if !ok || customerID == "" {
		r.markLog(ctx, event.ID, models.WebhookStatusFailed, "Invalid customer ID")
		return nil
	}

	isSubscription := true
	var session stripe.CheckoutSession
	if event.Type == "checkout.session.completed" {
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			r.markLog(ctx, event.ID, models.WebhookStatusFailed,
				fmt.Sprintf("Processing error: %v", err))
			return fmt.Errorf("failed to parse checkout session: %w", err)
		}
		isSubscription = session.Mode == stripe.CheckoutSessionModeSubscription
	}

	if isSubscription {
		if err := r.syncCustomerSubscription(ctx, customerID); err != nil {
			r.markLog(ctx, event.ID, models.WebhookStatusFailed,
				fmt.Sprintf("Processing error: %v", err))
			return err
		}
		r.markLog(ctx, event.ID, models.WebhookStatusCompleted, "Subscription synced successfully")
		return nil
	}

	if session.Mode == stripe.CheckoutSessionModePayment &&
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return r.recordOrder(ctx, event.ID, customerID, &session)
	}

	r.markLog(ctx, event.ID, models.WebhookStatusSkipped,
		fmt.Sprintf("Unhandled payment mode or status: %s/%s", session.Mode, session.PaymentStatus))
	return nil
}

// syncCustomerSubscription re-fetches the customer's subscription state from
// Stripe and upserts it keyed by customer id. A customer is assumed to have at
// most one meaningful subscription.
func (r *Reconciler) syncCustomerSubscription(ctx context.Context, customerID string) error {
	state, err := r.provider.LatestSubscription(ctx, customerID)
	if err != nil {
		return fmt.Errorf("failed to fetch subscriptions for customer %s: %w", customerID, err)
	}

	if state == nil {
		r.logger.Info("No subscriptions found, setting status to not_started",
			zap.String("customer_id", customerID))
		if err := r.store.UpsertSubscriptionStatus(ctx, customerID, models.SubscriptionStatusNotStarted); err != nil {
			return fmt.Errorf("failed to update subscription status: %w", err)
		}
		util.SubscriptionsSyncedTotal.Inc()
		return nil
	}

	sub := &models.Subscription{
		CustomerID:         customerID,
		SubscriptionID:     &state.ID,
		CurrentPeriodStart: &state.CurrentPeriodStart,
		CurrentPeriodEnd:   &state.CurrentPeriodEnd,
		CancelAtPeriodEnd:  state.CancelAtPeriodEnd,
		Status:             state.Status,
	}
	if state.PriceID != "" {
		sub.PriceID = &state.PriceID
	}
	if state.PaymentMethodBrand != "" {
		sub.PaymentMethodBrand = &state.PaymentMethodBrand
	}
	if state.PaymentMethodLast4 != "" {
		sub.PaymentMethodLast4 = &state.PaymentMethodLast4
	}

	if err := r.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to sync subscription for customer %s: %w", customerID, err)
	}

	util.SubscriptionsSyncedTotal.Inc()
	r.logger.Info("Synced subscription",
		zap.String("customer_id", customerID),
		zap.String("subscription_id", state.ID))
	return nil
}

// recordOrder inserts the order for a paid one-time checkout session. Insert
// failures are absorbed into the log; a duplicate delivery of the same session
// is detected via the unique constraint and marked skipped.
func (r *Reconciler) recordOrder(ctx context.Context, eventID, customerID string, session *stripe.CheckoutSession) error {
	orderNumber, err := r.store.GenerateOrderNumber(ctx)
	if err != nil {
		r.markLog(ctx, eventID, models.WebhookStatusFailed,
			fmt.Sprintf("Processing error: %v", err))
		return err
	}

	order := &models.Order{
		OrderNumber:       orderNumber,
		CheckoutSessionID: session.ID,
		CustomerID:        customerID,
		AmountSubtotal:    session.AmountSubtotal,
		AmountTotal:       session.AmountTotal,
		Currency:          string(session.Currency),
		PaymentStatus:     string(session.PaymentStatus),
		Status:            models.OrderStatusCompleted,
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		order.PaymentIntentID = &session.PaymentIntent.ID
	}

	if err := r.store.CreateOrder(ctx, order); err != nil {
		if store.IsUniqueViolation(err) {
			r.logger.Info("Duplicate checkout session delivery, order already recorded",
				zap.String("checkout_session_id", session.ID))
			r.markLog(ctx, eventID, models.WebhookStatusSkipped, "Duplicate checkout session")
			return nil
		}
		r.logger.Error("Error inserting order",
			zap.String("customer_id", customerID),
			zap.String("checkout_session_id", session.ID),
			zap.Error(err))
		r.markLog(ctx, eventID, models.WebhookStatusFailed,
			fmt.Sprintf("Order insertion failed: %v", err))
		return nil
	}

	util.OrdersRecordedTotal.Inc()
	r.logger.Info("Recorded one-time payment order",
		zap.String("order_number", orderNumber),
		zap.String("checkout_session_id", session.ID),
		zap.String("customer_id", customerID))
	r.markLog(ctx, eventID, models.WebhookStatusCompleted, "One-time payment processed successfully")
	return nil
}

// markLog records the terminal outcome for an event. Its own failure is
// logged; the audit trail must never break processing.
func (r *Reconciler) markLog(ctx context.Context, eventID, status, message string) {
	util.WebhookEventsProcessedTotal.WithLabelValues(status).Inc()
	if err := r.store.UpdateWebhookLog(ctx, eventID, status, message); err != nil {
		r.logger.Error("Failed to update webhook log",
			zap.String("event_id", eventID),
			zap.Error(err))
	}
}

// extractCustomerID pulls the customer reference out of an event payload when
// one is present.
func extractCustomerID(event stripe.Event) *string {
	if event.Data == nil || event.Data.Object == nil {
		return nil
	}
	if customerID, ok := event.Data.Object["customer"].(string); ok && customerID != "" {
		return &customerID
	}
	return nil
}

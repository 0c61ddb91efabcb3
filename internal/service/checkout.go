package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/stripeclient"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// PaymentProvider is the payment-processor capability the checkout and
// webhook flows depend on. Implemented by stripeclient.Client.
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	CreateZeroPrice(ctx context.Context, name string) (string, error)
	CreateOnceCoupon(ctx context.Context, percentOff float64, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, p stripeclient.SessionParams) (*stripeclient.Session, error)
	LatestSubscription(ctx context.Context, customerID string) (*stripeclient.SubscriptionState, error)
}

type checkoutStore interface {
	GetCustomerIDByUser(ctx context.Context, userID string) (string, error)
	CreateCustomerMapping(ctx context.Context, userID, customerID string) error
	GetSubscriptionByCustomer(ctx context.Context, customerID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, customerID, status string) error
}

// CheckoutService turns a priced cart into a hosted checkout session.
type CheckoutService struct {
	store    checkoutStore
	provider PaymentProvider
	verifier auth.Verifier
	logger   *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(store checkoutStore, provider PaymentProvider, verifier auth.Verifier) *CheckoutService {
	return &CheckoutService{
		store:    store,
		provider: provider,
		verifier: verifier,
		logger:   util.GetLogger(),
	}
}

// CheckoutRequest is the request body for session creation. Required fields
// are pointers so a missing field is distinguishable from a zero value.
type CheckoutRequest struct {
	PriceID        *string  `json:"price_id"`
	Mode           *string  `json:"mode"`
	SuccessURL     *string  `json:"success_url"`
	CancelURL      *string  `json:"cancel_url"`
	GuestCheckout  *bool    `json:"guest_checkout"`
	DiscountCode   *string  `json:"discount_code"`
	DiscountAmount *float64 `json:"discount_amount"`
}

// Validate checks every field and reports the first offending one.
func (r *CheckoutRequest) Validate() error {
	required := []struct {
		name  string
		isSet bool
	}{
		{"price_id", r.PriceID != nil},
		{"success_url", r.SuccessURL != nil},
		{"cancel_url", r.CancelURL != nil},
		{"mode", r.Mode != nil},
		{"guest_checkout", r.GuestCheckout != nil},
	}
	for _, f := range required {
		if !f.isSet {
			return models.NewValidationError("Missing required parameter %s", f.name)
		}
	}

	if *r.Mode != models.CheckoutModePayment && *r.Mode != models.CheckoutModeSubscription {
		return models.NewValidationError("Expected parameter mode to be one of %s, %s",
			models.CheckoutModePayment, models.CheckoutModeSubscription)
	}
	return nil
}

// CreateSession validates the request, resolves or creates the payer identity,
// assembles line items and discounts, and requests a hosted checkout session.
func (s *CheckoutService) CreateSession(ctx context.Context, req *CheckoutRequest, token string) (*stripeclient.Session, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateSession")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if err := req.Validate(); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	customerID, err := s.resolveCustomer(ctx, req, token)
	if err != nil {
		return nil, err
	}

	priceID, couponID, err := s.applyDiscount(ctx, req)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("processor").Inc()
		return nil, err
	}

	metadata := make(map[string]string)
	if req.DiscountCode != nil && *req.DiscountCode != "" {
		metadata["discount_code"] = *req.DiscountCode
	}
	if req.DiscountAmount != nil && *req.DiscountAmount != 0 {
		metadata["discount_amount"] = strconv.FormatFloat(*req.DiscountAmount, 'f', -1, 64)
	}

	session, err := s.provider.CreateCheckoutSession(ctx, stripeclient.SessionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		Mode:       *req.Mode,
		SuccessURL: *req.SuccessURL,
		CancelURL:  *req.CancelURL,
		CouponID:   couponID,
		Metadata:   metadata,
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("processor").Inc()
		return nil, &models.ProcessorError{Err: err}
	}

	util.CheckoutSessionsCreatedTotal.WithLabelValues(*req.Mode).Inc()
	s.logger.Info("Created checkout session",
		zap.String("session_id", session.ID),
		zap.String("customer_id", customerID),
		zap.String("mode", *req.Mode))

	return session, nil
}

// resolveCustomer maps the request to a Stripe customer id, creating customer
// records and local mappings as needed.
func (s *CheckoutService) resolveCustomer(ctx context.Context, req *CheckoutRequest, token string) (string, error) {
	if *req.GuestCheckout {
		customerID, err := s.provider.CreateCustomer(ctx, "", map[string]string{
			"guest_checkout": "true",
		})
		if err != nil {
			util.CheckoutFailedTotal.WithLabelValues("processor").Inc()
			return "", &models.ProcessorError{Err: err}
		}

		util.GuestCustomersCreatedTotal.Inc()
		s.logger.Info("Created guest customer for checkout", zap.String("customer_id", customerID))
		return customerID, nil
	}

	user, err := s.verifier.GetUser(ctx, token)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("auth").Inc()
		return "", &models.AuthError{Message: "Failed to authenticate user"}
	}
	if user == nil {
		util.CheckoutFailedTotal.WithLabelValues("auth").Inc()
		return "", &models.NotFoundError{Message: "User not found"}
	}

	existing, err := s.store.GetCustomerIDByUser(ctx, user.ID)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("storage").Inc()
		return "", &models.StorageError{Message: "Failed to fetch customer information", Err: err}
	}

	if existing == "" {
		return s.createMappedCustomer(ctx, req, user)
	}

	if *req.Mode == models.CheckoutModeSubscription {
		sub, err := s.store.GetSubscriptionByCustomer(ctx, existing)
		if err != nil {
			util.CheckoutFailedTotal.WithLabelValues("storage").Inc()
			return "", &models.StorageError{Message: "Failed to fetch subscription information", Err: err}
		}
		if sub == nil {
			if err := s.store.CreateSubscription(ctx, existing, models.SubscriptionStatusNotStarted); err != nil {
				util.CheckoutFailedTotal.WithLabelValues("storage").Inc()
				return "", &models.StorageError{Message: "Failed to create subscription record for existing customer", Err: err}
			}
		}
	}

	return existing, nil
}

// createMappedCustomer creates a Stripe customer for an authenticated user and
// persists the mapping. On any persistence failure the just-created Stripe
// customer is deleted best-effort before the original error is surfaced.
func (s *CheckoutService) createMappedCustomer(ctx context.Context, req *CheckoutRequest, user *auth.User) (string, error) {
	customerID, err := s.provider.CreateCustomer(ctx, user.Email, map[string]string{
		"userId": user.ID,
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("processor").Inc()
		return "", &models.ProcessorError{Err: err}
	}

	s.logger.Info("Created new Stripe customer",
		zap.String("customer_id", customerID),
		zap.String("user_id", user.ID))

	if err := s.store.CreateCustomerMapping(ctx, user.ID, customerID); err != nil {
		s.compensateCustomer(ctx, customerID)
		util.CheckoutFailedTotal.WithLabelValues("storage").Inc()
		return "", &models.StorageError{Message: "Failed to create customer mapping", Err: err}
	}

	if *req.Mode == models.CheckoutModeSubscription {
		if err := s.store.CreateSubscription(ctx, customerID, models.SubscriptionStatusNotStarted); err != nil {
			s.compensateCustomer(ctx, customerID)
			util.CheckoutFailedTotal.WithLabelValues("storage").Inc()
			return "", &models.StorageError{Message: "Unable to save the subscription in the database", Err: err}
		}
	}

	return customerID, nil
}

// compensateCustomer deletes a Stripe customer created earlier in the same
// request. Its own failure is logged and must not mask the original error.
func (s *CheckoutService) compensateCustomer(ctx context.Context, customerID string) {
	if err := s.provider.DeleteCustomer(ctx, customerID); err != nil {
		s.logger.Error("Failed to clean up Stripe customer after mapping error",
			zap.String("customer_id", customerID),
			zap.Error(err))
	}
}

// applyDiscount materializes the requested discount at the processor: a full
// discount becomes a zero-priced substitute item, a partial one becomes a
// single-use coupon.
func (s *CheckoutService) applyDiscount(ctx context.Context, req *CheckoutRequest) (priceID, couponID string, err error) {
	priceID = *req.PriceID

	if req.DiscountCode == nil || *req.DiscountCode == "" ||
		req.DiscountAmount == nil || *req.DiscountAmount <= 0 {
		return priceID, "", nil
	}

	code := *req.DiscountCode
	amount := *req.DiscountAmount

	if amount >= 100 {
		freePriceID, err := s.provider.CreateZeroPrice(ctx, fmt.Sprintf("Free Product (%s)", code))
		if err != nil {
			return "", "", &models.ProcessorError{Err: err}
		}
		s.logger.Info("Substituted zero-priced item for full discount", zap.String("code", code))
		return freePriceID, "", nil
	}

	couponID, err = s.provider.CreateOnceCoupon(ctx, amount, fmt.Sprintf("Discount Code: %s", code))
	if err != nil {
		return "", "", &models.ProcessorError{Err: err}
	}
	return priceID, couponID, nil
}

package stripeclient

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

// Countries we collect shipping addresses for.
var shippingCountries = []string{
	"US", "CA", "GB", "AU", "DE", "FR", "IT", "ES",
	"NL", "SE", "NO", "DK", "FI", "JP", "SG", "HK",
}

// SessionParams describes a hosted checkout session to create. The price may
// already be a zero-priced substitute; CouponID is set only for partial
// discounts.
type SessionParams struct {
	CustomerID string
	PriceID    string
	Mode       string
	SuccessURL string
	CancelURL  string
	CouponID   string
	Metadata   map[string]string
}

// Session is the created checkout session.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// SubscriptionState is the subset of a Stripe subscription this service
// persists.
type SubscriptionState struct {
	ID                 string
	PriceID            string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	PaymentMethodBrand string
	PaymentMethodLast4 string
	Status             string
}

// Client wraps the Stripe API and webhook verification.
type Client struct {
	api           *client.API
	webhookSecret string
}

// New creates a Stripe client.
func New(secretKey, webhookSecret string) *Client {
	return &Client{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

// ConstructEvent verifies the webhook signature and parses the event.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
}

// CreateCustomer creates a Stripe customer and returns its id.
func (c *Client) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	customer, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return customer.ID, nil
}

// DeleteCustomer removes a Stripe customer. Used as the compensating action
// when local persistence fails after the customer was created.
func (c *Client) DeleteCustomer(ctx context.Context, customerID string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	_, err := c.api.Customers.Del(customerID, params)
	return err
}

// CreateZeroPrice creates a one-off zero-amount price used as the substitute
// line item for fully discounted checkouts.
func (c *Client) CreateZeroPrice(ctx context.Context, name string) (string, error) {
	params := &stripe.PriceParams{
		Currency:   stripe.String(string(stripe.CurrencyUSD)),
		UnitAmount: stripe.Int64(0),
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(name),
		},
	}
	params.Context = ctx

	price, err := c.api.Prices.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create zero price: %w", err)
	}
	return price.ID, nil
}

// CreateOnceCoupon creates a single-use percentage coupon for a partial
// discount.
func (c *Client) CreateOnceCoupon(ctx context.Context, percentOff float64, name string) (string, error) {
	params := &stripe.CouponParams{
		PercentOff: stripe.Float64(percentOff),
		Duration:   stripe.String(string(stripe.CouponDurationOnce)),
		Name:       stripe.String(name),
	}
	params.Context = ctx

	coupon, err := c.api.Coupons.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create coupon: %w", err)
	}
	return coupon.ID, nil
}

// CreateCheckoutSession creates a hosted checkout session with the
// storefront's tax, shipping and contact collection settings.
func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(p.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode: stripe.String(p.Mode),
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{
			Enabled: stripe.Bool(true),
		},
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(shippingCountries),
		},
		CustomerUpdate: &stripe.CheckoutSessionCustomerUpdateParams{
			Shipping: stripe.String("auto"),
		},
		PhoneNumberCollection: &stripe.CheckoutSessionPhoneNumberCollectionParams{
			Enabled: stripe.Bool(true),
		},
		CustomFields: []*stripe.CheckoutSessionCustomFieldParams{
			{
				Key: stripe.String("company"),
				Label: &stripe.CheckoutSessionCustomFieldLabelParams{
					Type:   stripe.String("custom"),
					Custom: stripe.String("Company/Institution (Optional)"),
				},
				Type:     stripe.String("text"),
				Optional: stripe.Bool(true),
			},
		},
		CustomText: &stripe.CheckoutSessionCustomTextParams{
			ShippingAddress: &stripe.CheckoutSessionCustomTextShippingAddressParams{
				Message: stripe.String("Please note that delivery times may vary based on your location."),
			},
			Submit: &stripe.CheckoutSessionCustomTextSubmitParams{
				Message: stripe.String("We'll email you instructions on how to get started."),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx

	if p.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(p.CouponID)},
		}
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &Session{ID: session.ID, URL: session.URL}, nil
}

// LatestSubscription returns the customer's most recent subscription in any
// status, with the default payment method resolved, or nil when the customer
// has none.
func (c *Client) LatestSubscription(ctx context.Context, customerID string) (*SubscriptionState, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.AddExpand("data.default_payment_method")

	iter := c.api.Subscriptions.List(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %w", err)
		}
		return nil, nil
	}

	sub := iter.Subscription()
	state := &SubscriptionState{
		ID:                 sub.ID,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Status:             string(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		state.PriceID = sub.Items.Data[0].Price.ID
	}
	if pm := sub.DefaultPaymentMethod; pm != nil && pm.Card != nil {
		state.PaymentMethodBrand = string(pm.Card.Brand)
		state.PaymentMethodLast4 = pm.Card.Last4
	}
	return state, nil
}

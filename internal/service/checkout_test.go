package service

import (
	"context"
	"errors"
	"testing"

	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/stripeclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	createCustomerErr  error
	createdCustomers   []map[string]string
	deletedCustomers   []string
	zeroPrices         []string
	coupons            []string
	lastSessionParams  stripeclient.SessionParams
	sessionErr         error
	latestSubscription *stripeclient.SubscriptionState
	latestErr          error
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	if f.createCustomerErr != nil {
		return "", f.createCustomerErr
	}
	f.createdCustomers = append(f.createdCustomers, metadata)
	return "cus_test_1", nil
}

func (f *fakeProvider) DeleteCustomer(ctx context.Context, customerID string) error {
	f.deletedCustomers = append(f.deletedCustomers, customerID)
	return nil
}

func (f *fakeProvider) CreateZeroPrice(ctx context.Context, name string) (string, error) {
	f.zeroPrices = append(f.zeroPrices, name)
	return "price_free_1", nil
}

func (f *fakeProvider) CreateOnceCoupon(ctx context.Context, percentOff float64, name string) (string, error) {
	f.coupons = append(f.coupons, name)
	return "coupon_1", nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, p stripeclient.SessionParams) (*stripeclient.Session, error) {
	f.lastSessionParams = p
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return &stripeclient.Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (f *fakeProvider) LatestSubscription(ctx context.Context, customerID string) (*stripeclient.SubscriptionState, error) {
	return f.latestSubscription, f.latestErr
}

type fakeCheckoutStore struct {
	customerByUser  map[string]string
	mappingErr      error
	mappings        []string
	subscriptionErr error
	subscriptions   []string
	existingSub     *models.Subscription
}

func (f *fakeCheckoutStore) GetCustomerIDByUser(ctx context.Context, userID string) (string, error) {
	return f.customerByUser[userID], nil
}

func (f *fakeCheckoutStore) CreateCustomerMapping(ctx context.Context, userID, customerID string) error {
	if f.mappingErr != nil {
		return f.mappingErr
	}
	f.mappings = append(f.mappings, userID+"/"+customerID)
	return nil
}

func (f *fakeCheckoutStore) GetSubscriptionByCustomer(ctx context.Context, customerID string) (*models.Subscription, error) {
	return f.existingSub, nil
}

func (f *fakeCheckoutStore) CreateSubscription(ctx context.Context, customerID, status string) error {
	if f.subscriptionErr != nil {
		return f.subscriptionErr
	}
	f.subscriptions = append(f.subscriptions, customerID+"/"+status)
	return nil
}

type fakeVerifier struct {
	user *auth.User
	err  error
}

func (f *fakeVerifier) GetUser(ctx context.Context, token string) (*auth.User, error) {
	return f.user, f.err
}

func strp(s string) *string    { return &s }
func boolp(b bool) *bool       { return &b }
func floatp(f float64) *float64 { return &f }

func validRequest() *CheckoutRequest {
	return &CheckoutRequest{
		PriceID:       strp("price_123"),
		Mode:          strp(models.CheckoutModePayment),
		SuccessURL:    strp("https://shop.test/success"),
		CancelURL:     strp("https://shop.test/cancel"),
		GuestCheckout: boolp(true),
	}
}

func TestValidateMissingFieldOrder(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CheckoutRequest)
		wantMsg string
	}{
		{"missing price_id", func(r *CheckoutRequest) { r.PriceID = nil }, "Missing required parameter price_id"},
		{"missing success_url", func(r *CheckoutRequest) { r.SuccessURL = nil }, "Missing required parameter success_url"},
		{"missing cancel_url", func(r *CheckoutRequest) { r.CancelURL = nil }, "Missing required parameter cancel_url"},
		{"missing mode", func(r *CheckoutRequest) { r.Mode = nil }, "Missing required parameter mode"},
		{"missing guest_checkout", func(r *CheckoutRequest) { r.GuestCheckout = nil }, "Missing required parameter guest_checkout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := req.Validate()
			require.Error(t, err)

			var vErr *models.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantMsg, vErr.Message)
		})
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	req := validRequest()
	req.Mode = strp("installments")

	err := req.Validate()
	require.Error(t, err)

	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Message, "Expected parameter mode")
}

func TestCreateSessionInvalidModeFailsBeforeExternalCalls(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeCheckoutStore{}
	svc := NewCheckoutService(store, provider, &fakeVerifier{})

	req := validRequest()
	req.Mode = strp("donation")

	_, err := svc.CreateSession(context.Background(), req, "")
	require.Error(t, err)

	var vErr *models.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Empty(t, provider.createdCustomers)
	assert.Empty(t, store.mappings)
}

func TestCreateSessionGuestCheckout(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeCheckoutStore{}
	svc := NewCheckoutService(store, provider, &fakeVerifier{})

	session, err := svc.CreateSession(context.Background(), validRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.NotEmpty(t, session.URL)

	// guest customers are tagged but never mapped locally
	require.Len(t, provider.createdCustomers, 1)
	assert.Equal(t, "true", provider.createdCustomers[0]["guest_checkout"])
	assert.Empty(t, store.mappings)
	assert.Empty(t, store.subscriptions)
}

func TestCreateSessionAuthenticatedNewCustomer(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeCheckoutStore{customerByUser: map[string]string{}}
	verifier := &fakeVerifier{user: &auth.User{ID: "user-1", Email: "u@shop.test"}}
	svc := NewCheckoutService(store, provider, verifier)

	req := validRequest()
	req.GuestCheckout = boolp(false)
	req.Mode = strp(models.CheckoutModeSubscription)

	session, err := svc.CreateSession(context.Background(), req, "token-1")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)

	require.Len(t, provider.createdCustomers, 1)
	assert.Equal(t, "user-1", provider.createdCustomers[0]["userId"])
	assert.Equal(t, []string{"user-1/cus_test_1"}, store.mappings)
	assert.Equal(t, []string{"cus_test_1/not_started"}, store.subscriptions)
}

func TestCreateSessionReusesExistingCustomer(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeCheckoutStore{customerByUser: map[string]string{"user-1": "cus_existing"}}
	verifier := &fakeVerifier{user: &auth.User{ID: "user-1", Email: "u@shop.test"}}
	svc := NewCheckoutService(store, provider, verifier)

	req := validRequest()
	req.GuestCheckout = boolp(false)

	_, err := svc.CreateSession(context.Background(), req, "token-1")
	require.NoError(t, err)

	assert.Empty(t, provider.createdCustomers)
	assert.Equal(t, "cus_existing", provider.lastSessionParams.CustomerID)
}

func TestCreateSessionSeedsSubscriptionForExistingCustomer(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeCheckoutStore{customerByUser: map[string]string{"user-1": "cus_existing"}}
	verifier := &fakeVerifier{user: &auth.User{ID: "user-1", Email: "u@shop.test"}}
	svc := NewCheckoutService(store, provider, verifier)

	req := validRequest()
	req.GuestCheckout = boolp(false)
	req.Mode = strp(models.CheckoutModeSubscription)

	_, err := svc.CreateSession(context.Background(), req, "token-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cus_existing/not_started"}, store.subscriptions)
}

func TestCreateSessionCompensatesOnMappingFailure(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeCheckoutStore{
		customerByUser: map[string]string{},
		mappingErr:     errors.New("connection refused"),
	}
	verifier := &fakeVerifier{user: &auth.User{ID: "user-1", Email: "u@shop.test"}}
	svc := NewCheckoutService(store, provider, verifier)

	req := validRequest()
	req.GuestCheckout = boolp(false)

	_, err := svc.CreateSession(context.Background(), req, "token-1")
	require.Error(t, err)

	var sErr *models.StorageError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, "Failed to create customer mapping", sErr.Message)
	assert.Equal(t, []string{"cus_test_1"}, provider.deletedCustomers)
}

func TestCreateSessionCompensatesOnSubscriptionSeedFailure(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeCheckoutStore{
		customerByUser:  map[string]string{},
		subscriptionErr: errors.New("connection refused"),
	}
	verifier := &fakeVerifier{user: &auth.User{ID: "user-1", Email: "u@shop.test"}}
	svc := NewCheckoutService(store, provider, verifier)

	req := validRequest()
	req.GuestCheckout = boolp(false)
	req.Mode = strp(models.CheckoutModeSubscription)

	_, err := svc.CreateSession(context.Background(), req, "token-1")
	require.Error(t, err)

	var sErr *models.StorageError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, "Unable to save the subscription in the database", sErr.Message)
	assert.Equal(t, []string{"cus_test_1"}, provider.deletedCustomers)
}

func TestCreateSessionAuthFailure(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewCheckoutService(&fakeCheckoutStore{}, provider, &fakeVerifier{err: auth.ErrInvalidToken})

	req := validRequest()
	req.GuestCheckout = boolp(false)

	_, err := svc.CreateSession(context.Background(), req, "bad-token")
	require.Error(t, err)

	var aErr *models.AuthError
	assert.True(t, errors.As(err, &aErr))
	assert.Empty(t, provider.createdCustomers)
}

func TestCreateSessionUserNotFound(t *testing.T) {
	svc := NewCheckoutService(&fakeCheckoutStore{}, &fakeProvider{}, &fakeVerifier{})

	req := validRequest()
	req.GuestCheckout = boolp(false)

	_, err := svc.CreateSession(context.Background(), req, "token-1")
	require.Error(t, err)

	var nErr *models.NotFoundError
	assert.True(t, errors.As(err, &nErr))
}

func TestCreateSessionFullDiscountSubstitutesZeroPrice(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewCheckoutService(&fakeCheckoutStore{}, provider, &fakeVerifier{})

	req := validRequest()
	req.DiscountCode = strp("FREE4YOU")
	req.DiscountAmount = floatp(100)

	_, err := svc.CreateSession(context.Background(), req, "")
	require.NoError(t, err)

	require.Len(t, provider.zeroPrices, 1)
	assert.Equal(t, "Free Product (FREE4YOU)", provider.zeroPrices[0])
	assert.Empty(t, provider.coupons)
	assert.Equal(t, "price_free_1", provider.lastSessionParams.PriceID)
	assert.Empty(t, provider.lastSessionParams.CouponID)
}

func TestCreateSessionPartialDiscountCreatesCoupon(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewCheckoutService(&fakeCheckoutStore{}, provider, &fakeVerifier{})

	req := validRequest()
	req.DiscountCode = strp("WELCOME10")
	req.DiscountAmount = floatp(10)

	_, err := svc.CreateSession(context.Background(), req, "")
	require.NoError(t, err)

	require.Len(t, provider.coupons, 1)
	assert.Equal(t, "Discount Code: WELCOME10", provider.coupons[0])
	assert.Empty(t, provider.zeroPrices)
	assert.Equal(t, "price_123", provider.lastSessionParams.PriceID)
	assert.Equal(t, "coupon_1", provider.lastSessionParams.CouponID)
}

func TestCreateSessionDiscountMetadata(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewCheckoutService(&fakeCheckoutStore{}, provider, &fakeVerifier{})

	req := validRequest()
	req.DiscountCode = strp("STUDENT25")
	req.DiscountAmount = floatp(236.25)

	_, err := svc.CreateSession(context.Background(), req, "")
	require.NoError(t, err)

	assert.Equal(t, "STUDENT25", provider.lastSessionParams.Metadata["discount_code"])
	assert.Equal(t, "236.25", provider.lastSessionParams.Metadata["discount_amount"])
}

func TestCreateSessionProcessorFailure(t *testing.T) {
	provider := &fakeProvider{sessionErr: errors.New("rate limited")}
	svc := NewCheckoutService(&fakeCheckoutStore{}, provider, &fakeVerifier{})

	_, err := svc.CreateSession(context.Background(), validRequest(), "")
	require.Error(t, err)

	var pErr *models.ProcessorError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "rate limited", pErr.Error())
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/cart"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/zap"
)

// WebhookVerifier checks the authenticity of an incoming webhook payload.
// Implemented by stripeclient.Client.
type WebhookVerifier interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// EventQueue hands verified events off for asynchronous reconciliation.
// Implemented by broker.EventPublisher.
type EventQueue interface {
	PublishWebhookEvent(ctx context.Context, event stripe.Event) error
}

// Handler contains HTTP handlers
type Handler struct {
	checkoutService *service.CheckoutService
	reconciler      *service.Reconciler
	publisher       EventQueue
	verifier        WebhookVerifier
	cartStore       cart.Store
	catalog         cart.Catalog
	logger          *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkoutService *service.CheckoutService,
	reconciler *service.Reconciler,
	publisher EventQueue,
	verifier WebhookVerifier,
	cartStore cart.Store,
	catalog cart.Catalog,
) *Handler {
	return &Handler{
		checkoutService: checkoutService,
		reconciler:      reconciler,
		publisher:       publisher,
		verifier:        verifier,
		cartStore:       cartStore,
		catalog:         catalog,
		logger:          util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.HandleMethodNotAllowed = true

	// the checkout endpoint is called straight from storefront browsers
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
	}))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhook/stripe", h.stripeWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.createCheckoutSession)

		carts := v1.Group("/carts/:id")
		{
			carts.GET("", h.getCart)
			carts.DELETE("", h.clearCart)
			carts.POST("/items", h.addCartItem)
			carts.PUT("/items/:itemID", h.updateCartItem)
			carts.DELETE("/items/:itemID", h.removeCartItem)
			carts.POST("/discount", h.applyDiscount)
			carts.DELETE("/discount", h.removeDiscount)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createCheckoutSession handles hosted checkout session creation
func (h *Handler) createCheckoutSession(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	token := bearerToken(c.GetHeader("Authorization"))

	session, err := h.checkoutService.CreateSession(c.Request.Context(), &req, token)
	if err != nil {
		status, msg := checkoutErrorStatus(err)
		h.logger.Warn("Checkout session creation failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Int("status", status),
			zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, session)
}

// checkoutErrorStatus maps checkout errors to HTTP responses. Storage errors
// return a stable message; processor errors pass the processor's message
// through.
func checkoutErrorStatus(err error) (int, string) {
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, vErr.Message
	}
	var aErr *models.AuthError
	if errors.As(err, &aErr) {
		return http.StatusUnauthorized, aErr.Message
	}
	var nErr *models.NotFoundError
	if errors.As(err, &nErr) {
		return http.StatusNotFound, nErr.Message
	}
	var sErr *models.StorageError
	if errors.As(err, &sErr) {
		return http.StatusInternalServerError, sErr.Message
	}
	return http.StatusInternalServerError, err.Error()
}

// stripeWebhook verifies the event signature, records intake, queues the
// event for reconciliation and acknowledges immediately. Processing outcome
// never influences the response.
func (h *Handler) stripeWebhook(c *gin.Context) {
	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrSignatureMissing.Error()})
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	event, err := h.verifier.ConstructEvent(payload, sigHeader)
	if err != nil {
		util.WebhookSignatureFailuresTotal.Inc()
		h.logger.Warn("Webhook signature verification failed", zap.Error(err))
		sErr := &models.SignatureError{Err: err}
		c.JSON(http.StatusBadRequest, gin.H{"error": sErr.Error()})
		return
	}

	util.WebhookEventsReceivedTotal.WithLabelValues(string(event.Type)).Inc()
	h.reconciler.LogIntake(c.Request.Context(), event)

	if err := h.publisher.PublishWebhookEvent(c.Request.Context(), event); err != nil {
		// let the sender redeliver; nothing has been reconciled yet
		h.logger.Error("Failed to queue webhook event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// getCart returns the cart summary
func (h *Handler) getCart(c *gin.Context) {
	ct := h.loadCart(c)
	c.JSON(http.StatusOK, cartResponse(ct))
}

// clearCart empties the cart and drops any applied discount
func (h *Handler) clearCart(c *gin.Context) {
	ct := h.loadCart(c)
	if err := ct.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist cart"})
		return
	}
	c.JSON(http.StatusOK, cartResponse(ct))
}

// addCartItem adds an item, bumping quantity when it is already present
func (h *Handler) addCartItem(c *gin.Context) {
	var item cart.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if item.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter id"})
		return
	}

	ct := h.loadCart(c)
	if err := ct.AddItem(c.Request.Context(), item); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist cart"})
		return
	}
	c.JSON(http.StatusOK, cartResponse(ct))
}

// updateCartItem sets an item's quantity; zero or less removes it
func (h *Handler) updateCartItem(c *gin.Context) {
	var body struct {
		Quantity *int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Quantity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter quantity"})
		return
	}

	ct := h.loadCart(c)
	if err := ct.UpdateQuantity(c.Request.Context(), c.Param("itemID"), *body.Quantity); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist cart"})
		return
	}
	c.JSON(http.StatusOK, cartResponse(ct))
}

// removeCartItem removes an item entirely
func (h *Handler) removeCartItem(c *gin.Context) {
	ct := h.loadCart(c)
	if err := ct.RemoveItem(c.Request.Context(), c.Param("itemID")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist cart"})
		return
	}
	c.JSON(http.StatusOK, cartResponse(ct))
}

// applyDiscount applies a discount code against the current subtotal
func (h *Handler) applyDiscount(c *gin.Context) {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter code"})
		return
	}

	ct := h.loadCart(c)
	ok, err := ct.ApplyDiscountCode(c.Request.Context(), body.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist cart"})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid discount code or minimum order not met"})
		return
	}

	c.JSON(http.StatusOK, cartResponse(ct))
}

// removeDiscount drops the applied discount code
func (h *Handler) removeDiscount(c *gin.Context) {
	ct := h.loadCart(c)
	if err := ct.RemoveDiscountCode(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist cart"})
		return
	}
	c.JSON(http.StatusOK, cartResponse(ct))
}

func (h *Handler) loadCart(c *gin.Context) *cart.Cart {
	return cart.Load(c.Request.Context(), h.cartStore, h.catalog, c.Param("id"))
}

func cartResponse(ct *cart.Cart) gin.H {
	resp := gin.H{
		"id":              ct.ID(),
		"items":           ct.Items(),
		"total_items":     ct.TotalItems(),
		"subtotal":        ct.Subtotal(),
		"savings":         ct.Savings(),
		"discount_amount": ct.DiscountAmount(),
		"final_total":     ct.FinalTotal(),
	}
	if d := ct.Discount(); d != nil {
		resp["discount_code"] = d.Code
	} else {
		resp["discount_code"] = nil
	}
	return resp
}

func bearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// requestIDMiddleware tags every request with an id for log correlation,
// honoring one supplied by the caller.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orchestrator *checkout.Orchestrator
	store        *store.Store
	redis        *redisclient.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(orchestrator *checkout.Orchestrator, store *store.Store, redis *redisclient.Client) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		redis:        redis,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)

		v1.GET("/addresses", h.listAddresses)
		v1.POST("/addresses", h.createAddress)
		v1.DELETE("/addresses/:id", h.deleteAddress)

		v1.GET("/cart", h.getCart)
		v1.PUT("/cart", h.putCart)

		v1.POST("/checkout", h.submitCheckout)
		v1.GET("/checkout/:orderID/status", h.checkoutStatus)
		v1.DELETE("/checkout/:orderID", h.cancelCheckout)

		v1.GET("/orders/:id", h.getOrder)
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

// listProducts returns the product catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.store.GetProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list products",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// listAddresses returns the user's addresses
func (h *Handler) listAddresses(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}

	addresses, err := h.store.GetAddressesByUserID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list addresses",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addresses})
}

type createAddressRequest struct {
	Recipient  string `json:"recipient" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
}

// createAddress adds an address for the user
func (h *Handler) createAddress(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}

	var req createAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	address := &models.Address{
		UserID:     userID,
		Recipient:  req.Recipient,
		Line1:      req.Line1,
		City:       req.City,
		PostalCode: req.PostalCode,
		Phone:      req.Phone,
	}

	if err := h.store.CreateAddress(c.Request.Context(), address); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create address",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, address)
}

// deleteAddress removes an address owned by the user
func (h *Handler) deleteAddress(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}

	addressID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address ID"})
		return
	}

	if err := h.store.DeleteAddress(c.Request.Context(), addressID, userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Address not found",
			"details": err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// getCart returns the user's cart
func (h *Handler) getCart(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}

	cart, err := h.redis.GetCart(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load cart",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, cart)
}

// putCart replaces the user's cart
func (h *Handler) putCart(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}

	var cart models.Cart
	if err := c.ShouldBindJSON(&cart); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	cart.UserID = userID

	if err := h.redis.SetCart(c.Request.Context(), &cart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to save cart",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, cart)
}

type submitCheckoutRequest struct {
	AddressID int64  `json:"address_id" binding:"required"`
	Method    string `json:"method" binding:"required,oneof=COD BANK_TRANSFER"`
}

// submitCheckout runs the checkout flow for the user's current cart
func (h *Handler) submitCheckout(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}

	var req submitCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cart, err := h.redis.GetCart(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load cart",
			"details": err.Error(),
		})
		return
	}

	h.orchestrator.SelectAddress(userID, req.AddressID)
	h.orchestrator.SelectMethod(userID, req.Method)

	result, err := h.orchestrator.Submit(c.Request.Context(), userID, cart)
	if err != nil {
		var validationErr *checkout.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  "Checkout validation failed",
				"errors": validationErr.Messages,
			})
		case errors.Is(err, checkout.ErrSubmitInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "Checkout failed",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

// checkoutStatus returns the waiting-dialog projection for an order
func (h *Handler) checkoutStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	state, ok := h.orchestrator.PollingStatus(orderID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No polling session for order"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// cancelCheckout stops the polling session for an order
func (h *Handler) cancelCheckout(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	if !h.orchestrator.CancelPolling(orderID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No polling session for order"})
		return
	}

	c.Status(http.StatusNoContent)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	ctx := c.Request.Context()
	order, err := h.store.GetOrderByID(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}

	items, err := h.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order items",
			"details": err.Error(),
		})
		return
	}

	// COD orders have no payment row; that is not an error.
	payment, err := h.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load payment",
			"details": err.Error(),
		})
		return
	}
	if err != nil {
		payment = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"items":   items,
		"payment": payment,
	})
}

// userIDFrom reads the authenticated user from the X-User-ID header set by
// the auth proxy in front of this service.
func userIDFrom(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid X-User-ID header"})
		return 0, false
	}
	return userID, true
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

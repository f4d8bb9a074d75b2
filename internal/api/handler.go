package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"polimarket/internal/service"
	"polimarket/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the domain services exposed over HTTP
type Services struct {
	Catalog   *service.ProductCatalog
	Stock     *service.StockLedger
	Auth      *service.AuthorizationRegistry
	Sales     *service.SalesWorkflow
	Delivery  *service.DeliveryTracking
	Persons   *service.PersonDirectory
	Suppliers *service.SupplierDirectory
}

// Handler contains HTTP handlers
type Handler struct {
	Services
	db     Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler. db backs the readiness probe.
func NewHandler(services Services, db Pinger) *Handler {
	return &Handler{
		Services: services,
		db:       db,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(tracingMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/products", h.createProduct)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deactivateProduct)
		v1.GET("/products/:id/availability", h.productAvailability)
		v1.GET("/products/:id/subtotal", h.productSubtotal)

		v1.POST("/stock/:productId/restock", h.restock)
		v1.POST("/stock/:productId/reserve", h.reserve)
		v1.GET("/stock/low", h.lowStock)

		v1.POST("/vendors", h.createPerson(kindVendor))
		v1.GET("/vendors", h.listVendors)
		v1.GET("/vendors/:id", h.getPerson(kindVendor))
		v1.PUT("/vendors/:id", h.updatePerson(kindVendor))
		v1.POST("/vendors/:id/authorize", h.authorizeVendor)
		v1.GET("/vendors/:id/authorization", h.authorizationStatus)
		v1.GET("/vendors/:id/sales", h.vendorSales)

		v1.POST("/clients", h.createPerson(kindClient))
		v1.GET("/clients", h.listClients)
		v1.GET("/clients/:id", h.getPerson(kindClient))
		v1.PUT("/clients/:id", h.updatePerson(kindClient))
		v1.GET("/clients/:id/sales", h.clientSales)

		v1.POST("/sales", h.registerSale)
		v1.POST("/sales/open", h.openSale)
		v1.GET("/sales", h.listSales)
		v1.GET("/sales/:id", h.getSale)
		v1.POST("/sales/:id/items", h.addLineItem)
		v1.GET("/sales/:id/total", h.saleTotal)
		v1.GET("/sales/:id/invoice", h.invoice)
		v1.POST("/sales/:id/complete", h.completeSale)
		v1.POST("/sales/:id/cancel", h.cancelSale)

		v1.POST("/deliveries", h.scheduleDelivery)
		v1.GET("/deliveries/:id", h.getDelivery)
		v1.POST("/deliveries/:id/state", h.recordDelivery)
		v1.GET("/deliveries/:id/history", h.deliveryHistory)

		v1.POST("/suppliers", h.createSupplier)
		v1.GET("/suppliers", h.listSuppliers)
		v1.GET("/suppliers/:id", h.getSupplier)
		v1.PUT("/suppliers/:id", h.updateSupplier)
		v1.DELETE("/suppliers/:id", h.deactivateSupplier)
		v1.GET("/suppliers/:id/products", h.suppliedProducts)
		v1.GET("/suppliers/:id/products/:productId", h.supplyInfo)
		v1.POST("/suppliers/:id/purchases", h.recordPurchase)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// writeError maps service errors to status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status, kind := http.StatusInternalServerError, "internal_error"

	switch {
	case errors.Is(err, service.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrUnauthorized):
		status, kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, service.ErrInvalidClient):
		status, kind = http.StatusUnprocessableEntity, "invalid_client"
	case errors.Is(err, service.ErrInsufficientStock):
		status, kind = http.StatusConflict, "insufficient_stock"
	case errors.Is(err, service.ErrInvalidTransition):
		status, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, service.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrInvalidArgument):
		status, kind = http.StatusBadRequest, "invalid_argument"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   kind,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"details": details,
	})
}

// bindJSON binds the body into req, answering 400 on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

// pathID parses a positive int64 path parameter, answering 400 on failure
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return value, true
}

func queryID(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// tracingMiddleware continues the caller's trace and opens a server span
func tracingMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("polimarket/api")
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+name, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
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

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Package httpapi — HTTP/JSON граница сервиса на gin. Бизнес-логики здесь нет:
// обработчики разбирают запрос, вызывают сервис и переводят ошибки в статусы.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/commerce/internal/service/cart"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
	"github.com/vladislavdragonenkov/commerce/internal/service/order"
	"github.com/vladislavdragonenkov/commerce/internal/service/stock"
)

const tracerName = "github.com/vladislavdragonenkov/commerce/internal/transport/httpapi"

// Services — набор сервисов, которые обслуживает граница.
type Services struct {
	Catalog *catalog.Service
	Stock   *stock.Ledger
	Carts   *cart.Service
	Orders  *order.Service
}

// Handler держит сервисы и логгер для обработчиков.
type Handler struct {
	svc    Services
	logger *log.Entry
}

// Option настраивает роутер.
type Option func(*routerOptions)

type routerOptions struct {
	tracerProvider trace.TracerProvider
	propagator     propagation.TextMapPropagator
}

// WithTracerProvider задаёт провайдер трейсов для серверных спанов.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *routerOptions) {
		if provider != nil {
			o.tracerProvider = provider
		}
	}
}

// WithPropagator задаёт формат извлечения trace context из заголовков.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *routerOptions) {
		if p != nil {
			o.propagator = p
		}
	}
}

// NewRouter собирает gin.Engine со всеми маршрутами /api.
func NewRouter(svc Services, logger *log.Entry, options ...Option) *gin.Engine {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	opts := routerOptions{
		tracerProvider: otel.GetTracerProvider(),
		propagator:     otel.GetTextMapPropagator(),
	}
	for _, opt := range options {
		opt(&opts)
	}

	h := &Handler{svc: svc, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing(opts.tracerProvider.Tracer(tracerName), opts.propagator))
	router.Use(requestLogger(logger))

	api := router.Group("/api")
	{
		products := api.Group("/products")
		products.GET("", h.listProducts)
		products.POST("", h.createProduct)
		products.GET("/:id", h.getProduct)
		products.PUT("/:id", h.updateProduct)
		products.DELETE("/:id", h.deleteProduct)
		products.GET("/:id/stock", h.getStock)
		products.POST("/:id/stock", h.adjustStock)

		carts := api.Group("/carts/:userId")
		carts.GET("", h.getCart)
		carts.DELETE("", h.deleteCart)
		carts.POST("/items", h.addCartItem)
		carts.DELETE("/items", h.clearCart)
		carts.PUT("/items/:productId", h.updateCartItem)
		carts.DELETE("/items/:productId", h.removeCartItem)
		carts.GET("/total", h.cartTotal)
		carts.POST("/checkout", h.checkout)

		orders := api.Group("/orders")
		orders.GET("", h.listOrders)
		orders.POST("", h.createOrder)
		orders.GET("/:id", h.getOrder)
		orders.PUT("/:id", h.replaceOrder)
		orders.PATCH("/:id", h.patchOrder)
		orders.DELETE("/:id", h.deleteOrder)
		orders.POST("/:id/complete", h.completeOrder)
		orders.POST("/:id/cancel", h.cancelOrder)

		api.GET("/users/:userId/orders", h.listUserOrders)
	}

	return router
}

// requestLogger пишет одну строку на запрос в logrus вместо gin.Logger.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Warn("request served")
		default:
			entry.Debug("request served")
		}
	}
}

// tracing извлекает входящий trace context и открывает серверный спан на запрос.
func tracing(tracer trace.Tracer, propagator propagation.TextMapPropagator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
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

// queryLimit читает ?limit=; пустое значение даёт 0 (значение по умолчанию сервиса).
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer", Code: "invalid_request"})
		return 0, false
	}
	return limit, true
}

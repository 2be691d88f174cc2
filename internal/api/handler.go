package api

import (
	"net/http"
	"strconv"
	"time"

	"booking-payment-service/internal/service"
	"booking-payment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	bookingService *service.BookingService
}

// NewHandler creates a new HTTP handler
func NewHandler(bookingService *service.BookingService) *Handler {
	return &Handler{
		bookingService: bookingService,
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
		v1.POST("/bookings", h.createBooking)
		v1.POST("/bookings/:ref/approve", h.approveBooking)
		v1.POST("/bookings/:ref/payments", h.submitPayment)
		v1.GET("/bookings/:ref/payment", h.getPaymentStatus)
		v1.GET("/bookings/:ref/activity", h.getActivity)
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

// createBooking registers a new booking application
func (h *Handler) createBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	booking, err := h.bookingService.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// approveBooking locks the payment obligation and opens the payment window
func (h *Handler) approveBooking(c *gin.Context) {
	var req service.ApproveBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	booking, err := h.bookingService.Approve(c.Request.Context(), c.Param("ref"), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// submitPayment accepts a claimed transaction reference and schedules
// background verification
func (h *Handler) submitPayment(c *gin.Context) {
	var req service.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.bookingService.SubmitPayment(c.Request.Context(), c.Param("ref"), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// getPaymentStatus is a pure read of the booking's payment state
func (h *Handler) getPaymentStatus(c *gin.Context) {
	resp, err := h.bookingService.GetPaymentStatus(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getActivity returns the booking's audit trail
func (h *Handler) getActivity(c *gin.Context) {
	entries, err := h.bookingService.GetActivity(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// renderError maps submission rejections onto HTTP statuses. Replay gets a
// distinct reason code so callers can tell it apart from plain validation.
func (h *Handler) renderError(c *gin.Context, err error) {
	reason, ok := service.RejectionReason(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
		return
	}

	status := http.StatusUnprocessableEntity
	switch reason {
	case service.ReasonMalformedTxHash:
		status = http.StatusBadRequest
	case service.ReasonBookingNotFound:
		status = http.StatusNotFound
	case service.ReasonTxAlreadyUsed, service.ReasonStatusConflict, service.ReasonPhaseOrderViolation:
		status = http.StatusConflict
	case service.ReasonQueueFull:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"accepted": false,
		"reason":   string(reason),
		"details":  err.Error(),
	})
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

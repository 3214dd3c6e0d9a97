package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/module/payment/threeds"
	apperrors "github.com/tripfare/payments/internal/shared/errors"
)

// Handler handles HTTP requests for booking payments. It is presentation
// only; every rule lives in the gateway and the service behind it.
type Handler struct {
	gateway       *Gateway
	challenge     *threeds.CallbackTransport
	webhookSecret string
}

// NewHandler creates a new payment handler. challenge may be nil when the
// deployment has no 3DS callback endpoint; an empty webhookSecret disables
// the processor webhook route.
func NewHandler(gateway *Gateway, challenge *threeds.CallbackTransport, webhookSecret string) *Handler {
	return &Handler{gateway: gateway, challenge: challenge, webhookSecret: webhookSecret}
}

// RegisterRoutes registers the payment routes. The status endpoint, the 3DS
// callback and the processor webhook stay reachable without a token: the
// first serves probes, the others are posted by external parties.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authed ...gin.HandlerFunc) {
	public := r.Group("/payments")
	{
		public.GET("/status", h.Status)
		if h.challenge != nil {
			public.POST("/3ds/callback", h.ChallengeCallback)
		}
		if h.webhookSecret != "" {
			public.POST("/webhook", h.ProcessorWebhook)
		}
	}

	payments := r.Group("/payments", authed...)
	{
		payments.POST("", h.CreatePayment)
		payments.GET("", h.ListByBooking)
		payments.GET("/:id", h.GetPayment)
		payments.POST("/:id/process", h.ProcessPayment)
		payments.POST("/:id/capture", h.CapturePayment)
		payments.POST("/:id/refund", h.RefundPayment)
		payments.POST("/:id/cancel", h.CancelPayment)
	}
}

// CreatePayment creates a payment intent for a booking.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest(err.Error()))
		return
	}

	intent, err := h.gateway.CreateBookingPayment(c.Request.Context(), BookingPaymentParams{
		Amount:         req.Amount,
		Currency:       req.Currency,
		BookingType:    domain.BookingType(req.BookingType),
		BookingID:      req.BookingID,
		CustomerID:     c.GetString("user_id"),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusCreated, intent)
}

// ProcessPayment confirms the intent with a tokenized method.
func (h *Handler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest(err.Error()))
		return
	}

	intent, err := h.gateway.ProcessBookingPayment(c.Request.Context(), c.Param("id"),
		&domain.Method{
			ID:   req.PaymentMethodID,
			Type: domain.MethodType(req.PaymentMethodType),
		},
		&ProcessOptions{
			Browser:    req.Browser.toDomain(),
			CardNumber: req.CardNumber,
			ReturnURL:  req.ReturnURL,
		})
	if err != nil {
		writeError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, intent)
}

// CapturePayment captures an authorized intent.
func (h *Handler) CapturePayment(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest(err.Error()))
		return
	}

	intent, err := h.gateway.CaptureBookingPayment(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		writeError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, intent)
}

// RefundPayment refunds a succeeded payment, fully or partially.
func (h *Handler) RefundPayment(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.BadRequest(err.Error()))
		return
	}

	result, err := h.gateway.RefundBookingPayment(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		writeError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelPayment cancels a not-yet-succeeded intent.
func (h *Handler) CancelPayment(c *gin.Context) {
	intent, err := h.gateway.CancelBookingPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, intent)
}

// GetPayment returns the current intent state.
func (h *Handler) GetPayment(c *gin.Context) {
	intent, err := h.gateway.GetBookingPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, intent)
}

// ListByBooking returns the persisted payment records for a booking.
func (h *Handler) ListByBooking(c *gin.Context) {
	bookingID := c.Query("booking_id")
	if bookingID == "" {
		writeError(c, apperrors.BadRequest("booking_id query parameter is required"))
		return
	}

	payments, err := h.gateway.ListBookingPayments(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, apperrors.Internal("failed to list payments", err))
		return
	}

	out := make([]PaymentRecordResponse, len(payments))
	for i, p := range payments {
		out[i] = toPaymentRecordResponse(p)
	}
	c.JSON(http.StatusOK, gin.H{"payments": out})
}

// Status reports gateway readiness.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.Status())
}

// ChallengeCallback receives the CRes posted back by the challenge page and
// forwards it to the waiting 3DS handler. The origin is taken from the
// request, never from the body; untrusted origins are filtered downstream.
func (h *Handler) ChallengeCallback(c *gin.Context) {
	var msg threeds.ChallengeMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		writeError(c, apperrors.BadRequest(err.Error()))
		return
	}
	msg.Origin = c.GetHeader("Origin")

	if err := h.challenge.Deliver(msg); err != nil {
		writeError(c, apperrors.Internal("challenge delivery failed", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"received": true})
}

// ProcessorWebhook receives status events pushed by the payment vendor. The
// payload must carry a valid HMAC-SHA256 signature over the raw body.
func (h *Handler) ProcessorWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		writeError(c, apperrors.BadRequest("unreadable payload"))
		return
	}
	if !validWebhookSignature(h.webhookSecret, payload, c.GetHeader("X-Webhook-Signature")) {
		writeError(c, apperrors.Unauthorized("invalid webhook signature"))
		return
	}

	var event ProcessorEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		writeError(c, apperrors.BadRequest(err.Error()))
		return
	}
	if event.IntentID == "" || event.Status == "" {
		writeError(c, apperrors.BadRequest("payment_intent_id and status are required"))
		return
	}

	if err := h.gateway.ApplyProcessorEvent(c.Request.Context(), event); err != nil {
		writeError(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// --- Helpers ---

// validWebhookSignature checks the hex HMAC-SHA256 of the payload against
// the signature header.
func validWebhookSignature(secret string, payload []byte, header string) bool {
	sig, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(sig, mac.Sum(nil))
}

// toAppError maps service error codes onto the shared HTTP error shape.
func toAppError(err error) *apperrors.AppError {
	var se *Error
	if !errors.As(err, &se) {
		return apperrors.Internal("payment operation failed", err)
	}

	switch se.Code {
	case CodeInvalidAmount, CodeInvalidCurrency, CodeMissingMetadata, CodeInvalidPaymentMethod, CodeInvalidConfig:
		return apperrors.NewAppError(se.Code, se.Message, http.StatusUnprocessableEntity, se)
	case CodeNotInitialized, CodeInitializationFailed:
		return apperrors.NewAppError(se.Code, se.Message, http.StatusServiceUnavailable, se)
	case CodeCardError, CodePaymentDeclined, CodeAuthenticationFailed, CodeThreeDSFailed:
		return apperrors.PaymentFailed(se.Code, se.Message)
	case CodeNetworkError:
		return apperrors.NewAppError(se.Code, se.Message, http.StatusBadGateway, se)
	default:
		return apperrors.NewAppError(se.Code, se.Message, http.StatusInternalServerError, se)
	}
}

func writeError(c *gin.Context, appErr *apperrors.AppError) {
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}

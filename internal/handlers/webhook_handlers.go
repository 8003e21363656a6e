package handlers

import (
	"io"
	"net/http"

	"billdesk/internal/common"
	"billdesk/internal/services"

	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 1 << 20

// WebhookHandlers handles HTTP requests for webhooks
type WebhookHandlers struct {
	paymentService services.PaymentService
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(paymentService services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{paymentService: paymentService}
}

// RazorpayWebhook handles POST /webhooks/razorpay
//
//	@Summary	Gateway payment notifications
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		X-Razorpay-Signature	header	string	true	"HMAC of the body"
//	@Success	200	{object}	common.SuccessResponse
//	@Failure	400	{object}	common.ErrorResponse
//	@Router		/webhooks/razorpay [post]
func (h *WebhookHandlers) RazorpayWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return common.SendError(c, common.NewValidationError("Failed to read request body"))
	}

	signature := c.Request().Header.Get("X-Razorpay-Signature")
	if signature == "" {
		return common.SendError(c, common.NewValidationError("Missing Razorpay signature"))
	}

	result, err := h.paymentService.HandleWebhook(c.Request().Context(), body, signature)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Data: result})
}

package handlers

import (
	"encoding/json"

	"chamapesa/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// webhookAck is the fixed body returned to the gateway. The rail retries
// on anything else, so every webhook endpoint answers 200 with this
// regardless of what processing did.
type webhookAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// PaymentWebhookHandler receives asynchronous gateway callbacks. These
// endpoints are unauthenticated by design: the gateway cannot log in,
// and correlation ids are unguessable.
type PaymentWebhookHandler struct {
	callbackService *services.CallbackService
	logger          *zap.Logger
}

// NewPaymentWebhookHandler creates a new webhook handler
func NewPaymentWebhookHandler(callbackService *services.CallbackService, logger *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		callbackService: callbackService,
		logger:          logger,
	}
}

// STKCallback receives push-payment results
// @Summary STK push callback
// @Description Gateway webhook for push-payment results
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} webhookAck
// @Router /payments/callback [post]
func (h *PaymentWebhookHandler) STKCallback(c *fiber.Ctx) error {
	var payload services.STKCallbackPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		h.logger.Warn("malformed stk callback body dropped", zap.Error(err))
		return h.ack(c)
	}

	h.callbackService.HandleSTKCallback(c.Context(), &payload)
	return h.ack(c)
}

// B2CResult receives disbursement results
// @Summary B2C result callback
// @Description Gateway webhook for disbursement results
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} webhookAck
// @Router /payments/b2c/result [post]
func (h *PaymentWebhookHandler) B2CResult(c *fiber.Ctx) error {
	var payload services.B2CResultPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		h.logger.Warn("malformed b2c result body dropped", zap.Error(err))
		return h.ack(c)
	}

	h.callbackService.HandleB2CResult(c.Context(), &payload)
	return h.ack(c)
}

// B2CTimeout receives disbursement timeout notices
// @Summary B2C timeout callback
// @Description Gateway webhook for disbursements that timed out in the queue
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} webhookAck
// @Router /payments/b2c/timeout [post]
func (h *PaymentWebhookHandler) B2CTimeout(c *fiber.Ctx) error {
	var payload services.B2CResultPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		h.logger.Warn("malformed b2c timeout body dropped", zap.Error(err))
		return h.ack(c)
	}

	h.callbackService.HandleB2CTimeout(c.Context(), &payload)
	return h.ack(c)
}

func (h *PaymentWebhookHandler) ack(c *fiber.Ctx) error {
	return c.JSON(webhookAck{ResultCode: 0, ResultDesc: "Accepted"})
}

// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"log"

	"github.com/blastline/blastline-backend/app/dto"
	businessflow "github.com/blastline/blastline-backend/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// WebhookHandlerInterface defines the contract for platform webhook handlers
type WebhookHandlerInterface interface {
	DeliveryCallback(c fiber.Ctx) error
	ButtonClickCallback(c fiber.Ctx) error
}

// WebhookHandler handles asynchronous platform callbacks
type WebhookHandler struct {
	statusFlow businessflow.DeliveryStatusFlow
	validator  *validator.Validate
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(statusFlow businessflow.DeliveryStatusFlow) *WebhookHandler {
	return &WebhookHandler{
		statusFlow: statusFlow,
		validator:  validator.New(),
	}
}

func (h *WebhookHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WebhookHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// DeliveryCallback ingests one platform delivery status event
// @Summary Delivery Status Callback
// @Description Apply an asynchronous delivery status event; stale and duplicate events are acknowledged without effect
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body dto.DeliveryCallbackRequest true "Delivery status event"
// @Success 200 {object} dto.APIResponse{data=dto.DeliveryCallbackResponse} "Event processed"
// @Failure 400 {object} dto.APIResponse "Malformed event"
// @Failure 404 {object} dto.APIResponse "Unknown message id"
// @Router /api/v1/webhooks/delivery [post]
func (h *WebhookHandler) DeliveryCallback(c fiber.Ctx) error {
	var req dto.DeliveryCallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	result, err := h.statusFlow.ApplyDeliveryEvent(ctx, &req, clientMetadata(c))
	if err != nil {
		switch {
		case businessflow.IsRecipientNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "No recipient for the given message id", "RECIPIENT_NOT_FOUND", nil)
		case businessflow.IsUnknownDeliveryStatus(err) || businessflow.IsInvalidEventTimestamp(err):
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Malformed delivery event", "INVALID_EVENT", nil)
		}
		log.Println("Delivery callback failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Delivery callback failed", "DELIVERY_CALLBACK_FAILED", nil)
	}

	// Dropped events still return 200 so the platform stops redelivering them.
	return h.SuccessResponse(c, fiber.StatusOK, "Delivery event processed", result)
}

// ButtonClickCallback ingests one interactive button click event
// @Summary Button Click Callback
// @Description Record an interactive button press; clicks never change delivery status
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body dto.ButtonClickCallbackRequest true "Button click event"
// @Success 200 {object} dto.APIResponse "Click recorded"
// @Failure 400 {object} dto.APIResponse "Malformed event"
// @Failure 404 {object} dto.APIResponse "Unknown message id"
// @Router /api/v1/webhooks/button-click [post]
func (h *WebhookHandler) ButtonClickCallback(c fiber.Ctx) error {
	var req dto.ButtonClickCallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	if err := h.statusFlow.ApplyButtonClick(ctx, &req, clientMetadata(c)); err != nil {
		if businessflow.IsRecipientNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "No recipient for the given message id", "RECIPIENT_NOT_FOUND", nil)
		}
		log.Println("Button click callback failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Button click callback failed", "BUTTON_CLICK_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Button click recorded", nil)
}

// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/blastline/blastline-backend/app/dto"
	businessflow "github.com/blastline/blastline-backend/business_flow"
	"github.com/blastline/blastline-backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	ImportContacts(c fiber.Ctx) error
	GetCampaignStatus(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	ResumeCampaign(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	lifecycle businessflow.CampaignLifecycleFlow
	validator *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(lifecycle businessflow.CampaignLifecycleFlow) *CampaignHandler {
	return &CampaignHandler{
		lifecycle: lifecycle,
		validator: validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// customerID extracts the authenticated customer from the request boundary.
// Authentication itself is terminated upstream; the gateway forwards the
// resolved customer in X-Customer-ID.
func (h *CampaignHandler) customerID(c fiber.Ctx) (uint, bool) {
	raw := c.Get("X-Customer-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *CampaignHandler) campaignUUID(c fiber.Ctx) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Description Create a new campaign, reserve credits and optionally start dispatching
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateCampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 402 {object} dto.APIResponse "Insufficient credits"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in request", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	ctx, cancel := createRequestContext(c)
	defer cancel()

	result, err := h.lifecycle.CreateCampaign(ctx, &req, clientMetadata(c))
	if err != nil {
		switch {
		case businessflow.IsInsufficientCredits(err):
			return h.ErrorResponse(c, fiber.StatusPaymentRequired, "Insufficient credits", "INSUFFICIENT_CREDITS", nil)
		case businessflow.IsChannelNotFound(err) || businessflow.IsChannelAccessDenied(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Channel not found", "CHANNEL_NOT_FOUND", nil)
		case businessflow.IsChannelNotSendable(err):
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Channel is not sendable", "CHANNEL_NOT_SENDABLE", nil)
		case businessflow.IsTemplateNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Template not found", "TEMPLATE_NOT_FOUND", nil)
		case businessflow.IsTemplateNotSendable(err):
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Template is not approved", "TEMPLATE_NOT_SENDABLE", nil)
		case businessflow.IsNoContacts(err):
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign has no valid contacts", "NO_CONTACTS", nil)
		}

		log.Println("Campaign creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// ImportContacts handles contact sheet uploads
// @Summary Import Contacts
// @Description Parse an uploaded spreadsheet into contacts usable in a campaign creation request
// @Tags Campaigns
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Contact spreadsheet (.xlsx)"
// @Success 200 {object} dto.APIResponse{data=dto.ImportContactsResponse} "Contacts parsed successfully"
// @Failure 400 {object} dto.APIResponse "Invalid or unparsable file"
// @Router /api/v1/campaigns/import [post]
func (h *CampaignHandler) ImportContacts(c fiber.Ctx) error {
	if _, ok := h.customerID(c); !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in request", "MISSING_CUSTOMER_ID", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Contact file is required", "MISSING_FILE", nil)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to open uploaded file", "INVALID_FILE", nil)
	}
	defer file.Close()

	rows, err := utils.ParseContactSheet(file)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse contact sheet", "INVALID_SHEET", err.Error())
	}

	contacts := make([]dto.ContactInput, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, dto.ContactInput{Phone: row.Phone, Variables: row.Variables})
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Contacts parsed successfully", dto.ImportContactsResponse{
		Contacts: contacts,
		Total:    len(contacts),
	})
}

// GetCampaignStatus handles campaign status reads
// @Summary Get Campaign Status
// @Description Get the campaign record with its recipient histogram and progress
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignStatusResponse} "Campaign status"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaignStatus(c fiber.Ctx) error {
	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in request", "MISSING_CUSTOMER_ID", nil)
	}
	campaignUUID, ok := h.campaignUUID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is invalid", "INVALID_CAMPAIGN_UUID", nil)
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	result, err := h.lifecycle.GetStatus(ctx, customerID, campaignUUID)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) || businessflow.IsCampaignAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		log.Println("Campaign status read failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign status read failed", "CAMPAIGN_STATUS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign status retrieved", result)
}

// ListCampaigns handles paginated campaign listing
// @Summary List Campaigns
// @Description List the customer's campaigns, newest first
// @Tags Campaigns
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param status query string false "Filter by campaign status"
// @Success 200 {object} dto.APIResponse{data=dto.ListCampaignsResponse} "Campaigns"
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in request", "MISSING_CUSTOMER_ID", nil)
	}

	req := dto.ListCampaignsRequest{CustomerID: customerID}
	if page := c.Query("page"); page != "" {
		if parsed, err := strconv.Atoi(page); err == nil {
			req.Page = parsed
		}
	}
	if pageSize := c.Query("page_size"); pageSize != "" {
		if parsed, err := strconv.Atoi(pageSize); err == nil {
			req.PageSize = parsed
		}
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	result, err := h.lifecycle.ListCampaigns(ctx, &req)
	if err != nil {
		log.Println("Campaign list failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign list failed", "CAMPAIGN_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved", result)
}

// PauseCampaign handles pause requests
// @Summary Pause Campaign
// @Description Stop admitting new recipients; in-flight sends complete normally
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse "Campaign paused"
// @Failure 409 {object} dto.APIResponse "Campaign cannot be paused in its current status"
// @Router /api/v1/campaigns/{uuid}/pause [post]
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	return h.transitionCampaign(c, "pause", h.lifecycle.Pause)
}

// ResumeCampaign handles resume requests
// @Summary Resume Campaign
// @Description Re-admit a paused campaign for dispatching
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse "Campaign resumed"
// @Failure 409 {object} dto.APIResponse "Campaign cannot be resumed in its current status"
// @Router /api/v1/campaigns/{uuid}/resume [post]
func (h *CampaignHandler) ResumeCampaign(c fiber.Ctx) error {
	return h.transitionCampaign(c, "resume", h.lifecycle.Resume)
}

// CancelCampaign handles cancel requests
// @Summary Cancel Campaign
// @Description Terminate the campaign; unsent recipients are skipped and their credits returned
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse "Campaign cancelled"
// @Failure 409 {object} dto.APIResponse "Campaign is already terminal"
// @Router /api/v1/campaigns/{uuid}/cancel [post]
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	return h.transitionCampaign(c, "cancel", h.lifecycle.Cancel)
}

type campaignTransition func(ctx context.Context, customerID uint, campaignUUID uuid.UUID, metadata *businessflow.ClientMetadata) error

func (h *CampaignHandler) transitionCampaign(c fiber.Ctx, action string, fn campaignTransition) error {
	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in request", "MISSING_CUSTOMER_ID", nil)
	}
	campaignUUID, ok := h.campaignUUID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is invalid", "INVALID_CAMPAIGN_UUID", nil)
	}

	ctx, cancel := createRequestContext(c)
	defer cancel()

	if err := fn(ctx, customerID, campaignUUID, clientMetadata(c)); err != nil {
		switch {
		case businessflow.IsCampaignNotFound(err) || businessflow.IsCampaignAccessDenied(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		case businessflow.IsInvalidCampaignTransition(err):
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot "+action+" in its current status", "CAMPAIGN_TRANSITION_NOT_ALLOWED", nil)
		}
		log.Println("Campaign "+action+" failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign "+action+" failed", "CAMPAIGN_"+strings.ToUpper(action)+"_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign "+action+" applied", nil)
}

package installmenthttp

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/domain/installment"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/inbound"
)

// InstallmentHandler handles installment plan HTTP requests.
type InstallmentHandler struct {
	domain installment.InstallmentDomain
}

// NewInstallmentHandler creates a new installment handler.
func NewInstallmentHandler(domain installment.InstallmentDomain) *InstallmentHandler {
	return &InstallmentHandler{domain: domain}
}

// RegisterRoutes registers the plan owner's routes. r must resolve the caller identity.
func (h *InstallmentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders/:id/installments", h.CreateInstallment)

	installments := r.Group("/installments")
	{
		installments.GET("", h.ListInstallments)
		installments.GET("/:no", h.GetInstallment)
		installments.POST("/:no/pay", h.PayInstallment)
	}
}

// RegisterOperatorRoutes registers back-office routes. r must only admit operators.
func (h *InstallmentHandler) RegisterOperatorRoutes(r *gin.RouterGroup) {
	r.POST("/installments/:no/refund", h.RefundInstallment)
}

// CreateInstallment handles POST /orders/:id/installments.
func (h *InstallmentHandler) CreateInstallment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    "invalid_id",
			Message: "Invalid order ID",
		})
		return
	}

	var req model.CreateInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    "invalid_input",
			Message: err.Error(),
		})
		return
	}

	userID := mustGetUserID(c)

	plan, err := h.domain.CreateInstallment(c.Request.Context(), orderID, userID, req.Count)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// GetInstallment handles GET /installments/:no.
func (h *InstallmentHandler) GetInstallment(c *gin.Context) {
	userID := mustGetUserID(c)

	resp, err := h.domain.GetInstallment(c.Request.Context(), c.Param("no"), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListInstallments handles GET /installments.
func (h *InstallmentHandler) ListInstallments(c *gin.Context) {
	userID := mustGetUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	plans, total, err := h.domain.ListInstallments(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewPaginatedResponse(plans, total, page, pageSize))
}

// PayInstallment handles POST /installments/:no/pay.
func (h *InstallmentHandler) PayInstallment(c *gin.Context) {
	var req model.PayInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    "invalid_input",
			Message: err.Error(),
		})
		return
	}

	userID := mustGetUserID(c)

	resp, err := h.domain.PayNextPeriod(c.Request.Context(), c.Param("no"), userID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RefundInstallment handles POST /admin/installments/:no/refund.
func (h *InstallmentHandler) RefundInstallment(c *gin.Context) {
	var req model.RefundInstallmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Code:    "invalid_input",
				Message: err.Error(),
			})
			return
		}
	}

	if err := h.domain.RefundInstallment(c.Request.Context(), c.Param("no"), req.Reason); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, model.SuccessResponse{
		Message: "Refund submitted",
	})
}

// Compile-time check
var _ inbound.InstallmentHttpPort = (*InstallmentHandler)(nil)

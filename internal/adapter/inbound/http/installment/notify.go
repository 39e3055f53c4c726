package installmenthttp

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/installment/internal/domain/installment"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/inbound"
	"go.uber.org/zap"
)

// NotifyHandler handles asynchronous gateway callbacks.
type NotifyHandler struct {
	domain installment.InstallmentDomain
	logger *zap.Logger
}

// NewNotifyHandler creates a new notify handler.
func NewNotifyHandler(domain installment.InstallmentDomain, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{domain: domain, logger: logger}
}

// RegisterRoutes registers callback routes. r must not require caller identity.
func (h *NotifyHandler) RegisterRoutes(r *gin.RouterGroup) {
	notify := r.Group("/installments")
	{
		notify.POST("/alipay/notify", h.HandleAlipayNotify)
		notify.POST("/wechat/notify", h.HandleWechatNotify)
		notify.POST("/wechat/refund_notify", h.HandleWechatRefundNotify)
	}
}

// HandleAlipayNotify handles POST /installments/alipay/notify.
func (h *NotifyHandler) HandleAlipayNotify(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "fail")
		return
	}

	resp, err := h.domain.HandlePaymentNotify(c.Request.Context(), model.PaymentMethodAlipay, body, notifyHeaders(c))
	if err != nil {
		h.logger.Warn("alipay notify rejected", zap.Error(err))
		c.String(notifyStatus(err), "fail")
		return
	}

	c.String(http.StatusOK, resp)
}

// HandleWechatNotify handles POST /installments/wechat/notify.
func (h *NotifyHandler) HandleWechatNotify(c *gin.Context) {
	h.handleWechat(c, h.domain.HandlePaymentNotify, "wechat notify rejected")
}

// HandleWechatRefundNotify handles POST /installments/wechat/refund_notify.
func (h *NotifyHandler) HandleWechatRefundNotify(c *gin.Context) {
	h.handleWechat(c, h.domain.HandleRefundNotify, "wechat refund notify rejected")
}

type notifyFunc func(ctx context.Context, method model.PaymentMethod, body []byte, headers map[string]string) (string, error)

// handleWechat answers with the JSON bodies WeChat Pay expects.
func (h *NotifyHandler) handleWechat(c *gin.Context, handle notifyFunc, rejected string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "FAIL", "message": "failed to read body"})
		return
	}

	resp, err := handle(c.Request.Context(), model.PaymentMethodWechat, body, notifyHeaders(c))
	if err != nil {
		h.logger.Warn(rejected, zap.Error(err))
		c.JSON(notifyStatus(err), gin.H{"code": "FAIL", "message": err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(resp))
}

// Compile-time check
var _ inbound.InstallmentNotifyHttpPort = (*NotifyHandler)(nil)

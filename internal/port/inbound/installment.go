package inbound

import "github.com/gin-gonic/gin"

// InstallmentHttpPort defines HTTP handler interface for installment plans.
type InstallmentHttpPort interface {
	// CreateInstallment handles POST /orders/:id/installments
	// Splits an unpaid order into a repayment plan.
	CreateInstallment(c *gin.Context)

	// GetInstallment handles GET /installments/:no
	// Returns the plan with its periods and the next period due.
	GetInstallment(c *gin.Context)

	// ListInstallments handles GET /installments
	// Lists plans of the current user.
	ListInstallments(c *gin.Context)

	// PayInstallment handles POST /installments/:no/pay
	// Creates a gateway payment for the next unpaid period.
	PayInstallment(c *gin.Context)

	// RefundInstallment handles POST /admin/installments/:no/refund
	// Refunds every paid period through its gateway.
	RefundInstallment(c *gin.Context)
}

// InstallmentNotifyHttpPort defines HTTP handler interface for gateway callbacks.
type InstallmentNotifyHttpPort interface {
	// HandleAlipayNotify handles POST /installments/alipay/notify
	// Answers "success" or "fail".
	HandleAlipayNotify(c *gin.Context)

	// HandleWechatNotify handles POST /installments/wechat/notify
	// Answers {"code":"SUCCESS"} or {"code":"FAIL"}.
	HandleWechatNotify(c *gin.Context)

	// HandleWechatRefundNotify handles POST /installments/wechat/refund_notify
	HandleWechatRefundNotify(c *gin.Context)
}

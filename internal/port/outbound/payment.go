package outbound

import (
	"context"

	"github.com/shopcore/installment/internal/model"
)

// PaymentGatewayPort defines the operations the installment domain needs from
// a native payment gateway (Alipay/WeChat Pay).
type PaymentGatewayPort interface {
	// Name returns the gateway name.
	Name() string

	// CreateNativePayment creates a payment order for one repayment period.
	CreateNativePayment(ctx context.Context, req *NativePaymentRequest) (*model.ProviderNativeOrder, error)

	// RefundPayment refunds a paid period.
	RefundPayment(ctx context.Context, req *RefundRequest) (*model.ProviderRefund, error)

	// ParseNotify verifies and decodes an asynchronous payment notification.
	ParseNotify(ctx context.Context, body []byte, headers map[string]string) (*model.ProviderNotifyResult, error)
}

// RefundNotifyParserPort is implemented by gateways that report refund
// outcomes asynchronously.
type RefundNotifyParserPort interface {
	// ParseRefundNotify verifies and decodes an asynchronous refund notification.
	ParseRefundNotify(ctx context.Context, body []byte, headers map[string]string) (*model.ProviderRefundNotifyResult, error)
}

// PaymentGatewayRegistryPort resolves gateways by payment method.
type PaymentGatewayRegistryPort interface {
	// Get returns the gateway for a payment method.
	Get(method model.PaymentMethod) (PaymentGatewayPort, error)

	// Register registers a gateway under its name.
	Register(gateway PaymentGatewayPort)
}

// NativePaymentRequest describes a gateway payment for one repayment period.
type NativePaymentRequest struct {
	Scene      model.PaymentScene
	OutTradeNo string
	Amount     int64 // In cents
	Subject    string
	NotifyURL  string
	ReturnURL  string
	Metadata   map[string]string
}

// RefundRequest describes a gateway refund for one repayment period.
type RefundRequest struct {
	OutTradeNo   string
	TradeNo      string
	OutRefundNo  string
	RefundAmount int64 // In cents
	TotalAmount  int64 // In cents
	Reason       string
	NotifyURL    string
}

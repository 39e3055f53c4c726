package model

// PaymentMethod represents a payment gateway a period can be paid through.
type PaymentMethod string

const (
	PaymentMethodAlipay PaymentMethod = "alipay"
	PaymentMethodWechat PaymentMethod = "wechat"
)

// PaymentScene represents the payment scenario.
type PaymentScene string

const (
	PaymentSceneWeb    PaymentScene = "web"    // Desktop web payment
	PaymentSceneH5     PaymentScene = "h5"     // Mobile web payment
	PaymentSceneApp    PaymentScene = "app"    // Native app payment
	PaymentSceneNative PaymentScene = "native" // QR code / scan payment
	PaymentSceneMini   PaymentScene = "mini"   // Mini program payment
)

// Normalized trade statuses reported by gateway adapters.
const (
	TradeStatusPending = "pending"
	TradeStatusSuccess = "success"
	TradeStatusClosed  = "closed"
	TradeStatusFailed  = "failed"
)

// Normalized refund statuses reported by gateway adapters.
const (
	RefundStatusSuccess    = "success"
	RefundStatusProcessing = "processing"
	RefundStatusClosed     = "closed"
	RefundStatusFailed     = "failed"
)

// --- Provider Types ---

// ProviderNativeOrder represents a native payment order from the provider.
type ProviderNativeOrder struct {
	OrderID     string
	TradeNo     string
	PayURL      string
	QRCode      string
	AppPayData  string
	MiniPayData map[string]string
	Amount      int64
	Currency    string
	ExpireTime  int64
}

// ProviderRefund represents a refund answer from the provider.
type ProviderRefund struct {
	RefundNo    string
	OutRefundNo string
	Amount      int64
	Status      string
}

// ProviderNotifyResult is a verified, decoded payment notification.
type ProviderNotifyResult struct {
	TradeNo     string
	OutTradeNo  string
	Amount      int64
	Status      string
	PayerID     string
	PayTime     int64
	RawData     string
	SuccessResp string
}

// ProviderRefundNotifyResult is a verified, decoded refund notification.
type ProviderRefundNotifyResult struct {
	RefundNo    string
	OutRefundNo string
	Status      string
	RawData     string
	SuccessResp string
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
)

const (
	alipaySuccessCode = "10000"
	alipaySuccessResp = "success"
	alipayTimeLayout  = "2006-01-02 15:04:05"
)

// AlipayConfig holds Alipay configuration.
type AlipayConfig struct {
	AppID           string // Application ID
	PrivateKey      string // RSA2 private key (PEM format)
	AlipayPublicKey string // Alipay public key for verification (PEM format)
	IsProd          bool
}

// alipayGateway implements outbound.PaymentGatewayPort for Alipay.
// Alipay refunds complete synchronously, so it does not parse refund notifications.
type alipayGateway struct {
	client *alipay.Client
	config *AlipayConfig
}

// NewAlipayGateway creates a new Alipay gateway.
func NewAlipayGateway(config *AlipayConfig) (outbound.PaymentGatewayPort, error) {
	client, err := alipay.NewClient(config.AppID, config.PrivateKey, config.IsProd)
	if err != nil {
		return nil, fmt.Errorf("create alipay client: %w", err)
	}
	client.AutoVerifySign([]byte(config.AlipayPublicKey))

	return &alipayGateway{client: client, config: config}, nil
}

func (g *alipayGateway) Name() string {
	return string(model.PaymentMethodAlipay)
}

func (g *alipayGateway) CreateNativePayment(ctx context.Context, req *outbound.NativePaymentRequest) (*model.ProviderNativeOrder, error) {
	expireTime := time.Now().Add(30 * time.Minute)

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", req.OutTradeNo)
	bm.Set("total_amount", centsToYuan(req.Amount))
	bm.Set("subject", req.Subject)
	bm.Set("timeout_express", "30m")
	bm.Set("notify_url", req.NotifyURL)
	if req.ReturnURL != "" {
		bm.Set("return_url", req.ReturnURL)
	}
	if len(req.Metadata) > 0 {
		passback, _ := json.Marshal(req.Metadata)
		bm.Set("passback_params", string(passback))
	}

	result := &model.ProviderNativeOrder{
		OrderID:    req.OutTradeNo,
		Amount:     req.Amount,
		Currency:   "CNY",
		ExpireTime: expireTime.Unix(),
	}

	switch req.Scene {
	case model.PaymentSceneWeb:
		bm.Set("product_code", "FAST_INSTANT_TRADE_PAY")
		payURL, err := g.client.TradePagePay(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("create web payment: %w", err)
		}
		result.PayURL = payURL

	case model.PaymentSceneH5:
		bm.Set("product_code", "QUICK_WAP_WAY")
		payURL, err := g.client.TradeWapPay(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("create h5 payment: %w", err)
		}
		result.PayURL = payURL

	case model.PaymentSceneApp:
		bm.Set("product_code", "QUICK_MSECURITY_PAY")
		payStr, err := g.client.TradeAppPay(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("create app payment: %w", err)
		}
		result.AppPayData = payStr

	case model.PaymentSceneNative:
		bm.Set("product_code", "FACE_TO_FACE_PAYMENT")
		resp, err := g.client.TradePrecreate(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("create native payment: %w", err)
		}
		if resp.Response.Code != alipaySuccessCode {
			return nil, fmt.Errorf("alipay error: %s - %s", resp.Response.Code, resp.Response.Msg)
		}
		result.QRCode = resp.Response.QrCode
		result.TradeNo = resp.Response.OutTradeNo

	default:
		return nil, fmt.Errorf("unsupported payment scene: %s", req.Scene)
	}

	return result, nil
}

func (g *alipayGateway) RefundPayment(ctx context.Context, req *outbound.RefundRequest) (*model.ProviderRefund, error) {
	bm := make(gopay.BodyMap)
	if req.TradeNo != "" {
		bm.Set("trade_no", req.TradeNo)
	} else {
		bm.Set("out_trade_no", req.OutTradeNo)
	}
	bm.Set("out_request_no", req.OutRefundNo)
	bm.Set("refund_amount", centsToYuan(req.RefundAmount))
	if req.Reason != "" {
		bm.Set("refund_reason", req.Reason)
	}

	resp, err := g.client.TradeRefund(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	if resp.Response.Code != alipaySuccessCode {
		return nil, fmt.Errorf("alipay refund error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}

	return &model.ProviderRefund{
		RefundNo:    resp.Response.TradeNo,
		OutRefundNo: req.OutRefundNo,
		Amount:      yuanToCents(resp.Response.RefundFee),
		Status:      model.RefundStatusSuccess,
	}, nil
}

// ParseNotify parses and verifies a form-encoded Alipay notification.
func (g *alipayGateway) ParseNotify(ctx context.Context, body []byte, headers map[string]string) (*model.ProviderNotifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	notifyReq, err := alipay.ParseNotifyToBodyMap(req)
	if err != nil {
		return nil, fmt.Errorf("parse notify: %w", err)
	}

	ok, err := alipay.VerifySign(g.config.AlipayPublicKey, notifyReq)
	if err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	if !ok {
		return nil, errors.New("invalid signature")
	}

	var payTime int64
	if gmtPayment := notifyReq.Get("gmt_payment"); gmtPayment != "" {
		if t, err := time.Parse(alipayTimeLayout, gmtPayment); err == nil {
			payTime = t.Unix()
		}
	}

	rawData, _ := json.Marshal(notifyReq)

	return &model.ProviderNotifyResult{
		TradeNo:     notifyReq.Get("trade_no"),
		OutTradeNo:  notifyReq.Get("out_trade_no"),
		Amount:      yuanToCents(notifyReq.Get("total_amount")),
		Status:      mapAlipayTradeStatus(notifyReq.Get("trade_status")),
		PayerID:     notifyReq.Get("buyer_id"),
		PayTime:     payTime,
		RawData:     string(rawData),
		SuccessResp: alipaySuccessResp,
	}, nil
}

// mapAlipayTradeStatus maps an Alipay trade status to a normalized status.
func mapAlipayTradeStatus(status string) string {
	switch status {
	case "WAIT_BUYER_PAY":
		return model.TradeStatusPending
	case "TRADE_CLOSED":
		return model.TradeStatusClosed
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return model.TradeStatusSuccess
	default:
		return status
	}
}

// Compile-time check
var _ outbound.PaymentGatewayPort = (*alipayGateway)(nil)

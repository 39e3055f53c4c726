package gateway

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/wechat/v3"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
)

// WechatConfig holds WeChat Pay configuration.
type WechatConfig struct {
	AppID                 string // Application ID
	MchID                 string // Merchant ID
	APIKeyV3              string // APIv3 key
	SerialNo              string // Merchant certificate serial number
	PrivateKey            string // Merchant private key (PEM format)
	WechatPublicKeySerial string // Platform certificate serial
	WechatPublicKey       string // Platform public key (PEM format)
	IsProd                bool
}

// wechatSuccessResp is the body WeChat Pay expects after a handled notification.
var wechatSuccessResp = mustJSON(map[string]string{"code": "SUCCESS", "message": "OK"})

// wechatHeaders are the signature headers forwarded to the SDK.
var wechatHeaders = []string{
	"Wechatpay-Timestamp",
	"Wechatpay-Nonce",
	"Wechatpay-Signature",
	"Wechatpay-Serial",
}

// wechatGateway implements outbound.PaymentGatewayPort and
// outbound.RefundNotifyParserPort for WeChat Pay.
type wechatGateway struct {
	client    *wechat.ClientV3
	config    *WechatConfig
	publicKey *rsa.PublicKey
}

// NewWechatGateway creates a new WeChat Pay gateway.
func NewWechatGateway(config *WechatConfig) (outbound.PaymentGatewayPort, error) {
	client, err := wechat.NewClientV3(
		config.MchID,
		config.SerialNo,
		config.APIKeyV3,
		config.PrivateKey,
	)
	if err != nil {
		return nil, fmt.Errorf("create wechat client: %w", err)
	}
	if config.IsProd {
		client.SetPlatformCert([]byte(config.WechatPublicKey), config.WechatPublicKeySerial)
	}

	publicKey, err := parseRSAPublicKey(config.WechatPublicKey)
	if err != nil {
		return nil, fmt.Errorf("parse wechat public key: %w", err)
	}

	return &wechatGateway{client: client, config: config, publicKey: publicKey}, nil
}

func (g *wechatGateway) Name() string {
	return string(model.PaymentMethodWechat)
}

func (g *wechatGateway) CreateNativePayment(ctx context.Context, req *outbound.NativePaymentRequest) (*model.ProviderNativeOrder, error) {
	expireTime := time.Now().Add(30 * time.Minute)

	bm := make(gopay.BodyMap)
	bm.Set("appid", g.config.AppID)
	bm.Set("mchid", g.config.MchID)
	bm.Set("description", req.Subject)
	bm.Set("out_trade_no", req.OutTradeNo)
	bm.Set("time_expire", expireTime.Format(time.RFC3339))
	bm.Set("notify_url", req.NotifyURL)
	bm.SetBodyMap("amount", func(am gopay.BodyMap) {
		am.Set("total", req.Amount)
		am.Set("currency", "CNY")
	})

	result := &model.ProviderNativeOrder{
		OrderID:    req.OutTradeNo,
		Amount:     req.Amount,
		Currency:   "CNY",
		ExpireTime: expireTime.Unix(),
	}

	switch req.Scene {
	case model.PaymentSceneNative:
		resp, err := g.client.V3TransactionNative(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("create native payment: %w", err)
		}
		if resp.Code != wechat.Success {
			return nil, fmt.Errorf("wechat error: %d - %s", resp.Code, resp.Error)
		}
		result.QRCode = resp.Response.CodeUrl

	case model.PaymentSceneH5:
		bm.SetBodyMap("scene_info", func(sm gopay.BodyMap) {
			sm.Set("payer_client_ip", clientIP(req.Metadata))
			sm.SetBodyMap("h5_info", func(h5 gopay.BodyMap) {
				h5.Set("type", "Wap")
			})
		})
		resp, err := g.client.V3TransactionH5(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("create h5 payment: %w", err)
		}
		if resp.Code != wechat.Success {
			return nil, fmt.Errorf("wechat error: %d - %s", resp.Code, resp.Error)
		}
		result.PayURL = resp.Response.H5Url

	case model.PaymentSceneApp:
		resp, err := g.client.V3TransactionApp(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("create app payment: %w", err)
		}
		if resp.Code != wechat.Success {
			return nil, fmt.Errorf("wechat error: %d - %s", resp.Code, resp.Error)
		}
		appParams, err := g.client.PaySignOfApp(g.config.AppID, resp.Response.PrepayId)
		if err != nil {
			return nil, fmt.Errorf("sign app payment: %w", err)
		}
		result.AppPayData = mustJSON(appParams)

	case model.PaymentSceneMini, model.PaymentSceneWeb:
		openid := req.Metadata["openid"]
		if openid == "" {
			return nil, errors.New("openid is required for jsapi payment")
		}
		bm.SetBodyMap("payer", func(pm gopay.BodyMap) {
			pm.Set("openid", openid)
		})
		resp, err := g.client.V3TransactionJsapi(ctx, bm)
		if err != nil {
			return nil, fmt.Errorf("create jsapi payment: %w", err)
		}
		if resp.Code != wechat.Success {
			return nil, fmt.Errorf("wechat error: %d - %s", resp.Code, resp.Error)
		}
		jsapi, err := g.client.PaySignOfJSAPI(g.config.AppID, resp.Response.PrepayId)
		if err != nil {
			return nil, fmt.Errorf("sign jsapi payment: %w", err)
		}
		result.MiniPayData = map[string]string{
			"timeStamp": jsapi.TimeStamp,
			"nonceStr":  jsapi.NonceStr,
			"package":   jsapi.Package,
			"signType":  jsapi.SignType,
			"paySign":   jsapi.PaySign,
		}
		result.AppPayData = mustJSON(jsapi)

	default:
		return nil, fmt.Errorf("unsupported payment scene: %s", req.Scene)
	}

	return result, nil
}

func (g *wechatGateway) RefundPayment(ctx context.Context, req *outbound.RefundRequest) (*model.ProviderRefund, error) {
	bm := make(gopay.BodyMap)
	if req.TradeNo != "" {
		bm.Set("transaction_id", req.TradeNo)
	} else {
		bm.Set("out_trade_no", req.OutTradeNo)
	}
	bm.Set("out_refund_no", req.OutRefundNo)
	if req.Reason != "" {
		bm.Set("reason", req.Reason)
	}
	if req.NotifyURL != "" {
		bm.Set("notify_url", req.NotifyURL)
	}
	bm.SetBodyMap("amount", func(am gopay.BodyMap) {
		am.Set("refund", req.RefundAmount)
		am.Set("total", req.TotalAmount)
		am.Set("currency", "CNY")
	})

	resp, err := g.client.V3Refund(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	if resp.Code != wechat.Success {
		return nil, fmt.Errorf("wechat refund error: %d - %s", resp.Code, resp.Error)
	}

	return &model.ProviderRefund{
		RefundNo:    resp.Response.RefundId,
		OutRefundNo: resp.Response.OutRefundNo,
		Amount:      int64(resp.Response.Amount.Refund),
		Status:      mapWechatRefundStatus(resp.Response.Status),
	}, nil
}

// ParseNotify parses, verifies and decrypts a payment notification.
func (g *wechatGateway) ParseNotify(ctx context.Context, body []byte, headers map[string]string) (*model.ProviderNotifyResult, error) {
	notifyReq, err := g.verifyNotify(ctx, body, headers)
	if err != nil {
		return nil, err
	}

	resource, err := notifyReq.DecryptPayCipherText(g.config.APIKeyV3)
	if err != nil {
		return nil, fmt.Errorf("decrypt resource: %w", err)
	}

	var payTime int64
	if resource.SuccessTime != "" {
		if t, err := time.Parse(time.RFC3339, resource.SuccessTime); err == nil {
			payTime = t.Unix()
		}
	}

	var amount int64
	if resource.Amount != nil {
		amount = int64(resource.Amount.Total)
	}

	var payerID string
	if resource.Payer != nil {
		payerID = resource.Payer.Openid
	}

	return &model.ProviderNotifyResult{
		TradeNo:     resource.TransactionId,
		OutTradeNo:  resource.OutTradeNo,
		Amount:      amount,
		Status:      mapWechatTradeStatus(resource.TradeState),
		PayerID:     payerID,
		PayTime:     payTime,
		RawData:     mustJSON(resource),
		SuccessResp: wechatSuccessResp,
	}, nil
}

// ParseRefundNotify parses, verifies and decrypts a refund notification.
func (g *wechatGateway) ParseRefundNotify(ctx context.Context, body []byte, headers map[string]string) (*model.ProviderRefundNotifyResult, error) {
	notifyReq, err := g.verifyNotify(ctx, body, headers)
	if err != nil {
		return nil, err
	}

	resource, err := notifyReq.DecryptRefundCipherText(g.config.APIKeyV3)
	if err != nil {
		return nil, fmt.Errorf("decrypt refund resource: %w", err)
	}

	return &model.ProviderRefundNotifyResult{
		RefundNo:    resource.RefundId,
		OutRefundNo: resource.OutRefundNo,
		Status:      mapWechatRefundStatus(resource.RefundStatus),
		RawData:     mustJSON(resource),
		SuccessResp: wechatSuccessResp,
	}, nil
}

func (g *wechatGateway) verifyNotify(ctx context.Context, body []byte, headers map[string]string) (*wechat.V3NotifyReq, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, h := range wechatHeaders {
		req.Header.Set(h, headers[h])
	}

	notifyReq, err := wechat.V3ParseNotify(req)
	if err != nil {
		return nil, fmt.Errorf("parse notify: %w", err)
	}
	if err := notifyReq.VerifySignByPK(g.publicKey); err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	return notifyReq, nil
}

// parseRSAPublicKey parses a PEM encoded RSA public key or certificate.
func parseRSAPublicKey(pemKey string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate does not contain RSA public key")
		}
		return rsaKey, nil
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaKey, nil
}

// clientIP returns the payer IP passed in metadata.
func clientIP(metadata map[string]string) string {
	if ip := metadata["client_ip"]; ip != "" {
		return ip
	}
	return "127.0.0.1"
}

// mapWechatTradeStatus maps a WeChat trade state to a normalized status.
func mapWechatTradeStatus(status string) string {
	switch status {
	case "NOTPAY", "USERPAYING":
		return model.TradeStatusPending
	case "CLOSED", "REVOKED":
		return model.TradeStatusClosed
	case "SUCCESS":
		return model.TradeStatusSuccess
	case "PAYERROR":
		return model.TradeStatusFailed
	default:
		return status
	}
}

// mapWechatRefundStatus maps a WeChat refund status to a normalized status.
func mapWechatRefundStatus(status string) string {
	switch status {
	case "SUCCESS":
		return model.RefundStatusSuccess
	case "CLOSED":
		return model.RefundStatusClosed
	case "PROCESSING":
		return model.RefundStatusProcessing
	case "ABNORMAL":
		return model.RefundStatusFailed
	default:
		return status
	}
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Compile-time checks
var (
	_ outbound.PaymentGatewayPort     = (*wechatGateway)(nil)
	_ outbound.RefundNotifyParserPort = (*wechatGateway)(nil)
)

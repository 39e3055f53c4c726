package installmenthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/domain/installment"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/utils/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockInstallmentDomain struct {
	mock.Mock
}

func (m *MockInstallmentDomain) CreateInstallment(ctx context.Context, orderID, userID uuid.UUID, count int) (*model.Installment, error) {
	args := m.Called(ctx, orderID, userID, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Installment), args.Error(1)
}

func (m *MockInstallmentDomain) GetInstallment(ctx context.Context, no string, userID uuid.UUID) (*model.InstallmentResponse, error) {
	args := m.Called(ctx, no, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InstallmentResponse), args.Error(1)
}

func (m *MockInstallmentDomain) ListInstallments(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.Installment, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*model.Installment), args.Get(1).(int64), args.Error(2)
}

func (m *MockInstallmentDomain) PayNextPeriod(ctx context.Context, no string, userID uuid.UUID, req *model.PayInstallmentRequest) (*model.InstallmentPaymentResponse, error) {
	args := m.Called(ctx, no, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InstallmentPaymentResponse), args.Error(1)
}

func (m *MockInstallmentDomain) Reconcile(ctx context.Context, outTradeNo string, method model.PaymentMethod, paymentNo string) (*model.SettlementResult, error) {
	args := m.Called(ctx, outTradeNo, method, paymentNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SettlementResult), args.Error(1)
}

func (m *MockInstallmentDomain) HandlePaymentNotify(ctx context.Context, method model.PaymentMethod, body []byte, headers map[string]string) (string, error) {
	args := m.Called(ctx, method, body, headers)
	return args.String(0), args.Error(1)
}

func (m *MockInstallmentDomain) ReconcileRefund(ctx context.Context, outRefundNo string, succeeded bool) (bool, error) {
	args := m.Called(ctx, outRefundNo, succeeded)
	return args.Bool(0), args.Error(1)
}

func (m *MockInstallmentDomain) HandleRefundNotify(ctx context.Context, method model.PaymentMethod, body []byte, headers map[string]string) (string, error) {
	args := m.Called(ctx, method, body, headers)
	return args.String(0), args.Error(1)
}

func (m *MockInstallmentDomain) RecomputeRefundStatus(ctx context.Context, installmentID uuid.UUID) (model.OrderRefundStatus, error) {
	args := m.Called(ctx, installmentID)
	return args.Get(0).(model.OrderRefundStatus), args.Error(1)
}

func (m *MockInstallmentDomain) RefundInstallment(ctx context.Context, no string, reason string) error {
	args := m.Called(ctx, no, reason)
	return args.Error(0)
}

var _ installment.InstallmentDomain = (*MockInstallmentDomain)(nil)

var operatorID = uuid.MustParse("6f1c2b8e-0d4a-4b7e-9a51-3c2f8e7d1a90")

func newRouter(domain installment.InstallmentDomain) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(nil))
	api := router.Group("/api/v1")
	NewNotifyHandler(domain, zap.NewNop()).RegisterRoutes(api)

	handler := NewInstallmentHandler(domain)
	protected := api.Group("")
	protected.Use(middleware.Identity(false))
	handler.RegisterRoutes(protected)

	operators := api.Group("/admin")
	operators.Use(middleware.Identity(false))
	operators.Use(middleware.NewOperatorAuthorizer([]string{operatorID.String()}).RequireOperator())
	handler.RegisterOperatorRoutes(operators)
	return router
}

func serve(router *gin.Engine, method, target, body string, userID uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, userID.String())
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNotifyHandler_Alipay(t *testing.T) {
	t.Run("answers success", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("HandlePaymentNotify", mock.Anything, model.PaymentMethodAlipay, []byte("out_trade_no=INST_0"), mock.Anything).
			Return("success", nil)

		w := serve(newRouter(domain), "POST", "/api/v1/installments/alipay/notify", "out_trade_no=INST_0", uuid.Nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "success", w.Body.String())
		domain.AssertExpectations(t)
	})

	t.Run("answers fail on unknown plan", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("HandlePaymentNotify", mock.Anything, model.PaymentMethodAlipay, mock.Anything, mock.Anything).
			Return("", fmt.Errorf("reconcile: %w", installment.ErrPlanNotFound))

		w := serve(newRouter(domain), "POST", "/api/v1/installments/alipay/notify", "x", uuid.Nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "fail", w.Body.String())
	})

	t.Run("answers fail on storage error", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("HandlePaymentNotify", mock.Anything, model.PaymentMethodAlipay, mock.Anything, mock.Anything).
			Return("", errors.New("db down"))

		w := serve(newRouter(domain), "POST", "/api/v1/installments/alipay/notify", "x", uuid.Nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "fail", w.Body.String())
	})
}

func TestNotifyHandler_Wechat(t *testing.T) {
	t.Run("forwards signature headers", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("HandlePaymentNotify", mock.Anything, model.PaymentMethodWechat, mock.Anything, mock.MatchedBy(func(h map[string]string) bool {
			return h["Wechatpay-Signature"] == "sig" && h["Wechatpay-Serial"] == "serial"
		})).Return(`{"code":"SUCCESS","message":"OK"}`, nil)

		req := httptest.NewRequest("POST", "/api/v1/installments/wechat/notify", strings.NewReader("{}"))
		req.Header.Set("Wechatpay-Signature", "sig")
		req.Header.Set("Wechatpay-Serial", "serial")
		w := httptest.NewRecorder()
		newRouter(domain).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"code":"SUCCESS","message":"OK"}`, w.Body.String())
		domain.AssertExpectations(t)
	})

	t.Run("answers FAIL", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("HandlePaymentNotify", mock.Anything, model.PaymentMethodWechat, mock.Anything, mock.Anything).
			Return("", installment.ErrMalformedCorrelation)

		w := serve(newRouter(domain), "POST", "/api/v1/installments/wechat/notify", "{}", uuid.Nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "FAIL", body["code"])
	})

	t.Run("refund notify", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("HandleRefundNotify", mock.Anything, model.PaymentMethodWechat, mock.Anything, mock.Anything).
			Return(`{"code":"SUCCESS","message":"OK"}`, nil)

		w := serve(newRouter(domain), "POST", "/api/v1/installments/wechat/refund_notify", "{}", uuid.Nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "SUCCESS")
		domain.AssertNotCalled(t, "HandlePaymentNotify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestInstallmentHandler_Create(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()

	t.Run("creates plan", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("CreateInstallment", mock.Anything, orderID, userID, 3).
			Return(&model.Installment{No: "INST2024001", OrderID: orderID, Count: 3}, nil)

		w := serve(newRouter(domain), "POST", "/api/v1/orders/"+orderID.String()+"/installments", `{"count":3}`, userID)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "INST2024001")
	})

	t.Run("requires identity", func(t *testing.T) {
		domain := new(MockInstallmentDomain)

		w := serve(newRouter(domain), "POST", "/api/v1/orders/"+orderID.String()+"/installments", `{"count":3}`, uuid.Nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		domain.AssertNotCalled(t, "CreateInstallment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects invalid order id", func(t *testing.T) {
		w := serve(newRouter(new(MockInstallmentDomain)), "POST", "/api/v1/orders/abc/installments", `{"count":3}`, userID)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_id")
	})

	t.Run("rejects missing count", func(t *testing.T) {
		w := serve(newRouter(new(MockInstallmentDomain)), "POST", "/api/v1/orders/"+orderID.String()+"/installments", `{}`, userID)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_input")
	})

	t.Run("maps domain errors", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{installment.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
			{installment.ErrForbidden, http.StatusForbidden, "forbidden"},
			{installment.ErrPlanExists, http.StatusConflict, "installment_exists"},
			{installment.ErrUnsupportedCount, http.StatusBadRequest, "unsupported_count"},
			{installment.ErrOrderAlreadyPaid, http.StatusBadRequest, "order_already_paid"},
			{errors.New("db down"), http.StatusInternalServerError, "internal_error"},
		}
		for _, tc := range cases {
			t.Run(tc.code, func(t *testing.T) {
				domain := new(MockInstallmentDomain)
				domain.On("CreateInstallment", mock.Anything, orderID, userID, 3).Return(nil, fmt.Errorf("create: %w", tc.err))

				w := serve(newRouter(domain), "POST", "/api/v1/orders/"+orderID.String()+"/installments", `{"count":3}`, userID)

				assert.Equal(t, tc.status, w.Code)
				var body model.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tc.code, body.Code)
			})
		}
	})
}

func TestInstallmentHandler_Get(t *testing.T) {
	userID := uuid.New()
	domain := new(MockInstallmentDomain)
	domain.On("GetInstallment", mock.Anything, "INST2024001", userID).Return(&model.InstallmentResponse{
		Installment: &model.Installment{No: "INST2024001"},
		NextItem:    &model.InstallmentItem{Sequence: 1},
	}, nil)
	domain.On("GetInstallment", mock.Anything, "MISSING", userID).Return(nil, installment.ErrPlanNotFound)

	router := newRouter(domain)

	w := serve(router, "GET", "/api/v1/installments/INST2024001", "", userID)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"next_item"`)

	w = serve(router, "GET", "/api/v1/installments/MISSING", "", userID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInstallmentHandler_List(t *testing.T) {
	userID := uuid.New()
	domain := new(MockInstallmentDomain)
	domain.On("ListInstallments", mock.Anything, userID, 2, 20).
		Return([]*model.Installment{{No: "A"}, {No: "B"}}, int64(22), nil)

	w := serve(newRouter(domain), "GET", "/api/v1/installments?page=2&page_size=500", "", userID)

	assert.Equal(t, http.StatusOK, w.Code)
	var body model.PaginatedResponse[*model.Installment]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(22), body.Total)
	assert.Equal(t, int64(2), body.TotalPages)
	assert.Len(t, body.Data, 2)
}

func TestInstallmentHandler_Pay(t *testing.T) {
	userID := uuid.New()

	t.Run("creates payment", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("PayNextPeriod", mock.Anything, "INST2024001", userID, &model.PayInstallmentRequest{
			Method: model.PaymentMethodWechat,
			Scene:  model.PaymentSceneNative,
		}).Return(&model.InstallmentPaymentResponse{
			InstallmentNo: "INST2024001",
			Sequence:      1,
			OutTradeNo:    "INST2024001_1",
			QRCode:        "weixin://wxpay/1",
		}, nil)

		w := serve(newRouter(domain), "POST", "/api/v1/installments/INST2024001/pay", `{"method":"wechat","scene":"native"}`, userID)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "INST2024001_1")
	})

	t.Run("rejects unknown method", func(t *testing.T) {
		w := serve(newRouter(new(MockInstallmentDomain)), "POST", "/api/v1/installments/INST2024001/pay", `{"method":"stripe","scene":"web"}`, userID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("finished plan", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("PayNextPeriod", mock.Anything, "INST2024001", userID, mock.Anything).Return(nil, installment.ErrPlanFinished)

		w := serve(newRouter(domain), "POST", "/api/v1/installments/INST2024001/pay", `{"method":"alipay","scene":"web"}`, userID)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "installment_finished")
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("PayNextPeriod", mock.Anything, "INST2024001", userID, mock.Anything).Return(nil, installment.ErrProviderNotAvailable)

		w := serve(newRouter(domain), "POST", "/api/v1/installments/INST2024001/pay", `{"method":"alipay","scene":"web"}`, userID)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestInstallmentHandler_Refund(t *testing.T) {
	const target = "/api/v1/admin/installments/INST2024001/refund"

	t.Run("submits refund", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("RefundInstallment", mock.Anything, "INST2024001", "damaged").Return(nil)

		w := serve(newRouter(domain), "POST", target, `{"reason":"damaged"}`, operatorID)

		assert.Equal(t, http.StatusAccepted, w.Code)
		domain.AssertExpectations(t)
	})

	t.Run("empty body", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("RefundInstallment", mock.Anything, "INST2024001", "").Return(nil)

		w := serve(newRouter(domain), "POST", target, "", operatorID)

		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("not refundable", func(t *testing.T) {
		domain := new(MockInstallmentDomain)
		domain.On("RefundInstallment", mock.Anything, "INST2024001", "").Return(installment.ErrRefundNotAllowed)

		w := serve(newRouter(domain), "POST", target, "", operatorID)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "refund_not_allowed")
	})

	t.Run("plan owner cannot approve refunds", func(t *testing.T) {
		domain := new(MockInstallmentDomain)

		w := serve(newRouter(domain), "POST", target, "", uuid.New())

		assert.Equal(t, http.StatusForbidden, w.Code)
		domain.AssertNotCalled(t, "RefundInstallment", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		domain := new(MockInstallmentDomain)

		w := serve(newRouter(domain), "POST", target, "", uuid.Nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("not routed on the user group", func(t *testing.T) {
		domain := new(MockInstallmentDomain)

		w := serve(newRouter(domain), "POST", "/api/v1/installments/INST2024001/refund", "", operatorID)

		assert.Equal(t, http.StatusNotFound, w.Code)
		domain.AssertNotCalled(t, "RefundInstallment", mock.Anything, mock.Anything, mock.Anything)
	})
}

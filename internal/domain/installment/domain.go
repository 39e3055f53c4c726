package installment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
	"github.com/shopcore/installment/internal/utils/metrics"
	"github.com/shopcore/installment/internal/utils/random"
	"github.com/shopcore/installment/internal/utils/requestctx"
	"go.uber.org/zap"
)

// InstallmentDomain defines the installment settlement service interface.
type InstallmentDomain interface {
	// CreateInstallment splits an unpaid order into a plan with a full repayment schedule.
	CreateInstallment(ctx context.Context, orderID, userID uuid.UUID, count int) (*model.Installment, error)

	// GetInstallment returns a plan with its periods and the next period to pay.
	GetInstallment(ctx context.Context, no string, userID uuid.UUID) (*model.InstallmentResponse, error)

	// ListInstallments lists a user's plans.
	ListInstallments(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.Installment, int64, error)

	// PayNextPeriod creates a gateway payment for the lowest-sequence unpaid period.
	PayNextPeriod(ctx context.Context, no string, userID uuid.UUID, req *model.PayInstallmentRequest) (*model.InstallmentPaymentResponse, error)

	// Reconcile applies a verified payment success for out_trade_no "{planNo}_{sequence}".
	Reconcile(ctx context.Context, outTradeNo string, method model.PaymentMethod, paymentNo string) (*model.SettlementResult, error)

	// HandlePaymentNotify verifies a gateway payment notification and reconciles it.
	// It returns the body the gateway expects on success.
	HandlePaymentNotify(ctx context.Context, method model.PaymentMethod, body []byte, headers map[string]string) (string, error)

	// ReconcileRefund applies a refund outcome for out_refund_no "{orderRefundNo}_{sequence}".
	ReconcileRefund(ctx context.Context, outRefundNo string, succeeded bool) (bool, error)

	// HandleRefundNotify verifies a gateway refund notification and reconciles it.
	HandleRefundNotify(ctx context.Context, method model.PaymentMethod, body []byte, headers map[string]string) (string, error)

	// RecomputeRefundStatus derives the order refund status from the plan's paid periods.
	// It returns the status written, or an empty status when the order was left unchanged.
	RecomputeRefundStatus(ctx context.Context, installmentID uuid.UUID) (model.OrderRefundStatus, error)

	// RefundInstallment refunds every paid period of a plan through the gateway that collected it.
	RefundInstallment(ctx context.Context, no string, reason string) error
}

// Config holds installment domain configuration.
type Config struct {
	// FeeRates maps a period count to its fee percentage.
	FeeRates map[int]decimal.Decimal
	// MinAmount is the smallest order total, in cents, that may be split.
	MinAmount int64
	// NotifyBaseURL is the public base URL gateways call back.
	NotifyBaseURL string
	// Subject prefixes the payment subject shown by gateways.
	Subject string
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// SerialNo generates plan numbers. Defaults to random.SerialNo.
	SerialNo func(at time.Time) (string, error)
}

// maxNoAttempts bounds plan number generation when numbers collide.
const maxNoAttempts = 5

// installmentDomain implements InstallmentDomain.
type installmentDomain struct {
	plans    outbound.InstallmentDatabasePort
	items    outbound.InstallmentItemDatabasePort
	orders   outbound.InstallmentOrderPort
	outbox   outbound.OutboxDatabasePort
	tx       outbound.TransactionPort
	cache    outbound.SettlementCachePort
	gateways outbound.PaymentGatewayRegistryPort
	metrics  *metrics.Metrics
	config   *Config
	now      func() time.Time
	serialNo func(at time.Time) (string, error)
	logger   *zap.Logger
}

// NewInstallmentDomain creates a new installment domain service.
// cache may be nil.
func NewInstallmentDomain(
	plans outbound.InstallmentDatabasePort,
	items outbound.InstallmentItemDatabasePort,
	orders outbound.InstallmentOrderPort,
	outbox outbound.OutboxDatabasePort,
	tx outbound.TransactionPort,
	cache outbound.SettlementCachePort,
	gateways outbound.PaymentGatewayRegistryPort,
	m *metrics.Metrics,
	cfg *Config,
	logger *zap.Logger,
) InstallmentDomain {
	if cfg == nil {
		cfg = &Config{}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	serialNo := cfg.SerialNo
	if serialNo == nil {
		serialNo = random.SerialNo
	}
	return &installmentDomain{
		plans:    plans,
		items:    items,
		orders:   orders,
		outbox:   outbox,
		tx:       tx,
		cache:    cache,
		gateways: gateways,
		metrics:  m,
		config:   cfg,
		now:      now,
		serialNo: serialNo,
		logger:   logger,
	}
}

// --- Plan lifecycle ---

func (d *installmentDomain) CreateInstallment(ctx context.Context, orderID, userID uuid.UUID, count int) (*model.Installment, error) {
	rate, ok := d.config.FeeRates[count]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCount, count)
	}

	order, err := d.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	if order.Closed {
		return nil, ErrOrderClosed
	}
	if order.IsPaid() {
		return nil, ErrOrderAlreadyPaid
	}
	if order.TotalAmount < d.config.MinAmount {
		return nil, ErrAmountTooLow
	}

	existing, err := d.plans.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get installment by order: %w", err)
	}
	if existing != nil {
		return nil, ErrPlanExists
	}

	schedule, err := BuildSchedule(order.TotalAmount, count, rate)
	if err != nil {
		return nil, err
	}

	now := d.now()
	plan := &model.Installment{
		ID:          uuid.New(),
		UserID:      userID,
		OrderID:     orderID,
		TotalAmount: order.TotalAmount,
		Count:       count,
		FeeRate:     rate,
		Status:      model.InstallmentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       make([]*model.InstallmentItem, 0, len(schedule)),
	}
	for _, p := range schedule {
		plan.Items = append(plan.Items, &model.InstallmentItem{
			ID:            uuid.New(),
			InstallmentID: plan.ID,
			Sequence:      p.Sequence,
			Base:          p.Base,
			Fee:           p.Fee,
			DueDate:       DueDate(now, p.Sequence),
			RefundStatus:  model.ItemRefundStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := d.createWithUniqueNo(ctx, plan, now); err != nil {
		return nil, err
	}

	d.logger.Info("installment created",
		zap.String("installment_no", plan.No),
		zap.String("order_id", orderID.String()),
		zap.Int("count", count),
		zap.Int64("fees", schedule.Fees()),
	)

	return plan, nil
}

// createWithUniqueNo persists plan under a freshly generated number, retrying
// when the number is already taken.
func (d *installmentDomain) createWithUniqueNo(ctx context.Context, plan *model.Installment, now time.Time) error {
	for attempt := 1; ; attempt++ {
		no, err := d.serialNo(now)
		if err != nil {
			return fmt.Errorf("generate installment no: %w", err)
		}
		plan.No = no

		err = d.plans.Create(ctx, plan)
		if err == nil {
			return nil
		}
		if !errors.Is(err, outbound.ErrDuplicateKey) {
			return fmt.Errorf("create installment: %w", err)
		}

		// The order may have been given a plan concurrently.
		existing, findErr := d.plans.FindByOrderID(ctx, plan.OrderID)
		if findErr != nil {
			return fmt.Errorf("get installment by order: %w", findErr)
		}
		if existing != nil {
			return ErrPlanExists
		}
		if attempt == maxNoAttempts {
			return fmt.Errorf("create installment: no free number after %d attempts: %w", attempt, err)
		}
		d.logger.Warn("installment no taken, retrying",
			zap.String("installment_no", no),
			zap.Int("attempt", attempt),
		)
	}
}

func (d *installmentDomain) GetInstallment(ctx context.Context, no string, userID uuid.UUID) (*model.InstallmentResponse, error) {
	plan, err := d.findPlan(ctx, no)
	if err != nil {
		return nil, err
	}
	if plan.UserID != userID {
		return nil, ErrForbidden
	}

	items, err := d.items.ListByInstallment(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("list installment items: %w", err)
	}
	plan.Items = items

	resp := &model.InstallmentResponse{Installment: plan}
	for _, item := range items {
		if !item.IsPaid() {
			resp.NextItem = item
			break
		}
	}
	return resp, nil
}

func (d *installmentDomain) ListInstallments(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.Installment, int64, error) {
	return d.plans.ListByUser(ctx, userID, page, pageSize)
}

// --- Payment ---

func (d *installmentDomain) PayNextPeriod(ctx context.Context, no string, userID uuid.UUID, req *model.PayInstallmentRequest) (*model.InstallmentPaymentResponse, error) {
	plan, err := d.findPlan(ctx, no)
	if err != nil {
		return nil, err
	}
	if plan.UserID != userID {
		return nil, ErrForbidden
	}

	order, err := d.orders.FindByID(ctx, plan.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Closed {
		return nil, ErrOrderClosed
	}
	if plan.IsFinished() {
		return nil, ErrPlanFinished
	}

	next, err := d.items.FindPending(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("get pending installment item: %w", err)
	}
	if next == nil {
		return nil, ErrPlanFinished
	}

	gateway, err := d.gateways.Get(req.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotAvailable, req.Method)
	}

	outTradeNo := NewCorrelation(plan.No, next.Sequence).String()
	metadata := map[string]string{
		"installment_no": plan.No,
	}
	if req.OpenID != "" {
		metadata["openid"] = req.OpenID
	}

	native, err := gateway.CreateNativePayment(ctx, &outbound.NativePaymentRequest{
		Scene:      req.Scene,
		OutTradeNo: outTradeNo,
		Amount:     next.Total(),
		Subject:    strings.TrimSpace(fmt.Sprintf("%s installment %s", d.config.Subject, plan.No)),
		NotifyURL:  d.notifyURL(req.Method, "notify"),
		ReturnURL:  req.ReturnURL,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create native payment: %w", err)
	}

	return &model.InstallmentPaymentResponse{
		InstallmentNo: plan.No,
		Sequence:      next.Sequence,
		OutTradeNo:    outTradeNo,
		Method:        req.Method,
		PayURL:        native.PayURL,
		QRCode:        native.QRCode,
		AppPayData:    native.AppPayData,
		Amount:        native.Amount,
		Currency:      native.Currency,
		ExpireTime:    native.ExpireTime,
	}, nil
}

func (d *installmentDomain) HandlePaymentNotify(ctx context.Context, method model.PaymentMethod, body []byte, headers map[string]string) (string, error) {
	gateway, err := d.gateways.Get(method)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrProviderNotAvailable, method)
	}

	result, err := gateway.ParseNotify(ctx, body, headers)
	if err != nil {
		return "", fmt.Errorf("parse notify: %w", err)
	}

	// Only successful trades settle a period; anything else is acknowledged
	// so the gateway stops redelivering it.
	if result.Status != model.TradeStatusSuccess {
		d.logger.Info("ignoring payment notification",
			zap.String("method", string(method)),
			zap.String("out_trade_no", result.OutTradeNo),
			zap.String("status", result.Status),
		)
		return result.SuccessResp, nil
	}

	if _, err := d.Reconcile(ctx, result.OutTradeNo, method, result.TradeNo); err != nil {
		return "", err
	}
	return result.SuccessResp, nil
}

func (d *installmentDomain) Reconcile(ctx context.Context, outTradeNo string, method model.PaymentMethod, paymentNo string) (*model.SettlementResult, error) {
	start := time.Now()
	result, err := d.reconcile(ctx, outTradeNo, method, paymentNo)
	d.metrics.RecordReconciliation(string(method), reconcileOutcome(result, err), time.Since(start))

	if err != nil {
		d.logger.Warn("installment reconciliation failed",
			zap.String("request_id", requestctx.RequestID(ctx)),
			zap.String("out_trade_no", outTradeNo),
			zap.String("method", string(method)),
			zap.Error(err),
		)
	}
	return result, err
}

func (d *installmentDomain) reconcile(ctx context.Context, outTradeNo string, method model.PaymentMethod, paymentNo string) (*model.SettlementResult, error) {
	corr, err := ParseCorrelation(outTradeNo)
	if err != nil {
		return &model.SettlementResult{}, err
	}

	if d.isCachedSettled(ctx, outTradeNo) {
		return &model.SettlementResult{Settled: true, AlreadySettled: true}, nil
	}

	plan, err := d.findPlan(ctx, corr.Key)
	if err != nil {
		return &model.SettlementResult{}, err
	}

	item, err := d.items.FindBySequence(ctx, plan.ID, corr.Sequence)
	if err != nil {
		return &model.SettlementResult{}, fmt.Errorf("get installment item: %w", err)
	}
	if item == nil {
		return &model.SettlementResult{}, fmt.Errorf("%w: %s", ErrPeriodNotFound, outTradeNo)
	}
	if item.IsPaid() {
		d.markCachedSettled(ctx, outTradeNo)
		return &model.SettlementResult{Settled: true, AlreadySettled: true}, nil
	}

	result := &model.SettlementResult{}
	err = d.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		return d.settle(ctx, plan.ID, corr, method, paymentNo, result)
	})
	if err != nil {
		return &model.SettlementResult{}, fmt.Errorf("settle installment item: %w", err)
	}

	result.Settled = true
	d.markCachedSettled(ctx, outTradeNo)
	if result.OrderSettled {
		d.metrics.RecordOrderSettled()
	}

	d.logger.Info("installment item settled",
		zap.String("installment_no", plan.No),
		zap.Int("sequence", corr.Sequence),
		zap.String("method", string(method)),
		zap.Bool("already_settled", result.AlreadySettled),
		zap.Bool("plan_repaying", result.PlanRepaying),
		zap.Bool("plan_finished", result.PlanFinished),
		zap.Bool("order_settled", result.OrderSettled),
	)
	return result, nil
}

// settle runs inside the settlement transaction. The plan row lock serializes
// concurrent callbacks for the same plan; the paid_at compare-and-swap decides
// the single winner for a period.
func (d *installmentDomain) settle(ctx context.Context, planID uuid.UUID, corr Correlation, method model.PaymentMethod, paymentNo string, result *model.SettlementResult) error {
	plan, err := d.plans.LockByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("lock installment: %w", err)
	}
	if plan == nil {
		return ErrPlanNotFound
	}

	paidAt := d.now()
	changed, err := d.items.MarkPaid(ctx, plan.ID, corr.Sequence, string(method), paymentNo, paidAt)
	if err != nil {
		return fmt.Errorf("mark installment item paid: %w", err)
	}
	if !changed {
		result.AlreadySettled = true
		return nil
	}

	status := plan.Status

	if corr.Sequence == 0 {
		if status.CanTransitionTo(model.InstallmentStatusRepaying) {
			ok, err := d.plans.UpdateStatus(ctx, plan.ID, status, model.InstallmentStatusRepaying)
			if err != nil {
				return fmt.Errorf("update installment status: %w", err)
			}
			if ok {
				status = model.InstallmentStatusRepaying
				result.PlanRepaying = true
			}
		}

		settled, err := d.orders.Settle(ctx, plan.OrderID, model.PaymentMethodInstallment, plan.No, paidAt)
		if err != nil {
			return fmt.Errorf("settle order: %w", err)
		}
		if settled {
			row, err := toOutbox(NewOrderPaidEvent(plan.OrderID, plan.No, paidAt))
			if err != nil {
				return err
			}
			if err := d.outbox.Append(ctx, row); err != nil {
				return fmt.Errorf("append order paid event: %w", err)
			}
			result.OrderSettled = true
			result.OrderPaidEmitted = true
		} else {
			d.logger.Warn("order not settled by first installment, already paid or closed",
				zap.String("installment_no", plan.No),
				zap.String("order_id", plan.OrderID.String()),
			)
		}
	}

	if corr.Sequence == plan.LastSequence() && status.CanTransitionTo(model.InstallmentStatusFinished) {
		ok, err := d.plans.UpdateStatus(ctx, plan.ID, status, model.InstallmentStatusFinished)
		if err != nil {
			return fmt.Errorf("update installment status: %w", err)
		}
		result.PlanFinished = ok
	}

	return nil
}

// --- Refunds ---

func (d *installmentDomain) HandleRefundNotify(ctx context.Context, method model.PaymentMethod, body []byte, headers map[string]string) (string, error) {
	gateway, err := d.gateways.Get(method)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrProviderNotAvailable, method)
	}
	parser, ok := gateway.(outbound.RefundNotifyParserPort)
	if !ok {
		return "", fmt.Errorf("%w: %s refund notify", ErrProviderNotAvailable, method)
	}

	result, err := parser.ParseRefundNotify(ctx, body, headers)
	if err != nil {
		return "", fmt.Errorf("parse refund notify: %w", err)
	}

	if _, err := d.ReconcileRefund(ctx, result.OutRefundNo, result.Status == model.RefundStatusSuccess); err != nil {
		return "", err
	}
	return result.SuccessResp, nil
}

func (d *installmentDomain) ReconcileRefund(ctx context.Context, outRefundNo string, succeeded bool) (bool, error) {
	corr, err := ParseCorrelation(outRefundNo)
	if err != nil {
		d.metrics.RecordRefund("malformed")
		return false, err
	}

	plan, err := d.plans.FindByOrderRefundNo(ctx, corr.Key)
	if err != nil {
		return false, fmt.Errorf("get installment by refund no: %w", err)
	}
	if plan == nil {
		d.metrics.RecordRefund("not_found")
		return false, fmt.Errorf("%w: refund %s", ErrPlanNotFound, outRefundNo)
	}

	item, err := d.items.FindBySequence(ctx, plan.ID, corr.Sequence)
	if err != nil {
		return false, fmt.Errorf("get installment item: %w", err)
	}
	if item == nil {
		d.metrics.RecordRefund("not_found")
		return false, fmt.Errorf("%w: refund %s", ErrPeriodNotFound, outRefundNo)
	}

	if !succeeded {
		// A failed refund needs manual follow-up and leaves the order
		// refund status untouched.
		if err := d.items.UpdateRefundStatus(ctx, plan.ID, corr.Sequence, model.ItemRefundStatusFailed); err != nil {
			return false, fmt.Errorf("update installment item refund status: %w", err)
		}
		d.metrics.RecordRefund("failed")
		d.logger.Warn("installment item refund failed",
			zap.String("installment_no", plan.No),
			zap.Int("sequence", corr.Sequence),
		)
		return true, nil
	}

	err = d.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		// Callbacks for sibling periods arrive together; the plan lock makes
		// each recomputation see the others' outcomes.
		locked, err := d.plans.LockByID(ctx, plan.ID)
		if err != nil {
			return fmt.Errorf("lock installment: %w", err)
		}
		if locked == nil {
			return ErrPlanNotFound
		}
		if err := d.items.UpdateRefundStatus(ctx, locked.ID, corr.Sequence, model.ItemRefundStatusSuccess); err != nil {
			return fmt.Errorf("update installment item refund status: %w", err)
		}
		_, err = d.recomputeRefundStatus(ctx, locked)
		return err
	})
	if err != nil {
		return false, err
	}

	d.metrics.RecordRefund("success")
	return true, nil
}

func (d *installmentDomain) RecomputeRefundStatus(ctx context.Context, installmentID uuid.UUID) (model.OrderRefundStatus, error) {
	var status model.OrderRefundStatus
	err := d.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		plan, err := d.plans.LockByID(ctx, installmentID)
		if err != nil {
			return fmt.Errorf("lock installment: %w", err)
		}
		if plan == nil {
			return ErrPlanNotFound
		}
		status, err = d.recomputeRefundStatus(ctx, plan)
		return err
	})
	return status, err
}

// recomputeRefundStatus aggregates paid periods: any failed refund marks the
// order failed; all paid periods refunded marks it success; otherwise the
// order is left as is.
func (d *installmentDomain) recomputeRefundStatus(ctx context.Context, plan *model.Installment) (model.OrderRefundStatus, error) {
	items, err := d.items.ListByInstallment(ctx, plan.ID)
	if err != nil {
		return "", fmt.Errorf("list installment items: %w", err)
	}

	var paid, succeeded int
	failed := false
	for _, item := range items {
		if !item.IsPaid() {
			continue
		}
		paid++
		switch item.RefundStatus {
		case model.ItemRefundStatusSuccess:
			succeeded++
		case model.ItemRefundStatusFailed:
			failed = true
		}
	}

	var status model.OrderRefundStatus
	switch {
	case failed:
		status = model.OrderRefundStatusFailed
	case paid > 0 && succeeded == paid:
		status = model.OrderRefundStatusSuccess
	default:
		return "", nil
	}

	if err := d.orders.UpdateRefundStatus(ctx, plan.OrderID, status); err != nil {
		return "", fmt.Errorf("update order refund status: %w", err)
	}

	d.logger.Info("order refund status recomputed",
		zap.String("installment_no", plan.No),
		zap.String("order_id", plan.OrderID.String()),
		zap.String("refund_status", string(status)),
	)
	return status, nil
}

func (d *installmentDomain) RefundInstallment(ctx context.Context, no string, reason string) error {
	plan, err := d.findPlan(ctx, no)
	if err != nil {
		return err
	}

	order, err := d.orders.FindByID(ctx, plan.OrderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if !order.CanRefund() {
		return ErrRefundNotAllowed
	}

	refundNo, err := d.ensureRefundNo(ctx, order)
	if err != nil {
		return err
	}
	if err := d.orders.UpdateRefundStatus(ctx, order.ID, model.OrderRefundStatusProcessing); err != nil {
		return fmt.Errorf("update order refund status: %w", err)
	}

	items, err := d.items.ListByInstallment(ctx, plan.ID)
	if err != nil {
		return fmt.Errorf("list installment items: %w", err)
	}

	for _, item := range items {
		if !item.IsPaid() {
			continue
		}
		if item.RefundStatus != model.ItemRefundStatusPending && item.RefundStatus != model.ItemRefundStatusFailed {
			continue
		}

		status := d.refundItem(ctx, plan, item, refundNo, reason)
		// A refund callback may already have recorded the outcome while the
		// gateway call was in flight.
		applied, err := d.items.TransitionRefundStatus(ctx, plan.ID, item.Sequence, item.RefundStatus, status)
		if err != nil {
			return fmt.Errorf("update installment item refund status: %w", err)
		}
		if !applied {
			d.logger.Info("installment item refund outcome already recorded",
				zap.String("installment_no", plan.No),
				zap.Int("sequence", item.Sequence),
				zap.String("request_id", requestctx.RequestID(ctx)),
			)
			continue
		}
		d.metrics.RecordRefund(string(status))
	}

	if _, err := d.RecomputeRefundStatus(ctx, plan.ID); err != nil {
		return err
	}
	return nil
}

// refundItem asks the collecting gateway to refund one period. Gateway calls
// happen outside any transaction.
func (d *installmentDomain) refundItem(ctx context.Context, plan *model.Installment, item *model.InstallmentItem, refundNo, reason string) model.ItemRefundStatus {
	method := model.PaymentMethod(item.PaymentMethod)
	logger := d.logger.With(
		zap.String("installment_no", plan.No),
		zap.Int("sequence", item.Sequence),
		zap.String("method", item.PaymentMethod),
	)

	gateway, err := d.gateways.Get(method)
	if err != nil {
		logger.Error("refund gateway not available", zap.Error(err))
		return model.ItemRefundStatusFailed
	}

	resp, err := gateway.RefundPayment(ctx, &outbound.RefundRequest{
		OutTradeNo:   NewCorrelation(plan.No, item.Sequence).String(),
		TradeNo:      item.PaymentNo,
		OutRefundNo:  NewCorrelation(refundNo, item.Sequence).String(),
		RefundAmount: item.Total(),
		TotalAmount:  item.Total(),
		Reason:       reason,
		NotifyURL:    d.notifyURL(method, "refund_notify"),
	})
	if err != nil {
		logger.Error("refund request failed", zap.Error(err))
		return model.ItemRefundStatusFailed
	}

	switch resp.Status {
	case model.RefundStatusSuccess:
		return model.ItemRefundStatusSuccess
	case model.RefundStatusProcessing:
		return model.ItemRefundStatusProcessing
	default:
		logger.Warn("refund rejected by gateway", zap.String("status", resp.Status))
		return model.ItemRefundStatusFailed
	}
}

// ensureRefundNo returns the order refund tracking number, assigning one if needed.
func (d *installmentDomain) ensureRefundNo(ctx context.Context, order *model.Order) (string, error) {
	if order.RefundNo != nil && *order.RefundNo != "" {
		return *order.RefundNo, nil
	}

	refundNo, err := random.RefundNo()
	if err != nil {
		return "", fmt.Errorf("generate refund no: %w", err)
	}
	assigned, err := d.orders.AssignRefundNo(ctx, order.ID, refundNo)
	if err != nil {
		return "", fmt.Errorf("assign refund no: %w", err)
	}
	if assigned {
		return refundNo, nil
	}

	// Another request assigned one first.
	reloaded, err := d.orders.FindByID(ctx, order.ID)
	if err != nil {
		return "", fmt.Errorf("get order: %w", err)
	}
	if reloaded == nil || reloaded.RefundNo == nil {
		return "", ErrOrderNotFound
	}
	return *reloaded.RefundNo, nil
}

// --- Helpers ---

func (d *installmentDomain) findPlan(ctx context.Context, no string) (*model.Installment, error) {
	plan, err := d.plans.FindByNo(ctx, no)
	if err != nil {
		return nil, fmt.Errorf("get installment: %w", err)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, no)
	}
	return plan, nil
}

func (d *installmentDomain) notifyURL(method model.PaymentMethod, kind string) string {
	return fmt.Sprintf("%s/api/v1/installments/%s/%s", strings.TrimRight(d.config.NotifyBaseURL, "/"), method, kind)
}

func (d *installmentDomain) isCachedSettled(ctx context.Context, token string) bool {
	if d.cache == nil {
		return false
	}
	settled, err := d.cache.IsSettled(ctx, token)
	if err != nil {
		d.logger.Warn("settlement cache lookup failed", zap.Error(err))
		return false
	}
	if settled {
		d.metrics.RecordCacheHit("settlement")
	} else {
		d.metrics.RecordCacheMiss("settlement")
	}
	return settled
}

func (d *installmentDomain) markCachedSettled(ctx context.Context, token string) {
	if d.cache == nil {
		return
	}
	if err := d.cache.MarkSettled(ctx, token); err != nil {
		d.logger.Warn("settlement cache write failed", zap.Error(err))
	}
}

func reconcileOutcome(result *model.SettlementResult, err error) string {
	switch {
	case errors.Is(err, ErrMalformedCorrelation):
		return "malformed"
	case errors.Is(err, ErrPlanNotFound), errors.Is(err, ErrPeriodNotFound):
		return "not_found"
	case err != nil:
		return "error"
	case result.AlreadySettled:
		return "already_settled"
	default:
		return "settled"
	}
}

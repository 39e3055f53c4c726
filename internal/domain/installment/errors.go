package installment

import "errors"

var (
	// ErrMalformedCorrelation is returned when a gateway out_trade_no or
	// out_refund_no does not decode as "{no}_{sequence}".
	ErrMalformedCorrelation = errors.New("malformed correlation token")

	// ErrPlanNotFound is returned when an installment plan is not found.
	ErrPlanNotFound = errors.New("installment plan not found")

	// ErrPeriodNotFound is returned when a repayment period is not found.
	ErrPeriodNotFound = errors.New("installment period not found")

	// ErrOrderNotFound is returned when the owning order is not found.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidSchedule is returned when a repayment schedule cannot be built.
	ErrInvalidSchedule = errors.New("invalid installment schedule")

	// ErrUnsupportedCount is returned when no fee rate is configured for a period count.
	ErrUnsupportedCount = errors.New("unsupported installment count")

	// ErrAmountTooLow is returned when an order is below the installment minimum.
	ErrAmountTooLow = errors.New("order amount below installment minimum")

	// ErrOrderClosed is returned when the owning order has been closed.
	ErrOrderClosed = errors.New("order is closed")

	// ErrOrderAlreadyPaid is returned when a plan is requested for a paid order.
	ErrOrderAlreadyPaid = errors.New("order is already paid")

	// ErrPlanExists is returned when an order already has an installment plan.
	ErrPlanExists = errors.New("installment plan already exists for order")

	// ErrPlanFinished is returned when paying a plan with no pending period.
	ErrPlanFinished = errors.New("installment plan is finished")

	// ErrRefundNotAllowed is returned when the order is not in a refundable state.
	ErrRefundNotAllowed = errors.New("refund not allowed")

	// ErrForbidden is returned when the user does not own the plan.
	ErrForbidden = errors.New("forbidden")

	// ErrProviderNotAvailable is returned when a payment gateway is not available.
	ErrProviderNotAvailable = errors.New("provider not available")
)

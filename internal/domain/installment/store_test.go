package installment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
)

// memStore is an in-memory ledger with the same compare-and-swap, row-lock
// and rollback semantics as the postgres adapters.
type memStore struct {
	mu     sync.Mutex
	plans  map[uuid.UUID]*model.Installment
	items  map[uuid.UUID][]*model.InstallmentItem
	orders map[uuid.UUID]*model.Order
	outbox []*model.OutboxEvent
	locks  map[uuid.UUID]*sync.Mutex

	// appendErr, when set, fails every outbox append.
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		plans:  make(map[uuid.UUID]*model.Installment),
		items:  make(map[uuid.UUID][]*model.InstallmentItem),
		orders: make(map[uuid.UUID]*model.Order),
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

type txKey struct{}

type txState struct {
	held []*sync.Mutex
	undo []func()
}

// RunInTransaction undoes every write made through ctx when fn fails and
// releases plan locks afterwards.
func (s *memStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := &txState{}
	defer func() {
		for _, l := range tx.held {
			l.Unlock()
		}
	}()

	err := fn(context.WithValue(ctx, txKey{}, tx))
	if err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// onRollback registers undo for the transaction carried by ctx, if any.
// Callers hold s.mu.
func (s *memStore) onRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(txKey{}).(*txState); ok {
		tx.undo = append(tx.undo, undo)
	}
}

// seed stores an order and a plan with periods of the given amounts.
func (s *memStore) seed(no string, amounts ...int64) (*model.Installment, *model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := &model.Order{
		ID:           uuid.New(),
		No:           "ORD" + no,
		UserID:       uuid.New(),
		RefundStatus: model.OrderRefundStatusPending,
	}
	plan := &model.Installment{
		ID:      uuid.New(),
		No:      no,
		UserID:  order.UserID,
		OrderID: order.ID,
		Count:   len(amounts),
		Status:  model.InstallmentStatusPending,
	}
	for i, amount := range amounts {
		order.TotalAmount += amount
		s.items[plan.ID] = append(s.items[plan.ID], &model.InstallmentItem{
			ID:            uuid.New(),
			InstallmentID: plan.ID,
			Sequence:      i,
			Base:          amount,
			RefundStatus:  model.ItemRefundStatusPending,
		})
	}
	plan.TotalAmount = order.TotalAmount
	s.orders[order.ID] = order
	s.plans[plan.ID] = plan
	s.locks[plan.ID] = &sync.Mutex{}

	return clonePlan(plan), cloneOrder(order)
}

func (s *memStore) plan(id uuid.UUID) *model.Installment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePlan(s.plans[id])
}

func (s *memStore) order(id uuid.UUID) *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

func (s *memStore) item(planID uuid.UUID, seq int) *model.InstallmentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[planID] {
		if it.Sequence == seq {
			return cloneItem(it)
		}
	}
	return nil
}

func (s *memStore) events() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.OutboxEvent(nil), s.outbox...)
}

func (s *memStore) setOrder(id uuid.UUID, fn func(o *model.Order)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.orders[id])
}

func (s *memStore) setItem(planID uuid.UUID, seq int, fn func(it *model.InstallmentItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[planID] {
		if it.Sequence == seq {
			fn(it)
		}
	}
}

func clonePlan(p *model.Installment) *model.Installment {
	if p == nil {
		return nil
	}
	c := *p
	c.Items = nil
	return &c
}

func cloneOrder(o *model.Order) *model.Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

func cloneItem(it *model.InstallmentItem) *model.InstallmentItem {
	c := *it
	return &c
}

// --- InstallmentDatabasePort ---

type memPlans struct{ *memStore }

var _ outbound.InstallmentDatabasePort = memPlans{}

func (s memPlans) Create(ctx context.Context, plan *model.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.No == plan.No || p.OrderID == plan.OrderID {
			return outbound.ErrDuplicateKey
		}
	}
	stored := clonePlan(plan)
	s.plans[plan.ID] = stored
	s.locks[plan.ID] = &sync.Mutex{}
	for _, it := range plan.Items {
		s.items[plan.ID] = append(s.items[plan.ID], cloneItem(it))
	}
	return nil
}

func (s memPlans) FindByNo(ctx context.Context, no string) (*model.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.No == no {
			return clonePlan(p), nil
		}
	}
	return nil, nil
}

func (s memPlans) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.OrderID == orderID {
			return clonePlan(p), nil
		}
	}
	return nil, nil
}

func (s memPlans) FindByOrderRefundNo(ctx context.Context, refundNo string) (*model.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		o := s.orders[p.OrderID]
		if o != nil && o.RefundNo != nil && *o.RefundNo == refundNo {
			return clonePlan(p), nil
		}
	}
	return nil, nil
}

func (s memPlans) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.Installment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Installment
	for _, p := range s.plans {
		if p.UserID == userID {
			out = append(out, clonePlan(p))
		}
	}
	return out, int64(len(out)), nil
}

func (s memPlans) LockByID(ctx context.Context, id uuid.UUID) (*model.Installment, error) {
	s.mu.Lock()
	lock := s.locks[id]
	s.mu.Unlock()
	if lock == nil {
		return nil, nil
	}

	lock.Lock()
	if tx, ok := ctx.Value(txKey{}).(*txState); ok {
		tx.held = append(tx.held, lock)
	} else {
		defer lock.Unlock()
	}
	return s.plan(id), nil
}

func (s memPlans) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.InstallmentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plans[id]
	if p == nil || p.Status != from {
		return false, nil
	}
	p.Status = to
	s.onRollback(ctx, func() { p.Status = from })
	return true, nil
}

// --- InstallmentItemDatabasePort ---

type memItems struct{ *memStore }

var _ outbound.InstallmentItemDatabasePort = memItems{}

func (s memItems) FindBySequence(ctx context.Context, installmentID uuid.UUID, sequence int) (*model.InstallmentItem, error) {
	return s.item(installmentID, sequence), nil
}

func (s memItems) FindPending(ctx context.Context, installmentID uuid.UUID) (*model.InstallmentItem, error) {
	items, _ := s.ListByInstallment(ctx, installmentID)
	for _, it := range items {
		if !it.IsPaid() {
			return it, nil
		}
	}
	return nil, nil
}

func (s memItems) ListByInstallment(ctx context.Context, installmentID uuid.UUID) ([]*model.InstallmentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.InstallmentItem, 0, len(s.items[installmentID]))
	for _, it := range s.items[installmentID] {
		out = append(out, cloneItem(it))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s memItems) MarkPaid(ctx context.Context, installmentID uuid.UUID, sequence int, method, paymentNo string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[installmentID] {
		if it.Sequence == sequence && it.PaidAt == nil {
			prev := *it
			s.onRollback(ctx, func() { *it = prev })
			at := paidAt
			it.PaidAt = &at
			it.PaymentMethod = method
			it.PaymentNo = paymentNo
			return true, nil
		}
	}
	return false, nil
}

func (s memItems) UpdateRefundStatus(ctx context.Context, installmentID uuid.UUID, sequence int, status model.ItemRefundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[installmentID] {
		if it.Sequence == sequence {
			prev := it.RefundStatus
			s.onRollback(ctx, func() { it.RefundStatus = prev })
			it.RefundStatus = status
		}
	}
	return nil
}

func (s memItems) TransitionRefundStatus(ctx context.Context, installmentID uuid.UUID, sequence int, from, to model.ItemRefundStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[installmentID] {
		if it.Sequence == sequence && it.RefundStatus == from {
			s.onRollback(ctx, func() { it.RefundStatus = from })
			it.RefundStatus = to
			return true, nil
		}
	}
	return false, nil
}

// --- InstallmentOrderPort ---

type memOrders struct{ *memStore }

var _ outbound.InstallmentOrderPort = memOrders{}

func (s memOrders) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.order(id), nil
}

func (s memOrders) Settle(ctx context.Context, id uuid.UUID, method, paymentNo string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o == nil || o.PaidAt != nil || o.Closed {
		return false, nil
	}
	prev := *o
	s.onRollback(ctx, func() { *o = prev })
	at := paidAt
	o.PaidAt = &at
	o.PaymentMethod = method
	o.PaymentNo = paymentNo
	return true, nil
}

func (s memOrders) AssignRefundNo(ctx context.Context, id uuid.UUID, refundNo string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o == nil || o.RefundNo != nil {
		return false, nil
	}
	s.onRollback(ctx, func() { o.RefundNo = nil })
	no := refundNo
	o.RefundNo = &no
	return true, nil
}

func (s memOrders) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status model.OrderRefundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.orders[id]; o != nil {
		prev := o.RefundStatus
		s.onRollback(ctx, func() { o.RefundStatus = prev })
		o.RefundStatus = status
	}
	return nil
}

// --- OutboxDatabasePort ---

type memOutbox struct{ *memStore }

var _ outbound.OutboxDatabasePort = memOutbox{}

func (s memOutbox) Append(ctx context.Context, event *model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.outbox = append(s.outbox, event)
	s.onRollback(ctx, func() {
		for i, e := range s.outbox {
			if e == event {
				s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s memOutbox) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (s memOutbox) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	return nil
}

func (s memOutbox) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	return nil
}

package gateway

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
)

// Registry manages payment gateways by payment method.
type Registry struct {
	mu       sync.RWMutex
	gateways map[model.PaymentMethod]outbound.PaymentGatewayPort
}

// NewRegistry creates a new gateway registry.
func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[model.PaymentMethod]outbound.PaymentGatewayPort),
	}
}

// Register registers a gateway under its name.
func (r *Registry) Register(gateway outbound.PaymentGatewayPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[model.PaymentMethod(gateway.Name())] = gateway
}

// Get returns the gateway for a payment method.
func (r *Registry) Get(method model.PaymentMethod) (outbound.PaymentGatewayPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("no payment gateway for method: %s", method)
	}
	return g, nil
}

// Methods returns the registered payment methods in sorted order.
func (r *Registry) Methods() []model.PaymentMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.PaymentMethod, 0, len(r.gateways))
	for m := range r.gateways {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Compile-time interface check
var _ outbound.PaymentGatewayRegistryPort = (*Registry)(nil)

package payment

import (
	"errors"
	"sync"

	"github.com/tripfare/payments/internal/module/payment/processor"
)

// ErrNoSuitableProcessor is returned when no registered processor satisfies
// the selection constraints.
var ErrNoSuitableProcessor = errors.New("no suitable payment processor available")

// ErrProcessorNotFound is returned for lookups of unregistered processors.
var ErrProcessorNotFound = errors.New("payment processor not found")

// SelectionConstraints narrow which processors qualify for a payment.
type SelectionConstraints struct {
	Currency              string
	RequireThreeDS        bool
	RequireDelayedCapture bool
	RequirePartialRefunds bool
	Region                string
}

// ProcessorManager holds the registry of available processors and their
// capability rows, and selects a processor for given constraints. Pure
// wiring: no business rules beyond capability matching.
type ProcessorManager struct {
	mu         sync.RWMutex
	processors map[string]processor.Processor
	order      []string
}

// NewProcessorManager creates an empty registry.
func NewProcessorManager() *ProcessorManager {
	return &ProcessorManager{processors: make(map[string]processor.Processor)}
}

// Register adds a processor. Re-registering a name replaces it.
func (m *ProcessorManager) Register(p processor.Processor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.processors[p.Name()]; !exists {
		m.order = append(m.order, p.Name())
	}
	m.processors[p.Name()] = p
}

// Get returns a processor by name.
func (m *ProcessorManager) Get(name string) (processor.Processor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processors[name]
	if !ok {
		return nil, ErrProcessorNotFound
	}
	return p, nil
}

// List returns registered processor names in registration order.
func (m *ProcessorManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Select returns the first registered processor whose declared capabilities
// satisfy the constraints.
func (m *ProcessorManager) Select(c SelectionConstraints) (processor.Processor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, name := range m.order {
		p := m.processors[name]
		if satisfies(p.Capabilities(), c) {
			return p, nil
		}
	}
	return nil, ErrNoSuitableProcessor
}

func satisfies(caps processor.Capabilities, c SelectionConstraints) bool {
	if c.Currency != "" && !caps.SupportsCurrency(c.Currency) {
		return false
	}
	if c.RequireThreeDS && !caps.ThreeDSecure {
		return false
	}
	if c.RequireDelayedCapture && !caps.DelayedCapture {
		return false
	}
	if c.RequirePartialRefunds && !caps.PartialRefunds {
		return false
	}
	if c.Region != "" && len(caps.Regions) > 0 {
		found := false
		for _, r := range caps.Regions {
			if r == c.Region {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

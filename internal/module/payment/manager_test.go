package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfare/payments/internal/module/payment/processor"
)

type capProcessor struct {
	stubProcessor
	caps processor.Capabilities
}

func (c *capProcessor) Capabilities() processor.Capabilities { return c.caps }

func newCapProcessor(name string, caps processor.Capabilities) *capProcessor {
	return &capProcessor{stubProcessor: stubProcessor{name: name}, caps: caps}
}

func TestManagerRegisterAndGet(t *testing.T) {
	m := NewProcessorManager()
	m.Register(newCapProcessor("duffel", processor.Capabilities{ThreeDSecure: true}))
	m.Register(newCapProcessor("stripe", processor.Capabilities{DelayedCapture: true}))

	p, err := m.Get("duffel")
	require.NoError(t, err)
	assert.Equal(t, "duffel", p.Name())

	_, err = m.Get("adyen")
	assert.ErrorIs(t, err, ErrProcessorNotFound)

	assert.Equal(t, []string{"duffel", "stripe"}, m.List())
}

func TestManagerSelect(t *testing.T) {
	duffel := newCapProcessor("duffel", processor.Capabilities{
		ThreeDSecure:   true,
		PartialRefunds: true,
		Currencies:     []string{"USD", "EUR", "GBP"},
	})
	stripe := newCapProcessor("stripe", processor.Capabilities{
		ThreeDSecure:   true,
		DelayedCapture: true,
		PartialRefunds: true,
	})

	m := NewProcessorManager()
	m.Register(duffel)
	m.Register(stripe)

	tests := []struct {
		name        string
		constraints SelectionConstraints
		want        string
	}{
		{"first match wins", SelectionConstraints{Currency: "USD"}, "duffel"},
		{"delayed capture falls through", SelectionConstraints{Currency: "USD", RequireDelayedCapture: true}, "stripe"},
		{"unsupported currency falls through", SelectionConstraints{Currency: "JPY"}, "stripe"},
		{"sca requirement", SelectionConstraints{Currency: "EUR", RequireThreeDS: true}, "duffel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := m.Select(tt.constraints)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestManagerSelectNoMatch(t *testing.T) {
	m := NewProcessorManager()
	m.Register(newCapProcessor("duffel", processor.Capabilities{
		Currencies: []string{"USD"},
	}))

	_, err := m.Select(SelectionConstraints{Currency: "USD", RequireThreeDS: true})
	assert.ErrorIs(t, err, ErrNoSuitableProcessor)
}

func TestManagerRegionConstraint(t *testing.T) {
	m := NewProcessorManager()
	m.Register(newCapProcessor("eu-only", processor.Capabilities{Regions: []string{"EU"}}))
	m.Register(newCapProcessor("global", processor.Capabilities{}))

	p, err := m.Select(SelectionConstraints{Region: "US"})
	require.NoError(t, err)
	assert.Equal(t, "global", p.Name())
}

// Re-registering replaces the active processor pointer, never merges.
func TestManagerReplaceOnReRegister(t *testing.T) {
	m := NewProcessorManager()
	first := newCapProcessor("duffel", processor.Capabilities{})
	second := newCapProcessor("duffel", processor.Capabilities{ThreeDSecure: true})
	m.Register(first)
	m.Register(second)

	p, err := m.Get("duffel")
	require.NoError(t, err)
	assert.True(t, p.Capabilities().ThreeDSecure)
	assert.Len(t, m.List(), 1)
}

var _ processor.Processor = (*capProcessor)(nil)

package registry

import (
	"fmt"
	"strings"
)

// ConnectorRegistry maps provider ids to their single shared connector instance. It is built once
// at startup and is read-only afterwards.
type ConnectorRegistry struct {
	connectors map[string]Connector
	order      []string // Registration order
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{
		connectors: make(map[string]Connector),
		order:      make([]string, 0),
	}
}

// Register adds a connector under its Kind.
func (r *ConnectorRegistry) Register(c Connector) error {
	if c == nil {
		return fmt.Errorf("connector cannot be nil")
	}
	kind := normalizeKind(c.Kind())
	if kind == "" {
		return fmt.Errorf("connector kind cannot be empty")
	}
	if _, exists := r.connectors[kind]; exists {
		return fmt.Errorf("connector kind %q already registered", kind)
	}
	r.connectors[kind] = c
	r.order = append(r.order, kind)
	return nil
}

// Get retrieves a connector by provider id.
func (r *ConnectorRegistry) Get(kind string) (Connector, bool) {
	c, ok := r.connectors[normalizeKind(kind)]
	return c, ok
}

// Resolve returns the connector for a provider id or an *UnsupportedProviderError.
func (r *ConnectorRegistry) Resolve(providerID string) (Connector, error) {
	if c, ok := r.Get(providerID); ok {
		return c, nil
	}
	return nil, &UnsupportedProviderError{Provider: providerID, Supported: r.ListSupported()}
}

// ListSupported returns every registered provider id in registration order.
func (r *ConnectorRegistry) ListSupported() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all registered connectors in registration order.
func (r *ConnectorRegistry) All() []Connector {
	out := make([]Connector, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.connectors[kind])
	}
	return out
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

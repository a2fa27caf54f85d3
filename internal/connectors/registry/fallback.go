package registry

import (
	"context"
	"maps"

	"github.com/erpbridge/erpbridge/internal/store"
)

// FallbackPolicy configures degraded mode for a connector: when a module read fails with an error
// accepted by ShouldFallback, the module's fixture records are returned instead.
type FallbackPolicy struct {
	Fixtures map[string][]Record
	// ShouldFallback defaults to IsUnreachable.
	ShouldFallback func(error) bool
	// OnFallback is called every time fixtures replace a failed read.
	OnFallback func(kind, module string, err error)
}

// WithFallback wraps c so that its module reads follow policy.
func WithFallback(c Connector, policy FallbackPolicy) Connector {
	if policy.ShouldFallback == nil {
		policy.ShouldFallback = IsUnreachable
	}
	return &fallbackConnector{Connector: c, policy: policy}
}

type fallbackConnector struct {
	Connector
	policy FallbackPolicy
}

func (f *fallbackConnector) Leads(ctx context.Context, req FetchRequest) ([]Record, error) {
	return f.guard(store.ModuleLeads, f.Connector.Leads)(ctx, req)
}

func (f *fallbackConnector) Contacts(ctx context.Context, req FetchRequest) ([]Record, error) {
	return f.guard(store.ModuleContacts, f.Connector.Contacts)(ctx, req)
}

func (f *fallbackConnector) FinanceData(ctx context.Context, req FetchRequest) ([]Record, error) {
	return f.guard(store.ModuleFinance, f.Connector.FinanceData)(ctx, req)
}

func (f *fallbackConnector) ModuleHandlers() map[string]FetchFunc {
	inner := f.Connector.ModuleHandlers()
	out := make(map[string]FetchFunc, len(inner))
	for module, fn := range inner {
		out[module] = f.guard(module, fn)
	}
	return out
}

func (f *fallbackConnector) guard(module string, fn FetchFunc) FetchFunc {
	return func(ctx context.Context, req FetchRequest) ([]Record, error) {
		records, err := fn(ctx, req)
		if err == nil {
			return records, nil
		}
		fixtures, ok := f.policy.Fixtures[module]
		if !ok || !f.policy.ShouldFallback(err) {
			return nil, err
		}
		if f.policy.OnFallback != nil {
			f.policy.OnFallback(f.Kind(), module, err)
		}
		return cloneRecords(fixtures), nil
	}
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, 0, len(in))
	for _, r := range in {
		out = append(out, maps.Clone(r))
	}
	return out
}

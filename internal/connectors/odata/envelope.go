package odata

import (
	"fmt"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Envelope expressions for the response shapes spoken by the adapters.
const (
	EnvelopeV4 = "value"
	EnvelopeV2 = "d.results"
)

var envelopes = &envelopeCache{compiled: make(map[string]*jmespath.JMESPath)}

// envelopeCache keeps compiled envelope expressions; adapters share a handful of them.
type envelopeCache struct {
	mu       sync.RWMutex
	compiled map[string]*jmespath.JMESPath
}

func (c *envelopeCache) get(expression string) (*jmespath.JMESPath, error) {
	c.mu.RLock()
	if compiled, ok := c.compiled[expression]; ok {
		c.mu.RUnlock()
		return compiled, nil
	}
	c.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope expression %q: %w", expression, err)
	}

	c.mu.Lock()
	c.compiled[expression] = compiled
	c.mu.Unlock()
	return compiled, nil
}

// Unwrap extracts the record array addressed by expression from a decoded response body. A
// missing array yields no records; anything other than an array of objects is an error.
func Unwrap(expression string, body any) ([]map[string]any, error) {
	compiled, err := envelopes.get(expression)
	if err != nil {
		return nil, err
	}
	result, err := compiled.Search(body)
	if err != nil {
		return nil, fmt.Errorf("evaluate envelope %q: %w", expression, err)
	}
	if result == nil {
		return []map[string]any{}, nil
	}

	items, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("envelope %q: expected array, got %T", expression, result)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("envelope %q: item %d is %T, not an object", expression, i, item)
		}
		out = append(out, rec)
	}
	return out, nil
}

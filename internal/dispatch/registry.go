package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"anypush/internal/content"
)

// Channel sends formatted content to one configured push service.
type Channel interface {
	Send(ctx context.Context, f content.Formatted) error
}

// Builder constructs a Channel from the raw pushServices entry of its service.
type Builder func(raw json.RawMessage, client *http.Client) (Channel, error)

// Registry maps service keys (as used under pushServices) to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{builders: map[string]Builder{}}
}

// Register adds or replaces the builder for key.
func (r *Registry) Register(key string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[key] = b
}

func (r *Registry) lookup(key string) (Builder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[key]
	return b, ok
}

// Keys lists the registered service keys in order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.builders))
	for k := range r.builders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) build(key string, raw json.RawMessage, client *http.Client) (Channel, error) {
	b, ok := r.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, key)
	}
	return b(raw, client)
}

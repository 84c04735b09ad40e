package gateway

import "sync"

// Registry owns one breaker per configured downstream. Built once at
// startup; lookups after that are read-only.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry(cfg BreakerConfig, services []string) *Registry {
	r := &Registry{breakers: make(map[string]*Breaker, len(services))}
	for _, name := range services {
		r.breakers[name] = NewBreaker(name, cfg)
	}
	return r
}

func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

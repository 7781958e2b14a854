package search

import (
	"sync"
	"time"
)

const (
	weightMax       = 1.0
	weightMin       = 0.1
	successIncrease = 0.05
	failureDecrease = 0.1
)

// ProviderState tracks runtime health for one search backend. Weight and
// quota reset on process restart; the state is deliberately not persisted.
type ProviderState struct {
	Name            string
	Weight          float64
	Quota           int // 0 means unlimited
	Healthy         bool
	MinCallInterval time.Duration
	LastCall        time.Time
}

// Registry is the process-wide mutable provider state. All mutation goes
// through registry methods so concurrent topics hitting the same provider
// cannot race.
type Registry struct {
	mu        sync.Mutex
	providers map[string]*ProviderState
	fallback  string

	now   func() time.Time
	sleep func(time.Duration)
}

// NewRegistry builds a registry from initial provider states. fallback names
// the provider Pick returns when every candidate is unhealthy; it should be
// a backend that cannot fail (the offline cache).
func NewRegistry(states []ProviderState, fallback string) *Registry {
	r := &Registry{
		providers: make(map[string]*ProviderState, len(states)),
		fallback:  fallback,
		now:       time.Now,
		sleep:     time.Sleep,
	}
	for _, st := range states {
		s := st
		if s.Weight <= 0 {
			s.Weight = weightMin
		}
		s.Healthy = true
		r.providers[s.Name] = &s
	}
	return r
}

// Fallback returns the designated terminal provider name.
func (r *Registry) Fallback() string { return r.fallback }

// Pick selects the healthy provider with the highest weight whose quota is
// not exhausted, skipping any name present in exclude. When no candidate
// remains it returns the fallback provider.
func (r *Registry) Pick(exclude map[string]bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := ""
	bestWeight := -1.0
	for name, p := range r.providers {
		if exclude[name] {
			continue
		}
		if !p.Healthy {
			continue
		}
		if p.Quota < 0 { // exhausted
			continue
		}
		if p.Weight > bestWeight {
			best = name
			bestWeight = p.Weight
		}
	}
	if best == "" {
		return r.fallback
	}
	return best
}

// MarkSuccess raises the provider weight, restores health, and burns quota.
// A provider whose quota reaches zero is marked unhealthy until restart.
func (r *Registry) MarkSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return
	}
	p.Weight = p.Weight + successIncrease
	if p.Weight > weightMax {
		p.Weight = weightMax
	}
	p.Healthy = true
	if p.Quota > 0 {
		p.Quota--
		if p.Quota <= 0 {
			p.Quota = -1 // exhausted marker, distinct from unlimited
			p.Healthy = false
		}
	}
}

// MarkFailure lowers the provider weight and takes it out of rotation.
func (r *Registry) MarkFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return
	}
	p.Weight = p.Weight - failureDecrease
	if p.Weight < weightMin {
		p.Weight = weightMin
	}
	p.Healthy = false
}

// ApplyRateLimit blocks until at least MinCallInterval has elapsed since the
// provider's previous call, then stamps the call time.
func (r *Registry) ApplyRateLimit(name string) {
	r.mu.Lock()
	p, ok := r.providers[name]
	if !ok || p.MinCallInterval <= 0 {
		if ok {
			p.LastCall = r.now()
		}
		r.mu.Unlock()
		return
	}
	wait := p.MinCallInterval - r.now().Sub(p.LastCall)
	r.mu.Unlock()

	if wait > 0 {
		r.sleep(wait)
	}

	r.mu.Lock()
	p.LastCall = r.now()
	r.mu.Unlock()
}

// Snapshot returns a copy of one provider's state, mainly for tests and
// introspection.
func (r *Registry) Snapshot(name string) (ProviderState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return ProviderState{}, false
	}
	return *p, true
}

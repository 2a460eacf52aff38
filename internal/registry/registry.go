// Package registry maps operator targets to configured health endpoints.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// Endpoint is one configured remote health-check URL.
type Endpoint struct {
	Name    string
	URL     string
	Timeout time.Duration // 0 means the fetcher default
	Headers map[string]string
}

// UnknownTargetError is returned by Resolve when the target matches no endpoint.
type UnknownTargetError struct {
	Target string
	Valid  []string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target %q (valid: %s)", e.Target, strings.Join(e.Valid, ", "))
}

// Registry is an immutable, ordered set of endpoints. Safe for concurrent use.
type Registry struct {
	endpoints []Endpoint
	index     map[string]int
}

// New builds a Registry, preserving the given order.
func New(endpoints []Endpoint) (*Registry, error) {
	r := &Registry{
		endpoints: make([]Endpoint, 0, len(endpoints)),
		index:     make(map[string]int, len(endpoints)),
	}
	for i, ep := range endpoints {
		if ep.Name == "" {
			return nil, fmt.Errorf("endpoint[%d]: name is required", i)
		}
		if ep.URL == "" {
			return nil, fmt.Errorf("endpoint %q: url is required", ep.Name)
		}
		if _, dup := r.index[ep.Name]; dup {
			return nil, fmt.Errorf("duplicate endpoint name %q", ep.Name)
		}
		r.index[ep.Name] = len(r.endpoints)
		r.endpoints = append(r.endpoints, ep)
	}
	return r, nil
}

// Resolve returns the endpoints selected by target. An empty target selects
// every endpoint in configuration order; otherwise target must equal an
// endpoint name exactly.
func (r *Registry) Resolve(target string) ([]Endpoint, error) {
	if target == "" {
		return r.Endpoints(), nil
	}
	i, ok := r.index[target]
	if !ok {
		return nil, &UnknownTargetError{Target: target, Valid: r.Names()}
	}
	return []Endpoint{r.endpoints[i]}, nil
}

// Endpoints returns a copy of all endpoints in configuration order.
func (r *Registry) Endpoints() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Names returns endpoint names in configuration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.endpoints))
	for i, ep := range r.endpoints {
		names[i] = ep.Name
	}
	return names
}

// Len returns the number of configured endpoints.
func (r *Registry) Len() int {
	return len(r.endpoints)
}

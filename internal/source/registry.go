package source

import (
	"fmt"
	"sort"

	"HustleCollector/internal/ports"
)

// Registry keeps a mapping from connector names to their implementations.
type Registry struct {
	connectors map[string]ports.Connector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: map[string]ports.Connector{}}
}

// Register adds or replaces a connector implementation.
func (r *Registry) Register(connector ports.Connector) {
	if r.connectors == nil {
		r.connectors = map[string]ports.Connector{}
	}
	r.connectors[connector.Name()] = connector
}

// Resolve returns a connector by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.Connector, error) {
	if connector, ok := r.connectors[name]; ok {
		return connector, nil
	}
	return nil, fmt.Errorf("connector %s is not registered", name)
}

// All returns every registered connector ordered by name.
func (r *Registry) All() []ports.Connector {
	names := r.Names()
	out := make([]ports.Connector, 0, len(names))
	for _, name := range names {
		out = append(out, r.connectors[name])
	}
	return out
}

// Names lists registered connector names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

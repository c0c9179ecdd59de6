package app

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

var (
	ErrInvalidNamespace    = errors.New("invalid namespace")
	ErrNamespaceNotAllowed = errors.New("namespace not allowed")
)

// AdapterFactory builds the adapter for a namespace around its registry.
type AdapterFactory func(nsp string, reg core.EndpointRegistry) (core.Adapter, error)

type NamespaceInfo struct {
	Name    string `json:"name"`
	Clients int    `json:"client_count"`
}

// Namespaces creates namespaces lazily, one adapter and registry each.
type Namespaces struct {
	mu      sync.RWMutex
	nsps    map[string]*Namespace
	factory AdapterFactory
	d       *core.Deferrer
	opts    []NamespaceOption
	allowed map[string]struct{}
}

func NewNamespaces(factory AdapterFactory, d *core.Deferrer, opts ...NamespaceOption) *Namespaces {
	return &Namespaces{
		nsps:    make(map[string]*Namespace),
		factory: factory,
		d:       d,
		opts:    opts,
	}
}

// Restrict limits GetOrCreate to the given names. Without it any valid name is accepted.
func (m *Namespaces) Restrict(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowed = make(map[string]struct{}, len(names))
	for _, n := range names {
		m.allowed[n] = struct{}{}
	}
}

func (m *Namespaces) GetOrCreate(name string) (*Namespace, error) {
	if name == "" {
		name = domain.DefaultNsp
	}
	if !strings.HasPrefix(name, "/") || strings.Contains(name, ",") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, name)
	}

	m.mu.RLock()
	ns, ok := m.nsps[name]
	m.mu.RUnlock()
	if ok {
		return ns, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok = m.nsps[name]; ok {
		return ns, nil
	}
	if m.allowed != nil {
		if _, ok := m.allowed[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrNamespaceNotAllowed, name)
		}
	}
	reg := NewRegistry()
	adapter, err := m.factory(name, reg)
	if err != nil {
		return nil, fmt.Errorf("create adapter for %s: %w", name, err)
	}
	ns = NewNamespace(name, reg, adapter, m.d, m.opts...)
	m.nsps[name] = ns
	log.Info().Str("module", "app.namespaces").Str("nsp", name).Msg("namespace created")
	return ns, nil
}

func (m *Namespaces) Get(name string) (*Namespace, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.nsps[name]
	return ns, ok
}

func (m *Namespaces) List() []NamespaceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NamespaceInfo, 0, len(m.nsps))
	for name, ns := range m.nsps {
		out = append(out, NamespaceInfo{Name: name, Clients: ns.Registry().Len()})
	}
	slices.SortFunc(out, func(a, b NamespaceInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Close closes every namespace adapter.
func (m *Namespaces) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, ns := range m.nsps {
		if err := ns.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(m.nsps, name)
	}
	return errors.Join(errs...)
}

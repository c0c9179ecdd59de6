package app

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

var _ core.EndpointRegistry = (*Registry)(nil)

type sessionEntry struct {
	Endpoint core.Endpoint
	Cancel   context.CancelFunc
}

// Registry holds the live endpoints of one namespace.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.EndpointID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.EndpointID]*sessionEntry),
	}
}

// Bind registers ep under id, replacing any previous binding.
func (r *Registry) Bind(id domain.EndpointID, ep core.Endpoint, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Endpoint: ep, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("bound endpoint")
}

func (r *Registry) Endpoint(id domain.EndpointID) (core.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Endpoint, true
	}
	return nil, false
}

func (r *Registry) Unbind(id domain.EndpointID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("unbind endpoint")
	return true
}

// Cancel stops the connection bound to id without unbinding it.
func (r *Registry) Cancel(id domain.EndpointID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("canceled endpoint")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) IDs() []domain.EndpointID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EndpointID, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

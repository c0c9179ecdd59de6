package core

import "github.com/dkeye/roomcast/internal/domain"

// DeliverOptions tells an endpoint how the frames were produced and how hard to try.
type DeliverOptions struct {
	// PreEncoded frames came out of an Encoder and are shared between recipients.
	PreEncoded bool
	// Volatile deliveries may be dropped when the transport can't take them right now.
	Volatile bool
}

// Endpoint is a live, addressable peer owned by the connection layer.
// Deliver must not block and must not retain or mutate frames.
type Endpoint interface {
	Deliver(frames []domain.Frame, opts DeliverOptions) error
}

// EndpointRegistry resolves ids to live endpoints. Absence means "not connected".
type EndpointRegistry interface {
	Endpoint(id domain.EndpointID) (Endpoint, bool)
}

// Encoder turns a logical packet into one or more wire frames.
type Encoder interface {
	Encode(p *domain.Packet) ([]domain.Frame, error)
}

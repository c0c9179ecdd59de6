// Package domain contains identifiers and the logical packet, without behaviour.
package domain

import "github.com/google/uuid"

// EndpointID identifies one connected peer. Assigned by the connection layer.
type EndpointID string

// NewEndpointID avoids ad-hoc id generation in adapters.
func NewEndpointID() EndpointID {
	return EndpointID(uuid.NewString())
}

// Frame is one encoded wire frame.
type Frame []byte

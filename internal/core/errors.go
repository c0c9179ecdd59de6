package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/roomcast/internal/domain"
)

var (
	ErrNotFound      = errors.New("membership not found")
	ErrAdapterClosed = errors.New("adapter closed")
)

// NotFoundError reports a Leave on a pair that is not tracked.
type NotFoundError struct {
	ID   domain.EndpointID
	Room domain.Room
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("endpoint %s is not in room %s: %v", e.ID, e.Room, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

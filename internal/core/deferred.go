package core

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Deferrer runs queued funcs one at a time, in FIFO order, on its own goroutine.
// Work queued before Close still runs; Close must not be called from a queued func.
type Deferrer struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewDeferrer() *Deferrer {
	d := &Deferrer{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// Defer queues fn for a later turn. It reports false once the deferrer is closed.
func (d *Deferrer) Defer(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until everything queued before the call has run.
func (d *Deferrer) Flush() {
	ch := make(chan struct{})
	if !d.Defer(func() { close(ch) }) {
		<-d.done
		return
	}
	<-ch
}

func (d *Deferrer) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		select {
		case d.wake <- struct{}{}:
		default:
		}
	})
	<-d.done
}

func (d *Deferrer) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			<-d.wake
			continue
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range batch {
			d.call(fn)
		}
	}
}

func (d *Deferrer) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "core.deferrer").Interface("panic", r).Msg("deferred func panicked")
		}
	}()
	fn()
}

package progress

import (
	"context"
	"sync"
	"sync/atomic"

	"deepreport/internal/types"
)

// DefaultBuffer is the event channel capacity used when none is given.
const DefaultBuffer = 64

// Stream carries events from any number of producers to one consumer. The
// first terminal event is the last one delivered.
type Stream struct {
	ch        chan types.ProgressEvent
	done      chan struct{}
	closeOnce sync.Once
	finished  atomic.Bool
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		ch:   make(chan types.ProgressEvent, buffer),
		done: make(chan struct{}),
	}
}

// Send queues ev for the consumer and reports whether it was accepted. It
// blocks while the buffer is full and returns false immediately once the
// consumer has closed the stream or a terminal event was already sent.
func (s *Stream) Send(ev types.ProgressEvent) bool {
	if s.finished.Load() {
		return false
	}
	if ev.Type.Terminal() && !s.finished.CompareAndSwap(false, true) {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Callback adapts the stream for Broker.Register.
func (s *Stream) Callback() Callback {
	return func(ev types.ProgressEvent) { s.Send(ev) }
}

// Events returns the consumer side of the stream.
func (s *Stream) Events() <-chan types.ProgressEvent {
	return s.ch
}

// Close marks the consumer as gone. Pending and future sends are dropped.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Closed is closed once the consumer has gone away.
func (s *Stream) Closed() <-chan struct{} {
	return s.done
}

// Consume reads events and passes each to fn until a terminal event has been
// handled, fn returns an error, the channel closes, or ctx is done.
func Consume(ctx context.Context, events <-chan types.ProgressEvent, fn func(types.ProgressEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := fn(ev); err != nil {
				return err
			}
			if ev.Type.Terminal() {
				return nil
			}
		}
	}
}

// Package progress routes workflow progress events to per-task callbacks and
// carries them across goroutines to a single consumer.
package progress

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"deepreport/internal/logging"
	"deepreport/internal/types"
)

// Callback receives progress events for one task.
type Callback func(types.ProgressEvent)

// Broker is a registry of task id to callback. It is injected into each run
// rather than held as process state, so independent runs never share it
// unless the caller wants them to.
type Broker struct {
	mu        sync.RWMutex
	callbacks map[string]*Registration
}

// Registration is one callback installed for a task. Events reported
// through its Reporter and its Detach only act while the broker still holds
// this registration, so a late worker cannot reach or remove a newer
// callback registered under the same task id.
type Registration struct {
	broker *Broker
	taskID string
	cb     Callback
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{callbacks: make(map[string]*Registration)}
}

// Register installs cb for taskID. A task may have only one callback.
func (b *Broker) Register(taskID string, cb Callback) error {
	_, err := b.Attach(taskID, cb)
	return err
}

// Attach registers cb like Register and returns the registration.
func (b *Broker) Attach(taskID string, cb Callback) (*Registration, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	if cb == nil {
		return nil, fmt.Errorf("callback is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.callbacks[taskID]; ok {
		return nil, fmt.Errorf("callback already registered for task %s", taskID)
	}
	reg := &Registration{broker: b, taskID: taskID, cb: cb}
	b.callbacks[taskID] = reg
	logging.ProgressDebug("Registered callback for task %s", taskID)
	return reg, nil
}

// Detach removes the registration if it is still current. Safe to call more
// than once.
func (r *Registration) Detach() {
	b := r.broker
	b.mu.Lock()
	if b.callbacks[r.taskID] == r {
		delete(b.callbacks, r.taskID)
	}
	b.mu.Unlock()
}

// Reporter returns a reporter that delivers to this registration only.
func (r *Registration) Reporter() *Reporter {
	return &Reporter{broker: r.broker, taskID: r.taskID, owner: r}
}

// report delivers ev to this registration's callback while it is current.
func (r *Registration) report(ev types.ProgressEvent) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	r.broker.mu.RLock()
	current := r.broker.callbacks[r.taskID] == r
	r.broker.mu.RUnlock()
	if !current {
		return false
	}

	safeCall(r.cb, ev)
	return true
}

// Unregister removes the callback for taskID. Unknown ids are ignored.
func (b *Broker) Unregister(taskID string) {
	b.mu.Lock()
	delete(b.callbacks, taskID)
	b.mu.Unlock()
}

// Has reports whether taskID has a callback.
func (b *Broker) Has(taskID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.callbacks[taskID]
	return ok
}

// Len returns the number of registered callbacks.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.callbacks)
}

// Report delivers ev to its task's callback and reports whether one was
// registered. The callback runs outside the lock; a panicking callback is
// logged and does not reach the caller.
func (b *Broker) Report(ev types.ProgressEvent) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	reg, ok := b.callbacks[ev.TaskID]
	b.mu.RUnlock()
	if !ok {
		return false
	}

	safeCall(reg.cb, ev)
	return true
}

func safeCall(cb Callback, ev types.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.ProgressWarn("Callback panic for task %s (%s): %v\n%s", ev.TaskID, ev.Type, r, debug.Stack())
		}
	}()
	cb(ev)
}

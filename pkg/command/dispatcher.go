package command

import (
	"context"
	"fmt"
	"sync"
)

// Executor is the part of the device gateway the dispatcher needs.
type Executor interface {
	Execute(ctx context.Context, action Action)
}

// Dispatcher sends motion commands to the robot, suppressing repeats of the
// command already in effect.  Sending the same command twice is harmless on
// the wire but wasteful, and the dedupe is what gives us the at-most-one
// command in effect guarantee.
type Dispatcher struct {
	executor Executor

	lock     sync.Mutex
	lastSent Action
}

func NewDispatcher(executor Executor) *Dispatcher {
	return &Dispatcher{executor: executor}
}

// Dispatch validates the action against the allowed set and forwards it to
// the robot unless it matches the last command sent.  It reports whether
// the command actually went out.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action) bool {
	if !Valid(action) {
		fmt.Println("Ignoring unknown command:", action)
		return false
	}
	d.lock.Lock()
	if action == d.lastSent {
		d.lock.Unlock()
		return false
	}
	d.lastSent = action
	d.lock.Unlock()
	d.executor.Execute(ctx, action)
	return true
}

// ForceStop sends a stop regardless of what was sent before.  Used by the
// safety fallback and by mode switches, where an extra stop on the wire is
// preferable to trusting state.
func (d *Dispatcher) ForceStop(ctx context.Context) {
	d.lock.Lock()
	d.lastSent = Stop
	d.lock.Unlock()
	d.executor.Execute(ctx, Stop)
}

// NoteSent records an externally dispatched action so later Dispatch calls
// dedupe against it.  The manual override path sends through ForceStop /
// direct execution and then notes what it did.
func (d *Dispatcher) NoteSent(action Action) {
	d.lock.Lock()
	d.lastSent = action
	d.lock.Unlock()
}

// LastSent returns the most recently dispatched command.
func (d *Dispatcher) LastSent() Action {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.lastSent
}

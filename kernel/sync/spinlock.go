// Package sync provides the kernel's synchronization primitives. On this
// uniprocessor design, every structure a spinlock would guard is already
// mutated with interrupts disabled, so Spinlock is a plain test-and-set
// busy-wait lock with no owner tracking and no re-entrancy check; it is
// kept as a typed handle so the SMP migration path
// only has to change what's behind the handle, not every call
// site.
package sync

import "sync/atomic"

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active
// task. Any attempt to re-acquire a lock already held by the current task
// will deadlock.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock
// could be acquired, false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock. Calling Release on a free lock has no
// effect beyond leaving it free.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

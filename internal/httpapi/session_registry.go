package httpapi

import (
	"sync"
	"sync/atomic"
)

// SessionRegistry tracks active conversation sockets and supports graceful
// draining. When draining is enabled, new conversations are rejected while
// in-flight ones finish naturally.
//
// The mu mutex makes the draining check and wg.Add atomic in Add(), preventing
// a TOCTOU race where StartDraining+Wait could be called between the draining
// check and wg.Add.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64

	nextCloser int64
	closers    map[int64]func()
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{closers: make(map[int64]func())}
}

// Add registers a new active conversation. Returns false if the registry is
// draining, meaning no new conversations should be accepted. The draining
// check and WaitGroup increment are performed atomically under a mutex.
func (sr *SessionRegistry) Add() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	sr.count.Add(1)
	return true
}

// Done marks a conversation as completed. Must be called exactly once per
// successful Add.
func (sr *SessionRegistry) Done() {
	sr.count.Add(-1)
	sr.wg.Done()
}

// StartDraining sets the draining flag so that future Add calls return false.
// This is safe to call concurrently with Add — the mutex ensures no Add can
// slip through after StartDraining returns.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of currently active conversations.
func (sr *SessionRegistry) ActiveCount() int64 {
	return sr.count.Load()
}

// Wait blocks until all active conversations have completed (all Done calls
// matched Add calls).
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}

// RegisterCloser records a teardown hook for one conversation, typically a
// socket close that unblocks its read loop. The returned id is passed to
// UnregisterCloser when the conversation ends on its own.
func (sr *SessionRegistry) RegisterCloser(fn func()) int64 {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.nextCloser++
	id := sr.nextCloser
	sr.closers[id] = fn
	return id
}

// UnregisterCloser removes a teardown hook registered with RegisterCloser.
func (sr *SessionRegistry) UnregisterCloser(id int64) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	delete(sr.closers, id)
}

// CloseAll invokes every registered teardown hook. Called when the drain
// grace period expires and lingering conversations must be cut off.
func (sr *SessionRegistry) CloseAll() {
	sr.mu.Lock()
	closers := make([]func(), 0, len(sr.closers))
	for _, c := range sr.closers {
		closers = append(closers, c)
	}
	sr.mu.Unlock()

	for _, c := range closers {
		c()
	}
}

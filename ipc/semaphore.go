package ipc

import "time"

// Semaphore is a counting semaphore, grounded on the reference
// implementation's Semaphore (POSIX sem_post/sem_wait/sem_timedwait), but
// expressed with a buffered channel of tokens rather than a syscall wrapper
// — idiomatic for a single Go process where every waiter lives in the same
// address space as the signaller.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore returns a semaphore with no upper bound on its count,
// equivalent to the reference implementation's default constructor.
func NewSemaphore() *Semaphore {
	// Unbounded in spirit; a channel still needs a capacity, so use the
	// same ceiling the reference implementation picks for Windows
	// (0x7FFFFFFF). A chan struct{} buffer costs nothing per slot since the
	// element type is zero-sized.
	return &Semaphore{tokens: make(chan struct{}, 0x7FFFFFFF)}
}

// NewBoundedSemaphore returns a semaphore that rejects Signal calls once
// maxCount outstanding signals are unconsumed, matching the reference
// implementation's max-count constructor.
func NewBoundedSemaphore(maxCount uint32) *Semaphore {
	return &Semaphore{tokens: make(chan struct{}, maxCount)}
}

// Signal increments the semaphore's count by one. If the semaphore is
// bounded and already at its max count, Signal is a silent no-op, matching
// the reference implementation treating ERROR_TOO_MANY_POSTS as benign.
func (s *Semaphore) Signal() {
	select {
	case s.tokens <- struct{}{}:
	default:
	}
}

// SignalN increments the semaphore's count by n.
func (s *Semaphore) SignalN(n uint32) {
	for i := uint32(0); i < n; i++ {
		s.Signal()
	}
}

// Wait blocks until the semaphore's count is positive, then decrements it.
func (s *Semaphore) Wait() {
	<-s.tokens
}

// WaitTimeout blocks until the semaphore's count is positive or timeout
// elapses, decrementing the count and returning true only on success.
func (s *Semaphore) WaitTimeout(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.tokens:
		return true
	case <-t.C:
		return false
	}
}

package ipc

import (
	"testing"
	"time"
)

func TestSemaphoreSignalWait(t *testing.T) {
	s := NewSemaphore()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Wait returned before Signal")
	case <-time.After(20 * time.Millisecond):
	}
	s.Signal()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Signal")
	}
}

func TestSemaphoreWaitTimeout(t *testing.T) {
	s := NewSemaphore()
	if s.WaitTimeout(10 * time.Millisecond) {
		t.Fatal("WaitTimeout should fail with no pending signal")
	}
	s.Signal()
	if !s.WaitTimeout(time.Second) {
		t.Fatal("WaitTimeout should succeed once signalled")
	}
}

func TestBoundedSemaphoreCapsSignals(t *testing.T) {
	s := NewBoundedSemaphore(2)
	s.SignalN(5)
	count := 0
	for s.WaitTimeout(5 * time.Millisecond) {
		count++
	}
	if count != 2 {
		t.Fatalf("bounded semaphore delivered %d signals, want 2", count)
	}
}

// Package ipc provides cross-process coordination primitives for a single
// machine: a named mutex that at most one process holds at a time, and a
// counting semaphore. No other forge package imports it: the coordinator
// takes no lock, the scheduler bounds jobs with its own worker pool, and
// forge-worker's single-instance lock is dist.SystemMutex.
package ipc

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// SystemMutex is a named, process-exclusive lock backed by an flock'd file
// in the system temp directory, grounded on the reference implementation's
// SystemMutex (one open file descriptor per name, LOCK_EX|LOCK_NB to probe,
// LOCK_UN + close to release). Unlike a sync.Mutex it is visible to, and
// contended by, every process on the host.
type SystemMutex struct {
	name string
	fd   int32 // -1 when not held; holds the open fd otherwise
}

// NewSystemMutex returns a mutex identified by name. name should be derived
// from the build's working directory or database path so that unrelated
// builds never contend with each other.
func NewSystemMutex(name string) *SystemMutex {
	return &SystemMutex{name: name, fd: -1}
}

// TryLock attempts to acquire the mutex without blocking. It is invalid to
// call TryLock while already holding the lock.
func (m *SystemMutex) TryLock() (bool, error) {
	if m.IsLocked() {
		return false, xerrors.Errorf("ipc: TryLock called while already held (%s)", m.name)
	}
	path := filepath.Join(os.TempDir(), m.name+".lock")
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0666)
	if err != nil {
		return false, xerrors.Errorf("ipc: open %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return false, nil // held by another process
		}
		return false, xerrors.Errorf("ipc: flock %s: %w", path, err)
	}
	atomic.StoreInt32(&m.fd, int32(fd))
	return true, nil
}

// IsLocked reports whether this SystemMutex instance currently holds the
// lock.
func (m *SystemMutex) IsLocked() bool {
	return atomic.LoadInt32(&m.fd) != -1
}

// Unlock releases the lock. It is invalid to call Unlock when not held.
func (m *SystemMutex) Unlock() error {
	fd := atomic.SwapInt32(&m.fd, -1)
	if fd == -1 {
		return xerrors.Errorf("ipc: Unlock called while not held (%s)", m.name)
	}
	if err := unix.Flock(int(fd), unix.LOCK_UN); err != nil {
		unix.Close(int(fd))
		return xerrors.Errorf("ipc: flock unlock: %w", err)
	}
	return unix.Close(int(fd))
}

// Close releases the lock if held; it is safe to call on an unlocked mutex,
// making it convenient in a defer right after construction.
func (m *SystemMutex) Close() error {
	if !m.IsLocked() {
		return nil
	}
	return m.Unlock()
}

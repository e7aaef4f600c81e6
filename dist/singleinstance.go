package dist

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// SystemMutex is a named, OS-wide, non-reentrant lock backed by an flock'd
// file in os.TempDir, grounded on the original's SystemMutex (its Linux arm
// opens "/tmp/<name>.lock" with O_CREAT|O_CLOEXEC and takes LOCK_EX|LOCK_NB).
// Used by the worker daemon so a second instance can detect one is already
// running instead of silently binding the same port twice (spec.md §5).
type SystemMutex struct {
	name string
	f    *os.File
}

// NewSystemMutex returns an unlocked mutex named name.
func NewSystemMutex(name string) *SystemMutex {
	return &SystemMutex{name: name}
}

// TryLock attempts to take the lock without blocking. A false return with a
// nil error means another process already holds it.
func (m *SystemMutex) TryLock() (bool, error) {
	path := filepath.Join(os.TempDir(), m.name+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return false, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return false, nil
		}
		return false, err
	}
	m.f = f
	return true, nil
}

// Unlock releases the lock and closes the backing file.
func (m *SystemMutex) Unlock() error {
	if m.f == nil {
		return nil
	}
	err := unix.Flock(int(m.f.Fd()), unix.LOCK_UN)
	m.f.Close()
	m.f = nil
	return err
}

// AcquireWithGrace retries TryLock for up to graceWindow, giving a previous
// instance of the same daemon time to finish shutting down (spec.md §5: "up
// to 5s grace is allowed for a previous instance to exit") before reporting
// it as still running.
func AcquireWithGrace(name string, graceWindow time.Duration) (*SystemMutex, error) {
	m := NewSystemMutex(name)
	deadline := time.Now().Add(graceWindow)
	for {
		ok, err := m.TryLock()
		if err != nil {
			return nil, err
		}
		if ok {
			return m, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("dist: %s: already running", name)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

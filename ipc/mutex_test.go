package ipc

import (
	"fmt"
	"testing"
	"time"
)

func TestSystemMutexExcludesSecondLocker(t *testing.T) {
	name := fmt.Sprintf("forge-test-%d", time.Now().UnixNano())
	a := NewSystemMutex(name)
	b := NewSystemMutex(name)

	ok, err := a.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first TryLock should succeed")
	}
	defer a.Close()

	ok, err = b.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		b.Close()
		t.Fatal("second TryLock should fail while first holds the lock")
	}

	if err := a.Unlock(); err != nil {
		t.Fatal(err)
	}

	ok, err = b.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("TryLock should succeed once the first mutex releases")
	}
	b.Close()
}

func TestSystemMutexDoubleUnlockErrors(t *testing.T) {
	name := fmt.Sprintf("forge-test-double-%d", time.Now().UnixNano())
	m := NewSystemMutex(name)
	if ok, err := m.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	if err := m.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := m.Unlock(); err == nil {
		t.Fatal("second Unlock should return an error")
	}
}

package stripe

import (
	"sync"
	"time"
)

// DefaultLockCleanupInterval is how often the Service drops the locks of the
// users without webhook activity.
const DefaultLockCleanupInterval = 10 * time.Minute

// LockManager manages per-user locks to prevent concurrent webhook processing
// for the same user while allowing parallel processing for different users
type LockManager struct {
	locks sync.Map // map[string]*sync.Mutex
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{}
}

// LockUser acquires the lock of the given user id. It returns the function
// that releases it. A lock removed by CleanupLocks while waiting on it is
// discarded and the stored one is taken instead.
func (lm *LockManager) LockUser(userID string) func() {
	for {
		value, _ := lm.locks.LoadOrStore(userID, &sync.Mutex{})
		lock, ok := value.(*sync.Mutex)
		if !ok {
			panic("unexpected type in lock manager")
		}
		lock.Lock()
		if current, ok := lm.locks.Load(userID); ok && current == value {
			return lock.Unlock
		}
		lock.Unlock()
	}
}

// CleanupLocks removes the locks nobody holds.
func (lm *LockManager) CleanupLocks() {
	lm.locks.Range(func(key, value any) bool {
		lock, ok := value.(*sync.Mutex)
		if !ok {
			return true
		}
		if lock.TryLock() {
			lm.locks.Delete(key)
			lock.Unlock()
		}
		return true
	})
}

// Size returns the number of users with a lock entry.
func (lm *LockManager) Size() int {
	n := 0
	lm.locks.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// runCleanup calls CleanupLocks every interval until stop is closed.
func (lm *LockManager) runCleanup(every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			lm.CleanupLocks()
		}
	}
}

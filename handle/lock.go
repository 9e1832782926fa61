package handle

import "sync"

// ReentrantLock is the per-handle lock spec §4.7 calls out as an optional
// feature: "recursive and reference-counted" so the owning task can
// serialize its own cross-call sequences on a handle it holds (seek then
// read, for instance) without deadlocking against itself. Grounded on the
// plain sync.Mutex the teacher uses for its per-device lock (device.go),
// widened here with an owner token and depth count to make it reentrant.
type ReentrantLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner int64
	depth int
}

// NewReentrantLock builds an unheld lock.
func NewReentrantLock() *ReentrantLock {
	l := &ReentrantLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Lock acquires the lock on behalf of ownerID, blocking if another owner
// already holds it. Calling Lock again with the same ownerID increments the
// hold depth instead of blocking.
func (l *ReentrantLock) Lock(ownerID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.depth > 0 && l.owner != ownerID {
		l.cond.Wait()
	}
	l.owner = ownerID
	l.depth++
}

// Unlock releases one level of ownerID's hold. It is a no-op (aside from a
// consistency check) if ownerID doesn't currently hold the lock.
func (l *ReentrantLock) Unlock(ownerID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 || l.owner != ownerID {
		return
	}
	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.cond.Broadcast()
	}
}

// HeldBy reports whether ownerID currently holds the lock at any depth.
func (l *ReentrantLock) HeldBy(ownerID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0 && l.owner == ownerID
}

// Package fairlock provides a FIFO-fair reader/writer lock: readers and
// writers are granted the lock in the order they arrived, so a steady
// stream of readers cannot starve a waiting writer (which plain
// sync.RWMutex does not guarantee). The Distributor uses one of these to
// protect its node directory, per spec.md §4.1's fairness requirement.
//
// No example in the pack ships a fair RWMutex; this is new code built the
// way the pack builds small concurrency primitives elsewhere (a struct
// wrapping a mutex with a handful of exported methods, e.g.
// service.connectionPool in MyGateway).
package fairlock

import "sync"

// RWMutex is a FIFO-fair reader/writer lock. Zero value is usable.
type RWMutex struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers int
	writing bool
	queue   []ticket
	nextID  uint64
}

type ticket struct {
	id     uint64
	writer bool
}

func (l *RWMutex) init() {
	if l.cond == nil {
		l.cond = sync.NewCond(&l.mu)
	}
}

// RLock blocks until a read lock is acquired. Acquisition order among
// concurrently blocked callers (of either RLock or Lock) follows arrival
// order: a reader that arrived before a waiting writer is granted before
// that writer is woken, but a reader arriving after a waiting writer
// waits behind it.
func (l *RWMutex) RLock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	t := l.enqueueLocked(false)
	for !l.canGrantLocked(t) {
		l.cond.Wait()
	}
	l.dequeueLocked(t)
	l.readers++
	l.wakeNextLocked()
}

// RUnlock releases a read lock previously acquired with RLock.
func (l *RWMutex) RUnlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readers--
	l.cond.Broadcast()
}

// Lock blocks until the exclusive write lock is acquired.
func (l *RWMutex) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	t := l.enqueueLocked(true)
	for !l.canGrantLocked(t) {
		l.cond.Wait()
	}
	l.dequeueLocked(t)
	l.writing = true
}

// Unlock releases the exclusive write lock previously acquired with Lock.
func (l *RWMutex) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writing = false
	l.cond.Broadcast()
}

func (l *RWMutex) enqueueLocked(writer bool) uint64 {
	id := l.nextID
	l.nextID++
	l.queue = append(l.queue, ticket{id: id, writer: writer})
	return id
}

func (l *RWMutex) dequeueLocked(id uint64) {
	for i, t := range l.queue {
		if t.id == id {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}

// canGrantLocked reports whether the ticket with id may proceed: a writer
// ticket must be at the front of the queue with no active readers or
// writer; a reader ticket must have no active writer and no earlier-
// arrived, still-queued writer ticket ahead of it (so a burst of readers
// cannot leapfrog a writer that has been waiting longer, but readers
// queued behind a writer are released together as soon as that writer is
// dequeued).
func (l *RWMutex) canGrantLocked(id uint64) bool {
	if l.writing {
		return false
	}
	var self *ticket
	for i := range l.queue {
		if l.queue[i].id == id {
			self = &l.queue[i]
			break
		}
	}
	if self == nil {
		return true
	}
	if self.writer {
		return l.readers == 0 && l.queue[0].id == id
	}
	for _, t := range l.queue {
		if t.id == id {
			return true
		}
		if t.writer {
			return false
		}
	}
	return true
}

func (l *RWMutex) wakeNextLocked() {
	l.cond.Broadcast()
}

package lock

import (
	"context" // Cancellation and deadlines
	"sync"    // Entry table guard
	"time"    // Acquisition timeout
)

type entry struct {
	sem  chan struct{} // Capacity one; holding a token means owning the key
	refs int           // Holders plus waiters; the entry is dropped at zero
}

// LocalLocker serializes keys inside one process.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

// NewLocalLocker creates an in-process locker. A zero timeout waits for ctx only.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{entries: make(map[string]*entry), timeout: timeout}
}

func (l *LocalLocker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *LocalLocker) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Acquire blocks until all keys are held, the timeout elapses or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	keys = normalize(keys)
	held := make([]*entry, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].sem
			l.unref(keys[i], held[i])
		}
	}
	for _, key := range keys {
		e := l.ref(key)
		select {
		case e.sem <- struct{}{}:
			held = append(held, e)
		case <-ctx.Done():
			l.unref(key, e)
			release()
			return nil, timeoutErr(ctx)
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Len reports how many keys are held or awaited.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

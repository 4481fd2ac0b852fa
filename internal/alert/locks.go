package alert

import "sync"

// tokenLocks serialises evaluations of the same token. Entries are dropped once
// no goroutine holds or waits for them.
type tokenLocks struct {
	mu    sync.Mutex
	locks map[string]*tokenLock
}

type tokenLock struct {
	sync.Mutex
	refs int
}

func newTokenLocks() *tokenLocks {
	return &tokenLocks{locks: make(map[string]*tokenLock)}
}

func (l *tokenLocks) lock(token string) (unlock func()) {
	l.mu.Lock()
	tl, ok := l.locks[token]
	if !ok {
		tl = &tokenLock{}
		l.locks[token] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()
	return func() {
		tl.Unlock()

		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, token)
		}
		l.mu.Unlock()
	}
}

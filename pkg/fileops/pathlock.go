package fileops

import "sync"

// pathLocks serializes mutating operations on the same resolved path.
// Locks are advisory and in-process only: external writers to the
// exported trees are out of scope.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock acquires the lock for path and returns its release function.
// Entries are refcounted so the map does not grow with dead paths.
func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &pathLock{}
		p.locks[path] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, path)
		}
		p.mu.Unlock()
	}
}

// lockPair acquires the locks for two paths in sorted order, so two
// operations touching the same pair cannot deadlock against each other.
func (p *pathLocks) lockPair(a, b string) func() {
	if a == b {
		return p.lock(a)
	}
	if b < a {
		a, b = b, a
	}
	unlockA := p.lock(a)
	unlockB := p.lock(b)
	return func() {
		unlockB()
		unlockA()
	}
}

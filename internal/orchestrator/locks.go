package orchestrator

import "sync"

// pageLocks hands out one mutex per key and forgets it once nobody holds it
type pageLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newPageLocks() *pageLocks {
	return &pageLocks{locks: make(map[string]*refMutex)}
}

func (p *pageLocks) acquire(key string) func() {
	p.mu.Lock()
	m, ok := p.locks[key]
	if !ok {
		m = &refMutex{}
		p.locks[key] = m
	}
	m.refs++
	p.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		p.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

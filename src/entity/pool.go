package entity

import "sync"

type poolKey struct {
	class string
	id    string
}

// Pool is an identity map: one in-memory instance per (class, id).
type Pool struct {
	mu       sync.RWMutex
	entities map[poolKey]*Entity
}

func NewPool() *Pool {
	return &Pool{entities: make(map[poolKey]*Entity)}
}

// Add registers a persisted entity. An already pooled instance for the same
// (class, id) wins and is returned.
func (p *Pool) Add(e *Entity) *Entity {
	if e == nil || !e.Exists() {
		return e
	}

	key := poolKey{class: e.class.Name, id: e.id}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.entities[key]; ok {
		return existing
	}
	p.entities[key] = e
	return e
}

func (p *Pool) Get(class string, id string) (*Entity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entities[poolKey{class: class, id: id}]
	return e, ok
}

func (p *Pool) Remove(e *Entity) {
	if e == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.entities, poolKey{class: e.class.Name, id: e.id})
}

func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entities = make(map[poolKey]*Entity)
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.entities)
}

// Package weakermap provides a table that accepts keys and values of any type and
// holds each side weakly whenever it can.
//
// Reference keys and values (see weakref) are held weakly; primitives are held
// strongly because they have no identity to track. An entry is removed as soon as
// any weakly held side is reclaimed, so a cached object can be collected
// independently of its key.
package weakermap

import (
	"runtime"
	"sync"
	"weak"

	"github.com/on-the-ground/automemo/weakref"
)

// Map is a table whose entries vanish once their key or value is unreachable
// outside of it.
type Map[K, V any] struct {
	mu      sync.Mutex
	entries map[any]*entry[K, V]
	onEvict func()
}

type entry[K, V any] struct {
	key      weakref.Ref[K]
	value    weakref.Ref[V]
	cleanups [2]runtime.Cleanup
}

func (e *entry[K, V]) stop() {
	for _, c := range e.cleanups {
		c.Stop()
	}
}

// New returns an empty Map. onEvict, if not nil, runs after each entry removed
// because its key or value was reclaimed.
func New[K, V any](onEvict func()) *Map[K, V] {
	return &Map[K, V]{
		entries: make(map[any]*entry[K, V]),
		onEvict: onEvict,
	}
}

func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	var zero V
	id, err := weakref.Make(key).Identity()
	if err != nil {
		return zero, false
	}

	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return zero, false
	}
	v, ok := e.value.Value()
	if ok {
		m.mu.Unlock()
		return v, true
	}
	// The value is gone but its cleanup has not run yet.
	removed := m.remove(id, e)
	m.mu.Unlock()

	if removed && m.onEvict != nil {
		m.onEvict()
	}
	return zero, false
}

// Set stores value under key, replacing any previous entry.
// It panics if key is a strongly held value that is not comparable.
func (m *Map[K, V]) Set(key K, value V) {
	kr := weakref.Make(key)
	id, err := kr.Identity()
	if err != nil {
		panic(err)
	}
	e := &entry[K, V]{key: kr, value: weakref.Make(value)}

	m.mu.Lock()
	if old, ok := m.entries[id]; ok {
		old.stop()
	}
	m.entries[id] = e
	mw := weak.Make(m)
	collected := func() {
		if m := mw.Value(); m != nil {
			m.collected(id, e)
		}
	}
	e.cleanups[0] = e.key.OnCollect(collected)
	e.cleanups[1] = e.value.OnCollect(collected)
	m.mu.Unlock()

	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
}

// Len returns the number of entries, including ones whose value was reclaimed
// but whose removal is still pending.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Map[K, V]) collected(id any, e *entry[K, V]) {
	m.mu.Lock()
	removed := m.remove(id, e)
	m.mu.Unlock()

	if removed && m.onEvict != nil {
		m.onEvict()
	}
}

// remove deletes e if it is still the entry for id. m.mu must be held.
func (m *Map[K, V]) remove(id any, e *entry[K, V]) bool {
	if m.entries[id] != e {
		return false
	}
	delete(m.entries, id)
	e.stop()
	return true
}

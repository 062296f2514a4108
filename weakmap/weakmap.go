// Package weakmap provides a table keyed by pointers that does not keep its keys
// alive. Values are held strongly for as long as their key is reachable; once the
// key is reclaimed the entry is removed.
//
// As with any weak-keyed table in Go, a value that references its own key keeps
// the entry alive forever.
package weakmap

import (
	"errors"
	"sync"
	"weak"

	"github.com/on-the-ground/automemo/weakref"
)

// ErrNilKey is the panic value of Set with a nil key.
var ErrNilKey = errors.New("weakmap: nil key")

// Map is a weak-keyed table. Keys the collector never reclaims are held strongly.
type Map[K, V any] struct {
	mu      sync.Mutex
	weak    map[weak.Pointer[K]]V
	strong  map[*K]V
	onEvict func()
}

// New returns an empty Map. onEvict, if not nil, runs after each entry removed
// because its key was reclaimed.
func New[K, V any](onEvict func()) *Map[K, V] {
	return &Map[K, V]{
		weak:    make(map[weak.Pointer[K]]V),
		strong:  make(map[*K]V),
		onEvict: onEvict,
	}
}

func (m *Map[K, V]) Has(key *K) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map[K, V]) Get(key *K) (V, bool) {
	var zero V
	if key == nil {
		return zero, false
	}
	wp, ok := weakref.Pointer(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok {
		v, ok := m.strong[key]
		return v, ok
	}
	v, ok := m.weak[wp]
	return v, ok
}

// Set stores value under key, replacing any previous value.
// It panics with ErrNilKey if key is nil.
func (m *Map[K, V]) Set(key *K, value V) {
	if key == nil {
		panic(ErrNilKey)
	}
	wp, ok := weakref.Pointer(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok {
		m.strong[key] = value
		return
	}
	if _, exists := m.weak[wp]; !exists {
		// Cleanups are roots: reaching the map weakly lets it die with its owner.
		mw := weak.Make(m)
		weakref.OnCollect(key, func() {
			if m := mw.Value(); m != nil {
				m.evict(wp)
			}
		})
	}
	m.weak[wp] = value
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.weak) + len(m.strong)
}

func (m *Map[K, V]) evict(wp weak.Pointer[K]) {
	m.mu.Lock()
	_, ok := m.weak[wp]
	delete(m.weak, wp)
	m.mu.Unlock()

	if ok && m.onEvict != nil {
		m.onEvict()
	}
}

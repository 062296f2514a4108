package tuple

import (
	"runtime"
	"sync"
)

// trie interns tuples component by component.
type trie struct {
	mu   sync.Mutex
	root *node
	size int
}

type node struct {
	parent   *node
	key      any
	children map[any]*node
	tuple    *Tuple
}

func newTrie() *trie {
	return &trie{root: &node{}}
}

// traverse walks keys from the root, creating missing nodes. t.mu must be held.
func (t *trie) traverse(keys []any) *node {
	n := t.root
	for _, k := range keys {
		child, ok := n.children[k]
		if !ok {
			if n.children == nil {
				n.children = make(map[any]*node)
			}
			child = &node{parent: n, key: k}
			n.children[k] = child
		}
		n = child
	}
	return n
}

// loadOrStore returns the tuple interned under keys. If there is none, it stores
// the one built by newTuple, which runs with t.mu held.
func (t *trie) loadOrStore(keys []any, newTuple func(leaf *node) *Tuple) (tup *Tuple, loaded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaf := t.traverse(keys)
	if leaf.tuple != nil {
		return leaf.tuple, true
	}
	leaf.tuple = newTuple(leaf)
	t.size++
	return leaf.tuple, false
}

// delete removes tup from leaf if it is still interned there, cancels the
// cleanups of its other parts and prunes the nodes left empty.
func (t *trie) delete(leaf *node, tup *Tuple) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if leaf.tuple != tup {
		return false
	}
	leaf.tuple = nil
	t.size--
	for _, c := range tup.cleanups {
		c.Stop()
	}
	tup.cleanups = nil

	for n := leaf; n.parent != nil && n.tuple == nil && len(n.children) == 0; n = n.parent {
		delete(n.parent.children, n.key)
	}
	return true
}

func (t *trie) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// cleanups is the set of pending cleanups a tuple registered on its parts.
type cleanups []runtime.Cleanup

// Package tuple derives canonical, reference-stable keys from argument lists.
//
// A Deriver interns tuples: two calls with equal parts return the same *Tuple,
// so the pointer itself can key weak tables. Primitive parts compare by value
// and reference parts by identity. A tuple is held by its Deriver exactly as long
// as all of its reference parts are reachable, and it never keeps those parts
// alive. A tuple of primitives only lives as long as the Deriver.
package tuple

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"weak"

	"github.com/on-the-ground/automemo/schema"
	"github.com/on-the-ground/automemo/weakref"
)

// DefaultShards is the number of trie shards used when NewDeriver is given a
// non-positive count.
const DefaultShards = 16

// Tuple is an interned, immutable list of parts.
type Tuple struct {
	id       uint64
	parts    []weakref.Ref[any]
	cleanups cleanups
}

// ID is unique among the tuples of one Deriver.
func (t *Tuple) ID() uint64 {
	return t.id
}

func (t *Tuple) Len() int {
	return len(t.parts)
}

// At returns the i-th part, or false if that part has been reclaimed.
func (t *Tuple) At(i int) (any, bool) {
	return t.parts[i].Value()
}

func (t *Tuple) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tuple#%d(", t.id)
	for i := range t.parts {
		if i > 0 {
			sb.WriteString(", ")
		}
		if v, ok := t.At(i); ok {
			fmt.Fprintf(&sb, "%v", v)
		} else {
			sb.WriteString("<collected>")
		}
	}
	sb.WriteString(")")
	return sb.String()
}

// Deriver interns tuples. It is safe for concurrent use.
type Deriver struct {
	shards []*trie
	nextID atomic.Uint64
}

func NewDeriver(shards int) *Deriver {
	if shards <= 0 {
		shards = DefaultShards
	}
	d := &Deriver{shards: make([]*trie, shards)}
	for i := range d.shards {
		d.shards[i] = newTrie()
	}
	return d
}

// Derive validates args against s and returns the tuple of the resulting parts.
// Validation failures are *schema.ValidationError.
func (d *Deriver) Derive(args []any, s schema.Schema) (*Tuple, error) {
	parts, err := s.Apply(args)
	if err != nil {
		return nil, err
	}
	return d.Make(parts...)
}

// Make returns the tuple of parts, interning it on first use.
func (d *Deriver) Make(parts ...any) (*Tuple, error) {
	refs := make([]weakref.Ref[any], len(parts))
	keys := make([]any, len(parts))
	for i, p := range parts {
		refs[i] = weakref.Make(p)
		id, err := refs[i].Identity()
		if err != nil {
			return nil, &schema.ValidationError{Position: i, Rule: "keyable", Err: err}
		}
		keys[i] = id
	}

	shard := d.shards[shardIndex(parts, len(d.shards))]
	tup, _ := shard.loadOrStore(keys, func(leaf *node) *Tuple {
		tup := &Tuple{id: d.nextID.Add(1), parts: refs}
		// Cleanups are roots, so they only reach the trie weakly.
		sw, lw, tw := weak.Make(shard), weak.Make(leaf), weak.Make(tup)
		evict := func() {
			s, l, t := sw.Value(), lw.Value(), tw.Value()
			if s != nil && l != nil && t != nil {
				s.delete(l, t)
			}
		}
		for _, r := range refs {
			if r.Weak() {
				tup.cleanups = append(tup.cleanups, r.OnCollect(evict))
			}
		}
		return tup
	})
	runtime.KeepAlive(parts)
	return tup, nil
}

// Len returns the number of interned tuples.
func (d *Deriver) Len() int {
	n := 0
	for _, s := range d.shards {
		n += s.len()
	}
	return n
}

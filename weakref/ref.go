// Package weakref holds values weakly or strongly depending on what they are.
//
// Reference values (non-nil pointers, maps, channels, funcs, unsafe pointers and
// slices with capacity) whose memory is managed by the collector are held through
// a weak.Pointer. Everything else is held strongly: primitives, structs, arrays,
// nil references, and references into memory the collector never reclaims such as
// package-level variables or zero-size values.
package weakref

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"reflect"
	"runtime"
	"unsafe"
	"weak"
)

// ErrNotComparable is returned by Identity for strongly held values that cannot be
// compared with ==, such as structs carrying slices.
var ErrNotComparable = errors.New("weakref: value is neither comparable nor a reference")

// Ref is a weak-or-strong handle on a value of type V.
type Ref[V any] struct {
	strong V

	// typ is nil for strong refs.
	typ reflect.Type
	wp  weak.Pointer[byte]
	len int
	cap int
}

// Make returns a handle on v. It never keeps a collectable reference alive.
func Make[V any](v V) Ref[V] {
	rv := reflect.ValueOf(any(v))
	p, ok := pointer(rv)
	if !ok || !collectable(p) {
		return Ref[V]{strong: v}
	}
	r := Ref[V]{typ: rv.Type(), wp: weak.Make((*byte)(p))}
	if rv.Kind() == reflect.Slice {
		r.len, r.cap = rv.Len(), rv.Cap()
	}
	runtime.KeepAlive(v)
	return r
}

// Weak reports whether r does not keep its referent alive.
func (r Ref[V]) Weak() bool {
	return r.typ != nil
}

// Value returns the referent. The second result is false once a weakly held
// referent has been reclaimed.
func (r Ref[V]) Value() (V, bool) {
	if r.typ == nil {
		return r.strong, true
	}
	p := r.wp.Value()
	if p == nil {
		var zero V
		return zero, false
	}
	var out V
	dst := reflect.ValueOf(&out).Elem()
	if r.typ.Kind() == reflect.Slice {
		s := reflect.SliceAt(r.typ.Elem(), unsafe.Pointer(p), r.cap).Slice(0, r.len)
		dst.Set(s.Convert(r.typ))
	} else {
		word := unsafe.Pointer(p)
		dst.Set(reflect.NewAt(r.typ, unsafe.Pointer(&word)).Elem())
	}
	return out, true
}

// Identity returns a comparable token naming the referent of r, suitable as a map
// key. Weak refs are named by object, so the token never keeps the object alive
// and is never reused for another object.
func (r Ref[V]) Identity() (any, error) {
	if r.typ != nil {
		return weakKey{typ: r.typ, wp: r.wp, len: r.len, cap: r.cap}, nil
	}
	return identity(any(r.strong))
}

// OnCollect arranges for fn to run on a runtime goroutine after the referent of r
// has been reclaimed. For strong refs, or a referent already gone, it does nothing
// and returns the zero Cleanup. fn must not reference the referent.
func (r Ref[V]) OnCollect(fn func()) runtime.Cleanup {
	if r.typ == nil {
		return runtime.Cleanup{}
	}
	p := r.wp.Value()
	if p == nil {
		return runtime.Cleanup{}
	}
	return runtime.AddCleanup(p, run, fn)
}

// IsReference reports whether v is a non-nil reference value: pointer, map, chan,
// func, unsafe pointer, or a slice with capacity.
func IsReference(v any) bool {
	_, ok := pointer(reflect.ValueOf(v))
	return ok
}

// Pointer returns a weak pointer to p, or false when p is nil or points into memory
// the collector never reclaims.
func Pointer[T any](p *T) (weak.Pointer[T], bool) {
	if p == nil || !collectable(unsafe.Pointer(p)) {
		return weak.Pointer[T]{}, false
	}
	return weak.Make(p), true
}

// OnCollect is the pointer form of Ref.OnCollect.
func OnCollect[T any](p *T, fn func()) runtime.Cleanup {
	if p == nil || !collectable(unsafe.Pointer(p)) {
		return runtime.Cleanup{}
	}
	return runtime.AddCleanup(p, run, fn)
}

func run(fn func()) { fn() }

// weakKey names an object. len and cap tell apart slices sharing a backing array.
type weakKey struct {
	typ reflect.Type
	wp  weak.Pointer[byte]
	len int
	cap int
}

// staticKey names a reference into memory that is never reclaimed, so its
// address cannot be reused.
type staticKey struct {
	typ reflect.Type
	p   uintptr
	len int
	cap int
}

type nilKey struct{ typ reflect.Type }

type emptyKey struct{ typ reflect.Type }

type nanKey struct{ typ reflect.Type }

func identity(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil
	}
	if p, ok := pointer(rv); ok {
		k := staticKey{typ: rv.Type(), p: uintptr(p)}
		if rv.Kind() == reflect.Slice {
			k.len, k.cap = rv.Len(), rv.Cap()
		}
		return k, nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func:
		return nilKey{typ: rv.Type()}, nil
	case reflect.Slice:
		if rv.IsNil() {
			return nilKey{typ: rv.Type()}, nil
		}
		return emptyKey{typ: rv.Type()}, nil
	case reflect.Float32, reflect.Float64:
		if math.IsNaN(rv.Float()) {
			return nanKey{typ: rv.Type()}, nil
		}
	case reflect.Complex64, reflect.Complex128:
		if cmplx.IsNaN(rv.Complex()) {
			return nanKey{typ: rv.Type()}, nil
		}
	}
	if !rv.Comparable() {
		return nil, fmt.Errorf("%w: %s", ErrNotComparable, rv.Type())
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Array:
		if hasNaN(rv) {
			return canonicalNaNs(rv)
		}
	}
	return v, nil
}

// compositeKey names a struct or array holding NaNs: a copy with every NaN zeroed,
// plus one byte per float leaf recording which leaves were NaN.
type compositeKey struct {
	typ  reflect.Type
	v    any
	nans string
}

func hasNaN(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return math.IsNaN(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		return cmplx.IsNaN(rv.Complex())
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if hasNaN(rv.Field(i)) {
				return true
			}
		}
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if hasNaN(rv.Index(i)) {
				return true
			}
		}
	case reflect.Interface:
		return !rv.IsNil() && hasNaN(rv.Elem())
	}
	return false
}

func canonicalNaNs(rv reflect.Value) (any, error) {
	cp := reflect.New(rv.Type()).Elem()
	cp.Set(rv)
	var nans []byte
	if err := zeroNaNs(cp, &nans); err != nil {
		return nil, err
	}
	return compositeKey{typ: rv.Type(), v: cp.Interface(), nans: string(nans)}, nil
}

// zeroNaNs rewrites the addressable value v in place.
func zeroNaNs(v reflect.Value, nans *[]byte) error {
	// Unexported fields are read-only through reflect; the copy is ours to write.
	v = reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		nan := math.IsNaN(v.Float())
		*nans = append(*nans, leaf(nan))
		if nan {
			v.SetFloat(0)
		}
	case reflect.Complex64, reflect.Complex128:
		nan := cmplx.IsNaN(v.Complex())
		*nans = append(*nans, leaf(nan))
		if nan {
			v.SetComplex(0)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := zeroNaNs(v.Field(i), nans); err != nil {
				return err
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := zeroNaNs(v.Index(i), nans); err != nil {
				return err
			}
		}
	case reflect.Interface:
		if v.IsNil() || !hasNaN(v.Elem()) {
			return nil
		}
		if v.NumMethod() > 0 {
			return fmt.Errorf("%w: NaN behind %s", ErrNotComparable, v.Type())
		}
		id, err := identity(v.Elem().Interface())
		if err != nil {
			return err
		}
		*nans = append(*nans, leaf(true))
		v.Set(reflect.ValueOf(id))
	}
	return nil
}

func leaf(nan bool) byte {
	if nan {
		return '1'
	}
	return '0'
}

// pointer extracts the object pointer behind a reference value.
func pointer(rv reflect.Value) (unsafe.Pointer, bool) {
	if !rv.IsValid() {
		return nil, false
	}
	var p unsafe.Pointer
	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan:
		p = rv.UnsafePointer()
	case reflect.Func:
		if rv.IsNil() {
			return nil, false
		}
		// UnsafePointer yields the code pointer for funcs; the closure object is
		// the word stored in the func value itself.
		cell := reflect.New(rv.Type())
		cell.Elem().Set(rv)
		p = *(*unsafe.Pointer)(cell.UnsafePointer())
	case reflect.Slice:
		if rv.Cap() == 0 {
			return nil, false
		}
		p = rv.UnsafePointer()
	default:
		return nil, false
	}
	return p, p != nil
}

// collectable reports whether p points into memory the collector reclaims.
// runtime.AddCleanup returns the zero Cleanup for globals and zero-size values and
// panics for static closures; both mean the object lives forever.
func collectable(p unsafe.Pointer) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	c := runtime.AddCleanup((*byte)(p), func(struct{}) {}, struct{}{})
	if c == (runtime.Cleanup{}) {
		return false
	}
	c.Stop()
	return true
}

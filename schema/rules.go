package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/on-the-ground/automemo/weakref"
)

var (
	// ErrRejected is wrapped when a Check predicate returns false.
	ErrRejected = errors.New("rejected")

	// ErrNotKeyable is wrapped for values that are neither comparable nor
	// references and have no String method to fall back on.
	ErrNotKeyable = errors.New("not comparable and no fmt.Stringer fallback")

	// ErrKind is wrapped when an argument has the wrong kind.
	ErrKind = errors.New("unexpected kind")
)

// Rule validates one argument and maps it to its canonical part.
type Rule struct {
	Name      string
	check     func(any) error
	transform func(any) (any, error)
}

func (r Rule) apply(v any) (any, error) {
	if r.check != nil {
		if err := r.check(v); err != nil {
			return nil, err
		}
	}
	if r.transform != nil {
		return r.transform(v)
	}
	return v, nil
}

// Check builds a rule that accepts the arguments for which pred returns true.
func Check(name string, pred func(any) bool) Rule {
	return Rule{
		Name: name,
		check: func(v any) error {
			if !pred(v) {
				return fmt.Errorf("%w: %v", ErrRejected, v)
			}
			return nil
		},
	}
}

// Transform builds a rule that replaces the argument by fn's result.
func Transform(name string, fn func(any) (any, error)) Rule {
	return Rule{Name: name, transform: fn}
}

// All chains rules left to right; each one sees the previous one's output.
func All(rules ...Rule) Rule {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return Rule{
		Name: fmt.Sprintf("all%v", names),
		transform: func(v any) (any, error) {
			var err error
			for _, r := range rules {
				if v, err = r.apply(v); err != nil {
					return nil, fmt.Errorf("%s: %w", r.Name, err)
				}
			}
			return v, nil
		},
	}
}

// Value keys an argument by value if it is comparable and by identity if it is a
// reference. Other values fall back to their String method.
//
// A comparable struct or array is kept whole in the key, so any pointers inside
// it stay reachable for as long as the key does. Key such arguments with Fields
// or JSON instead.
func Value() Rule {
	return Rule{
		Name: "value",
		transform: func(v any) (any, error) {
			if keyable(v) {
				return v, nil
			}
			if s, ok := v.(fmt.Stringer); ok {
				return s.String(), nil
			}
			return nil, fmt.Errorf("%w: %T", ErrNotKeyable, v)
		},
	}
}

// Stringer keys an argument by its String method.
func Stringer() Rule {
	return Rule{
		Name: "stringer",
		transform: func(v any) (any, error) {
			s, ok := v.(fmt.Stringer)
			if !ok {
				return nil, fmt.Errorf("%w: %T does not implement fmt.Stringer", ErrKind, v)
			}
			return s.String(), nil
		},
	}
}

func String() Rule {
	return kindRule("string", reflect.String)
}

func Bool() Rule {
	return kindRule("bool", reflect.Bool)
}

// Int accepts signed and unsigned integers.
func Int() Rule {
	return kindRule("int",
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
	)
}

// Number accepts integers and floats.
func Number() Rule {
	return kindRule("number",
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
	)
}

// Ref accepts non-nil references, keyed by identity.
func Ref() Rule {
	return Rule{
		Name: "ref",
		check: func(v any) error {
			if !weakref.IsReference(v) {
				return fmt.Errorf("%w: %T is not a non-nil reference", ErrKind, v)
			}
			return nil
		},
	}
}

// JSON keys an argument by its JSON encoding, so structurally equal values share
// a key regardless of identity.
func JSON() Rule {
	return Rule{
		Name: "json",
		transform: func(v any) (any, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		},
	}
}

// Fields keys a struct, a pointer to one, or a string-keyed map by the named
// fields only. Missing fields are keyed as absent.
func Fields(names ...string) Rule {
	return Rule{
		Name: fmt.Sprintf("fields%v", names),
		transform: func(v any) (any, error) {
			projected, err := project(reflect.ValueOf(v), names)
			if err != nil {
				return nil, err
			}
			b, err := json.Marshal(projected)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		},
	}
}

func project(rv reflect.Value, names []string) (map[string]any, error) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: nil", ErrKind)
		}
		rv = rv.Elem()
	}
	out := make(map[string]any, len(names))
	switch rv.Kind() {
	case reflect.Struct:
		for _, name := range names {
			f := rv.FieldByName(name)
			if f.IsValid() && f.CanInterface() {
				out[name] = f.Interface()
			}
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", ErrKind, rv.Type().Key())
		}
		for _, name := range names {
			f := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if f.IsValid() {
				out[name] = f.Interface()
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s has no fields", ErrKind, rv.Kind())
	}
	return out, nil
}

func kindRule(name string, kinds ...reflect.Kind) Rule {
	return Rule{
		Name: name,
		check: func(v any) error {
			k := reflect.ValueOf(v).Kind()
			for _, want := range kinds {
				if k == want {
					return nil
				}
			}
			return fmt.Errorf("%w: %T", ErrKind, v)
		},
	}
}

func keyable(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice:
		return true
	}
	return rv.Comparable()
}

// Package schema describes how an argument list is validated and canonicalized
// before it is turned into a cache key.
//
// A Schema fixes the accepted arity and assigns a Rule to each position. A Rule
// checks the argument and may transform it, for example projecting a struct to the
// few fields that matter or to its JSON encoding, so that structurally equal
// arguments share one key.
package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidArgs matches every validation failure via errors.Is.
var ErrInvalidArgs = errors.New("invalid arguments")

// ValidationError reports which argument failed which rule.
// Position is -1 when the arity itself is wrong.
type ValidationError struct {
	Position int
	Rule     string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("%v: %s: %v", ErrInvalidArgs, e.Rule, e.Err)
	}
	return fmt.Sprintf("%v: argument %d: %s: %v", ErrInvalidArgs, e.Position, e.Rule, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidArgs, e.Err}
}

// ErrArity is wrapped by ValidationErrors for argument lists of the wrong length.
var ErrArity = errors.New("wrong number of arguments")

// Schema is the shape of an argument list.
type Schema struct {
	positional []Rule
	rest       *Rule
}

// Default keys every argument by value or identity.
func Default() Schema {
	return NTuple(Value())
}

// NTuple accepts argument lists of any length and applies rule to every position.
func NTuple(rule Rule) Schema {
	return Schema{rest: &rule}
}

// Tuple accepts exactly len(rules) arguments.
func Tuple(rules ...Rule) Schema {
	return Schema{positional: rules}
}

// Variadic accepts at least len(rules) arguments; the ones past the fixed prefix
// are checked with rest.
func Variadic(rest Rule, rules ...Rule) Schema {
	return Schema{positional: rules, rest: &rest}
}

// Apply validates args and returns their canonical parts.
// It never modifies args.
func (s Schema) Apply(args []any) ([]any, error) {
	if len(args) < len(s.positional) || (s.rest == nil && len(args) != len(s.positional)) {
		return nil, &ValidationError{
			Position: -1,
			Rule:     "arity",
			Err:      fmt.Errorf("%w: got %d, want %s", ErrArity, len(args), s.arity()),
		}
	}
	parts := make([]any, len(args))
	for i, arg := range args {
		rule := s.ruleAt(i)
		part, err := rule.apply(arg)
		if err != nil {
			return nil, &ValidationError{Position: i, Rule: rule.Name, Err: err}
		}
		parts[i] = part
	}
	return parts, nil
}

func (s Schema) ruleAt(i int) Rule {
	if i < len(s.positional) {
		return s.positional[i]
	}
	return *s.rest
}

func (s Schema) arity() string {
	if s.rest != nil {
		return fmt.Sprintf("at least %d", len(s.positional))
	}
	return fmt.Sprintf("%d", len(s.positional))
}

// Package purefn memoizes pure functions without holding their arguments or
// results alive.
//
// Memoize is not a cache you size and tune. It asks one question of the caller:
//
//	→ "Is this function really pure?"
//
// If it is, a call can be remembered for exactly as long as somebody could ask
// it again. Results live in one of two tiers:
//
//   - Tier A: primitive results (numbers, strings, structs, nil), held strongly
//     and weakly keyed by the argument tuple.
//   - Tier B: reference results (pointers, maps, slices, channels, funcs), held
//     weakly, so a cached object goes away once its last outside user does.
//
// Argument lists become interned tuples (package tuple), validated and projected
// by a schema (package schema). The default schema keys every argument by value,
// or by identity when it is a reference.
//
// Features:
//   - Memoize, MemoizeErr and New for variadic functions.
//   - MemoizeI1O1 to MemoizeI4O1Err: typed wrappers for common arities.
//   - Optional single-flight loading, Prometheus counters and an event stream.
//
// WARNING: Do not memoize impure functions (e.g., those depending on time, I/O, etc).
package purefn

package purefn

// Memoize wraps fn so that calls with equal argument keys share one result.
//
// Primitive results are kept for as long as the key's reference arguments are
// reachable; reference results are additionally dropped once nothing outside
// the cache holds them. Argument lists rejected by the schema make the wrapper
// panic with a *schema.ValidationError. A panic of fn is never cached.
func Memoize[O any](fn func(...any) O, opts ...Option) func(...any) O {
	m := New(func(args ...any) (O, error) {
		return fn(args...), nil
	}, opts...)
	return func(args ...any) O {
		v, err := m.Call(args...)
		if err != nil {
			panic(err)
		}
		return v
	}
}

// MemoizeErr is Memoize for functions that can fail. Validation failures and
// errors of fn are returned; errors are never cached.
func MemoizeErr[O any](fn func(...any) (O, error), opts ...Option) func(...any) (O, error) {
	return New(fn, opts...).Call
}

// arg reads a typed argument back from the variadic call. The typed wrappers
// pass nil interfaces for nil pointers, maps and the like.
func arg[T any](args []any, i int) T {
	v, _ := args[i].(T)
	return v
}

func MemoizeI1O1[I1, O1 any](
	pureFn func(I1) O1,
	opts ...Option,
) func(I1) O1 {
	memoized := Memoize(
		func(args ...any) O1 {
			return pureFn(arg[I1](args, 0))
		},
		opts...,
	)
	return func(i1 I1) O1 {
		return memoized(i1)
	}
}

func MemoizeI2O1[I1, I2, O1 any](
	pureFn func(I1, I2) O1,
	opts ...Option,
) func(I1, I2) O1 {
	memoized := Memoize(
		func(args ...any) O1 {
			return pureFn(arg[I1](args, 0), arg[I2](args, 1))
		},
		opts...,
	)
	return func(i1 I1, i2 I2) O1 {
		return memoized(i1, i2)
	}
}

func MemoizeI3O1[I1, I2, I3, O1 any](
	pureFn func(I1, I2, I3) O1,
	opts ...Option,
) func(I1, I2, I3) O1 {
	memoized := Memoize(
		func(args ...any) O1 {
			return pureFn(arg[I1](args, 0), arg[I2](args, 1), arg[I3](args, 2))
		},
		opts...,
	)
	return func(i1 I1, i2 I2, i3 I3) O1 {
		return memoized(i1, i2, i3)
	}
}

func MemoizeI4O1[I1, I2, I3, I4, O1 any](
	pureFn func(I1, I2, I3, I4) O1,
	opts ...Option,
) func(I1, I2, I3, I4) O1 {
	memoized := Memoize(
		func(args ...any) O1 {
			return pureFn(arg[I1](args, 0), arg[I2](args, 1), arg[I3](args, 2), arg[I4](args, 3))
		},
		opts...,
	)
	return func(i1 I1, i2 I2, i3 I3, i4 I4) O1 {
		return memoized(i1, i2, i3, i4)
	}
}

package purefn

func MemoizeI1O1Err[I1, O1 any](
	fn func(I1) (O1, error),
	opts ...Option,
) func(I1) (O1, error) {
	memoized := MemoizeErr(
		func(args ...any) (O1, error) {
			return fn(arg[I1](args, 0))
		},
		opts...,
	)
	return func(i1 I1) (O1, error) {
		return memoized(i1)
	}
}

func MemoizeI2O1Err[I1, I2, O1 any](
	fn func(I1, I2) (O1, error),
	opts ...Option,
) func(I1, I2) (O1, error) {
	memoized := MemoizeErr(
		func(args ...any) (O1, error) {
			return fn(arg[I1](args, 0), arg[I2](args, 1))
		},
		opts...,
	)
	return func(i1 I1, i2 I2) (O1, error) {
		return memoized(i1, i2)
	}
}

func MemoizeI3O1Err[I1, I2, I3, O1 any](
	fn func(I1, I2, I3) (O1, error),
	opts ...Option,
) func(I1, I2, I3) (O1, error) {
	memoized := MemoizeErr(
		func(args ...any) (O1, error) {
			return fn(arg[I1](args, 0), arg[I2](args, 1), arg[I3](args, 2))
		},
		opts...,
	)
	return func(i1 I1, i2 I2, i3 I3) (O1, error) {
		return memoized(i1, i2, i3)
	}
}

func MemoizeI4O1Err[I1, I2, I3, I4, O1 any](
	fn func(I1, I2, I3, I4) (O1, error),
	opts ...Option,
) func(I1, I2, I3, I4) (O1, error) {
	memoized := MemoizeErr(
		func(args ...any) (O1, error) {
			return fn(arg[I1](args, 0), arg[I2](args, 1), arg[I3](args, 2), arg[I4](args, 3))
		},
		opts...,
	)
	return func(i1 I1, i2 I2, i3 I3, i4 I4) (O1, error) {
		return memoized(i1, i2, i3, i4)
	}
}

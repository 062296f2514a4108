package tuple_test

import (
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/automemo/schema"
	"github.com/on-the-ground/automemo/tuple"
)

type object struct {
	id  int
	pad [64]byte
}

func mustMake(t *testing.T, d *tuple.Deriver, parts ...any) *tuple.Tuple {
	t.Helper()
	tup, err := d.Make(parts...)
	require.NoError(t, err)
	return tup
}

func TestMake_InternsEqualPrimitives(t *testing.T) {
	d := tuple.NewDeriver(0)

	a := mustMake(t, d, 1, "x", 2.5)
	b := mustMake(t, d, 1, "x", 2.5)
	c := mustMake(t, d, 1, "x", 2.6)
	e := mustMake(t, d)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Same(t, e, mustMake(t, d))
	assert.Equal(t, 3, d.Len())
}

func TestMake_DistinguishesTypes(t *testing.T) {
	d := tuple.NewDeriver(4)
	assert.NotSame(t, mustMake(t, d, 1), mustMake(t, d, int64(1)))
	assert.NotSame(t, mustMake(t, d, 1), mustMake(t, d, 1, 1))
	assert.NotSame(t, mustMake(t, d, []int(nil)), mustMake(t, d, []int{}))
}

func TestMake_NaNSharesOneTuple(t *testing.T) {
	d := tuple.NewDeriver(0)
	a := mustMake(t, d, math.NaN())
	b := mustMake(t, d, math.Float64frombits(0x7ff8000000000001))
	assert.Same(t, a, b)
	assert.Same(t, mustMake(t, d, 0.0), mustMake(t, d, math.Copysign(0, -1)))
}

func TestMake_ReferencesByIdentity(t *testing.T) {
	d := tuple.NewDeriver(0)
	o1, o2 := &object{id: 1}, &object{id: 1}

	a := mustMake(t, d, o1, "k")
	assert.Same(t, a, mustMake(t, d, o1, "k"))
	assert.NotSame(t, a, mustMake(t, d, o2, "k"))

	v, ok := a.At(0)
	require.True(t, ok)
	assert.Same(t, o1, v)
	assert.Equal(t, 2, a.Len())
	assert.Contains(t, a.String(), "tuple#")
	runtime.KeepAlive(o2)
}

func TestMake_NotKeyable(t *testing.T) {
	d := tuple.NewDeriver(0)
	_, err := d.Make(1, struct{ s []int }{})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrInvalidArgs)

	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Position)
	assert.Equal(t, 0, d.Len())
}

func TestDerive_Schema(t *testing.T) {
	d := tuple.NewDeriver(0)
	s := schema.NTuple(schema.JSON())

	a, err := d.Derive([]any{&object{id: 1}}, s)
	require.NoError(t, err)
	b, err := d.Derive([]any{&object{id: 1}}, s)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = d.Derive([]any{1}, schema.Tuple())
	assert.ErrorIs(t, err, schema.ErrArity)
}

func TestMake_DropsTupleWithCollectedPart(t *testing.T) {
	d := tuple.NewDeriver(2)
	kept := &object{id: 0}
	mustMake(t, d, kept)
	for i := 1; i <= 100; i++ {
		mustMake(t, d, &object{id: i}, i, &object{id: -i})
	}
	require.Equal(t, 101, d.Len())

	require.Eventually(t, func() bool {
		runtime.GC()
		return d.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	again := mustMake(t, d, kept)
	assert.Equal(t, 1, d.Len())
	v, ok := again.At(0)
	require.True(t, ok)
	assert.Same(t, kept, v)
}

func TestMake_Concurrent(t *testing.T) {
	d := tuple.NewDeriver(0)
	results := make(chan *tuple.Tuple, 64)
	for i := 0; i < cap(results); i++ {
		go func() {
			tup, _ := d.Make("shared", 7)
			results <- tup
		}()
	}
	first := <-results
	for i := 1; i < cap(results); i++ {
		assert.Same(t, first, <-results)
	}
}

func TestMake_SliceWindowsAreDistinct(t *testing.T) {
	d := tuple.NewDeriver(0)
	backing := []int{1, 2, 3, 4}

	short := mustMake(t, d, backing[:2])
	long := mustMake(t, d, backing[:4])
	assert.NotSame(t, short, long)
	assert.Same(t, short, mustMake(t, d, backing[:2]))
	assert.NotSame(t, short, mustMake(t, d, backing[:2:2]))

	v, ok := long.At(0)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3, 4}, v)
}

type vec struct {
	X, Y float64
}

func TestMake_NaNInsideStructSharesOneTuple(t *testing.T) {
	d := tuple.NewDeriver(0)
	first := mustMake(t, d, vec{X: math.NaN()}, [2]float64{math.NaN(), 1})
	for i := 0; i < 100; i++ {
		assert.Same(t, first, mustMake(t, d, vec{X: math.NaN()}, [2]float64{math.NaN(), 1}))
	}
	assert.NotSame(t, first, mustMake(t, d, vec{X: 0}, [2]float64{math.NaN(), 1}))
	assert.Equal(t, 2, d.Len())
}

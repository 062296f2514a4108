package purefn_test

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/automemo/internal/log"
	"github.com/on-the-ground/automemo/purefn"
	"github.com/on-the-ground/automemo/tuple"
)

func gcUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		runtime.GC()
		return cond()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMemo_TierSelection(t *testing.T) {
	m := purefn.New(func(args ...any) (any, error) {
		if args[0].(bool) {
			return &box{val: 1}, nil
		}
		return 1, nil
	}, purefn.WithLogger(log.NewTestLogger()))

	ref, err := m.Call(true)
	require.NoError(t, err)
	_, err = m.Call(false)
	require.NoError(t, err)
	_, err = m.Call(true)
	require.NoError(t, err)
	_, err = m.Call(false)
	require.NoError(t, err)

	s := m.Stats()
	assert.Equal(t, uint64(1), s.HitsA)
	assert.Equal(t, uint64(1), s.HitsB)
	assert.Equal(t, uint64(2), s.Misses)
	assert.Equal(t, 1, s.EntriesA)
	assert.Equal(t, 1, s.EntriesB)
	assert.Equal(t, 2, s.Tuples)
	runtime.KeepAlive(ref)
}

func TestMemo_PrimitiveResultSurvivesCollection(t *testing.T) {
	var count atomic.Int32
	m := purefn.New(func(args ...any) (int, error) {
		count.Add(1)
		return args[0].(int) + 1, nil
	})

	_, err := m.Call(321)
	require.NoError(t, err)
	runtime.GC()
	runtime.GC()

	v, err := m.Call(321)
	require.NoError(t, err)
	assert.Equal(t, 322, v)
	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, 1, m.Stats().EntriesA)
}

func TestMemo_TierAEvictsWithKey(t *testing.T) {
	m := purefn.New(func(args ...any) (int, error) {
		return args[0].(*box).val, nil
	})

	kept := &box{val: 1}
	_, err := m.Call(kept)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, err := m.Call(&box{val: i})
		require.NoError(t, err)
	}

	gcUntil(t, func() bool { return m.Stats().EvictionsA == 20 })
	s := m.Stats()
	assert.Equal(t, 1, s.EntriesA)
	assert.Equal(t, 1, s.Tuples)

	v, err := m.Call(kept)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, uint64(1), m.Stats().HitsA)
}

func TestMemo_TierBEvictsWithValue(t *testing.T) {
	var count atomic.Int32
	m := purefn.New(func(args ...any) (*box, error) {
		count.Add(1)
		return &box{val: args[0].(int)}, nil
	})

	_, err := m.Call(7)
	require.NoError(t, err)

	gcUntil(t, func() bool { return m.Stats().EvictionsB == 1 })
	assert.Equal(t, 0, m.Stats().EntriesB)
	assert.Equal(t, 1, m.Stats().Tuples, "primitive keys stay interned")

	v, err := m.Call(7)
	require.NoError(t, err)
	assert.Equal(t, 7, v.val)
	assert.Equal(t, int32(2), count.Load())
}

func TestMemo_ChurnStaysBounded(t *testing.T) {
	m := purefn.New(func(args ...any) (int, error) {
		return args[0].(*box).val, nil
	})

	for i := 0; i < 10000; i++ {
		_, err := m.Call(&box{val: i}, i)
		require.NoError(t, err)
	}

	gcUntil(t, func() bool {
		s := m.Stats()
		return s.EntriesA == 0 && s.Tuples == 0
	})
	assert.Equal(t, uint64(10000), m.Stats().EvictionsA)
}

func TestMemo_SingleFlight(t *testing.T) {
	var count atomic.Int32
	release := make(chan struct{})
	m := purefn.New(func(args ...any) (int, error) {
		count.Add(1)
		<-release
		return 9, nil
	}, purefn.WithSingleFlight())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.Call("key")
			assert.NoError(t, err)
			assert.Equal(t, 9, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), count.Load())
}

func TestMemo_SharedDeriver(t *testing.T) {
	d := tuple.NewDeriver(4)
	var count atomic.Int32
	fn := func(args ...any) (int, error) {
		count.Add(1)
		return 1, nil
	}
	m1 := purefn.New(fn, purefn.WithDeriver(d))
	m2 := purefn.New(fn, purefn.WithDeriver(d))

	_, _ = m1.Call("a")
	_, _ = m2.Call("a")
	assert.Equal(t, int32(2), count.Load(), "memos share tuples, not entries")
	assert.Equal(t, 1, d.Len())
}

func TestMemo_Events(t *testing.T) {
	sink := make(chan purefn.Event, 16)
	m := purefn.New(func(args ...any) (int, error) {
		return 1, nil
	}, purefn.WithName("events"), purefn.WithEventSink(sink))

	_, _ = m.Call(1)
	_, _ = m.Call(1)
	close(sink)

	var kinds []purefn.EventKind
	for e := range sink {
		assert.Equal(t, "events", e.Memo)
		assert.NotZero(t, e.Tuple)
		assert.False(t, e.Start().IsZero())
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []purefn.EventKind{purefn.EventMiss, purefn.EventStore, purefn.EventHit}, kinds)
}

func TestMemo_EventsNeverBlock(t *testing.T) {
	sink := make(chan purefn.Event)
	m := purefn.New(func(args ...any) (int, error) {
		return 1, nil
	}, purefn.WithEventSink(sink))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Call(1)
		_, _ = m.Call(1)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Call blocked on a full event sink")
	}
}

func TestMemo_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := purefn.NewMetrics(reg)
	m := purefn.New(func(args ...any) (int, error) {
		return 1, nil
	}, purefn.WithName("m1"), purefn.WithMetrics(metrics))

	_, _ = m.Call(1)
	_, _ = m.Call(1)
	_, _ = m.Call(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Lookups.WithLabelValues("m1", "", "miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Lookups.WithLabelValues("m1", "a", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Stores.WithLabelValues("m1", "a")))
	assert.Equal(t, 0, testutil.CollectAndCount(metrics.Failures))
}

func TestMemo_FailureCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := purefn.NewMetrics(reg)
	m := purefn.New(func(args ...any) (int, error) {
		panic("boom")
	}, purefn.WithName("fails"), purefn.WithMetrics(metrics))

	assert.Panics(t, func() { _, _ = m.Call(1) })
	assert.Equal(t, uint64(1), m.Stats().Failures)
	assert.Equal(t, 0, m.Stats().EntriesA)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failures.WithLabelValues("fails", "call")))
}

func TestMemo_ID(t *testing.T) {
	fn := func(args ...any) (int, error) { return 0, nil }
	assert.Equal(t, "named", purefn.New(fn, purefn.WithName("named")).ID())

	a, b := purefn.New(fn).ID(), purefn.New(fn).ID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

type vec struct {
	X, Y float64
}

func TestMemo_NaNInsideStructArgument(t *testing.T) {
	var count atomic.Int32
	m := purefn.New(func(args ...any) (float64, error) {
		count.Add(1)
		return args[0].(vec).Y, nil
	})

	for i := 0; i < 1000; i++ {
		v, err := m.Call(vec{X: math.NaN(), Y: 2})
		require.NoError(t, err)
		assert.Equal(t, 2.0, v)
	}
	assert.Equal(t, int32(1), count.Load())

	s := m.Stats()
	assert.Equal(t, 1, s.Tuples)
	assert.Equal(t, 1, s.EntriesA)
}

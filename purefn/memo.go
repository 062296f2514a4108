package purefn

import (
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/on-the-ground/automemo/internal/log"
	"github.com/on-the-ground/automemo/schema"
	"github.com/on-the-ground/automemo/tuple"
	"github.com/on-the-ground/automemo/weakermap"
	"github.com/on-the-ground/automemo/weakmap"
	"github.com/on-the-ground/automemo/weakref"
)

// Tier names the store a result lives in.
type Tier string

const (
	TierNone Tier = ""

	// TierA holds primitive results strongly, weakly keyed by the argument tuple.
	TierA Tier = "a"

	// TierB holds reference results weakly on both sides, so a cached object is
	// dropped as soon as nobody else uses it.
	TierB Tier = "b"
)

// Memo is a memoized function. All of its cache state is owned by the Memo: two
// Memos never share entries, even when built from the same function.
type Memo[O any] struct {
	id      string
	fn      func(...any) (O, error)
	schema  schema.Schema
	deriver *tuple.Deriver
	tierA   *weakmap.Map[tuple.Tuple, O]
	tierB   *weakermap.Map[*tuple.Tuple, O]
	group   *singleflight.Group
	logger  *zap.Logger
	metrics *Metrics
	sink    chan<- Event
	counts  counters
}

type counters struct {
	hitsA, hitsB, misses, failures atomic.Uint64
	evictionsA, evictionsB         atomic.Uint64
}

// Stats is a snapshot of a Memo's counters and sizes.
type Stats struct {
	HitsA      uint64
	HitsB      uint64
	Misses     uint64
	Failures   uint64
	EvictionsA uint64
	EvictionsB uint64
	EntriesA   int
	EntriesB   int
	Tuples     int
}

// New memoizes fn. Errors returned by fn are never cached.
func New[O any](fn func(...any) (O, error), opts ...Option) *Memo[O] {
	cfg := newConfig(opts)
	m := &Memo[O]{
		id:      cfg.name,
		fn:      fn,
		schema:  cfg.schema,
		deriver: cfg.deriver,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		sink:    cfg.sink,
	}
	m.tierA = weakmap.New[tuple.Tuple, O](func() { m.evicted(TierA) })
	m.tierB = weakermap.New[*tuple.Tuple, O](func() { m.evicted(TierB) })
	if cfg.singleFlight {
		m.group = &singleflight.Group{}
	}
	return m
}

// ID names the Memo in logs, events and metrics.
func (m *Memo[O]) ID() string {
	return m.id
}

// Call returns the cached result for args, computing it on the first call.
//
// Argument lists rejected by the schema yield a *schema.ValidationError before
// any cache access. If fn fails, by error or panic, nothing is cached and the
// failure reaches the caller; the next call with the same arguments retries.
func (m *Memo[O]) Call(args ...any) (O, error) {
	key, err := m.deriver.Derive(args, m.schema)
	if err != nil {
		m.failed(nil, "derive", err)
		var zero O
		return zero, err
	}
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	if m.group == nil {
		return m.compute(key, args)
	}

	res, err, _ := m.group.Do(strconv.FormatUint(key.ID(), 10), func() (any, error) {
		if v, ok := m.lookup(key); ok {
			return v, nil
		}
		return m.compute(key, args)
	})
	v, _ := res.(O)
	return v, err
}

func (m *Memo[O]) Stats() Stats {
	return Stats{
		HitsA:      m.counts.hitsA.Load(),
		HitsB:      m.counts.hitsB.Load(),
		Misses:     m.counts.misses.Load(),
		Failures:   m.counts.failures.Load(),
		EvictionsA: m.counts.evictionsA.Load(),
		EvictionsB: m.counts.evictionsB.Load(),
		EntriesA:   m.tierA.Len(),
		EntriesB:   m.tierB.Len(),
		Tuples:     m.deriver.Len(),
	}
}

func (m *Memo[O]) lookup(key *tuple.Tuple) (O, bool) {
	if v, ok := m.tierA.Get(key); ok {
		m.counts.hitsA.Add(1)
		m.observe(EventHit, TierA, key)
		return v, true
	}
	if v, ok := m.tierB.Get(key); ok {
		m.counts.hitsB.Add(1)
		m.observe(EventHit, TierB, key)
		return v, true
	}
	var zero O
	return zero, false
}

func (m *Memo[O]) compute(key *tuple.Tuple, args []any) (v O, err error) {
	m.counts.misses.Add(1)
	m.observe(EventMiss, TierNone, key)

	defer func() {
		if r := recover(); r != nil {
			m.failed(key, "call", panicError{value: r})
			panic(r)
		}
	}()
	if v, err = m.fn(args...); err != nil {
		m.failed(key, "call", err)
		return v, err
	}

	// The tier is chosen once, from the result: each key lives in one tier only.
	if weakref.IsReference(any(v)) {
		m.tierB.Set(key, v)
		m.observe(EventStore, TierB, key)
	} else {
		m.tierA.Set(key, v)
		m.observe(EventStore, TierA, key)
	}
	return v, nil
}

func (m *Memo[O]) observe(kind EventKind, tier Tier, key *tuple.Tuple) {
	if m.metrics != nil {
		m.metrics.observe(m.id, kind, tier)
	}
	m.emit(kind, tier, key.ID(), nil)

	if log.Enabled(m.logger, log.LogDebug) {
		log.Log(m.logger, log.LogDebug, "memo "+string(kind), map[string]interface{}{
			"memo":  m.id,
			"tier":  tier,
			"tuple": key.ID(),
		})
	}
}

func (m *Memo[O]) evicted(tier Tier) {
	switch tier {
	case TierA:
		m.counts.evictionsA.Add(1)
	case TierB:
		m.counts.evictionsB.Add(1)
	}
	if m.metrics != nil {
		m.metrics.observe(m.id, EventEvict, tier)
	}
	m.emit(EventEvict, tier, 0, nil)

	if log.Enabled(m.logger, log.LogDebug) {
		log.Log(m.logger, log.LogDebug, "memo evict", map[string]interface{}{
			"memo": m.id,
			"tier": tier,
		})
	}
}

func (m *Memo[O]) failed(key *tuple.Tuple, stage string, err error) {
	m.counts.failures.Add(1)
	if m.metrics != nil {
		m.metrics.Failures.WithLabelValues(m.id, stage).Inc()
	}
	var id uint64
	if key != nil {
		id = key.ID()
	}
	m.emit(EventFail, TierNone, id, err)

	log.Log(m.logger, log.LogDebug, "memo failure", map[string]interface{}{
		"memo":  m.id,
		"stage": stage,
		"tuple": id,
		"err":   err,
	})
}

// emit never blocks: events are dropped when the sink is full.
func (m *Memo[O]) emit(kind EventKind, tier Tier, tupleID uint64, err error) {
	if m.sink == nil {
		return
	}
	e := Event{Memo: m.id, Kind: kind, Tier: tier, Tuple: tupleID, Err: err, TimeSpan: now()}
	select {
	case m.sink <- e:
	default:
	}
}

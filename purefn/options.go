package purefn

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/on-the-ground/automemo/internal/log"
	"github.com/on-the-ground/automemo/schema"
	"github.com/on-the-ground/automemo/tuple"
)

// Option configures a Memo.
type Option func(*config)

type config struct {
	name         string
	schema       *schema.Schema
	deriver      *tuple.Deriver
	shards       int
	logger       *zap.Logger
	singleFlight bool
	metrics      *Metrics
	sink         chan<- Event
}

type memoConfig struct {
	name         string
	schema       schema.Schema
	deriver      *tuple.Deriver
	logger       *zap.Logger
	singleFlight bool
	metrics      *Metrics
	sink         chan<- Event
}

func newConfig(opts []Option) memoConfig {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := memoConfig{
		name:         cfg.name,
		deriver:      cfg.deriver,
		logger:       log.OrNop(cfg.logger),
		singleFlight: cfg.singleFlight,
		metrics:      cfg.metrics,
		sink:         cfg.sink,
	}
	if mc.name == "" {
		mc.name = uuid.NewString()
	}
	if cfg.schema != nil {
		mc.schema = *cfg.schema
	} else {
		mc.schema = schema.Default()
	}
	if mc.deriver == nil {
		mc.deriver = tuple.NewDeriver(cfg.shards)
	}
	return mc
}

// WithSchema sets how arguments are validated and projected into key parts.
// The default keys every positional argument by value or identity.
func WithSchema(s schema.Schema) Option {
	return func(c *config) {
		c.schema = &s
	}
}

// WithDeriver interns keys in d instead of a Deriver private to the Memo.
// Memos sharing a Deriver share tuples, never cache entries.
func WithDeriver(d *tuple.Deriver) Option {
	return func(c *config) {
		c.deriver = d
	}
}

// WithShards sets the trie shard count of the Memo's own Deriver.
// It has no effect together with WithDeriver.
func WithShards(n int) Option {
	return func(c *config) {
		c.shards = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithName sets the id used in logs, events and metric labels.
// A random UUID is used otherwise.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithSingleFlight coalesces concurrent first calls with equal keys into a
// single invocation of the function.
func WithSingleFlight() Option {
	return func(c *config) {
		c.singleFlight = true
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithEventSink delivers cache events to sink. Events are dropped, never
// waited for, when sink is not ready.
func WithEventSink(sink chan<- Event) Option {
	return func(c *config) {
		c.sink = sink
	}
}

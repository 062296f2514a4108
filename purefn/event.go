package purefn

import (
	"fmt"
	"time"

	"github.com/rickb777/date/v2/timespan"
)

type EventKind string

const (
	EventHit   EventKind = "hit"
	EventMiss  EventKind = "miss"
	EventStore EventKind = "store"
	EventEvict EventKind = "evict"
	EventFail  EventKind = "fail"
)

// Event reports one cache operation. Tuple is zero for evictions, which are
// observed after the key is gone, and for argument lists that failed validation.
type Event struct {
	Memo  string
	Kind  EventKind
	Tier  Tier
	Tuple uint64
	Err   error
	timespan.TimeSpan
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s tier=%q tuple=%d err=%v", e.Memo, e.Kind, e.Tier, e.Tuple, e.Err)
	}
	return fmt.Sprintf("%s %s tier=%q tuple=%d", e.Memo, e.Kind, e.Tier, e.Tuple)
}

const epsilon = time.Millisecond

func now() timespan.TimeSpan {
	t := time.Now()
	return timespan.BetweenTimes(t.Add(-1*epsilon), t.Add(epsilon))
}

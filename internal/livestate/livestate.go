// Package livestate keeps entity collections in sync from a REST snapshot
// plus realtime deltas.
//
// Deltas that arrive while a snapshot fetch is in flight are buffered and
// replayed, in arrival order, once the snapshot has been applied. They are
// replayed on top of an empty (Units) or previous (Alerts) collection when
// the fetch fails.
package livestate

import (
	"github.com/unitlink/unitlink/internal/realtime"
)

// Subscriber is the subscription side of the realtime channel
type Subscriber interface {
	On(event string, h realtime.Handler) *realtime.Subscription
}

// lifecycle tracks mount state. gen changes on every mount and unmount so
// results of an earlier fetch can be recognized and discarded.
type lifecycle struct {
	mounted  bool
	gen      uint64
	fetching bool
	sub      *realtime.Subscription
}

func (l *lifecycle) begin() uint64 {
	l.gen++
	l.mounted = true
	l.fetching = true
	return l.gen
}

func (l *lifecycle) current(gen uint64) bool {
	return l.mounted && l.gen == gen
}

func (l *lifecycle) end() *realtime.Subscription {
	l.gen++
	l.mounted = false
	l.fetching = false
	sub := l.sub
	l.sub = nil
	return sub
}

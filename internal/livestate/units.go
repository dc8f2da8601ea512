package livestate

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
)

// UnitsSource fetches the unit snapshot
type UnitsSource interface {
	List(ctx context.Context) ([]models.Unit, error)
}

// UnitsView is a consistent read of the units collection
type UnitsView struct {
	Units   []models.Unit `json:"units"`
	Loading bool          `json:"loading"`
	Err     error         `json:"-"`
}

// Units is the live collection of units keyed by id
type Units struct {
	source UnitsSource
	events Subscriber

	mu      sync.RWMutex
	life    lifecycle
	units   map[string]models.Unit
	pending []models.UnitDelta
	err     error
}

// NewUnits creates an unmounted units collection
func NewUnits(source UnitsSource, events Subscriber) *Units {
	return &Units{
		source: source,
		events: events,
		units:  make(map[string]models.Unit),
	}
}

// Mount subscribes to unit updates and loads the snapshot. It returns the
// snapshot error, which is also kept for Err.
func (u *Units) Mount(ctx context.Context) error {
	u.mu.Lock()
	if u.life.mounted {
		u.mu.Unlock()
		return nil
	}
	gen := u.life.begin()
	u.err = nil
	u.mu.Unlock()

	sub := u.events.On(models.EventUnitStatusUpdate, u.handleUpdate)

	u.mu.Lock()
	if !u.life.current(gen) {
		u.mu.Unlock()
		sub.Off()
		return nil
	}
	u.life.sub = sub
	u.mu.Unlock()

	return u.fetch(ctx, gen)
}

// Reload fetches a fresh snapshot, buffering deltas meanwhile
func (u *Units) Reload(ctx context.Context) error {
	u.mu.Lock()
	if !u.life.mounted {
		u.mu.Unlock()
		return nil
	}
	u.life.fetching = true
	gen := u.life.gen
	u.mu.Unlock()

	return u.fetch(ctx, gen)
}

func (u *Units) fetch(ctx context.Context, gen uint64) error {
	list, err := u.source.List(ctx)

	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.life.current(gen) {
		log.Debug().Msg("Discarding units snapshot after unmount")
		return err
	}

	u.err = err
	u.units = make(map[string]models.Unit, len(list))
	if err != nil {
		log.Error().Err(err).Msg("Failed to load units")
	} else {
		for _, unit := range list {
			u.units[unit.ID] = unit
		}
	}

	for _, d := range u.pending {
		u.apply(d)
	}
	if len(u.pending) > 0 {
		log.Debug().Int("count", len(u.pending)).Msg("Replayed buffered unit updates")
	}
	u.pending = nil
	u.life.fetching = false

	return err
}

// Unmount unsubscribes and drops the collection. Late snapshot results
// are discarded.
func (u *Units) Unmount() {
	u.mu.Lock()
	sub := u.life.end()
	u.units = make(map[string]models.Unit)
	u.pending = nil
	u.err = nil
	u.mu.Unlock()

	sub.Off()
}

func (u *Units) handleUpdate(payload json.RawMessage) {
	d, err := models.DecodeUnitDelta(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring malformed unit update")
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.life.mounted {
		return
	}
	if u.life.fetching {
		u.pending = append(u.pending, d)
		return
	}
	u.apply(d)
}

// apply merges d into the collection; caller holds mu
func (u *Units) apply(d models.UnitDelta) {
	if existing, ok := u.units[d.ID]; ok {
		u.units[d.ID] = d.Apply(existing)
		return
	}
	u.units[d.ID] = d.NewUnit()
}

// Get returns one unit
func (u *Units) Get(id string) (models.Unit, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	unit, ok := u.units[id]
	return unit, ok
}

// List returns the units ordered by name
func (u *Units) List() []models.Unit {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.list()
}

func (u *Units) list() []models.Unit {
	out := make([]models.Unit, 0, len(u.units))
	for _, unit := range u.units {
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Loading reports whether a snapshot fetch is in flight
func (u *Units) Loading() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.life.fetching
}

// Err returns the error of the last snapshot fetch
func (u *Units) Err() error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.err
}

// View returns units, loading flag and error in one read
func (u *Units) View() UnitsView {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return UnitsView{Units: u.list(), Loading: u.life.fetching, Err: u.err}
}

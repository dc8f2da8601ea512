package livestate

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
)

// AlertsSource fetches and acknowledges alerts
type AlertsSource interface {
	Unacknowledged(ctx context.Context) ([]models.Alert, error)
	Acknowledge(ctx context.Context, id string) error
}

// AlertsView is a consistent read of the alerts collection
type AlertsView struct {
	Alerts  []models.Alert `json:"alerts"`
	Loading bool           `json:"loading"`
	Err     error          `json:"-"`
}

// Alerts is the live list of unacknowledged alerts, newest first.
// Delivery is at-least-once so alerts are deduplicated by id.
type Alerts struct {
	source AlertsSource
	events Subscriber

	mu      sync.RWMutex
	life    lifecycle
	alerts  []models.Alert
	acked   map[string]struct{}
	pending []models.Alert
	err     error
}

// NewAlerts creates an unmounted alerts collection
func NewAlerts(source AlertsSource, events Subscriber) *Alerts {
	return &Alerts{
		source: source,
		events: events,
		acked:  make(map[string]struct{}),
	}
}

// Mount subscribes to new alerts and loads the unacknowledged ones
func (a *Alerts) Mount(ctx context.Context) error {
	a.mu.Lock()
	if a.life.mounted {
		a.mu.Unlock()
		return nil
	}
	gen := a.life.begin()
	a.err = nil
	a.mu.Unlock()

	sub := a.events.On(models.EventNewAlert, a.handleNew)

	a.mu.Lock()
	if !a.life.current(gen) {
		a.mu.Unlock()
		sub.Off()
		return nil
	}
	a.life.sub = sub
	a.mu.Unlock()

	return a.fetch(ctx, gen)
}

// Reload refetches the unacknowledged alerts
func (a *Alerts) Reload(ctx context.Context) error {
	a.mu.Lock()
	if !a.life.mounted {
		a.mu.Unlock()
		return nil
	}
	a.life.fetching = true
	gen := a.life.gen
	a.mu.Unlock()

	return a.fetch(ctx, gen)
}

func (a *Alerts) fetch(ctx context.Context, gen uint64) error {
	list, err := a.source.Unacknowledged(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.life.current(gen) {
		log.Debug().Msg("Discarding alerts snapshot after unmount")
		return err
	}

	a.err = err
	if err != nil {
		log.Error().Err(err).Msg("Failed to load alerts")
	} else {
		a.alerts = a.alerts[:0:0]
		seen := make(map[string]struct{}, len(list))
		for _, alert := range list {
			if _, dup := seen[alert.ID]; dup {
				continue
			}
			if _, done := a.acked[alert.ID]; done {
				continue
			}
			seen[alert.ID] = struct{}{}
			a.alerts = append(a.alerts, alert)
		}
	}

	for _, alert := range a.pending {
		a.add(alert)
	}
	a.pending = nil
	a.life.fetching = false

	return err
}

// Unmount unsubscribes and drops the collection
func (a *Alerts) Unmount() {
	a.mu.Lock()
	sub := a.life.end()
	a.alerts = nil
	a.pending = nil
	a.acked = make(map[string]struct{})
	a.err = nil
	a.mu.Unlock()

	sub.Off()
}

func (a *Alerts) handleNew(payload json.RawMessage) {
	alert, err := models.DecodeAlert(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring malformed alert")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.life.mounted {
		return
	}
	if a.life.fetching {
		a.pending = append(a.pending, alert)
		return
	}
	a.add(alert)
}

// add prepends alert unless it is known; caller holds mu
func (a *Alerts) add(alert models.Alert) {
	if _, done := a.acked[alert.ID]; done {
		return
	}
	for _, existing := range a.alerts {
		if existing.ID == alert.ID {
			return
		}
	}
	a.alerts = append([]models.Alert{alert}, a.alerts...)
}

// Acknowledge acknowledges an alert on the server and removes it locally.
// On failure the alert stays in the list and the error is returned.
func (a *Alerts) Acknowledge(ctx context.Context, id string) error {
	if err := a.source.Acknowledge(ctx, id); err != nil {
		log.Warn().Err(err).Str("alert_id", id).Msg("Failed to acknowledge alert")
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.life.mounted {
		return nil
	}
	a.acked[id] = struct{}{}
	for i, alert := range a.alerts {
		if alert.ID == id {
			a.alerts = append(a.alerts[:i:i], a.alerts[i+1:]...)
			break
		}
	}
	return nil
}

// List returns the alerts, newest first
func (a *Alerts) List() []models.Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.list()
}

func (a *Alerts) list() []models.Alert {
	out := make([]models.Alert, len(a.alerts))
	copy(out, a.alerts)
	return out
}

// Loading reports whether a fetch is in flight
func (a *Alerts) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.life.fetching
}

// Err returns the error of the last fetch
func (a *Alerts) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// View returns alerts, loading flag and error in one read
func (a *Alerts) View() AlertsView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AlertsView{Alerts: a.list(), Loading: a.life.fetching, Err: a.err}
}

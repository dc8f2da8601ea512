// Package realtime delivers server pushed events to subscribers over a
// single shared connection.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Event is one server pushed message
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Handler receives the payload of an event
type Handler func(payload json.RawMessage)

// Transport maintains the underlying connection. Run delivers events in
// arrival order and reconnects on its own until ctx is done.
type Transport interface {
	Run(ctx context.Context, deliver func(Event)) error
}

// ErrAlreadyOpen is returned by Open on an open channel
var ErrAlreadyOpen = errors.New("realtime channel already open")

type entry struct {
	id uint64
	h  Handler
}

// Channel fans events out to subscribers. Handlers run on the transport
// goroutine, one at a time, in subscription order.
type Channel struct {
	transport Transport

	mu       sync.RWMutex
	handlers map[string][]entry
	nextID   uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscription is returned by On. Off releases it.
type Subscription struct {
	ch    *Channel
	event string
	id    uint64
	once  sync.Once
}

// Off unsubscribes. It is safe to call more than once.
func (s *Subscription) Off() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.ch.remove(s.event, s.id) })
}

// NewChannel creates a closed channel over t
func NewChannel(t Transport) *Channel {
	return &Channel{
		transport: t,
		handlers:  make(map[string][]entry),
	}
}

// On subscribes h to events named event
func (c *Channel) On(event string, h Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.handlers[event] = append(c.handlers[event], entry{id: c.nextID, h: h})
	return &Subscription{ch: c, event: event, id: c.nextID}
}

// Off unsubscribes sub
func (c *Channel) Off(sub *Subscription) {
	sub.Off()
}

func (c *Channel) remove(event string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.handlers[event]
	for i, e := range list {
		if e.id == id {
			c.handlers[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// Subscribers returns the number of handlers registered for event
func (c *Channel) Subscribers(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers[event])
}

// Emit dispatches ev to its subscribers
func (c *Channel) Emit(ev Event) {
	c.mu.RLock()
	list := make([]entry, len(c.handlers[ev.Name]))
	copy(list, c.handlers[ev.Name])
	c.mu.RUnlock()

	if len(list) == 0 {
		log.Debug().Str("event", ev.Name).Msg("No subscribers for event")
		return
	}
	for _, e := range list {
		e.h(ev.Data)
	}
}

// Open starts the transport. The connection lives until Close or until
// ctx is done.
func (c *Channel) Open(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return ErrAlreadyOpen
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		log.Info().Msg("Realtime channel opened")
		if err := c.transport.Run(runCtx, c.Emit); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Realtime transport stopped")
		}
	}()

	return nil
}

// IsOpen reports whether the transport is running
func (c *Channel) IsOpen() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.cancel != nil
}

// Close stops the transport and waits for it to finish. Subscriptions are
// kept so the channel can be reopened.
func (c *Channel) Close() {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("Realtime channel closed")
}

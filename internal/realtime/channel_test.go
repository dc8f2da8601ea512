package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeTransport delivers whatever is sent on events
type pipeTransport struct {
	events  chan Event
	running chan struct{}
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{events: make(chan Event), running: make(chan struct{}, 1)}
}

func (p *pipeTransport) Run(ctx context.Context, deliver func(Event)) error {
	p.running <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.events:
			deliver(ev)
		}
	}
}

func TestChannelDispatchAndOff(t *testing.T) {
	t.Parallel()

	ch := NewChannel(newPipeTransport())

	var mu sync.Mutex
	var got []string
	record := func(tag string) Handler {
		return func(payload json.RawMessage) {
			mu.Lock()
			got = append(got, tag+":"+string(payload))
			mu.Unlock()
		}
	}

	first := ch.On("unit_status_update", record("a"))
	ch.On("unit_status_update", record("b"))
	ch.On("new_alert", record("c"))

	ch.Emit(Event{Name: "unit_status_update", Data: json.RawMessage(`1`)})
	first.Off()
	first.Off()
	ch.Emit(Event{Name: "unit_status_update", Data: json.RawMessage(`2`)})
	ch.Emit(Event{Name: "unknown", Data: json.RawMessage(`3`)})

	assert.Equal(t, []string{"a:1", "b:1", "b:2"}, got)
	assert.Equal(t, 1, ch.Subscribers("unit_status_update"))
	assert.Equal(t, 1, ch.Subscribers("new_alert"))
}

func TestChannelOffRemovesEmptyEvent(t *testing.T) {
	t.Parallel()

	ch := NewChannel(newPipeTransport())
	sub := ch.On("new_alert", func(json.RawMessage) {})
	ch.Off(sub)
	assert.Equal(t, 0, ch.Subscribers("new_alert"))
}

func TestChannelOpenClose(t *testing.T) {
	t.Parallel()

	tr := newPipeTransport()
	ch := NewChannel(tr)

	received := make(chan string, 1)
	ch.On("new_alert", func(p json.RawMessage) { received <- string(p) })

	require.NoError(t, ch.Open(context.Background()))
	assert.ErrorIs(t, ch.Open(context.Background()), ErrAlreadyOpen)
	<-tr.running

	tr.events <- Event{Name: "new_alert", Data: json.RawMessage(`{"id":"x"}`)}
	select {
	case p := <-received:
		assert.JSONEq(t, `{"id":"x"}`, p)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	ch.Close()
	assert.False(t, ch.IsOpen())
	ch.Close()

	require.NoError(t, ch.Open(context.Background()), "a closed channel can be reopened")
	<-tr.running
	ch.Close()
}

func TestEventNames(t *testing.T) {
	t.Parallel()

	name, ok := eventFromSubject("unitlink", "unitlink.new_alert")
	assert.True(t, ok)
	assert.Equal(t, "new_alert", name)

	_, ok = eventFromSubject("unitlink", "other.new_alert")
	assert.False(t, ok)

	name, ok = eventFromTopic("unitlink", "unitlink/unit_status_update")
	assert.True(t, ok)
	assert.Equal(t, "unit_status_update", name)

	_, ok = eventFromTopic("unitlink", "unitlink/a/b")
	assert.False(t, ok)
}

package livestate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/realtime"
)

type fakeAlerts struct {
	mu       sync.Mutex
	alerts   []models.Alert
	err      error
	ackErr   error
	ackCalls []string
}

func (f *fakeAlerts) Unacknowledged(context.Context) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Alert, len(f.alerts))
	copy(out, f.alerts)
	return out, nil
}

func (f *fakeAlerts) Acknowledge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ackCalls = append(f.ackCalls, id)
	return f.ackErr
}

func alertIDs(list []models.Alert) []string {
	ids := make([]string, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	return ids
}

func mountAlerts(t *testing.T, src *fakeAlerts) (*Alerts, *realtime.Channel) {
	t.Helper()
	ch := realtime.NewChannel(nil)
	a := NewAlerts(src, ch)
	require.NoError(t, a.Mount(context.Background()))
	t.Cleanup(a.Unmount)
	return a, ch
}

func TestAlertsNewestFirstAndDeduplicated(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	a, ch := mountAlerts(t, &fakeAlerts{alerts: []models.Alert{
		{ID: "a-2", DeviceName: "Bravo", Message: "signal lost", Timestamp: now},
		{ID: "a-1", DeviceName: "Alpha", Message: "high latency", Timestamp: now.Add(-time.Minute)},
	}})

	emit(ch, models.EventNewAlert, `{"id":"a-3","device_name":"Charlie","message":"packet loss"}`)
	emit(ch, models.EventNewAlert, `{"id":"a-3","device_name":"Charlie","message":"packet loss"}`)
	emit(ch, models.EventNewAlert, `{"id":"a-1","device_name":"Alpha","message":"high latency"}`)
	emit(ch, models.EventNewAlert, `{"device_name":"no id"}`)

	assert.Equal(t, []string{"a-3", "a-2", "a-1"}, alertIDs(a.List()))
}

func TestAlertsAcknowledgeIsTransactional(t *testing.T) {
	t.Parallel()

	src := &fakeAlerts{
		alerts: []models.Alert{{ID: "a-1"}, {ID: "a-2"}},
		ackErr: errors.New("backend down"),
	}
	a, ch := mountAlerts(t, src)

	err := a.Acknowledge(context.Background(), "a-1")
	require.Error(t, err)
	assert.Equal(t, []string{"a-1", "a-2"}, alertIDs(a.List()))

	src.mu.Lock()
	src.ackErr = nil
	src.mu.Unlock()

	require.NoError(t, a.Acknowledge(context.Background(), "a-1"))
	assert.Equal(t, []string{"a-2"}, alertIDs(a.List()))

	// A redelivered alert that was acknowledged here stays gone
	emit(ch, models.EventNewAlert, `{"id":"a-1"}`)
	assert.Equal(t, []string{"a-2"}, alertIDs(a.List()))
	assert.Equal(t, []string{"a-1", "a-1"}, src.ackCalls)
}

func TestAlertsReloadFailureKeepsList(t *testing.T) {
	t.Parallel()

	src := &fakeAlerts{alerts: []models.Alert{{ID: "a-1"}}}
	a, ch := mountAlerts(t, src)

	src.mu.Lock()
	src.err = errors.New("timeout")
	src.mu.Unlock()

	require.Error(t, a.Reload(context.Background()))
	assert.Equal(t, []string{"a-1"}, alertIDs(a.List()))
	assert.Error(t, a.Err())

	emit(ch, models.EventNewAlert, `{"id":"a-2"}`)
	view := a.View()
	assert.Equal(t, []string{"a-2", "a-1"}, alertIDs(view.Alerts))
	assert.False(t, view.Loading)
}

func TestAlertsUnmountStopsDelivery(t *testing.T) {
	t.Parallel()

	ch := realtime.NewChannel(nil)
	a := NewAlerts(&fakeAlerts{}, ch)
	require.NoError(t, a.Mount(context.Background()))
	a.Unmount()

	emit(ch, models.EventNewAlert, `{"id":"a-1"}`)
	assert.Empty(t, a.List())
	assert.Equal(t, 0, ch.Subscribers(models.EventNewAlert))
}

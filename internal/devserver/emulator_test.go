package devserver

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitlink/unitlink/internal/models"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestPlanDistribution(t *testing.T) {
	t.Parallel()

	ids := []string{"a", "b", "c", "d", "e"}
	rng := testRand()

	for round := 0; round < 50; round++ {
		plan := Plan(ids, rng)
		require.Len(t, plan, len(ids))

		seen := map[string]bool{}
		counts := map[string]int{}
		for _, a := range plan {
			assert.False(t, seen[a.DeviceID], "device %s assigned twice", a.DeviceID)
			seen[a.DeviceID] = true
			counts[a.Report.Status]++
		}
		assert.Equal(t, 1, counts[string(models.UnitStatusOffline)])
		assert.Equal(t, 1, counts[string(models.UnitStatusUnstable)])
		assert.Equal(t, 3, counts[string(models.UnitStatusOnline)])
	}

	assert.Nil(t, Plan(nil, rng))

	single := Plan([]string{"only"}, rng)
	require.Len(t, single, 1)
	assert.Equal(t, string(models.UnitStatusOffline), single[0].Report.Status)
}

func TestGenerateReportRanges(t *testing.T) {
	t.Parallel()

	rng := testRand()
	tests := []struct {
		status         models.UnitStatus
		rssiLo, rssiHi int
		latLo, latHi   int
		lossLo, lossHi float64
	}{
		{models.UnitStatusOnline, -85, -40, 20, 150, 0, 2.5},
		{models.UnitStatusUnstable, -100, -70, 100, 500, 1, 10},
	}

	for _, tt := range tests {
		missing := 0
		const n = 2000
		for i := 0; i < n; i++ {
			r := GenerateReport(tt.status, rng)
			assert.Equal(t, string(tt.status), r.Status)
			if r.SignalRSSI == nil {
				missing++
			} else {
				assert.GreaterOrEqual(t, *r.SignalRSSI, tt.rssiLo)
				assert.LessOrEqual(t, *r.SignalRSSI, tt.rssiHi)
			}
			if r.LatencyMs != nil {
				assert.GreaterOrEqual(t, *r.LatencyMs, tt.latLo)
				assert.LessOrEqual(t, *r.LatencyMs, tt.latHi)
			}
			if r.PacketLossPercent != nil {
				assert.GreaterOrEqual(t, *r.PacketLossPercent, tt.lossLo)
				assert.LessOrEqual(t, *r.PacketLossPercent, tt.lossHi)
			}
		}
		assert.Greater(t, missing, 0, "%s readings are sometimes absent", tt.status)
		assert.Less(t, missing, n/10)
	}

	offline := GenerateReport(models.UnitStatusOffline, rng)
	assert.Nil(t, offline.SignalRSSI)
	assert.Nil(t, offline.LatencyMs)
	assert.Nil(t, offline.PacketLossPercent)
}

type recordingReporter struct {
	mu      sync.Mutex
	reports map[string]models.StatusReport
}

func (r *recordingReporter) ReportStatus(_ context.Context, id string, report models.StatusReport) (models.Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[id] = report
	return models.Unit{ID: id}, nil
}

func TestEmulatorCycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.login("admin", adminPassword).AccessToken
	for _, name := range []string{"OP-1", "OP-2", "OP-3"} {
		env.createDevice(token, name)
	}

	rec := &recordingReporter{reports: map[string]models.StatusReport{}}
	NewEmulator(env.store, rec, time.Second, 42).Cycle(context.Background())
	assert.Len(t, rec.reports, 3)

	// driving the real server raises exactly one alert per cycle
	NewEmulator(env.store, env.srv, time.Second, 42).Cycle(context.Background())
	var alerts struct {
		Alerts []models.Alert `json:"alerts"`
	}
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, "/alerts/unacknowledged", token, nil, &alerts))
	assert.Len(t, alerts.Alerts, 1)
}

func TestSweeperMarksSilentUnits(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.login("admin", adminPassword).AccessToken
	unit := env.createDevice(token, "OP-1")
	env.createDevice(token, "never-seen")
	require.Equal(t, http.StatusOK, env.report(unit.ID, "ONLINE"))

	sweeper := NewSweeper(env.store, env.srv, 2*time.Minute)
	assert.Equal(t, 0, sweeper.Sweep(context.Background()))

	env.srv.now = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }
	assert.Equal(t, 1, sweeper.Sweep(context.Background()))
	assert.Equal(t, 0, sweeper.Sweep(context.Background()), "offline units are not swept again")

	device, err := env.store.GetDevice(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.UnitStatusOffline), device.Status)
	require.NotNil(t, device.LastSeen)
	assert.WithinDuration(t, time.Now(), *device.LastSeen, time.Minute, "last_seen keeps the last report")

	var alerts struct {
		Alerts []models.Alert `json:"alerts"`
	}
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, "/alerts/unacknowledged", token, nil, &alerts))
	assert.Len(t, alerts.Alerts, 1)
}

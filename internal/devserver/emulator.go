package devserver

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/storage"
)

// missingReading is the chance of a single reading being absent from a report
const missingReading = 0.05

// Reporter records unit status reports
type Reporter interface {
	ReportStatus(ctx context.Context, deviceID string, report models.StatusReport) (models.Unit, error)
}

// Assignment is the report one unit sends in an emulator cycle
type Assignment struct {
	DeviceID string
	Report   models.StatusReport
}

// Emulator periodically reports synthetic link status for every stored unit
type Emulator struct {
	store    storage.Store
	reporter Reporter
	interval time.Duration
	rng      *rand.Rand
}

// NewEmulator creates an emulator. A zero seed picks a random one.
func NewEmulator(store storage.Store, reporter Reporter, interval time.Duration, seed int64) *Emulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Emulator{
		store:    store,
		reporter: reporter,
		interval: interval,
		rng:      rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)),
	}
}

// Run reports a cycle every interval until ctx is done
func (e *Emulator) Run(ctx context.Context) error {
	log.Info().Dur("interval", e.interval).Msg("Unit emulator started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		e.Cycle(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle sends one round of reports
func (e *Emulator) Cycle(ctx context.Context) {
	devices, err := e.store.ListDevices(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Emulator failed to list devices")
		return
	}

	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}

	for _, a := range Plan(ids, e.rng) {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.reporter.ReportStatus(ctx, a.DeviceID, a.Report); err != nil {
			log.Warn().Err(err).Str("device", a.DeviceID).Msg("Emulator report failed")
		}
	}

	log.Debug().Int("devices", len(ids)).Msg("Emulator cycle sent")
}

// Plan assigns a status to every unit: one goes OFFLINE, one more is
// UNSTABLE (always with more than two units, half of the time otherwise)
// and the rest are ONLINE.
func Plan(ids []string, rng *rand.Rand) []Assignment {
	if len(ids) == 0 {
		return nil
	}

	shuffled := make([]string, len(ids))
	copy(shuffled, ids)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	out := make([]Assignment, 0, len(shuffled))
	out = append(out, Assignment{DeviceID: shuffled[0], Report: GenerateReport(models.UnitStatusOffline, rng)})
	rest := shuffled[1:]

	if len(rest) > 0 && (len(ids) > 2 || rng.Float64() < 0.5) {
		out = append(out, Assignment{DeviceID: rest[0], Report: GenerateReport(models.UnitStatusUnstable, rng)})
		rest = rest[1:]
	}

	for _, id := range rest {
		out = append(out, Assignment{DeviceID: id, Report: GenerateReport(models.UnitStatusOnline, rng)})
	}
	return out
}

// GenerateReport builds a synthetic report for status. OFFLINE carries no
// readings; otherwise each reading is independently absent 5% of the time.
func GenerateReport(status models.UnitStatus, rng *rand.Rand) models.StatusReport {
	report := models.StatusReport{Status: string(status)}

	switch status {
	case models.UnitStatusOnline:
		report.SignalRSSI = intPtr(randInt(rng, -85, -40))
		report.LatencyMs = intPtr(randInt(rng, 20, 150))
		report.PacketLossPercent = floatPtr(randFloat(rng, 0, 2.5))
	case models.UnitStatusUnstable:
		report.SignalRSSI = intPtr(randInt(rng, -100, -70))
		report.LatencyMs = intPtr(randInt(rng, 100, 500))
		report.PacketLossPercent = floatPtr(randFloat(rng, 1, 10))
	default:
		return report
	}

	if rng.Float64() < missingReading {
		report.SignalRSSI = nil
	}
	if rng.Float64() < missingReading {
		report.LatencyMs = nil
	}
	if rng.Float64() < missingReading {
		report.PacketLossPercent = nil
	}
	return report
}

// randInt returns a value in [lo, hi]
func randInt(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

// randFloat returns a value in [lo, hi] rounded to two decimals
func randFloat(rng *rand.Rand, lo, hi float64) float64 {
	return math.Round((lo+rng.Float64()*(hi-lo))*100) / 100
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

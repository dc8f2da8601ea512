package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/storage"
)

// ErrInvalidStatus is returned for a report whose status is not recognized
var ErrInvalidStatus = errors.New("invalid status")

// ReportStatus records a status report of a unit. The unit is marked as
// seen, a history row is added when any measurement is present, a change
// of status is logged, and a transition to OFFLINE raises an alert.
// Realtime events are emitted after the transaction commits.
func (s *RESTServer) ReportStatus(ctx context.Context, deviceID string, report models.StatusReport) (models.Unit, error) {
	status := models.ParseUnitStatus(report.Status)
	if status == models.UnitStatusUnknown {
		return models.Unit{}, fmt.Errorf("%w: %q", ErrInvalidStatus, report.Status)
	}

	var sample *storage.StatusSample
	if report.SignalRSSI != nil || report.LatencyMs != nil || report.PacketLossPercent != nil {
		sample = &storage.StatusSample{
			SignalRSSI:        report.SignalRSSI,
			LatencyMs:         report.LatencyMs,
			PacketLossPercent: report.PacketLossPercent,
		}
	}

	return s.applyStatus(ctx, deviceID, status, sample, true)
}

// MarkOffline flips a silent unit to OFFLINE without touching last_seen
func (s *RESTServer) MarkOffline(ctx context.Context, deviceID string) (models.Unit, error) {
	return s.applyStatus(ctx, deviceID, models.UnitStatusOffline, nil, false)
}

func (s *RESTServer) applyStatus(ctx context.Context, deviceID string, status models.UnitStatus, sample *storage.StatusSample, seen bool) (models.Unit, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return models.Unit{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	device, err := tx.GetDevice(ctx, deviceID)
	if err != nil {
		return models.Unit{}, err
	}

	now := s.now()
	previous := models.ParseUnitStatus(device.Status)
	device.Status = string(status)
	if seen {
		device.LastSeen = &now
	}
	if err := tx.UpdateDevice(ctx, device); err != nil {
		return models.Unit{}, fmt.Errorf("update device: %w", err)
	}

	if sample != nil {
		sample.DeviceID = device.ID
		sample.Timestamp = now
		if err := tx.AddStatusSample(ctx, sample); err != nil {
			return models.Unit{}, fmt.Errorf("add status sample: %w", err)
		}
	}

	var alert *storage.Alert
	if previous != status {
		if err := tx.CreateLog(ctx, &storage.LogEntry{
			Timestamp: now,
			EventType: string(models.LogStatusChange),
			Message:   fmt.Sprintf("Status of '%s' changed from %s to %s", device.Name, previous, status),
			Details: models.Variables{
				"old_status": string(previous),
				"new_status": string(status),
			},
			DeviceID: &device.ID,
		}); err != nil {
			return models.Unit{}, fmt.Errorf("log status change: %w", err)
		}

		if status == models.UnitStatusOffline {
			alert = &storage.Alert{
				Timestamp: now,
				Severity:  string(models.AlertSeverityCritical),
				Message:   fmt.Sprintf("Unit '%s' went offline", device.Name),
				DeviceID:  &device.ID,
			}
			if err := tx.CreateAlert(ctx, alert); err != nil {
				return models.Unit{}, fmt.Errorf("create alert: %w", err)
			}
			alert.Device = device
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Unit{}, fmt.Errorf("commit: %w", err)
	}

	unit := device.Model(sample)

	delta := models.UnitDelta{ID: device.ID, Status: &unit.Status, LastSeen: unit.LastSeen}
	if sample != nil {
		delta.LatestTelemetry = unit.LatestTelemetry
	}
	s.emit(models.EventUnitStatusUpdate, delta)
	if alert != nil {
		s.emit(models.EventNewAlert, alert.Model())
		log.Info().Str("device", device.Name).Str("alert", alert.ID).Msg("Unit went offline")
	}

	return unit, nil
}

// logEvent writes a connection log entry. Failures are only logged.
func (s *RESTServer) logEvent(r *http.Request, eventType models.LogEventType, message string, deviceID, userID *string) {
	if err := s.store.CreateLog(r.Context(), &storage.LogEntry{
		Timestamp: s.now(),
		EventType: string(eventType),
		Message:   message,
		DeviceID:  deviceID,
		UserID:    userID,
	}); err != nil {
		log.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to write connection log")
	}
}

package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HandleListDevices lists all units ordered by name
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}
	latest, err := s.store.LatestStatusSamples(r.Context())
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	units := make([]models.Unit, 0, len(devices))
	for _, d := range devices {
		units = append(units, d.Model(latest[d.ID]))
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"devices": units})
}

// HandleGetDevice gets a unit
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	unit, err := s.unit(r, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "Device not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"device": unit})
}

// HandleCreateDevice adds a unit
func (s *RESTServer) HandleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req models.UnitInput
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" || req.Latitude == nil || req.Longitude == nil || req.UnitType == nil {
		s.respondError(w, http.StatusBadRequest, "Missing required fields: name, latitude, longitude, unit_type")
		return
	}
	unitType, err := models.ParseUnitType(*req.UnitType)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, invalidUnitType(*req.UnitType))
		return
	}

	ctx := r.Context()
	name := strings.TrimSpace(*req.Name)
	if _, err := s.store.GetDeviceByName(ctx, name); err == nil {
		s.respondError(w, http.StatusConflict, fmt.Sprintf("Device with name '%s' already exists.", name))
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.respondStoreError(w, err, "")
		return
	}

	caller := claimsFrom(ctx).Subject
	device := &storage.Device{
		Name:        name,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		UnitType:    string(unitType),
		Status:      string(models.UnitStatusUnknown),
		CreatedAt:   s.now(),
		AddedBy:     &caller,
	}
	if err := s.store.CreateDevice(ctx, device); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, fmt.Sprintf("Device with name '%s' already exists.", name))
			return
		}
		s.respondStoreError(w, err, "")
		return
	}

	unit := device.Model(nil)
	s.logEvent(r, models.LogConfigUpdate, fmt.Sprintf("Device '%s' added", name), &device.ID, &caller)
	s.emit(models.EventUnitStatusUpdate, unit)

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Device added successfully.",
		"device":  unit,
	})
}

// HandleUpdateDevice edits the descriptive fields of a unit
func (s *RESTServer) HandleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req models.UnitInput
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	device, err := s.store.GetDevice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "Device not found")
		return
	}

	delta := models.UnitDelta{ID: device.ID}
	changed := false

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			s.respondError(w, http.StatusBadRequest, "Device name cannot be empty")
			return
		}
		if name != device.Name {
			if other, err := s.store.GetDeviceByName(ctx, name); err == nil && other.ID != device.ID {
				s.respondError(w, http.StatusConflict, fmt.Sprintf("Device name '%s' is already taken.", name))
				return
			}
			device.Name = name
			delta.Name = &name
			changed = true
		}
	}
	if req.Description != nil && (device.Description == nil || *device.Description != *req.Description) {
		device.Description = req.Description
		delta.Description = req.Description
		changed = true
	}
	if req.Latitude != nil && (device.Latitude == nil || *device.Latitude != *req.Latitude) {
		device.Latitude = req.Latitude
		changed = true
	}
	if req.Longitude != nil && (device.Longitude == nil || *device.Longitude != *req.Longitude) {
		device.Longitude = req.Longitude
		changed = true
	}
	if req.UnitType != nil {
		unitType, err := models.ParseUnitType(*req.UnitType)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, invalidUnitType(*req.UnitType))
			return
		}
		if string(unitType) != device.UnitType {
			device.UnitType = string(unitType)
			delta.UnitType = &unitType
			changed = true
		}
	}

	if !changed {
		unit, err := s.unit(r, device.ID)
		if err != nil {
			s.respondStoreError(w, err, "Device not found")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"message": "No changes detected or provided.",
			"device":  unit,
		})
		return
	}

	if err := s.store.UpdateDevice(ctx, device); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, fmt.Sprintf("Device name '%s' is already taken.", device.Name))
			return
		}
		s.respondStoreError(w, err, "Device not found")
		return
	}

	unit, err := s.unit(r, device.ID)
	if err != nil {
		s.respondStoreError(w, err, "Device not found")
		return
	}
	delta.Position = unit.Position

	caller := claimsFrom(ctx).Subject
	s.logEvent(r, models.LogConfigUpdate, fmt.Sprintf("Device '%s' updated", device.Name), &device.ID, &caller)
	s.emit(models.EventUnitStatusUpdate, delta)

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Device updated successfully.",
		"device":  unit,
	})
}

// HandleDeleteDevice removes a unit with its history and alerts
func (s *RESTServer) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	device, err := s.store.GetDevice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "Device not found")
		return
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}
	defer tx.Rollback()

	if err := tx.DeleteDevice(ctx, device.ID); err != nil {
		s.respondStoreError(w, err, "Device not found")
		return
	}
	caller := claimsFrom(ctx).Subject
	if err := tx.CreateLog(ctx, &storage.LogEntry{
		Timestamp: s.now(),
		EventType: string(models.LogConfigUpdate),
		Message:   fmt.Sprintf("Device '%s' deleted", device.Name),
		UserID:    &caller,
	}); err != nil {
		s.respondStoreError(w, err, "")
		return
	}
	if err := tx.Commit(); err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Device deleted successfully."})
}

// HandleDeviceHistory returns recent link quality samples, newest first
func (s *RESTServer) HandleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetDevice(ctx, id); err != nil {
		s.respondStoreError(w, err, "Device not found")
		return
	}

	samples, err := s.store.ListStatusSamples(ctx, id, limit)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	history := make([]models.StatusSample, 0, len(samples))
	for _, sample := range samples {
		history = append(history, sample.Model())
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// HandleReportStatus records a status report sent by a unit
func (s *RESTServer) HandleReportStatus(w http.ResponseWriter, r *http.Request) {
	var req models.StatusReport
	if !s.decode(w, r, &req) {
		return
	}

	_, err := s.ReportStatus(r.Context(), chi.URLParam(r, "id"), req)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status '%s'.", req.Status))
	case err != nil:
		s.respondStoreError(w, err, "Device not found")
	default:
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Device status updated successfully."})
	}
}

// unit loads a unit with its latest telemetry
func (s *RESTServer) unit(r *http.Request, id string) (models.Unit, error) {
	device, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		return models.Unit{}, err
	}
	samples, err := s.store.ListStatusSamples(r.Context(), id, 1)
	if err != nil {
		return models.Unit{}, err
	}
	var latest *storage.StatusSample
	if len(samples) > 0 {
		latest = samples[0]
	}
	return device.Model(latest), nil
}

func invalidUnitType(s string) string {
	names := make([]string, 0, len(models.UnitTypes()))
	for _, t := range models.UnitTypes() {
		names = append(names, string(t))
	}
	return fmt.Sprintf("Invalid unit_type '%s'. Valid types are: %s", s, strings.Join(names, ", "))
}

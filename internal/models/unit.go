package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UnitStatus represents the communication status of a unit
type UnitStatus string

const (
	UnitStatusOnline   UnitStatus = "ONLINE"
	UnitStatusOffline  UnitStatus = "OFFLINE"
	UnitStatusUnstable UnitStatus = "UNSTABLE"
	UnitStatusUnknown  UnitStatus = "UNKNOWN"
)

// ParseUnitStatus parses a status name case-insensitively.
// Unrecognized names map to UnitStatusUnknown.
func ParseUnitStatus(s string) UnitStatus {
	switch st := UnitStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case UnitStatusOnline, UnitStatusOffline, UnitStatusUnstable:
		return st
	default:
		return UnitStatusUnknown
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (s *UnitStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseUnitStatus(raw)
	return nil
}

// UnitType represents the role of a unit in the field
type UnitType string

const (
	UnitTypeCommandPost      UnitType = "COMMAND_POST"
	UnitTypeObservationPost  UnitType = "OBSERVATION_POST"
	UnitTypeCommunicationHub UnitType = "COMMUNICATION_HUB"
	UnitTypeFieldUnit        UnitType = "FIELD_UNIT"
	UnitTypeLogistics        UnitType = "LOGISTICS"
	UnitTypeCheckpoint       UnitType = "CHECKPOINT"
	UnitTypeMedical          UnitType = "MEDICAL"
	UnitTypeTechnical        UnitType = "TECHNICAL"
	UnitTypeOther            UnitType = "OTHER"
)

var unitTypes = []UnitType{
	UnitTypeCommandPost, UnitTypeObservationPost, UnitTypeCommunicationHub,
	UnitTypeFieldUnit, UnitTypeLogistics, UnitTypeCheckpoint,
	UnitTypeMedical, UnitTypeTechnical, UnitTypeOther,
}

// ParseUnitType parses a unit type name case-insensitively
func ParseUnitType(s string) (UnitType, error) {
	t := UnitType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range unitTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid unit_type %q", s)
}

// UnitTypes returns all known unit types
func UnitTypes() []UnitType {
	out := make([]UnitType, len(unitTypes))
	copy(out, unitTypes)
	return out
}

// Position is a lat/lng pair encoded as a two element JSON array
type Position struct {
	Lat float64
	Lng float64
}

// MarshalJSON implements json.Marshaler
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Position) UnmarshalJSON(data []byte) error {
	var pair [2]*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}
	if pair[0] != nil {
		p.Lat = *pair[0]
	}
	if pair[1] != nil {
		p.Lng = *pair[1]
	}
	return nil
}

// Telemetry is the latest link quality sample of a unit
type Telemetry struct {
	SignalRSSI        *int       `json:"signal_rssi,omitempty"`
	LatencyMs         *int       `json:"latency_ms,omitempty"`
	PacketLossPercent *float64   `json:"packet_loss_percent,omitempty"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
}

// Unit represents a monitored field unit
type Unit struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Position        *Position  `json:"position,omitempty"`
	UnitType        UnitType   `json:"unit_type"`
	Status          UnitStatus `json:"status"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	LatestTelemetry *Telemetry `json:"latest_telemetry,omitempty"`
}

// UnitDelta is a partial unit update. Only non-nil fields carry a change.
type UnitDelta struct {
	ID              string      `json:"id"`
	Name            *string     `json:"name,omitempty"`
	Description     *string     `json:"description,omitempty"`
	Position        *Position   `json:"position,omitempty"`
	UnitType        *UnitType   `json:"unit_type,omitempty"`
	Status          *UnitStatus `json:"status,omitempty"`
	LastSeen        *time.Time  `json:"last_seen,omitempty"`
	LatestTelemetry *Telemetry  `json:"latest_telemetry,omitempty"`
}

// Apply merges the delta into u. Fields absent from the delta are kept.
func (d UnitDelta) Apply(u Unit) Unit {
	if u.ID == "" {
		u.ID = d.ID
	}
	if d.Name != nil {
		u.Name = *d.Name
	}
	if d.Description != nil {
		u.Description = *d.Description
	}
	if d.Position != nil {
		p := *d.Position
		u.Position = &p
	}
	if d.UnitType != nil {
		u.UnitType = *d.UnitType
	}
	if d.Status != nil {
		u.Status = *d.Status
	}
	if d.LastSeen != nil {
		t := *d.LastSeen
		u.LastSeen = &t
	}
	if d.LatestTelemetry != nil {
		u.LatestTelemetry = mergeTelemetry(u.LatestTelemetry, d.LatestTelemetry)
	}
	return u
}

// NewUnit builds a unit from a delta that has no existing entry
func (d UnitDelta) NewUnit() Unit {
	u := d.Apply(Unit{ID: d.ID})
	if u.Status == "" {
		u.Status = UnitStatusUnknown
	}
	return u
}

func mergeTelemetry(base, delta *Telemetry) *Telemetry {
	out := Telemetry{}
	if base != nil {
		out = *base
	}
	if delta.SignalRSSI != nil {
		out.SignalRSSI = delta.SignalRSSI
	}
	if delta.LatencyMs != nil {
		out.LatencyMs = delta.LatencyMs
	}
	if delta.PacketLossPercent != nil {
		out.PacketLossPercent = delta.PacketLossPercent
	}
	if delta.Timestamp != nil {
		out.Timestamp = delta.Timestamp
	}
	return &out
}

// DecodeUnitDelta decodes a realtime payload into a delta.
// Readings may be sent flat (`{"id":"1","latency_ms":40}`) or nested under
// latest_telemetry; nested values win when both are present. Keys outside
// the unit schema are ignored. An empty id is rejected since the delta
// cannot be keyed.
func DecodeUnitDelta(data []byte) (UnitDelta, error) {
	var d UnitDelta
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decode unit delta: %w", err)
	}
	if d.ID == "" {
		return d, fmt.Errorf("decode unit delta: missing id")
	}

	var flat Telemetry
	if err := json.Unmarshal(data, &flat); err != nil {
		return d, fmt.Errorf("decode unit delta: %w", err)
	}
	flat.Timestamp = nil
	if flat.SignalRSSI != nil || flat.LatencyMs != nil || flat.PacketLossPercent != nil {
		if d.LatestTelemetry != nil {
			d.LatestTelemetry = mergeTelemetry(&flat, d.LatestTelemetry)
		} else {
			d.LatestTelemetry = &flat
		}
	}
	return d, nil
}

// StatusSample is one row of a unit's link quality history
type StatusSample struct {
	Timestamp         time.Time `json:"timestamp"`
	SignalRSSI        *int      `json:"signal_rssi"`
	LatencyMs         *int      `json:"latency_ms"`
	PacketLossPercent *float64  `json:"packet_loss_percent"`
}

// UnitInput is the payload for creating or updating a unit
type UnitInput struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	UnitType    *string  `json:"unit_type,omitempty"`
}

// StatusReport is what a unit (or the emulator) posts to report its link state
type StatusReport struct {
	Status            string   `json:"status"`
	SignalRSSI        *int     `json:"signal_rssi"`
	LatencyMs         *int     `json:"latency_ms"`
	PacketLossPercent *float64 `json:"packet_loss_percent"`
}

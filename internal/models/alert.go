package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlertSeverity represents how urgent an alert is
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "INFO"
	AlertSeverityWarning  AlertSeverity = "WARNING"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

// Alert represents an unacknowledged notification about a unit
type Alert struct {
	ID         string        `json:"id"`
	DeviceID   string        `json:"device_id,omitempty"`
	DeviceName string        `json:"device_name"`
	Message    string        `json:"message"`
	Severity   AlertSeverity `json:"severity,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// DecodeAlert decodes a realtime new_alert payload
func DecodeAlert(data []byte) (Alert, error) {
	var a Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("decode alert: %w", err)
	}
	if a.ID == "" {
		return a, fmt.Errorf("decode alert: missing id")
	}
	return a, nil
}

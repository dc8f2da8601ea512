package models

// Realtime event names
const (
	EventUnitStatusUpdate = "unit_status_update"
	EventNewAlert         = "new_alert"
)

package models

import (
	"time"
)

// LogEventType represents the kind of a connection log entry
type LogEventType string

const (
	LogConnected          LogEventType = "CONNECTED"
	LogDisconnected       LogEventType = "DISCONNECTED"
	LogStatusChange       LogEventType = "STATUS_CHANGE"
	LogParameterThreshold LogEventType = "PARAMETER_THRESHOLD"
	LogConfigUpdate       LogEventType = "CONFIG_UPDATE"
	LogUserAction         LogEventType = "USER_ACTION"
)

// LogEntry represents a connection log entry
type LogEntry struct {
	ID         int64        `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	EventType  LogEventType `json:"event_type"`
	Message    string       `json:"message"`
	Details    Variables    `json:"details,omitempty"`
	DeviceID   *string      `json:"device_id"`
	DeviceName string       `json:"device_name"`
	UserID     *string      `json:"user_id"`
	UserName   *string      `json:"user_name"`
}

// Pagination describes a page of a larger result set
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	HasNext     bool  `json:"has_next"`
	HasPrev     bool  `json:"has_prev"`
}

// NewPagination computes page metadata
func NewPagination(page, perPage int, total int64) Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{
		CurrentPage: page,
		PerPage:     perPage,
		TotalPages:  pages,
		TotalItems:  total,
		HasNext:     page < pages,
		HasPrev:     page > 1,
	}
}

// LogPage is one page of connection logs
type LogPage struct {
	Logs       []LogEntry `json:"logs"`
	Pagination Pagination `json:"pagination"`
}

package storage

import (
	"context"
	"time"
)

// CreateLog appends a connection log entry
func (s *GormStore) CreateLog(ctx context.Context, entry *LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return translate(s.getDB(ctx).Omit("Device", "User").Create(entry).Error)
}

// ListLogs returns a page of log entries, newest first, and the total count
func (s *GormStore) ListLogs(ctx context.Context, limit, offset int) ([]*LogEntry, int64, error) {
	var total int64
	if err := s.getDB(ctx).Model(&LogEntry{}).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var entries []*LogEntry
	err := s.getDB(ctx).
		Preload("Device").
		Preload("User").
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return entries, total, nil
}

package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/unitlink/unitlink/internal/models"
)

// Default page size of the logs endpoint
const DefaultPerPage = 20

// LogsAPI wraps the /logs endpoint
type LogsAPI struct {
	doer Doer
}

// NewLogsAPI creates a LogsAPI
func NewLogsAPI(d Doer) *LogsAPI {
	return &LogsAPI{doer: d}
}

// Page returns one page of connection logs, newest first
func (a *LogsAPI) Page(ctx context.Context, page, perPage int) (*models.LogPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var resp models.LogPage
	if err := get(ctx, a.doer, "/logs", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Package api provides typed access to the UnitLink backend endpoints
package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/unitlink/unitlink/internal/gateway"
)

// Doer performs backend calls. *gateway.Gateway implements it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out interface{}) error
}

// MessageResponse is the generic {"message": ...} acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

func get(ctx context.Context, d Doer, path string, query url.Values, out interface{}) error {
	return d.Do(ctx, gateway.Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func post(ctx context.Context, d Doer, path string, body, out interface{}) error {
	return d.Do(ctx, gateway.Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func put(ctx context.Context, d Doer, path string, body, out interface{}) error {
	return d.Do(ctx, gateway.Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func del(ctx context.Context, d Doer, path string, out interface{}) error {
	return d.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: path}, out)
}

// Package app implements the dashboard use cases and defines ports (fetcher
// and key-value interfaces).
package app

import (
	"context"

	"github.com/jaakkos/gwp/internal/domain"
)

// Fetcher loads one full collection from the GWP backend.
// Implementation: internal/gwpapi.
type Fetcher interface {
	Fetch(ctx context.Context, c domain.Collection) ([]domain.Record, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, c domain.Collection) ([]domain.Record, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, c domain.Collection) ([]domain.Record, error) {
	return f(ctx, c)
}

// KeyValueStore persists small client-side values: the session token, the
// logged-in user and UI preferences.
// Implementation: internal/repository/sqlite.
type KeyValueStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	All() (map[string]string, error)
}

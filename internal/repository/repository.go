package repository

import (
	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/repository/sqlite"
)

// NewKeyValueStore returns the local state store backed by SQLite at path.
// The path is typically policy.StateFile() (default ~/.config/gwp/state.sqlite).
func NewKeyValueStore(path string) (app.KeyValueStore, error) {
	return sqlite.New(path)
}

// internal/storage/storage.go
//
// Backing stores for persisted form values.
//
// Context
// -------
// A form persists through one of four strategies (see adapter.go).  The
// strategies sit on top of three narrow store interfaces:
//
//	KV              – site-wide named options.
//	MetaStore       – key/value pairs attached to one entity (a post, a page).
//	GroupRegistrar  – records which options belong to a settings group.
//
// `SQL` implements all three (plus throttle.Counter) on MySQL through sqlx.
// `Memory` implements them in-process for tests and single-node demos.
//
// Values are arbitrary JSON-compatible Go values.  The SQL store encodes
// them as JSON, so numbers come back as float64 and lists as []any.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by single-key lookups that find no row.
var ErrNotFound = errors.New("storage: not found")

// KV stores site-wide options.
type KV interface {
	// GetOptions returns the subset of names that exist.
	GetOptions(ctx context.Context, names []string) (map[string]any, error)
	SetOption(ctx context.Context, name string, value any) error
}

// MetaStore stores values scoped to an entity.
type MetaStore interface {
	// GetMetas returns the subset of keys that exist for entityID.
	GetMetas(ctx context.Context, entityID int64, keys []string) (map[string]any, error)
	SetMeta(ctx context.Context, entityID int64, key string, value any) error
}

// GroupRegistrar records option membership in a settings group.
type GroupRegistrar interface {
	RegisterGroup(ctx context.Context, group string, names []string) error
}

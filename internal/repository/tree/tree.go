// Package tree describes a replicated hierarchical JSON store addressed by
// slash-separated paths, with change subscriptions and on-disconnect rules.
package tree

import (
	"context"
	"errors"
)

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidValue = errors.New("invalid value")
	ErrClosed       = errors.New("connection closed")
)

// Listener receives the full current value at a subscribed path. A snapshot
// that does not exist means the path was deleted.
type Listener func(snap Snapshot)

type Store interface {
	// Set replaces the value at path. A nil value removes it.
	Set(ctx context.Context, path string, value any) error
	// Update merges fields relative to path. Keys may contain slashes and
	// nil values remove the addressed child.
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (Snapshot, error)
	// Subscribe delivers the current value and then every change at or below
	// path, in commit order, until the returned func is called.
	Subscribe(ctx context.Context, path string, query Query, cb Listener) (func(), error)
	OnDisconnect(path string) Disconnect
}

// Disconnect holds a write the server performs when the owning connection
// terminates, gracefully or not.
type Disconnect interface {
	Set(ctx context.Context, value any) error
	Remove(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// Conn is a client session against a backend. Closing it runs its
// on-disconnect rules and drops its subscriptions.
type Conn interface {
	Store
	ID() string
	Close(ctx context.Context) error
}

type Backend interface {
	Connect(ctx context.Context) (Conn, error)
}

// Package store provides the resource store: addressable persistence for
// linked-data nodes keyed by identifier, with memory, file, and Redis
// backends behind one interface.
package store

import (
	"context"
	"errors"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// ErrNotFound is returned by Get for an unknown identifier.
var ErrNotFound = errors.New("store: resource not found")

// Store is the contract every backend satisfies. Put is atomic from the
// caller's viewpoint: readers see either the old or the new value, never
// a partial write. FindByType may scan linearly.
type Store interface {
	Get(ctx context.Context, id string) (linkeddata.Node, error)
	Put(ctx context.Context, id string, n linkeddata.Node) error
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]string, error)
	FindByType(ctx context.Context, typ string) ([]linkeddata.Node, error)
}

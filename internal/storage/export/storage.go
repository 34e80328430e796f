package export

import (
	"context"
	"errors"
)

// ErrExists is returned by Write when the path is already taken.
var ErrExists = errors.New("export already exists")

// Storage is a write-mostly object store for exported passes.
type Storage interface {
	// Write stores data at the given path
	Write(ctx context.Context, path string, data []byte) error

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

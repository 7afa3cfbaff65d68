// Package asset stores uploaded profile pictures under collision-free names
// and turns stored references back into retrievable paths.
package asset

import (
	"context"
	"errors"
	"io"
)

var (
	ErrExists          = errors.New("asset already exists")
	ErrStorageFailure  = errors.New("asset storage failed")
	ErrTooLarge        = errors.New("asset too large")
	ErrUnsupportedType = errors.New("unsupported asset type")
	ErrEmpty           = errors.New("asset is empty")
	ErrInvalidKey      = errors.New("invalid asset key")
)

// Provider abstracts the backing storage.
type Provider interface {
	// Put writes r under key. It never replaces an existing object and
	// returns ErrExists instead.
	Put(ctx context.Context, key string, r io.Reader) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// AccessPath returns the public path or URL for key.
	AccessPath(key string) string
}

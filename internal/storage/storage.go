// Package storage describes the long-term (archival) store that holds every
// bag file, and provides a directory-backed implementation of it.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/oar-dist/oar-dist/internal/checksum"
)

// ErrFileNotFound reports that no file with the requested name is archived.
var ErrFileNotFound = errors.New("file not found in long-term storage")

// LongTermStorage is the archival store restorations read from.
type LongTermStorage interface {
	// OpenFile streams the named file.
	OpenFile(ctx context.Context, name string) (io.ReadCloser, error)

	// Exists reports whether the named file is archived.
	Exists(ctx context.Context, name string) (bool, error)

	// Size returns the named file's length in bytes.
	Size(ctx context.Context, name string) (int64, error)

	// Checksum returns the named file's SHA-256 checksum.
	Checksum(ctx context.Context, name string) (checksum.Checksum, error)

	// FindBagsFor lists the bag files belonging to a dataset identifier.
	FindBagsFor(ctx context.Context, identifier string) ([]string, error)

	// FindHeadBagFor returns the most current bag for identifier. A non-empty
	// version restricts the search to bags of that version.
	FindHeadBagFor(ctx context.Context, identifier, version string) (string, error)
}

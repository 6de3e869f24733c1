// Package restore copies objects out of long-term storage into cache
// volumes. Every Restorer shares one algorithm, Restore, which enriches the
// caller's metadata with the object's size and checksum before committing the
// bytes through a cache.Reservation.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oar-dist/oar-dist/internal/cache"
	"github.com/oar-dist/oar-dist/internal/checksum"
)

var (
	// ErrObjectNotFound reports an id that does not resolve in long-term storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrUnsupported reports that a restorer cannot supply a property at all.
	ErrUnsupported = errors.New("operation not supported by restorer")
)

// RestorationError wraps an unexpected failure while restoring ObjectID.
type RestorationError struct {
	ObjectID string
	Err      error
}

func (e *RestorationError) Error() string {
	return fmt.Sprintf("restore %s: %v", e.ObjectID, e.Err)
}

func (e *RestorationError) Unwrap() error {
	return e.Err
}

// Source is the minimal capability set the shared restoration algorithm
// needs from a restorer.
type Source interface {
	// SizeOf returns the object's size in bytes.
	SizeOf(ctx context.Context, id string) (int64, error)

	// ChecksumOf returns the object's checksum.
	ChecksumOf(ctx context.Context, id string) (checksum.Checksum, error)

	// OpenDataObject streams the object's bytes.
	OpenDataObject(ctx context.Context, id string) (io.ReadCloser, error)
}

// Restorer pulls objects from long-term storage into cache volumes.
type Restorer interface {
	Source

	// DoesNotExist returns true only when id is certainly absent; false means
	// the object may exist.
	DoesNotExist(ctx context.Context, id string) (bool, error)

	// RestoreObject copies id into the reservation under destName.
	RestoreObject(ctx context.Context, id string, res *cache.Reservation, destName string, md cache.Metadata) (*cache.CacheObject, error)
}

// Restore is the restoration algorithm shared by all restorers. The caller's
// metadata is never modified. Size and checksum are looked up when missing;
// failures there, and any other failure outside the cache volume, come back as
// a *RestorationError carrying id. Cache volume failures are returned as-is.
func Restore(ctx context.Context, src Source, id string, res *cache.Reservation, destName string, md cache.Metadata) (*cache.CacheObject, error) {
	if res == nil {
		return nil, &RestorationError{ObjectID: id, Err: errors.New("nil reservation")}
	}

	enriched := md.Clone()
	if enriched == nil {
		enriched = cache.Metadata{}
	}

	if !enriched.Has(cache.MetaSize) {
		size, err := src.SizeOf(ctx, id)
		if err != nil {
			return nil, &RestorationError{ObjectID: id, Err: err}
		}
		enriched[cache.MetaSize] = size
	}

	if !enriched.Has(cache.MetaChecksum) {
		sum, err := src.ChecksumOf(ctx, id)
		if err != nil {
			return nil, &RestorationError{ObjectID: id, Err: err}
		}
		enriched.SetChecksum(sum)
	}

	rc, err := src.OpenDataObject(ctx, id)
	if err != nil {
		return nil, &RestorationError{ObjectID: id, Err: err}
	}
	defer rc.Close()

	obj, err := res.SaveAs(ctx, rc, id, destName, enriched)
	if err != nil {
		if cache.IsStorageVolumeError(err) {
			return nil, err
		}
		return nil, &RestorationError{ObjectID: id, Err: err}
	}
	return obj, nil
}

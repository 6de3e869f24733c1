package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oar-dist/oar-dist/internal/checksum"
)

// CacheVolume is a storage backend holding cached objects by name.
type CacheVolume interface {
	// Name identifies the volume for its whole lifetime.
	Name() string

	// Exists reports whether an object is stored under name. A missing object
	// is not an error.
	Exists(ctx context.Context, name string) (bool, error)

	// SaveAs stores the content of r under name. Readers observe either the
	// previous content or the complete new content, never a partial write.
	SaveAs(ctx context.Context, r io.Reader, name string, md Metadata) error

	// SaveObjectAs copies an object that lives in any volume under name.
	SaveObjectAs(ctx context.Context, obj *CacheObject, name string, md Metadata) error

	// GetStream opens the named object. Returns ErrNotFound when absent.
	GetStream(ctx context.Context, name string) (io.ReadCloser, error)

	// Get returns a descriptor for the named object. Returns ErrNotFound when absent.
	Get(ctx context.Context, name string) (*CacheObject, error)

	// Remove deletes the named object, reporting whether anything was removed.
	Remove(ctx context.Context, name string) (bool, error)
}

// UsageReporter is implemented by volumes that can measure the bytes they
// currently hold.
type UsageReporter interface {
	UsedBytes(ctx context.Context) (int64, error)
}

// CacheObject describes an object held by a volume. Volume is a borrowed
// handle: the object never controls the volume's lifetime, and VolumeName can
// be used to re-resolve it through a Registry.
type CacheObject struct {
	Name       string
	VolumeName string
	Volume     CacheVolume
	Size       int64
	Checksum   checksum.Checksum
	ModTime    time.Time
	Metadata   Metadata
}

// Open streams the object's content from its volume.
func (o *CacheObject) Open(ctx context.Context) (io.ReadCloser, error) {
	if o == nil || o.Volume == nil {
		return nil, errors.New("cache object not bound to a volume")
	}
	return o.Volume.GetStream(ctx, o.Name)
}

// ErrNotFound 表示缓存中不存在该对象。
var ErrNotFound = errors.New("cache object not found")

// ErrInvalidName reports an object name that cannot be stored, such as one
// that escapes the volume root.
var ErrInvalidName = errors.New("invalid cache object name")

// ErrInsufficientSpace reports that a write would exceed a reservation or the
// volume's capacity.
var ErrInsufficientSpace = errors.New("insufficient space in cache volume")

// StorageVolumeError wraps an I/O failure inside a cache volume.
type StorageVolumeError struct {
	Volume string
	Op     string
	Name   string
	Err    error
}

func (e *StorageVolumeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("cache volume %s: %s: %v", e.Volume, e.Op, e.Err)
	}
	return fmt.Sprintf("cache volume %s: %s %s: %v", e.Volume, e.Op, e.Name, e.Err)
}

func (e *StorageVolumeError) Unwrap() error {
	return e.Err
}

// IsStorageVolumeError reports whether err originated inside a cache volume.
func IsStorageVolumeError(err error) bool {
	var sve *StorageVolumeError
	return errors.As(err, &sve)
}

func volumeError(volume, op, name string, err error) error {
	if err == nil {
		return nil
	}
	var sve *StorageVolumeError
	if errors.As(err, &sve) {
		return err
	}
	return &StorageVolumeError{Volume: volume, Op: op, Name: name, Err: err}
}

// copyObject implements SaveObjectAs on top of a volume's SaveAs.
func copyObject(ctx context.Context, dst CacheVolume, obj *CacheObject, name string, md Metadata) error {
	src, err := obj.Open(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	merged := obj.Metadata.Clone()
	if merged == nil {
		merged = Metadata{}
	}
	if obj.Size >= 0 && !merged.Has(MetaSize) {
		merged[MetaSize] = obj.Size
	}
	if !obj.Checksum.IsZero() && !merged.Has(MetaChecksum) {
		merged.SetChecksum(obj.Checksum)
	}
	for k, v := range md {
		merged[k] = v
	}
	return dst.SaveAs(ctx, src, name, merged)
}

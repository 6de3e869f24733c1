package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oar-dist/oar-dist/internal/cache"
	"github.com/oar-dist/oar-dist/internal/checksum"
	"github.com/oar-dist/oar-dist/internal/storage"
)

// FileCopyRestorer restores objects from a long-term store that keeps one
// file per object. Object ids are the file names, optionally behind a shared
// prefix that is stripped before lookup.
type FileCopyRestorer struct {
	store  storage.LongTermStorage
	prefix string
}

// NewFileCopyRestorer restores from store. With a non-empty prefix, only ids
// starting with it resolve.
func NewFileCopyRestorer(store storage.LongTermStorage, prefix string) *FileCopyRestorer {
	return &FileCopyRestorer{store: store, prefix: prefix}
}

// Storage returns the long-term store behind the restorer.
func (r *FileCopyRestorer) Storage() storage.LongTermStorage {
	return r.store
}

// Prefix returns the configured id prefix.
func (r *FileCopyRestorer) Prefix() string {
	return r.prefix
}

func (r *FileCopyRestorer) id2name(id string) (string, error) {
	if !strings.HasPrefix(id, r.prefix) {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	name := strings.TrimPrefix(id, r.prefix)
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return name, nil
}

func (r *FileCopyRestorer) DoesNotExist(ctx context.Context, id string) (bool, error) {
	name, err := r.id2name(id)
	if err != nil {
		return true, nil
	}
	ok, err := r.store.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (r *FileCopyRestorer) SizeOf(ctx context.Context, id string) (int64, error) {
	name, err := r.id2name(id)
	if err != nil {
		return 0, err
	}
	size, err := r.store.Size(ctx, name)
	if err != nil {
		return 0, notFound(id, err)
	}
	return size, nil
}

func (r *FileCopyRestorer) ChecksumOf(ctx context.Context, id string) (checksum.Checksum, error) {
	name, err := r.id2name(id)
	if err != nil {
		return checksum.Checksum{}, err
	}
	sum, err := r.store.Checksum(ctx, name)
	if err != nil {
		return checksum.Checksum{}, notFound(id, err)
	}
	return sum, nil
}

func (r *FileCopyRestorer) OpenDataObject(ctx context.Context, id string) (io.ReadCloser, error) {
	name, err := r.id2name(id)
	if err != nil {
		return nil, err
	}
	rc, err := r.store.OpenFile(ctx, name)
	if err != nil {
		return nil, notFound(id, err)
	}
	return rc, nil
}

func (r *FileCopyRestorer) RestoreObject(ctx context.Context, id string, res *cache.Reservation, destName string, md cache.Metadata) (*cache.CacheObject, error) {
	return Restore(ctx, r, id, res, destName, md)
}

// notFound maps a missing-file error from long-term storage to ErrObjectNotFound.
func notFound(id string, err error) error {
	if errors.Is(err, storage.ErrFileNotFound) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return err
}

var _ Restorer = (*FileCopyRestorer)(nil)

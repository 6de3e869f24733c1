package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// NullVolume remembers which names were saved without keeping any bytes.
// Streams opened on it are empty. It stands in for real storage when only the
// write path matters.
type NullVolume struct {
	name string

	mu      sync.RWMutex
	entries map[string]nullEntry
}

type nullEntry struct {
	size    int64
	modTime time.Time
	md      Metadata
}

// NewNullVolume creates an empty null volume.
func NewNullVolume(name string) *NullVolume {
	return &NullVolume{
		name:    name,
		entries: make(map[string]nullEntry),
	}
}

func (v *NullVolume) Name() string {
	return v.name
}

func (v *NullVolume) Exists(ctx context.Context, name string) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.entries[name]
	return ok, nil
}

// SaveAs drains r and records name as present. The recorded size is the
// number of bytes drained.
func (v *NullVolume) SaveAs(ctx context.Context, r io.Reader, name string, md Metadata) error {
	if name == "" {
		return ErrInvalidName
	}
	n, readErr, _ := copyWithContext(ctx, io.Discard, r)
	if readErr != nil {
		return readErr
	}

	modTime, ok := md.Modified()
	if !ok {
		modTime = time.Now().UTC()
	}

	v.mu.Lock()
	v.entries[name] = nullEntry{size: n, modTime: modTime, md: md.Clone()}
	v.mu.Unlock()
	return nil
}

func (v *NullVolume) SaveObjectAs(ctx context.Context, obj *CacheObject, name string, md Metadata) error {
	if obj == nil {
		return errors.New("nil cache object")
	}
	return copyObject(ctx, v, obj, name, md)
}

func (v *NullVolume) GetStream(ctx context.Context, name string) (io.ReadCloser, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, ok := v.entries[name]; !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (v *NullVolume) Get(ctx context.Context, name string) (*CacheObject, error) {
	v.mu.RLock()
	entry, ok := v.entries[name]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	md := entry.md.Clone()
	if md == nil {
		md = Metadata{}
	}
	obj := &CacheObject{
		Name:       name,
		VolumeName: v.name,
		Volume:     v,
		Size:       entry.size,
		ModTime:    entry.modTime,
		Metadata:   md,
	}
	if sum, ok := md.Checksum(); ok {
		obj.Checksum = sum
	}
	return obj, nil
}

func (v *NullVolume) Remove(ctx context.Context, name string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[name]; !ok {
		return false, nil
	}
	delete(v.entries, name)
	return true, nil
}

// UsedBytes is always zero: nothing is persisted.
func (v *NullVolume) UsedBytes(context.Context) (int64, error) {
	return 0, nil
}

var _ UsageReporter = (*NullVolume)(nil)

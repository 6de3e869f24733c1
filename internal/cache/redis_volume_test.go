package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/oar-dist/oar-dist/internal/checksum"
)

func newRedisVolume(t *testing.T) *RedisVolume {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)

	vol, err := NewRedisVolumeFromURL(context.Background(), "redis", "redis://"+srv.Addr())
	if err != nil {
		t.Fatalf("volume init: %v", err)
	}
	t.Cleanup(func() { _ = vol.Close() })
	return vol
}

func TestRedisVolumeRoundTrip(t *testing.T) {
	vol := newRedisVolume(t)
	ctx := context.Background()

	modTime := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	md := Metadata{MetaModified: modTime}
	md.SetChecksum(checksum.SHA256Of("deadbeef"))

	if err := vol.SaveAs(ctx, strings.NewReader("redis payload"), "a/b.zip", md); err != nil {
		t.Fatalf("save error: %v", err)
	}
	if ok, err := vol.Exists(ctx, "a/b.zip"); err != nil || !ok {
		t.Fatalf("expected object, got %v (%v)", ok, err)
	}
	if body := readAll(t, vol, "a/b.zip"); string(body) != "redis payload" {
		t.Fatalf("payload mismatch: %q", body)
	}

	obj, err := vol.Get(ctx, "a/b.zip")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if obj.Size != int64(len("redis payload")) {
		t.Fatalf("size mismatch: %d", obj.Size)
	}
	if !obj.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: %v vs %v", obj.ModTime, modTime)
	}
	if obj.Checksum != checksum.SHA256Of("deadbeef") {
		t.Fatalf("checksum mismatch: %+v", obj.Checksum)
	}
}

func TestRedisVolumeMissingAndRemove(t *testing.T) {
	vol := newRedisVolume(t)
	ctx := context.Background()

	if ok, err := vol.Exists(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent, got %v (%v)", ok, err)
	}
	if _, err := vol.GetStream(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := vol.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_ = vol.SaveAs(ctx, strings.NewReader("x"), "victim", nil)
	if removed, err := vol.Remove(ctx, "victim"); err != nil || !removed {
		t.Fatalf("first remove: %v (%v)", removed, err)
	}
	if removed, err := vol.Remove(ctx, "victim"); err != nil || removed {
		t.Fatalf("second remove: %v (%v)", removed, err)
	}
}

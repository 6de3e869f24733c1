package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNullVolumeTracksNamesOnly(t *testing.T) {
	vol := NewNullVolume("null")
	ctx := context.Background()

	if ok, _ := vol.Exists(ctx, "obj"); ok {
		t.Fatalf("fresh volume should be empty")
	}
	if err := vol.SaveAs(ctx, strings.NewReader("some bytes"), "obj", Metadata{MetaChecksum: "abc"}); err != nil {
		t.Fatalf("save error: %v", err)
	}
	if ok, _ := vol.Exists(ctx, "obj"); !ok {
		t.Fatalf("saved name should exist")
	}

	if body := readAll(t, vol, "obj"); len(body) != 0 {
		t.Fatalf("null volume stream should be empty, got %q", body)
	}

	obj, err := vol.Get(ctx, "obj")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if obj.Size != int64(len("some bytes")) {
		t.Fatalf("expected drained size, got %d", obj.Size)
	}
	if obj.Checksum.Hash != "abc" {
		t.Fatalf("expected checksum from metadata, got %+v", obj.Checksum)
	}
}

func TestNullVolumeMissingAndRemove(t *testing.T) {
	vol := NewNullVolume("null")
	ctx := context.Background()

	if _, err := vol.GetStream(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := vol.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_ = vol.SaveAs(ctx, strings.NewReader(""), "gone", nil)
	if removed, _ := vol.Remove(ctx, "gone"); !removed {
		t.Fatalf("first remove should report true")
	}
	if removed, _ := vol.Remove(ctx, "gone"); removed {
		t.Fatalf("second remove should report false")
	}
}

func TestNullVolumeAcceptsObjectsFromOtherVolumes(t *testing.T) {
	src := newTestVolume(t)
	ctx := context.Background()
	_ = src.SaveAs(ctx, strings.NewReader("abc"), "orig", nil)
	obj, err := src.Get(ctx, "orig")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}

	vol := NewNullVolume("null")
	if err := vol.SaveObjectAs(ctx, obj, "copy", nil); err != nil {
		t.Fatalf("save object error: %v", err)
	}
	copied, err := vol.Get(ctx, "copy")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if copied.Size != 3 {
		t.Fatalf("expected size 3, got %d", copied.Size)
	}
}

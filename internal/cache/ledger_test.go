package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestReservationCommitsAndReleases(t *testing.T) {
	vol := newTestVolume(t)
	ledger := NewLedger(vol, 100)
	ctx := context.Background()

	res, err := ledger.Reserve(40)
	if err != nil {
		t.Fatalf("reserve error: %v", err)
	}
	if free := ledger.Free(); free != 60 {
		t.Fatalf("expected 60 free while reserved, got %d", free)
	}

	obj, err := res.SaveAs(ctx, strings.NewReader("0123456789"), "ltstore:obj", "obj", Metadata{MetaSize: int64(10)})
	if err != nil {
		t.Fatalf("commit error: %v", err)
	}
	if obj.Size != 10 || obj.Name != "obj" {
		t.Fatalf("unexpected object %+v", obj)
	}
	if res.Remaining() != 30 {
		t.Fatalf("expected 30 remaining, got %d", res.Remaining())
	}
	if ledger.Used() != 10 {
		t.Fatalf("expected 10 used, got %d", ledger.Used())
	}

	res.Release()
	res.Release()
	if free := ledger.Free(); free != 90 {
		t.Fatalf("release should return the unused claim, free=%d", free)
	}
	if _, err := res.SaveAs(ctx, strings.NewReader("x"), "id", "late", nil); err == nil {
		t.Fatalf("released reservation must refuse commits")
	}
}

func TestReserveBeyondCapacity(t *testing.T) {
	ledger := NewLedger(NewNullVolume("null"), 10)
	_, err := ledger.Reserve(11)
	if !errors.Is(err, ErrInsufficientSpace) || !IsStorageVolumeError(err) {
		t.Fatalf("expected insufficient space volume error, got %v", err)
	}
}

func TestReservationRejectsOversizedContent(t *testing.T) {
	vol := newTestVolume(t)
	ledger := NewLedger(vol, 100)
	ctx := context.Background()

	res, err := ledger.Reserve(4)
	if err != nil {
		t.Fatalf("reserve error: %v", err)
	}
	defer res.Release()

	_, err = res.SaveAs(ctx, strings.NewReader("far too long"), "id", "big", nil)
	if !errors.Is(err, ErrInsufficientSpace) || !IsStorageVolumeError(err) {
		t.Fatalf("expected insufficient space volume error, got %v", err)
	}
	if ok, _ := vol.Exists(ctx, "big"); ok {
		t.Fatalf("oversized content must not be committed")
	}
	if ledger.Used() != 0 {
		t.Fatalf("nothing should be charged, used=%d", ledger.Used())
	}
}

func TestUnlimitedLedger(t *testing.T) {
	ledger := NewLedger(NewNullVolume("null"), Unlimited)
	res, err := ledger.Reserve(1 << 40)
	if err != nil {
		t.Fatalf("reserve error: %v", err)
	}
	if ledger.Free() != -1 {
		t.Fatalf("unlimited ledger should report -1 free")
	}
	if _, err := res.SaveAs(context.Background(), strings.NewReader("abc"), "id", "n", nil); err != nil {
		t.Fatalf("commit error: %v", err)
	}
	res.Release()
}

func TestLedgerPrimeAndCredit(t *testing.T) {
	vol := newTestVolume(t)
	ctx := context.Background()
	_ = vol.SaveAs(ctx, strings.NewReader("12345678"), "existing", nil)

	ledger := NewLedger(vol, 20)
	if err := ledger.Prime(ctx); err != nil {
		t.Fatalf("prime error: %v", err)
	}
	if ledger.Used() != 8 {
		t.Fatalf("expected primed usage 8, got %d", ledger.Used())
	}
	ledger.Credit(8)
	if ledger.Used() != 0 {
		t.Fatalf("credit should return bytes, used=%d", ledger.Used())
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	fast := NewNullVolume("fast")
	disk := newTestVolume(t)

	reg := NewRegistry()
	if err := reg.Add(NewLedger(fast, 0)); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if err := reg.Add(NewLedger(disk, 0)); err != nil {
		t.Fatalf("add error: %v", err)
	}
	if err := reg.Add(NewLedger(NewNullVolume("fast"), 0)); err == nil {
		t.Fatalf("duplicate volume names must be rejected")
	}

	_ = disk.SaveAs(ctx, strings.NewReader("on disk"), "obj", nil)
	obj, err := reg.Locate(ctx, "obj")
	if err != nil {
		t.Fatalf("locate error: %v", err)
	}
	if obj.VolumeName != "fs" {
		t.Fatalf("expected object on fs volume, got %s", obj.VolumeName)
	}
	if _, err := reg.Locate(ctx, "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	detached := &CacheObject{Name: "obj", VolumeName: "fs", Metadata: Metadata{MetaSize: int64(7)}}
	bound, err := reg.Resolve(detached)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if bound.Volume != disk {
		t.Fatalf("resolve bound the wrong volume")
	}
	bound.Metadata[MetaContentType] = "text/plain"
	if detached.Metadata.Has(MetaContentType) {
		t.Fatalf("resolved copy shares its metadata map with the original")
	}
	if _, err := reg.Resolve(&CacheObject{VolumeName: "ghost"}); err == nil {
		t.Fatalf("unknown volumes must not resolve")
	}
}

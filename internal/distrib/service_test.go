package distrib

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oar-dist/oar-dist/internal/cache"
	"github.com/oar-dist/oar-dist/internal/logging"
	"github.com/oar-dist/oar-dist/internal/metrics"
	"github.com/oar-dist/oar-dist/internal/restore"
	"github.com/oar-dist/oar-dist/internal/storage"
)

type fixture struct {
	svc      *Service
	disk     *cache.FilesystemVolume
	ledger   *cache.Ledger
	restorer *countingRestorer
}

func newFixture(t *testing.T, capacity int64, files map[string]string) *fixture {
	t.Helper()
	ltDir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(ltDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	store, err := storage.NewFilesystemStorage(ltDir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	disk, err := cache.NewFilesystemVolume("disk", filepath.Join(t.TempDir(), "disk"))
	if err != nil {
		t.Fatalf("open volume: %v", err)
	}
	ledger := cache.NewLedger(disk, capacity)
	reg := cache.NewRegistry()
	if err := reg.Add(ledger); err != nil {
		t.Fatalf("register volume: %v", err)
	}

	r := &countingRestorer{FileCopyRestorer: restore.NewFileCopyRestorer(store, "")}
	svc, err := New(Options{
		Storage:  store,
		Restorer: r,
		Volumes:  reg,
		Logger:   logging.Discard(),
		Metrics:  metrics.Noop{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, disk: disk, ledger: ledger, restorer: r}
}

func TestResolveHeadBag(t *testing.T) {
	f := newFixture(t, 0, map[string]string{
		"goober.mbag0_2-0":     "a",
		"goober.mbag0_3-0":     "b",
		"goober.mbag0_2-13":    "c",
		"goober.mbag0_2-3.zip": "d",
		"goober.mbag1_2-13.7z": "e",
	})
	ctx := context.Background()

	head, err := f.svc.ResolveHeadBag(ctx, "goober", "")
	if err != nil || head != "goober.mbag1_2-13.7z" {
		t.Fatalf("head = %q (%v)", head, err)
	}
	head, err = f.svc.ResolveHeadBag(ctx, "goober", "0.3")
	if err != nil || head != "goober.mbag0_3-0" {
		t.Fatalf("versioned head = %q (%v)", head, err)
	}
	if _, err := f.svc.ResolveHeadBag(ctx, "nobody", ""); !errors.Is(err, ErrNoHeadBag) {
		t.Fatalf("expected ErrNoHeadBag, got %v", err)
	}

	names, err := f.svc.ListBags(ctx, "goober")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if names[0] != "goober.mbag0_2-0" || names[len(names)-1] != "goober.mbag1_2-13.7z" {
		t.Fatalf("bags not sorted: %v", names)
	}
}

func TestEnsureCachedRestoresOnMissThenHits(t *testing.T) {
	f := newFixture(t, 0, map[string]string{"goober.mbag0_2-0.zip": "bag bytes"})
	ctx := context.Background()

	obj, err := f.svc.EnsureCached(ctx, "goober.mbag0_2-0.zip")
	if err != nil {
		t.Fatalf("ensure cached error: %v", err)
	}
	if obj.VolumeName != "disk" || obj.Size != int64(len("bag bytes")) {
		t.Fatalf("unexpected cache object %+v", obj)
	}
	if ok, _ := f.disk.Exists(ctx, "goober.mbag0_2-0.zip"); !ok {
		t.Fatalf("object should be on disk")
	}

	if obj.Checksum.IsZero() {
		t.Fatalf("restored object carries no checksum")
	}

	hit, err := f.svc.EnsureCached(ctx, "goober.mbag0_2-0.zip")
	if err != nil {
		t.Fatalf("second ensure cached error: %v", err)
	}
	if hit.Checksum != obj.Checksum {
		t.Fatalf("checksum changed between miss and hit: %+v vs %+v", obj.Checksum, hit.Checksum)
	}
	stored, err := f.disk.Get(ctx, "goober.mbag0_2-0.zip")
	if err != nil || stored.Checksum.IsZero() {
		t.Fatalf("volume lost the checksum: %+v (%v)", stored, err)
	}
	if n := f.restorer.restores.Load(); n != 1 {
		t.Fatalf("expected one restoration, got %d", n)
	}

	rc, _, err := f.svc.Read(ctx, "goober.mbag0_2-0.zip")
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "bag bytes" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestEnsureCachedMissingObject(t *testing.T) {
	f := newFixture(t, 0, map[string]string{"goober.mbag0_2-0.zip": "x"})
	ctx := context.Background()

	_, err := f.svc.EnsureCached(ctx, "missing.mbag0_1-0.zip")
	if !errors.Is(err, restore.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if ok, _ := f.disk.Exists(ctx, "missing.mbag0_1-0.zip"); ok {
		t.Fatalf("no object should be left behind")
	}
}

func TestEnsureCachedRespectsCapacity(t *testing.T) {
	f := newFixture(t, 4, map[string]string{"goober.mbag0_2-0.zip": "too big for the volume"})
	_, err := f.svc.EnsureCached(context.Background(), "goober.mbag0_2-0.zip")
	if !errors.Is(err, cache.ErrInsufficientSpace) {
		t.Fatalf("expected ErrInsufficientSpace, got %v", err)
	}
	if f.ledger.Free() != 4 {
		t.Fatalf("failed attempt must not hold capacity, free=%d", f.ledger.Free())
	}
}

func TestEnsureCachedCollapsesConcurrentCalls(t *testing.T) {
	f := newFixture(t, 0, map[string]string{"goober.mbag0_2-0.zip": strings.Repeat("z", 256*1024)})
	f.restorer.delay = 50 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	objs := make([]*cache.CacheObject, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := f.svc.EnsureCached(ctx, "goober.mbag0_2-0.zip")
			if err == nil && obj.Size != 256*1024 {
				err = errors.New("short object")
			}
			if err == nil {
				// callers own what they get back
				obj.Metadata[cache.MetaContentType] = "caller"
				objs[i] = obj
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent ensure cached error: %v", err)
		}
	}
	if n := f.restorer.restores.Load(); n != 1 {
		t.Fatalf("expected a single restoration, got %d", n)
	}
	objs[0].Metadata[cache.MetaContentType] = "first"
	for i, obj := range objs[1:] {
		if obj.Metadata[cache.MetaContentType] != "caller" {
			t.Fatalf("caller %d shares metadata with caller 0", i+1)
		}
	}
}

func TestEvict(t *testing.T) {
	f := newFixture(t, 100, map[string]string{"goober.mbag0_2-0.zip": "0123456789"})
	ctx := context.Background()

	if _, err := f.svc.EnsureCached(ctx, "goober.mbag0_2-0.zip"); err != nil {
		t.Fatalf("ensure cached error: %v", err)
	}
	if f.ledger.Used() != 10 {
		t.Fatalf("expected 10 bytes used, got %d", f.ledger.Used())
	}

	removed, err := f.svc.Evict(ctx, "goober.mbag0_2-0.zip")
	if err != nil || !removed {
		t.Fatalf("first evict = %v (%v)", removed, err)
	}
	if f.ledger.Used() != 0 {
		t.Fatalf("evict should credit the ledger, used=%d", f.ledger.Used())
	}
	removed, err = f.svc.Evict(ctx, "goober.mbag0_2-0.zip")
	if err != nil || removed {
		t.Fatalf("second evict = %v (%v)", removed, err)
	}
}

func TestEnsureCachedHonorsCallerCancellation(t *testing.T) {
	f := newFixture(t, 0, map[string]string{"goober.mbag0_2-0.zip": "slow"})
	f.restorer.delay = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.svc.EnsureCached(ctx, "goober.mbag0_2-0.zip"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// the detached restoration still completes for later callers
	obj, err := f.svc.EnsureCached(context.Background(), "goober.mbag0_2-0.zip")
	if err != nil || obj.Size != 4 {
		t.Fatalf("follow-up ensure cached = %+v (%v)", obj, err)
	}
}

func TestStateTerminal(t *testing.T) {
	a := newAttempt(logging.Discard(), "obj")
	a.advance(StateReserving)
	a.advance(StateCopying)
	a.fail(errors.New("boom"))
	a.advance(StateCached)
	if a.state != StateFailed {
		t.Fatalf("terminal state must stick, got %s", a.state)
	}
}

type countingRestorer struct {
	*restore.FileCopyRestorer
	restores atomic.Int64
	delay    time.Duration
}

func (r *countingRestorer) RestoreObject(ctx context.Context, id string, res *cache.Reservation, destName string, md cache.Metadata) (*cache.CacheObject, error) {
	r.restores.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.FileCopyRestorer.RestoreObject(ctx, id, res, destName, md)
}

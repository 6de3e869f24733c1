// Package distrib is the entry point the serving layer uses: it resolves a
// dataset's head bag and makes sure requested objects are present in a cache
// volume, restoring them from long-term storage on a miss.
package distrib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/oar-dist/oar-dist/internal/bags"
	"github.com/oar-dist/oar-dist/internal/cache"
	"github.com/oar-dist/oar-dist/internal/metrics"
	"github.com/oar-dist/oar-dist/internal/restore"
	"github.com/oar-dist/oar-dist/internal/storage"
)

// ErrNoHeadBag reports a dataset identifier without any matching bag.
var ErrNoHeadBag = errors.New("no head bag found")

const defaultRestoreTimeout = 10 * time.Minute

// Options wires a Service.
type Options struct {
	Storage        storage.LongTermStorage
	Restorer       restore.Restorer
	Volumes        *cache.Registry
	Logger         *logrus.Logger
	Metrics        metrics.Metrics
	RestoreTimeout time.Duration
}

// Service serves objects out of the cache, restoring them on demand.
type Service struct {
	store    storage.LongTermStorage
	restorer restore.Restorer
	volumes  *cache.Registry
	logger   *logrus.Logger
	metrics  metrics.Metrics
	timeout  time.Duration

	group singleflight.Group
}

// New validates opts and builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Storage == nil {
		return nil, errors.New("long-term storage is required")
	}
	if opts.Restorer == nil {
		return nil, errors.New("restorer is required")
	}
	if opts.Volumes == nil || len(opts.Volumes.Ledgers()) == 0 {
		return nil, errors.New("at least one cache volume is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	timeout := opts.RestoreTimeout
	if timeout <= 0 {
		timeout = defaultRestoreTimeout
	}
	return &Service{
		store:    opts.Storage,
		restorer: opts.Restorer,
		volumes:  opts.Volumes,
		logger:   opts.Logger,
		metrics:  m,
		timeout:  timeout,
	}, nil
}

// ListBags returns the dataset's bag names in ascending order.
func (s *Service) ListBags(ctx context.Context, identifier string) ([]string, error) {
	names, err := s.store.FindBagsFor(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoHeadBag, identifier)
		}
		return nil, err
	}
	if err := bags.SortBagNames(names); err != nil {
		return nil, err
	}
	return names, nil
}

// ResolveHeadBag returns the name of the dataset's most current bag. A
// non-empty version restricts the choice to that version.
func (s *Service) ResolveHeadBag(ctx context.Context, identifier, version string) (string, error) {
	head, err := s.store.FindHeadBagFor(ctx, identifier, version)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNoHeadBag, identifier)
		}
		return "", err
	}
	return head, nil
}

// EnsureCached returns the cached copy of objectID, restoring it first when
// no volume holds it. Concurrent calls for the same object share a single
// restoration; the restoration keeps running under its own timeout even if
// the caller that started it goes away.
func (s *Service) EnsureCached(ctx context.Context, objectID string) (*cache.CacheObject, error) {
	obj, err := s.volumes.Locate(ctx, objectID)
	if err == nil {
		s.metrics.IncCacheHit(obj.VolumeName)
		return obj, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	s.metrics.IncCacheMiss()

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(objectID, func() (interface{}, error) {
		return s.restoreOnce(detached, objectID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// 每个调用方拿到独立副本，避免共享 Metadata
		return s.volumes.Resolve(res.Val.(*cache.CacheObject))
	}
}

// Read opens a stream on objectID's cached copy, restoring it if needed.
func (s *Service) Read(ctx context.Context, objectID string) (io.ReadCloser, *cache.CacheObject, error) {
	obj, err := s.EnsureCached(ctx, objectID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := obj.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rc, obj, nil
}

// Evict removes objectID from every volume, reporting whether any copy
// existed. Freed bytes are credited back to the volume's ledger.
func (s *Service) Evict(ctx context.Context, objectID string) (bool, error) {
	var removedAny bool
	for _, ledger := range s.volumes.Ledgers() {
		vol := ledger.Volume()
		obj, err := vol.Get(ctx, objectID)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrInvalidName) {
				continue
			}
			return removedAny, err
		}
		removed, err := vol.Remove(ctx, objectID)
		if err != nil {
			return removedAny, err
		}
		if removed {
			removedAny = true
			ledger.Credit(obj.Size)
			s.logger.WithFields(logrus.Fields{
				"action":    "evict",
				"object_id": objectID,
				"volume":    vol.Name(),
				"size":      obj.Size,
			}).Info("cache_object_removed")
		}
	}
	return removedAny, nil
}

func (s *Service) restoreOnce(ctx context.Context, objectID string) (*cache.CacheObject, error) {
	// a concurrent attempt may have finished between Locate and DoChan
	if obj, err := s.volumes.Locate(ctx, objectID); err == nil {
		return obj, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	att := newAttempt(s.logger, objectID)
	obj, err := s.runAttempt(ctx, att)
	s.metrics.ObserveRestoreDuration(time.Since(att.started).Seconds())
	if err != nil {
		att.fail(err)
		s.metrics.IncRestoration(restorationStatus(err))
		return nil, err
	}
	att.succeed()
	s.metrics.IncRestoration("ok")
	return obj, nil
}

func (s *Service) runAttempt(ctx context.Context, att *attempt) (*cache.CacheObject, error) {
	id := att.objectID

	absent, err := s.restorer.DoesNotExist(ctx, id)
	if err != nil {
		return nil, &restore.RestorationError{ObjectID: id, Err: err}
	}
	if absent {
		return nil, fmt.Errorf("%w: %s", restore.ErrObjectNotFound, id)
	}

	att.advance(StateReserving)
	size, err := s.restorer.SizeOf(ctx, id)
	if err != nil {
		return nil, &restore.RestorationError{ObjectID: id, Err: err}
	}
	res, err := s.reserve(size)
	if err != nil {
		return nil, err
	}
	defer res.Release()
	att.volume = res.Volume().Name()

	att.advance(StateCopying)
	return s.restorer.RestoreObject(ctx, id, res, id, cache.Metadata{cache.MetaSize: size})
}

// reserve claims size bytes on the first volume, in registration order, with
// room for it.
func (s *Service) reserve(size int64) (*cache.Reservation, error) {
	var lastErr error
	for _, ledger := range s.volumes.Ledgers() {
		res, err := ledger.Reserve(size)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func restorationStatus(err error) string {
	switch {
	case errors.Is(err, restore.ErrObjectNotFound):
		return "not_found"
	case errors.Is(err, cache.ErrInsufficientSpace):
		return "no_space"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case cache.IsStorageVolumeError(err):
		return "volume_error"
	}
	return "failed"
}

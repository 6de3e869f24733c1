package server

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/oar-dist/oar-dist/internal/cache"
	"github.com/oar-dist/oar-dist/internal/config"
	"github.com/oar-dist/oar-dist/internal/distrib"
	"github.com/oar-dist/oar-dist/internal/metrics"
	"github.com/oar-dist/oar-dist/internal/restore"
	"github.com/oar-dist/oar-dist/internal/storage"
)

// Components groups everything Bootstrap assembles from a config.
type Components struct {
	Storage  *storage.FilesystemStorage
	Volumes  *cache.Registry
	Restorer *restore.FileCopyRestorer
	Service  *distrib.Service

	closers []io.Closer
}

// Close releases volume connections opened during bootstrap.
func (c *Components) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Bootstrap opens long-term storage and every configured cache volume, primes
// their usage ledgers and builds the distribution service.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *logrus.Logger, m metrics.Metrics) (*Components, error) {
	store, err := storage.NewFilesystemStorage(cfg.Global.LongTermStoragePath)
	if err != nil {
		return nil, fmt.Errorf("open long-term storage: %w", err)
	}

	comp := &Components{Storage: store, Volumes: cache.NewRegistry()}
	for _, vc := range cfg.Volumes {
		vol, closer, err := openVolume(ctx, vc)
		if err != nil {
			comp.Close()
			return nil, err
		}
		if closer != nil {
			comp.closers = append(comp.closers, closer)
		}
		if err := comp.Volumes.Add(cache.NewLedger(vol, vc.Capacity)); err != nil {
			comp.Close()
			return nil, err
		}
	}
	if err := comp.Volumes.Prime(ctx); err != nil {
		comp.Close()
		return nil, fmt.Errorf("measure cache volumes: %w", err)
	}

	comp.Restorer = restore.NewFileCopyRestorer(store, cfg.Global.RestorePrefix)
	svc, err := distrib.New(distrib.Options{
		Storage:        store,
		Restorer:       comp.Restorer,
		Volumes:        comp.Volumes,
		Logger:         logger,
		Metrics:        m,
		RestoreTimeout: cfg.Global.RestoreTimeout.DurationValue(),
	})
	if err != nil {
		comp.Close()
		return nil, err
	}
	comp.Service = svc

	for _, l := range comp.Volumes.Ledgers() {
		logger.WithFields(logrus.Fields{
			"action":   "volume_ready",
			"volume":   l.Volume().Name(),
			"capacity": l.Capacity(),
			"used":     l.Used(),
		}).Info("缓存卷已就绪")
	}
	return comp, nil
}

func openVolume(ctx context.Context, vc config.VolumeConfig) (cache.CacheVolume, io.Closer, error) {
	switch vc.Type {
	case config.VolumeFilesystem:
		vol, err := cache.NewFilesystemVolume(vc.Name, vc.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("volume %s: %w", vc.Name, err)
		}
		return vol, nil, nil
	case config.VolumeNull:
		return cache.NewNullVolume(vc.Name), nil, nil
	case config.VolumeRedis:
		vol, err := cache.NewRedisVolumeFromURL(ctx, vc.Name, vc.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("volume %s: %w", vc.Name, err)
		}
		return vol, vol, nil
	default:
		return nil, nil, fmt.Errorf("volume %s: unsupported type %q", vc.Name, vc.Type)
	}
}

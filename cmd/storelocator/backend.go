package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/robfig/cron"

	"github.com/kass/go-store-locator/pkg/config"
	"github.com/kass/go-store-locator/pkg/importer"
	"github.com/kass/go-store-locator/pkg/logging"
	"github.com/kass/go-store-locator/pkg/models"
	"github.com/kass/go-store-locator/pkg/postgis"
	"github.com/kass/go-store-locator/pkg/rtree"
)

// storeIndex is what both backends provide
type storeIndex interface {
	Insert(s models.Store) (models.Store, error)
	BulkInsert(stores []models.Store) (int, error)
	QueryNear(point models.GeoPoint, radius models.Distance, page models.PageRequest) (*models.Page, error)
	Nearest(point models.GeoPoint, n int) ([]models.StoreHit, error)
	Count() (int64, error)
	Stats() (map[string]interface{}, error)
	Close() error
}

type backend struct {
	index storeIndex

	// memory is set for the in-memory backend only
	memory       *rtree.GeoIndex
	snapshotPath string
	cron         *cron.Cron
}

// openBackend opens the configured index. The in-memory index is restored
// from its snapshot when one exists.
func openBackend(c *config.Config) (*backend, error) {
	log := logging.For("backend")

	switch c.Index.Backend {
	case config.BackendPostGIS:
		idx, err := postgis.Open(postgis.Options{
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
			DBName:   c.Postgres.DBName,
			SSLMode:  postgis.SSLMode(c.Postgres.SSLMode),
		}.DSN())
		if err != nil {
			return nil, err
		}
		log.WithField("host", c.Postgres.Host).Info("using postgis index")
		return &backend{index: idx}, nil

	default:
		idx := rtree.NewGeoIndexWithPartitions(c.Index.Partitions)
		b := &backend{index: idx, memory: idx, snapshotPath: c.Index.SnapshotPath}
		if b.snapshotPath == "" {
			return b, nil
		}
		if _, err := os.Stat(b.snapshotPath); err != nil {
			if os.IsNotExist(err) {
				log.WithField("path", b.snapshotPath).Info("no snapshot yet")
				return b, nil
			}
			return nil, errors.Wrap(err, "failed to stat snapshot")
		}
		n, err := idx.LoadFromFile(b.snapshotPath)
		if err != nil {
			return nil, err
		}
		log.WithField("stores", n).Info("restored index from snapshot")
		return b, nil
	}
}

// importSource runs the dataset import. With force unset it only runs
// against an empty index.
func importSource(ctx context.Context, target importer.Target, c *config.Config, location string, force bool) (importer.Result, error) {
	src, err := importer.OpenSource(ctx, location, importer.SourceOptions{
		Sheet: c.Import.Sheet,
		ObjectStore: importer.ObjectStoreOptions{
			Endpoint:  c.ObjectStore.Endpoint,
			AccessKey: c.ObjectStore.AccessKey,
			SecretKey: c.ObjectStore.SecretKey,
			UseSSL:    c.ObjectStore.UseSSL,
		},
	})
	if err != nil {
		return importer.Result{}, errors.Wrapf(err, "failed to open %s", location)
	}
	defer src.Close()

	im := importer.New(target)
	if force {
		return im.Import(src)
	}
	return im.ImportIfEmpty(src)
}

// snapshot writes the in-memory index to its snapshot path, if it has one
func (b *backend) snapshot() error {
	if b.memory == nil || b.snapshotPath == "" {
		return nil
	}
	return b.memory.SaveToFile(b.snapshotPath)
}

// scheduleSnapshots saves the in-memory index on schedule until Close
func (b *backend) scheduleSnapshots(schedule string) error {
	if b.memory == nil || b.snapshotPath == "" || schedule == "" {
		return nil
	}
	log := logging.For("snapshot")

	c := cron.New()
	err := c.AddFunc(schedule, func() {
		if err := b.snapshot(); err != nil {
			log.WithError(err).Error("scheduled snapshot failed")
			return
		}
		log.WithField("path", b.snapshotPath).Debug("snapshot written")
	})
	if err != nil {
		return errors.Wrapf(err, "invalid snapshot schedule %q", schedule)
	}
	c.Start()
	b.cron = c
	return nil
}

func (b *backend) Close() error {
	if b.cron != nil {
		b.cron.Stop()
	}
	return b.index.Close()
}

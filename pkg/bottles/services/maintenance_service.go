package services

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"github.com/onebottle/onebottle-api/pkg/bottles/repositories"
	"github.com/onebottle/onebottle-api/pkg/bottles/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	sweepBatchSize     = 500
	sweepMaxConcurrent = 4
)

// MaintenanceService removes blobs left behind by aborted submissions and
// reports store statistics.
type MaintenanceService struct {
	bottles repositories.BottleRepository
	ledger  repositories.ExposureRepository
	blobs   storage.BlobStore
	grace   time.Duration
	now     func() time.Time
}

func NewMaintenanceService(bottles repositories.BottleRepository, ledger repositories.ExposureRepository, blobs storage.BlobStore, grace time.Duration) *MaintenanceService {
	return &MaintenanceService{bottles: bottles, ledger: ledger, blobs: blobs, grace: grace, now: time.Now}
}

// SweepOrphans deletes blobs older than the grace period that no bottle
// references. The grace period must exceed the longest possible submission.
// Old blobs are walked in key order, one batch at a time, so live blobs never
// hide orphans behind them.
func (s *MaintenanceService) SweepOrphans(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.grace)
	var scanned, deleted int
	after := ""
	for {
		keys, err := s.blobs.ListOlderThan(ctx, cutoff, after, sweepBatchSize)
		if err != nil {
			return deleted, err
		}
		scanned += len(keys)
		n, err := s.sweepBatch(ctx, keys)
		deleted += n
		if err != nil {
			return deleted, err
		}
		if len(keys) < sweepBatchSize {
			break
		}
		after = keys[len(keys)-1]
	}

	log.Printf("[sweep] scanned=%d deleted=%d", scanned, deleted)
	return deleted, nil
}

func (s *MaintenanceService) sweepBatch(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	refs, err := s.bottles.ReferencedKeys(ctx, keys)
	if err != nil {
		return 0, err
	}

	var deleted atomic.Int64
	sem := semaphore.NewWeighted(sweepMaxConcurrent)
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		if refs[key] {
			continue
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := s.blobs.Delete(gctx, key); err != nil {
				return err
			}
			deleted.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(deleted.Load()), err
}

func (s *MaintenanceService) Stats(ctx context.Context) (*models.Stats, error) {
	day := s.now().UTC().Format(models.DayLayout)
	bottles, err := s.bottles.Count(ctx)
	if err != nil {
		return nil, err
	}
	exposures, err := s.ledger.CountAllForDay(ctx, day)
	if err != nil {
		return nil, err
	}
	blobs, err := s.blobs.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Stats{Bottles: bottles, ExposuresToday: exposures, Blobs: blobs, Day: day}, nil
}

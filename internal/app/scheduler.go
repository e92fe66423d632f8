package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"aparthotel/internal/domain"
)

// SyncScheduler syncs every active integration, a bounded number at a time.
// One broken feed never stops the others.
type SyncScheduler struct {
	engine  *SyncEngine
	repo    domain.Repository
	workers int64
}

func NewSyncScheduler(engine *SyncEngine, repo domain.Repository, workers int) *SyncScheduler {
	if workers <= 0 {
		workers = 4
	}
	return &SyncScheduler{engine: engine, repo: repo, workers: int64(workers)}
}

type RunSummary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

func (s *SyncScheduler) RunOnce(ctx context.Context) (RunSummary, error) {
	list, err := s.repo.ListIntegrations(ctx, true)
	if err != nil {
		return RunSummary{}, err
	}
	sem := semaphore.NewWeighted(s.workers)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sum RunSummary
	)
	for _, in := range list {
		// acquire before launching; release inside the goroutine
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(in domain.ChannelIntegration) {
			defer wg.Done()
			defer sem.Release(1)

			_, err := s.engine.Sync(ctx, in.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sum.Succeeded++
			case errors.Is(err, domain.ErrSyncInProgress), errors.Is(err, domain.ErrInactive),
				errors.Is(err, domain.ErrIntegrationChanged):
				sum.Skipped++
			default:
				sum.Failed++
			}
		}(in)
	}
	wg.Wait()
	log.Info().Int("ok", sum.Succeeded).Int("failed", sum.Failed).Int("skipped", sum.Skipped).Msg("sync round completed")
	return sum, ctx.Err()
}

// Run syncs immediately, then every interval until ctx is done.
func (s *SyncScheduler) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("sync round failed")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("sync round failed")
			}
		case <-ctx.Done():
			log.Info().Msg("sync scheduler stopped")
			return
		}
	}
}

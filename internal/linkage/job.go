// Package linkage repairs detections left without a location id, in
// bounded batches so the data store is never saturated by one run.
package linkage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// BatchLinker applies one bounded repair batch and reports rows updated.
type BatchLinker interface {
	LinkLocationsBatch(ctx context.Context, batchSize int) (int64, error)
	CountUnlinked(ctx context.Context) (int64, error)
}

type Job struct {
	linker        BatchLinker
	batchSize     int
	maxIterations int
	pause         time.Duration
	log           zerolog.Logger
}

func NewJob(linker BatchLinker, batchSize, maxIterations int, pause time.Duration, log zerolog.Logger) *Job {
	return &Job{
		linker:        linker,
		batchSize:     batchSize,
		maxIterations: maxIterations,
		pause:         pause,
		log:           log,
	}
}

// Run drains the unlinked backlog batch by batch until a batch comes back
// short, the iteration cap is reached, or an error aborts this run. The
// select-and-repair step is idempotent, so the next scheduled run safely
// retries whatever is left.
func (j *Job) Run(ctx context.Context) error {
	started := time.Now()
	var total int64

	for i := 0; i < j.maxIterations; i++ {
		// The timed pause below races ctx.Done when the pause is zero, so
		// cancellation is checked explicitly each iteration.
		if err := ctx.Err(); err != nil {
			return err
		}

		affected, err := j.linker.LinkLocationsBatch(ctx, j.batchSize)
		if err != nil {
			return fmt.Errorf("linkage batch %d: %w", i+1, err)
		}
		total += affected
		if affected < int64(j.batchSize) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(j.pause):
		}
	}

	remaining, err := j.linker.CountUnlinked(ctx)
	if err != nil {
		j.log.Warn().Err(err).Msg("could not count unlinked backlog")
		remaining = -1
	}

	evt := j.log.Info().
		Int64("linked", total).
		Dur("elapsed", time.Since(started))
	if remaining >= 0 {
		evt = evt.Int64("backlog", remaining)
	}
	evt.Msg("linkage run complete")
	return nil
}

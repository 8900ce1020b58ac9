// Package warmer recomputes read-side filter metadata ahead of demand and
// pushes it into the external cache.
package warmer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"radar-service/internal/cache"
	"radar-service/internal/config"
	"radar-service/internal/domain/radar"
)

// MetadataSource runs the distinct-value queries backing FilterMetadata.
type MetadataSource interface {
	DistinctHighways(ctx context.Context) ([]string, error)
	DistinctPlazas(ctx context.Context) ([]string, error)
	DistinctKms(ctx context.Context) ([]string, error)
	DistinctDirections(ctx context.Context) ([]string, error)
	DistinctKmsForHighway(ctx context.Context, highway string) ([]string, error)
}

// CacheStore is the write side of the external cache.
type CacheStore interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Warmer struct {
	source MetadataSource
	store  CacheStore
	cfg    config.CacheConfig
	log    zerolog.Logger

	// dispatch runs per-highway recomputations; the default is
	// fire-and-forget.
	dispatch func(fn func())
}

func New(source MetadataSource, store CacheStore, cfg config.CacheConfig, log zerolog.Logger) *Warmer {
	return &Warmer{
		source:   source,
		store:    store,
		cfg:      cfg,
		log:      log,
		dispatch: func(fn func()) { go fn() },
	}
}

// Run recomputes the aggregate FilterMetadata with four concurrent
// distinct-value queries, stores it under one key, then dispatches a
// per-highway km recomputation for every highway found, without waiting
// for them.
func (w *Warmer) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.WarmupTimeout)
	defer cancel()

	var meta radar.FilterMetadata
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		meta.Highways, err = w.source.DistinctHighways(gctx)
		return err
	})
	g.Go(func() (err error) {
		meta.Plazas, err = w.source.DistinctPlazas(gctx)
		return err
	})
	g.Go(func() (err error) {
		meta.Kms, err = w.source.DistinctKms(gctx)
		return err
	})
	g.Go(func() (err error) {
		meta.Directions, err = w.source.DistinctDirections(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("recompute filter metadata: %w", err)
	}

	if err := w.store.SetJSON(ctx, cache.KeyFilterOptions, meta, w.cfg.FilterOptionsTTL); err != nil {
		return err
	}
	w.log.Info().
		Int("highways", len(meta.Highways)).
		Int("plazas", len(meta.Plazas)).
		Int("kms", len(meta.Kms)).
		Int("directions", len(meta.Directions)).
		Msg("filter metadata warmed")

	for _, highway := range meta.Highways {
		highway := highway
		w.dispatch(func() { w.warmHighwayKms(highway) })
	}
	return nil
}

// warmHighwayKms recomputes one highway's km list on its own deadline,
// detached from the warmup run that dispatched it.
func (w *Warmer) warmHighwayKms(highway string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WarmupTimeout)
	defer cancel()

	kms, err := w.source.DistinctKmsForHighway(ctx, highway)
	if err != nil {
		w.log.Warn().Err(err).Str("highway", highway).Msg("highway km warmup failed")
		return
	}
	if err := w.store.SetJSON(ctx, cache.HighwayKmsKey(highway), kms, w.cfg.HighwayKmsTTL); err != nil {
		w.log.Warn().Err(err).Str("highway", highway).Msg("highway km cache write failed")
	}
}

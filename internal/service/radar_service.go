package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"radar-service/internal/cache"
	"radar-service/internal/config"
	"radar-service/internal/domain/radar"
	"radar-service/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// DetectionReader is the read-side repository surface.
type DetectionReader interface {
	FindWithFilters(ctx context.Context, f radar.DetectionFilter, page, size int) (radar.Page, error)
	SaveBatch(ctx context.Context, detections []radar.Detection) ([]radar.Detection, error)
	DistinctHighways(ctx context.Context) ([]string, error)
	DistinctPlazas(ctx context.Context) ([]string, error)
	DistinctKms(ctx context.Context) ([]string, error)
	DistinctDirections(ctx context.Context) ([]string, error)
	DistinctKmsForHighway(ctx context.Context, highway string) ([]string, error)
}

// LocationReader lists the location reference set.
type LocationReader interface {
	FindAll(ctx context.Context) ([]radar.Location, error)
}

// CacheStore is the cache-aside surface.
type CacheStore interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type RadarService struct {
	detections DetectionReader
	locations  LocationReader
	cache      CacheStore
	cfg        config.CacheConfig
	log        zerolog.Logger
}

func NewRadarService(detections DetectionReader, locations LocationReader, cacheStore CacheStore, cfg config.CacheConfig, log zerolog.Logger) *RadarService {
	return &RadarService{
		detections: detections,
		locations:  locations,
		cache:      cacheStore,
		cfg:        cfg,
		log:        log,
	}
}

// QueryParams are the raw read-API filter parameters before normalization.
type QueryParams struct {
	Plate     string
	Plaza     string
	Highway   string
	Km        string
	Direction string
	Date      string
	TimeStart string
	TimeEnd   string
	Page      int
	Size      int
}

// QueryWithFilters normalizes the parameters into a typed filter and runs
// the paginated detection query.
func (s *RadarService) QueryWithFilters(ctx context.Context, p QueryParams) (radar.Page, error) {
	filter := radar.DetectionFilter{}

	if v := utils.NormalizePlate(p.Plate); v != "" {
		filter.Plate = &v
	}
	if v := strings.TrimSpace(p.Plaza); v != "" {
		filter.Plaza = &v
	}
	if v := utils.NormalizeKey(p.Highway); v != "" {
		filter.Highway = &v
	}
	if v := strings.TrimSpace(p.Km); v != "" {
		filter.Km = &v
	}
	if v := radar.NormalizeDirection(p.Direction); strings.TrimSpace(p.Direction) != "" {
		filter.Direction = &v
	}
	if p.Date != "" {
		d, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return radar.Page{}, fmt.Errorf("%w: invalid date format", ErrInvalidInput)
		}
		filter.Date = &d
	}
	if p.TimeStart != "" {
		if err := validateClock(p.TimeStart); err != nil {
			return radar.Page{}, fmt.Errorf("%w: invalid start time", ErrInvalidInput)
		}
		filter.TimeStart = &p.TimeStart
	}
	if p.TimeEnd != "" {
		if err := validateClock(p.TimeEnd); err != nil {
			return radar.Page{}, fmt.Errorf("%w: invalid end time", ErrInvalidInput)
		}
		filter.TimeEnd = &p.TimeEnd
	}

	page := p.Page
	if page < 0 {
		page = 0
	}
	size := p.Size
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	return s.detections.FindWithFilters(ctx, filter, page, size)
}

func validateClock(v string) error {
	_, err := time.Parse("15:04:05", v)
	return err
}

// SubmitBatch persists an externally supplied detection batch after
// validating each record.
func (s *RadarService) SubmitBatch(ctx context.Context, detections []radar.Detection) ([]radar.Detection, error) {
	if len(detections) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	for i := range detections {
		d := &detections[i]
		d.Plate = utils.NormalizePlate(d.Plate)
		if d.Plate == "" {
			return nil, fmt.Errorf("%w: record %d has no usable plate", ErrInvalidInput, i)
		}
		if d.Date.IsZero() {
			return nil, fmt.Errorf("%w: record %d has no date", ErrInvalidInput, i)
		}
		if err := validateClock(strings.SplitN(d.Time, ".", 2)[0]); err != nil {
			return nil, fmt.Errorf("%w: record %d has a bad time", ErrInvalidInput, i)
		}
		d.Direction = radar.NormalizeDirection(d.Direction)
	}
	return s.detections.SaveBatch(ctx, detections)
}

// GetFilterMetadata serves the warmed aggregate, falling back to a direct
// recomputation that repopulates the cache on a miss.
func (s *RadarService) GetFilterMetadata(ctx context.Context) (radar.FilterMetadata, error) {
	var meta radar.FilterMetadata
	hit, err := s.cache.GetJSON(ctx, cache.KeyFilterOptions, &meta)
	if err != nil {
		s.log.Warn().Err(err).Msg("filter metadata cache read failed, recomputing")
	}
	if hit {
		return meta, nil
	}

	if meta.Highways, err = s.detections.DistinctHighways(ctx); err != nil {
		return radar.FilterMetadata{}, fmt.Errorf("distinct highways: %w", err)
	}
	if meta.Plazas, err = s.detections.DistinctPlazas(ctx); err != nil {
		return radar.FilterMetadata{}, fmt.Errorf("distinct plazas: %w", err)
	}
	if meta.Kms, err = s.detections.DistinctKms(ctx); err != nil {
		return radar.FilterMetadata{}, fmt.Errorf("distinct kms: %w", err)
	}
	if meta.Directions, err = s.detections.DistinctDirections(ctx); err != nil {
		return radar.FilterMetadata{}, fmt.Errorf("distinct directions: %w", err)
	}

	if err := s.cache.SetJSON(ctx, cache.KeyFilterOptions, meta, s.cfg.FilterOptionsTTL); err != nil {
		s.log.Warn().Err(err).Msg("filter metadata cache write failed")
	}
	return meta, nil
}

// GetKmsForHighway serves one highway's km list, cache-aside.
func (s *RadarService) GetKmsForHighway(ctx context.Context, highway string) ([]string, error) {
	highway = utils.NormalizeKey(highway)
	if highway == "" {
		return nil, fmt.Errorf("%w: highway is required", ErrInvalidInput)
	}

	var kms []string
	hit, err := s.cache.GetJSON(ctx, cache.HighwayKmsKey(highway), &kms)
	if err != nil {
		s.log.Warn().Err(err).Str("highway", highway).Msg("highway kms cache read failed, recomputing")
	}
	if hit {
		return kms, nil
	}

	kms, err = s.detections.DistinctKmsForHighway(ctx, highway)
	if err != nil {
		return nil, fmt.Errorf("distinct kms for %s: %w", highway, err)
	}
	if err := s.cache.SetJSON(ctx, cache.HighwayKmsKey(highway), kms, s.cfg.HighwayKmsTTL); err != nil {
		s.log.Warn().Err(err).Str("highway", highway).Msg("highway kms cache write failed")
	}
	return kms, nil
}

// ListAllLocations serves the location reference set, cache-aside with the
// long TTL the map view tolerates.
func (s *RadarService) ListAllLocations(ctx context.Context) ([]radar.Location, error) {
	var locations []radar.Location
	hit, err := s.cache.GetJSON(ctx, cache.KeyAllLocations, &locations)
	if err != nil {
		s.log.Warn().Err(err).Msg("locations cache read failed, recomputing")
	}
	if hit {
		return locations, nil
	}

	locations, err = s.locations.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	if err := s.cache.SetJSON(ctx, cache.KeyAllLocations, locations, s.cfg.LocationsTTL); err != nil {
		s.log.Warn().Err(err).Msg("locations cache write failed")
	}
	return locations, nil
}

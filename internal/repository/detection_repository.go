package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"radar-service/internal/domain/radar"
)

type DetectionRepository struct {
	db *gorm.DB
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

type Detection struct {
	ID         int64          `gorm:"primaryKey"`
	Date       datatypes.Date `gorm:"not null"`
	Time       string         `gorm:"not null"`
	Plate      string         `gorm:"not null"`
	Plaza      string
	Highway    string
	Km         string
	Direction  string
	LocationID *int64
	CreatedAt  time.Time
}

func (Detection) TableName() string { return "detections" }

func toModel(d radar.Detection) Detection {
	return Detection{
		ID:         d.ID,
		Date:       datatypes.Date(d.Date),
		Time:       d.Time,
		Plate:      d.Plate,
		Plaza:      d.Plaza,
		Highway:    d.Highway,
		Km:         d.Km,
		Direction:  d.Direction,
		LocationID: d.LocationID,
	}
}

func toDomain(m Detection) radar.Detection {
	return radar.Detection{
		ID:         m.ID,
		Date:       time.Time(m.Date),
		Time:       m.Time,
		Plate:      m.Plate,
		Plaza:      m.Plaza,
		Highway:    m.Highway,
		Km:         m.Km,
		Direction:  m.Direction,
		LocationID: m.LocationID,
	}
}

// SaveBatch persists one ingestion cycle's detections in a single
// transaction and returns them with assigned ids.
func (r *DetectionRepository) SaveBatch(ctx context.Context, detections []radar.Detection) ([]radar.Detection, error) {
	if len(detections) == 0 {
		return nil, nil
	}

	models := make([]Detection, 0, len(detections))
	for _, d := range detections {
		models = append(models, toModel(d))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&models, 500).Error
	})
	if err != nil {
		return nil, err
	}

	saved := make([]radar.Detection, 0, len(models))
	for _, m := range models {
		saved = append(saved, toDomain(m))
	}
	return saved, nil
}

// linkBatchSQL repairs location links for one bounded batch of unlinked
// detections. Highway and km are compared punctuation-stripped and
// case-folded; km keeps only the segment before its "+" continuation
// separator. The id subquery applies the same join, so every selected row
// updates and a short batch means the matchable backlog is drained.
// Unmatchable rows stay NULL and are never selected, so they cannot pin
// the batch window in front of matchable rows with higher ids.
const linkBatchSQL = `
UPDATE detections AS d
SET location_id = l.id
FROM locations AS l
WHERE d.id IN (
	SELECT DISTINCT d2.id
	FROM detections AS d2
	JOIN locations AS l2
	  ON regexp_replace(UPPER(TRIM(d2.highway)), '[^A-Z0-9]', '', 'g') =
	     regexp_replace(UPPER(TRIM(l2.highway)), '[^A-Z0-9]', '', 'g')
	 AND regexp_replace(UPPER(TRIM(split_part(d2.km, '+', 1))), '[^A-Z0-9]', '', 'g') =
	     regexp_replace(UPPER(TRIM(split_part(l2.km, '+', 1))), '[^A-Z0-9]', '', 'g')
	WHERE d2.location_id IS NULL
	ORDER BY d2.id
	LIMIT ?
)
AND d.location_id IS NULL
AND regexp_replace(UPPER(TRIM(d.highway)), '[^A-Z0-9]', '', 'g') =
    regexp_replace(UPPER(TRIM(l.highway)), '[^A-Z0-9]', '', 'g')
AND regexp_replace(UPPER(TRIM(split_part(d.km, '+', 1))), '[^A-Z0-9]', '', 'g') =
    regexp_replace(UPPER(TRIM(split_part(l.km, '+', 1))), '[^A-Z0-9]', '', 'g')
`

// LinkLocationsBatch runs one linkage batch inside its own transaction and
// reports the number of detections updated.
func (r *DetectionRepository) LinkLocationsBatch(ctx context.Context, batchSize int) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(linkBatchSQL, batchSize)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}

func (r *DetectionRepository) CountUnlinked(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Detection{}).
		Where("location_id IS NULL").
		Count(&count).Error
	return count, err
}

// historyWindow bounds every read query; older rows stay queryable only by
// the linkage job.
const historyWindow = "date >= CURRENT_DATE - INTERVAL '90 days'"

// FindWithFilters runs the read-side filter query. Nil filter fields are
// not applied.
func (r *DetectionRepository) FindWithFilters(ctx context.Context, f radar.DetectionFilter, page, size int) (radar.Page, error) {
	query := r.db.WithContext(ctx).Model(&Detection{}).Where(historyWindow)

	if f.Plate != nil {
		query = query.Where("plate ILIKE ?", "%"+*f.Plate+"%")
	}
	if f.Plaza != nil {
		query = query.Where("UPPER(plaza) LIKE UPPER(?)", "%"+*f.Plaza+"%")
	}
	if f.Highway != nil {
		query = query.Where("highway = ?", *f.Highway)
	}
	if f.Km != nil {
		query = query.Where("km = ?", *f.Km)
	}
	if f.Direction != nil {
		query = query.Where("direction = ?", *f.Direction)
	}
	if f.Date != nil {
		query = query.Where("date = ?", datatypes.Date(*f.Date))
	}
	if f.TimeStart != nil {
		query = query.Where("time >= ?", *f.TimeStart)
	}
	if f.TimeEnd != nil {
		query = query.Where("time <= ?", *f.TimeEnd)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return radar.Page{}, err
	}

	var models []Detection
	err := query.
		Order("date DESC, time DESC").
		Limit(size).
		Offset(page * size).
		Find(&models).Error
	if err != nil {
		return radar.Page{}, err
	}

	items := make([]radar.Detection, 0, len(models))
	for _, m := range models {
		items = append(items, toDomain(m))
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return radar.Page{
		Items:      items,
		Number:     page,
		Size:       size,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// distinctWindow scopes filter metadata to recent traffic.
const distinctWindow = "date >= CURRENT_DATE - INTERVAL '30 days'"

func (r *DetectionRepository) distinctColumn(ctx context.Context, column string) ([]string, error) {
	var values []string
	err := r.db.WithContext(ctx).Model(&Detection{}).
		Distinct(column).
		Where(distinctWindow).
		Where(column+" IS NOT NULL AND "+column+" <> ''").
		Order(column).
		Pluck(column, &values).Error
	return values, err
}

func (r *DetectionRepository) DistinctHighways(ctx context.Context) ([]string, error) {
	return r.distinctColumn(ctx, "highway")
}

func (r *DetectionRepository) DistinctPlazas(ctx context.Context) ([]string, error) {
	return r.distinctColumn(ctx, "plaza")
}

func (r *DetectionRepository) DistinctKms(ctx context.Context) ([]string, error) {
	return r.distinctColumn(ctx, "km")
}

func (r *DetectionRepository) DistinctDirections(ctx context.Context) ([]string, error) {
	return r.distinctColumn(ctx, "direction")
}

// DistinctKmsForHighway lists a highway's km markers in numeric order.
func (r *DetectionRepository) DistinctKmsForHighway(ctx context.Context, highway string) ([]string, error) {
	var kms []string
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT km FROM detections
		WHERE highway = ?
		AND `+distinctWindow+`
		AND km IS NOT NULL AND km <> ''
		ORDER BY km`, highway).
		Scan(&kms).Error
	if err != nil {
		return nil, err
	}
	return kms, nil
}

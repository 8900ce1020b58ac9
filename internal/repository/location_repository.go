package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"radar-service/internal/domain/radar"
)

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

type Location struct {
	ID             int64 `gorm:"primaryKey"`
	Concessionaire string
	Plaza          string `gorm:"not null"`
	Highway        string `gorm:"not null"`
	Km             string `gorm:"not null"`
	Latitude       float64
	Longitude      float64
	CreatedAt      time.Time
}

func (Location) TableName() string { return "locations" }

// FindAll returns the full location reference set. The ingestion cycle
// rebuilds its plaza snapshot from this every run.
func (r *LocationRepository) FindAll(ctx context.Context) ([]radar.Location, error) {
	var models []Location
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}

	locations := make([]radar.Location, 0, len(models))
	for _, m := range models {
		locations = append(locations, radar.Location{
			ID:             m.ID,
			Concessionaire: m.Concessionaire,
			Plaza:          m.Plaza,
			Highway:        m.Highway,
			Km:             m.Km,
			Latitude:       m.Latitude,
			Longitude:      m.Longitude,
		})
	}
	return locations, nil
}

package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id              BIGSERIAL PRIMARY KEY,
		concessionaire  TEXT,
		plaza           TEXT NOT NULL,
		highway         TEXT NOT NULL,
		km              TEXT NOT NULL,
		latitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_locations_highway_km ON locations(highway, km);`,
	`CREATE INDEX IF NOT EXISTS idx_locations_plaza ON locations(plaza);`,
	`CREATE TABLE IF NOT EXISTS detections (
		id              BIGSERIAL PRIMARY KEY,
		date            DATE NOT NULL,
		time            TIME NOT NULL,
		plate           TEXT NOT NULL,
		plaza           TEXT,
		highway         TEXT,
		km              TEXT,
		direction       TEXT,
		location_id     BIGINT REFERENCES locations(id),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_date_time ON detections(date DESC, time DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_plate ON detections(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_highway_km ON detections(highway, km);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_unlinked ON detections(id) WHERE location_id IS NULL;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

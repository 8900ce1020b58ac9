package radar

import (
	"strings"
	"time"
)

// DirectionUnidentified is the sentinel stored when a source line carries no
// usable direction token.
const DirectionUnidentified = "N/I"

// CanonicalDirections are the direction values the toll operators emit.
var CanonicalDirections = []string{"Norte", "Sul", "Leste", "Oeste"}

// NormalizeDirection maps free-form direction text onto one of the canonical
// values, falling back to the unidentified sentinel.
func NormalizeDirection(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return DirectionUnidentified
	}
	for _, d := range CanonicalDirections {
		if strings.EqualFold(d, v) {
			return d
		}
	}
	return v
}

// Detection is one parsed plate sighting. LocationID stays nil until the
// inline resolver or the linkage job attaches a location.
type Detection struct {
	ID         int64     `json:"id"`
	Date       time.Time `json:"date"`
	Time       string    `json:"time"`
	Plate      string    `json:"plate"`
	Plaza      string    `json:"plaza"`
	Highway    string    `json:"highway"`
	Km         string    `json:"km"`
	Direction  string    `json:"direction"`
	LocationID *int64    `json:"location_id,omitempty"`
}

// Timestamp combines the date and wall-clock time columns into one instant.
// The time column allows optional fractional seconds.
func (d Detection) Timestamp() (time.Time, error) {
	t, err := time.Parse("15:04:05.000", d.Time)
	if err != nil {
		t, err = time.Parse("15:04:05", d.Time)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), d.Date.Location()), nil
}

// Location is the reference record for one physical plaza/highway/km point.
// Read-only input to matching; never mutated by the ingestion core.
type Location struct {
	ID             int64   `json:"id"`
	Concessionaire string  `json:"concessionaire,omitempty"`
	Plaza          string  `json:"plaza"`
	Highway        string  `json:"highway"`
	Km             string  `json:"km"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

// FilterMetadata is the precomputed set of distinct filter values served to
// the read side from cache.
type FilterMetadata struct {
	Highways   []string `json:"highways"`
	Plazas     []string `json:"plazas"`
	Kms        []string `json:"kms"`
	Directions []string `json:"directions"`
}

// DetectionFilter is the typed filter consumed by the repository's query
// builder. Nil fields are not applied.
type DetectionFilter struct {
	Plate     *string
	Plaza     *string
	Highway   *string
	Km        *string
	Direction *string
	Date      *time.Time
	TimeStart *string
	TimeEnd   *string
}

// Page describes one page of a paginated detection query.
type Page struct {
	Items      []Detection `json:"items"`
	Number     int         `json:"number"`
	Size       int         `json:"size"`
	TotalItems int64       `json:"total_items"`
	TotalPages int         `json:"total_pages"`
}

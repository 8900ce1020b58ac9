// Package parser converts raw detection-feed lines into structured records.
// Every failure path returns a rejection value; the parser never errors to
// its caller.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"radar-service/internal/domain/radar"
	"radar-service/internal/utils"
)

// Kind discriminates parse outcomes.
type Kind int

const (
	// Parsed means the line yielded a Detection.
	Parsed Kind = iota
	// SilentSkip marks boilerplate (banners, separators, row-count
	// summaries) that is dropped without a warning.
	SilentSkip
	// WarnedSkip marks a line that looked like data but failed the grammar
	// or a field conversion. Callers log these.
	WarnedSkip
)

// Result is the discriminated outcome of parsing one line.
type Result struct {
	Kind      Kind
	Detection radar.Detection
	Reason    string
}

// Six groups: date, time, plate, plaza+direction blob, highway, km.
var linePattern = regexp.MustCompile(`^(\S+)\s+(\S+)\s+(\S+)\s+(.+?)\s+(SP\S+)\s+(KM\S+)$`)

var (
	separatorPattern = regexp.MustCompile(`^[-\s]+$`)
	rowCountPattern  = regexp.MustCompile(`^\(\d+ rows affected\)$`)
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Parse converts one raw line into a Detection or a rejection.
func Parse(line string) Result {
	trimmed := strings.TrimSpace(line)
	if isBoilerplate(line, trimmed) {
		return Result{Kind: SilentSkip}
	}

	groups := linePattern.FindStringSubmatch(trimmed)
	if groups == nil {
		return Result{Kind: WarnedSkip, Reason: "line does not match expected layout"}
	}

	date, err := time.Parse(dateLayout, groups[1])
	if err != nil {
		return Result{Kind: WarnedSkip, Reason: fmt.Sprintf("bad date %q", groups[1])}
	}
	clock, err := parseClock(groups[2])
	if err != nil {
		return Result{Kind: WarnedSkip, Reason: fmt.Sprintf("bad time %q", groups[2])}
	}

	plate := utils.NormalizePlate(groups[3])
	if plate == "" {
		return Result{Kind: WarnedSkip, Reason: "plate empty after normalization"}
	}

	plaza, direction := splitPlazaDirection(groups[4])
	km := strings.TrimSpace(strings.TrimPrefix(groups[6], "KM"))

	return Result{
		Kind: Parsed,
		Detection: radar.Detection{
			Date:      date,
			Time:      clock,
			Plate:     plate,
			Plaza:     plaza,
			Highway:   groups[5],
			Km:        km,
			Direction: direction,
		},
	}
}

// parseClock validates the time token and returns it in canonical form,
// preserving fractional seconds when present.
func parseClock(token string) (string, error) {
	base := token
	frac := ""
	if i := strings.Index(token, "."); i >= 0 {
		base = token[:i]
		frac = token[i:]
	}
	t, err := time.Parse(timeLayout, base)
	if err != nil {
		return "", err
	}
	if frac != "" {
		if len(frac) != 4 {
			return "", fmt.Errorf("unexpected fractional seconds %q", frac)
		}
		for _, r := range frac[1:] {
			if r < '0' || r > '9' {
				return "", fmt.Errorf("unexpected fractional seconds %q", frac)
			}
		}
	}
	return t.Format(timeLayout) + frac, nil
}

// splitPlazaDirection splits the combined blob: the last token is the
// direction and the rest form the plaza name. A single-token blob is a
// direction only when it names a canonical one; otherwise it is a plaza
// with no direction to extract.
func splitPlazaDirection(blob string) (plaza, direction string) {
	parts := strings.Fields(blob)
	if len(parts) <= 1 {
		token := strings.TrimSpace(blob)
		for _, d := range radar.CanonicalDirections {
			if strings.EqualFold(d, token) {
				return "", d
			}
		}
		return token, radar.DirectionUnidentified
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

func isBoilerplate(raw, trimmed string) bool {
	if trimmed == "" {
		return true
	}
	if strings.Contains(raw, "Data_Transação") {
		return true
	}
	if strings.HasPrefix(raw, "Changed database") {
		return true
	}
	if separatorPattern.MatchString(raw) {
		return true
	}
	return rowCountPattern.MatchString(trimmed)
}

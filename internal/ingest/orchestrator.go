// Package ingest drives one ingestion cycle: remote synchronization,
// parsing, inline location resolution, batch persistence, and asynchronous
// publication.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"

	"radar-service/internal/domain/radar"
	"radar-service/internal/parser"
	"radar-service/internal/utils"
)

// Synchronizer stages new remote files and returns their local paths.
// Commit marks files as fully processed; uncommitted files are handed out
// again next cycle.
type Synchronizer interface {
	Run(ctx context.Context) ([]string, error)
	Commit(paths []string) error
}

// LocationSource provides the full location reference set.
type LocationSource interface {
	FindAll(ctx context.Context) ([]radar.Location, error)
}

// DetectionStore persists one cycle's detections as a batch.
type DetectionStore interface {
	SaveBatch(ctx context.Context, detections []radar.Detection) ([]radar.Detection, error)
}

// BatchPublisher forwards a persisted batch downstream.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, detections []radar.Detection)
}

type Orchestrator struct {
	sync      Synchronizer
	locations LocationSource
	store     DetectionStore
	publisher BatchPublisher
	log       zerolog.Logger
}

func NewOrchestrator(sync Synchronizer, locations LocationSource, store DetectionStore, publisher BatchPublisher, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		sync:      sync,
		locations: locations,
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// snapshot is the per-cycle in-memory location index, keyed by normalized
// plaza. It is rebuilt fully every cycle and never shared between runs.
type snapshot map[string]int64

func (s snapshot) resolve(plaza string) *int64 {
	if id, ok := s[utils.NormalizeKey(plaza)]; ok {
		return &id
	}
	return nil
}

// RunCycle executes one full ingestion cycle. Persistence strictly
// precedes publication; the publish step runs detached so a slow channel
// does not hold the cycle's scheduler slot.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	started := time.Now()
	cycleID := uuid.NewString()[:8]
	log := o.log.With().Str("cycle", cycleID).Logger()

	files, err := o.sync.Run(ctx)
	if err != nil {
		cycleFailures.Inc()
		return fmt.Errorf("synchronize: %w", err)
	}
	if len(files) == 0 {
		log.Info().Msg("no new files, cycle done")
		return nil
	}

	snap, err := o.buildSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("location snapshot unavailable, detections will be linked later")
		snap = snapshot{}
	}

	var batch []radar.Detection
	var parsed, silent, warned int
	readable := make([]string, 0, len(files))
	for _, path := range files {
		detections, stats, err := o.parseFile(path, snap, log)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("cannot read downloaded file")
			continue
		}
		filesProcessed.Inc()
		parsed += stats.parsed
		silent += stats.silent
		warned += stats.warned
		batch = append(batch, detections...)
		readable = append(readable, path)
	}
	linesRejected.WithLabelValues("silent").Add(float64(silent))
	linesRejected.WithLabelValues("warned").Add(float64(warned))

	if len(batch) == 0 {
		o.commit(readable, log)
		log.Info().Int("files", len(files)).Msg("no valid detections in new files")
		return nil
	}

	saved, err := o.store.SaveBatch(ctx, batch)
	if err != nil {
		cycleFailures.Inc()
		return fmt.Errorf("persist batch: %w", err)
	}
	detectionsSaved.Add(float64(len(saved)))
	o.commit(readable, log)

	// Fire-and-forget: a lost publish does not affect committed data.
	go o.publisher.PublishBatch(context.WithoutCancel(ctx), saved)

	elapsed := time.Since(started)
	cycleDuration.Observe(elapsed.Seconds())
	log.Info().
		Int("files", len(files)).
		Int("parsed", parsed).
		Int("silent_skips", silent).
		Int("warned_skips", warned).
		Int("saved", len(saved)).
		Dur("elapsed", elapsed).
		Msg("ingestion cycle complete")
	return nil
}

// commit marks this cycle's files processed. A failure only means they are
// parsed again next cycle, so it never fails the cycle itself.
func (o *Orchestrator) commit(files []string, log zerolog.Logger) {
	if err := o.sync.Commit(files); err != nil {
		log.Warn().Err(err).Msg("could not mark files processed, they will be reprocessed next cycle")
	}
}

func (o *Orchestrator) buildSnapshot(ctx context.Context) (snapshot, error) {
	locations, err := o.locations.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	snap := make(snapshot, len(locations))
	for _, loc := range locations {
		if loc.Plaza == "" {
			continue
		}
		snap[utils.NormalizeKey(loc.Plaza)] = loc.ID
	}
	o.log.Debug().Int("locations", len(snap)).Msg("location snapshot rebuilt")
	return snap, nil
}

type parseStats struct {
	parsed, silent, warned int
}

// parseFile reads one downloaded file line by line. The feed is encoded
// ISO-8859-1.
func (o *Orchestrator) parseFile(path string, snap snapshot, log zerolog.Logger) ([]radar.Detection, parseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, parseStats{}, err
	}
	defer f.Close()

	var detections []radar.Detection
	var stats parseStats

	scanner := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(f))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		result := parser.Parse(scanner.Text())
		switch result.Kind {
		case parser.Parsed:
			d := result.Detection
			d.LocationID = snap.resolve(d.Plaza)
			detections = append(detections, d)
			stats.parsed++
		case parser.SilentSkip:
			stats.silent++
		case parser.WarnedSkip:
			log.Warn().Str("file", path).Str("reason", result.Reason).Msg("line skipped")
			stats.warned++
		}
	}
	if err := scanner.Err(); err != nil {
		return detections, stats, err
	}
	return detections, stats, nil
}

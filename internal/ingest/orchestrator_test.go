package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"radar-service/internal/domain/radar"
)

type fakeSync struct {
	paths     []string
	err       error
	committed []string
}

func (f *fakeSync) Run(context.Context) ([]string, error) { return f.paths, f.err }

func (f *fakeSync) Commit(paths []string) error {
	f.committed = append(f.committed, paths...)
	return nil
}

type fakeLocations struct {
	locations []radar.Location
	err       error
}

func (f *fakeLocations) FindAll(context.Context) ([]radar.Location, error) {
	return f.locations, f.err
}

type fakeStore struct {
	saved []radar.Detection
	err   error
	order *eventOrder
}

func (f *fakeStore) SaveBatch(_ context.Context, detections []radar.Detection) ([]radar.Detection, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.order != nil {
		f.order.record("persist")
	}
	out := make([]radar.Detection, len(detections))
	copy(out, detections)
	for i := range out {
		out[i].ID = int64(i + 1)
	}
	f.saved = out
	return out, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	received []radar.Detection
	done     chan struct{}
	order    *eventOrder
}

func (f *fakePublisher) PublishBatch(_ context.Context, detections []radar.Detection) {
	f.mu.Lock()
	f.received = detections
	f.mu.Unlock()
	if f.order != nil {
		f.order.record("publish")
	}
	if f.done != nil {
		close(f.done)
	}
}

type eventOrder struct {
	mu     sync.Mutex
	events []string
}

func (o *eventOrder) record(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, name)
}

// writeFeedFile encodes the fixture as ISO-8859-1, the feed's wire
// encoding expected by parseFile.
func writeFeedFile(t *testing.T, lines string) string {
	t.Helper()
	encoded, err := charmap.ISO8859_1.NewEncoder().String(lines)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "radars_06-06-2025.txt")
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0o644))
	return path
}

func TestRunCycleResolvesLocationsCaseInsensitively(t *testing.T) {
	path := writeFeedFile(t,
		"2025-06-06 14:30:00 ABC1234  praça sul  Norte SP-330 KM145\n")

	store := &fakeStore{}
	pub := &fakePublisher{done: make(chan struct{})}
	syn := &fakeSync{paths: []string{path}}
	o := NewOrchestrator(
		syn,
		&fakeLocations{locations: []radar.Location{
			{ID: 5, Plaza: "Praça Sul", Highway: "SP-330", Km: "145"},
		}},
		store, pub, zerolog.Nop())

	require.NoError(t, o.RunCycle(context.Background()))
	require.Len(t, store.saved, 1)
	require.NotNil(t, store.saved[0].LocationID)
	assert.Equal(t, int64(5), *store.saved[0].LocationID)
	assert.Equal(t, []string{path}, syn.committed)

	<-pub.done
	assert.Len(t, pub.received, 1)
}

func TestRunCycleLeavesUnmatchedDetectionsUnlinked(t *testing.T) {
	path := writeFeedFile(t,
		"2025-06-06 14:30:00 ABC1234 Praça Desconhecida Sul SP-330 KM145\n")

	store := &fakeStore{}
	o := NewOrchestrator(
		&fakeSync{paths: []string{path}},
		&fakeLocations{},
		store, &fakePublisher{done: make(chan struct{})}, zerolog.Nop())

	require.NoError(t, o.RunCycle(context.Background()))
	require.Len(t, store.saved, 1)
	assert.Nil(t, store.saved[0].LocationID)
}

func TestRunCyclePersistsBeforePublishing(t *testing.T) {
	path := writeFeedFile(t,
		"2025-06-06 14:30:00 ABC1234 Praça Sul Norte SP-330 KM145\n")

	order := &eventOrder{}
	pub := &fakePublisher{done: make(chan struct{}), order: order}
	o := NewOrchestrator(
		&fakeSync{paths: []string{path}},
		&fakeLocations{},
		&fakeStore{order: order}, pub, zerolog.Nop())

	require.NoError(t, o.RunCycle(context.Background()))
	<-pub.done
	require.Equal(t, []string{"persist", "publish"}, order.events)
}

func TestRunCycleSkipsBoilerplateAndBadLines(t *testing.T) {
	path := writeFeedFile(t,
		"Data_Transação Hora Placa\n"+
			"---------- ----------\n"+
			"2025-06-06 14:30:00 ABC1234 Praça Sul Norte SP-330 KM145\n"+
			"this line is garbage\n"+
			"(2 rows affected)\n")

	store := &fakeStore{}
	o := NewOrchestrator(
		&fakeSync{paths: []string{path}},
		&fakeLocations{},
		store, &fakePublisher{done: make(chan struct{})}, zerolog.Nop())

	require.NoError(t, o.RunCycle(context.Background()))
	require.Len(t, store.saved, 1)
	assert.Equal(t, "ABC1234", store.saved[0].Plate)
}

func TestRunCycleAbortsOnSyncFailure(t *testing.T) {
	o := NewOrchestrator(
		&fakeSync{err: errors.New("530 login incorrect")},
		&fakeLocations{},
		&fakeStore{}, &fakePublisher{}, zerolog.Nop())

	err := o.RunCycle(context.Background())
	require.Error(t, err)
}

func TestRunCycleAbortsOnPersistenceFailure(t *testing.T) {
	path := writeFeedFile(t,
		"2025-06-06 14:30:00 ABC1234 Praça Sul Norte SP-330 KM145\n")

	syn := &fakeSync{paths: []string{path}}
	o := NewOrchestrator(
		syn,
		&fakeLocations{},
		&fakeStore{err: errors.New("deadlock detected")},
		&fakePublisher{}, zerolog.Nop())

	err := o.RunCycle(context.Background())
	require.Error(t, err)
	assert.Empty(t, syn.committed, "unpersisted files must stay staged for the next cycle")
}

func TestRunCycleNoFilesIsANoop(t *testing.T) {
	store := &fakeStore{}
	o := NewOrchestrator(&fakeSync{}, &fakeLocations{}, store, &fakePublisher{}, zerolog.Nop())

	require.NoError(t, o.RunCycle(context.Background()))
	assert.Empty(t, store.saved)
}

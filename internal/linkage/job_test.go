package linkage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedLinker struct {
	batches   []int64
	err       error
	calls     int
	unlinked  int64
	countErr  error
	batchSize []int
}

func (s *scriptedLinker) LinkLocationsBatch(_ context.Context, batchSize int) (int64, error) {
	s.batchSize = append(s.batchSize, batchSize)
	if s.err != nil {
		return 0, s.err
	}
	var affected int64
	if s.calls < len(s.batches) {
		affected = s.batches[s.calls]
	}
	s.calls++
	return affected, nil
}

func (s *scriptedLinker) CountUnlinked(context.Context) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.unlinked, nil
}

func TestRunStopsAfterShortBatch(t *testing.T) {
	linker := &scriptedLinker{batches: []int64{100, 100, 42}}
	job := NewJob(linker, 100, 50, 0, zerolog.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, linker.calls)
	assert.Equal(t, []int{100, 100, 100}, linker.batchSize)
}

func TestRunEmptyBacklogStopsImmediately(t *testing.T) {
	linker := &scriptedLinker{batches: []int64{0}}
	job := NewJob(linker, 100, 50, 0, zerolog.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, linker.calls)
}

func TestRunHonorsIterationCap(t *testing.T) {
	linker := &scriptedLinker{batches: []int64{100, 100, 100, 100, 100, 100, 100, 100}}
	job := NewJob(linker, 100, 3, 0, zerolog.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, linker.calls)
}

func TestRunAbortsOnBatchError(t *testing.T) {
	batchErr := errors.New("lock timeout")
	linker := &scriptedLinker{err: batchErr}
	job := NewJob(linker, 100, 50, 0, zerolog.Nop())

	err := job.Run(context.Background())
	require.ErrorIs(t, err, batchErr)
	assert.Len(t, linker.batchSize, 1)
}

func TestRunToleratesBacklogCountFailure(t *testing.T) {
	linker := &scriptedLinker{batches: []int64{10}, countErr: errors.New("timeout")}
	job := NewJob(linker, 100, 50, 0, zerolog.Nop())

	require.NoError(t, job.Run(context.Background()))
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	linker := &scriptedLinker{batches: []int64{100, 100}}
	job := NewJob(linker, 100, 50, 0, zerolog.Nop())

	err := job.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, linker.calls, "an already cancelled run must not touch the store")
}

// matchableLinker models the repair statement's selection rule: only rows
// with a matching location are ever selected, so a batch updates exactly
// as many rows as it selects.
type matchableLinker struct {
	matchable   int64
	unmatchable int64
	calls       int
}

func (m *matchableLinker) LinkLocationsBatch(_ context.Context, batchSize int) (int64, error) {
	m.calls++
	n := int64(batchSize)
	if m.matchable < n {
		n = m.matchable
	}
	m.matchable -= n
	return n, nil
}

func (m *matchableLinker) CountUnlinked(context.Context) (int64, error) {
	return m.matchable + m.unmatchable, nil
}

func TestRunDrainsMatchableRowsBehindUnmatchableBacklog(t *testing.T) {
	linker := &matchableLinker{matchable: 100, unmatchable: 5000}
	job := NewJob(linker, 5000, 50, 0, zerolog.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, linker.matchable, "matchable rows behind a wall of unmatchable ids must still link")
	assert.Equal(t, 1, linker.calls)
}

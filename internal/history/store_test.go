package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basisops/fundmon/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSink records inserts and can be made to fail.
type fakeSink struct {
	inserted []domain.TickRecord
	err      error
}

func (f *fakeSink) InsertTick(_ context.Context, rec domain.TickRecord) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeSink) ListTicks(context.Context, string, domain.ListOpts) ([]domain.TickRecord, error) {
	return f.inserted, nil
}

func (f *fakeSink) LastTick(context.Context, string) (domain.TickRecord, error) {
	if len(f.inserted) == 0 {
		return domain.TickRecord{}, domain.ErrNotFound
	}
	return f.inserted[len(f.inserted)-1], nil
}

func testRun() domain.Run {
	return domain.Run{
		ID:           "run-1",
		Mode:         domain.ModeBTCBasis,
		PrimaryAsset: "BTC",
		ShareClass:   "USDT",
		StartedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func record(seq int, ts time.Time) domain.TickRecord {
	return domain.TickRecord{RunID: "run-1", Seq: seq, Timestamp: ts}
}

func TestCommitSequential(t *testing.T) {
	s := NewStore(testRun(), nil, testLogger())
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Commit(context.Background(), record(0, t0)))
	require.NoError(t, s.Commit(context.Background(), record(1, t0.Add(time.Hour))))

	assert.Equal(t, 2, s.Len())
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Seq)
}

func TestCommitRejectsWrongSeq(t *testing.T) {
	s := NewStore(testRun(), nil, testLogger())
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Commit(context.Background(), record(0, t0)))

	// Duplicate seq.
	err := s.Commit(context.Background(), record(0, t0.Add(time.Hour)))
	require.Error(t, err)
	// Gap.
	err = s.Commit(context.Background(), record(2, t0.Add(time.Hour)))
	require.Error(t, err)

	// A rejected commit leaves the series untouched.
	assert.Equal(t, 1, s.Len())
}

func TestCommitRejectsNonIncreasingTimestamp(t *testing.T) {
	s := NewStore(testRun(), nil, testLogger())
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Commit(context.Background(), record(0, t0)))

	err := s.Commit(context.Background(), record(1, t0))
	require.Error(t, err)
	err = s.Commit(context.Background(), record(1, t0.Add(-time.Hour)))
	require.Error(t, err)

	assert.Equal(t, 1, s.Len())
}

func TestCommitNotifiesSinks(t *testing.T) {
	sink := &fakeSink{}
	s := NewStore(testRun(), []domain.TickStore{sink}, testLogger())
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Commit(context.Background(), record(0, t0)))
	require.Len(t, sink.inserted, 1)
	assert.Equal(t, 0, sink.inserted[0].Seq)
}

func TestCommitSinkFailureDoesNotPropagate(t *testing.T) {
	sink := &fakeSink{err: errors.New("connection refused")}
	s := NewStore(testRun(), []domain.TickStore{sink}, testLogger())
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// The in-memory series is the source of truth; the commit still counts.
	require.NoError(t, s.Commit(context.Background(), record(0, t0)))
	assert.Equal(t, 1, s.Len())
}

func TestAccessors(t *testing.T) {
	s := NewStore(testRun(), nil, testLogger())
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, ok := s.Last()
	assert.False(t, ok)
	_, ok = s.At(0)
	assert.False(t, ok)

	require.NoError(t, s.Commit(context.Background(), record(0, t0)))
	require.NoError(t, s.Commit(context.Background(), record(1, t0.Add(time.Hour))))

	rec, ok := s.At(1)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Seq)
	_, ok = s.At(2)
	assert.False(t, ok)
	_, ok = s.At(-1)
	assert.False(t, ok)

	// Records returns a copy; mutating it does not affect the store.
	records := s.Records()
	require.Len(t, records, 2)
	records[0].Seq = 99
	rec, _ = s.At(0)
	assert.Equal(t, 0, rec.Seq)

	assert.Equal(t, "run-1", s.Run().ID)
}

// Package history provides the run-scoped append-only store that owns the
// per-tick records. It is an explicit object passed to the pipeline by
// reference; there is no process-wide state.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/basisops/fundmon/internal/domain"
)

// Store holds the committed tick records of one run, in order. Appending a
// record is the single commit point of a tick: the in-memory append is
// atomic under the store's lock, and persistence sinks are notified only
// after it succeeds. Records are never mutated after commit and live until
// the store (the run) is discarded.
type Store struct {
	run    domain.Run
	sinks  []domain.TickStore
	logger *slog.Logger

	mu      sync.RWMutex
	records []domain.TickRecord
}

// NewStore creates the history store for one run. Sinks receive each
// committed record; sink failures are logged, not propagated, because the
// in-memory series remains the source of truth for the run.
func NewStore(run domain.Run, sinks []domain.TickStore, logger *slog.Logger) *Store {
	return &Store{
		run:    run,
		sinks:  sinks,
		logger: logger.With(slog.String("component", "history"), slog.String("run_id", run.ID)),
	}
}

// Run returns the run metadata this store belongs to.
func (s *Store) Run() domain.Run { return s.run }

// Commit appends rec as the next tick record. Out-of-order or duplicate
// sequence numbers are rejected: ticks are strictly increasing and tick N+1
// never begins before tick N is committed.
func (s *Store) Commit(ctx context.Context, rec domain.TickRecord) error {
	s.mu.Lock()
	if rec.Seq != len(s.records) {
		n := len(s.records)
		s.mu.Unlock()
		return fmt.Errorf("history: record seq %d, expected %d", rec.Seq, n)
	}
	if n := len(s.records); n > 0 && !rec.Timestamp.After(s.records[n-1].Timestamp) {
		last := s.records[n-1].Timestamp
		s.mu.Unlock()
		return fmt.Errorf("history: timestamp %s not after previous %s", rec.Timestamp, last)
	}
	s.records = append(s.records, rec)
	s.mu.Unlock()

	for _, sink := range s.sinks {
		if err := sink.InsertTick(ctx, rec); err != nil {
			s.logger.Warn("persistence sink failed",
				slog.Int("seq", rec.Seq),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Len returns the number of committed ticks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Last returns the most recently committed record.
func (s *Store) Last() (domain.TickRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return domain.TickRecord{}, false
	}
	return s.records[len(s.records)-1], true
}

// At returns the record at seq.
func (s *Store) At(seq int) (domain.TickRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 0 || seq >= len(s.records) {
		return domain.TickRecord{}, false
	}
	return s.records[seq], true
}

// Records returns a copy of the committed series.
func (s *Store) Records() []domain.TickRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TickRecord, len(s.records))
	copy(out, s.records)
	return out
}

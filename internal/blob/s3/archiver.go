package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basisops/fundmon/internal/domain"
	"github.com/basisops/fundmon/internal/history"
)

// multipartThreshold routes tick series past this size through the
// multipart uploader instead of one PutObject.
const multipartThreshold int64 = 16 * 1024 * 1024

// RunArchiver implements domain.Archiver by serializing a completed run's
// tick series to JSONL and uploading it to object storage. The primary
// store keeps the run; the archive is a cold copy for offline analysis.
type RunArchiver struct {
	writer domain.BlobWriter
	store  *history.Store
}

// NewRunArchiver creates a RunArchiver over the given run history.
func NewRunArchiver(writer domain.BlobWriter, store *history.Store) *RunArchiver {
	return &RunArchiver{writer: writer, store: store}
}

// ArchiveRun uploads the run's committed records as one JSONL object at
// runs/{runID}/ticks.jsonl and its run metadata at runs/{runID}/run.json.
// It returns the number of records archived.
func (a *RunArchiver) ArchiveRun(ctx context.Context, runID string) (int64, error) {
	run := a.store.Run()
	if run.ID != runID {
		return 0, fmt.Errorf("s3blob: archiver holds run %s, asked for %s", run.ID, runID)
	}

	records := a.store.Records()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: encode tick %d: %w", rec.Seq, err)
		}
	}

	ticksPath := fmt.Sprintf("runs/%s/ticks.jsonl", runID)
	if int64(buf.Len()) >= multipartThreshold {
		if err := a.writer.PutMultipart(ctx, ticksPath, &buf, 0); err != nil {
			return 0, err
		}
	} else if err := a.writer.Put(ctx, ticksPath, &buf, "application/x-ndjson"); err != nil {
		return 0, err
	}

	meta, err := json.Marshal(run)
	if err != nil {
		return 0, fmt.Errorf("s3blob: encode run meta: %w", err)
	}
	metaPath := fmt.Sprintf("runs/%s/run.json", runID)
	if err := a.writer.Put(ctx, metaPath, bytes.NewReader(meta), "application/json"); err != nil {
		return 0, err
	}

	return int64(len(records)), nil
}

// SeriesSource implements domain.SeriesSource over archived market data
// objects: one JSONL object per UTC day at {prefix}/YYYY-MM-DD.jsonl, one
// hourly snapshot per line.
type SeriesSource struct {
	reader domain.BlobReader
	prefix string
}

// NewSeriesSource creates an object-storage series source.
func NewSeriesSource(reader domain.BlobReader, prefix string) *SeriesSource {
	return &SeriesSource{reader: reader, prefix: prefix}
}

// LoadSeries reads every day object overlapping [start, end] and returns
// the contained snapshots inside the span, ordered by timestamp.
func (s *SeriesSource) LoadSeries(ctx context.Context, start, end time.Time) ([]domain.MarketDataSnapshot, error) {
	var snaps []domain.MarketDataSnapshot

	for day := start.UTC().Truncate(24 * time.Hour); !day.After(end); day = day.Add(24 * time.Hour) {
		path := fmt.Sprintf("%s/%s.jsonl", s.prefix, day.Format("2006-01-02"))
		ok, err := s.reader.Exists(ctx, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		body, err := s.reader.Get(ctx, path)
		if err != nil {
			return nil, err
		}

		dec := json.NewDecoder(body)
		for dec.More() {
			snap := domain.NewMarketDataSnapshot(time.Time{})
			if err := dec.Decode(&snap); err != nil {
				body.Close()
				return nil, fmt.Errorf("s3blob: decode snapshot in %s: %w", path, err)
			}
			ts := snap.Timestamp.UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			snaps = append(snaps, snap)
		}
		body.Close()
	}

	return snaps, nil
}

package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/polymathbot/polymath/internal/domain"
)

// Archiver moves old execution records out of Postgres into S3 as JSONL,
// partitioned by year-month. Rows are deleted from the primary store only
// after the uploaded object is confirmed to exist.
type Archiver struct {
	writer    *Writer
	reader    *Reader
	store     domain.ExecutionStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. retention is how long records stay in
// Postgres before moving to cold storage.
func NewArchiver(writer *Writer, reader *Reader, store domain.ExecutionStore, retention time.Duration, logger *slog.Logger) *Archiver {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer:    writer,
		reader:    reader,
		store:     store,
		retention: retention,
		interval:  24 * time.Hour,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run archives on a daily cadence until ctx is cancelled. It blocks.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-a.retention)
			count, err := a.ArchiveExecutions(ctx, cutoff)
			if err != nil {
				a.logger.Error("archive cycle failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.Info("archived executions",
					slog.Int64("count", count),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// ArchiveExecutions uploads every execution started before the cutoff and
// then prunes them from the store. Returns how many records moved.
func (a *Archiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions marshal: %w", err)
	}

	path := archivePath("executions", before)
	if int64(len(buf)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions upload: %w", err)
	}

	// Never prune against an upload we cannot see back.
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions verify: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("s3blob: archive executions verify: object %s missing after upload", path)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(recs)), fmt.Errorf("s3blob: archive executions prune: %w", err)
	}
	if deleted != int64(len(recs)) {
		a.logger.Warn("prune count differs from archive count",
			slog.Int64("archived", int64(len(recs))),
			slog.Int64("pruned", deleted),
		)
	}
	return int64(len(recs)), nil
}

// archivePath partitions archives by the cutoff's year-month, e.g.
// archive/executions/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nlsql/nlsql/internal/history"
	"github.com/nlsql/nlsql/internal/observability"
	"github.com/nlsql/nlsql/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

// Summary describes one uploaded history snapshot.
type Summary struct {
	RunID   string    `json:"run_id"`
	Key     string    `json:"key"`
	Entries int       `json:"entries"`
	Bytes   int64     `json:"bytes"`
	TakenAt time.Time `json:"taken_at"`
}

// Service snapshots the history store into the object store.
type Service struct {
	History     *history.Store
	ObjectStore storage.ObjectStore
	Prefix      string
	Interval    time.Duration
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Run exports on every interval tick until ctx is cancelled. A zero interval
// disables the loop.
func (s *Service) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := s.RunOnce(ctx); err != nil && s.Logger != nil {
			s.Logger.ErrorContext(ctx, "history export failed", slog.Any("error", err))
		}
	}
}

func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	summary, err := s.runOnce(ctx)
	observability.ObserveHistoryExport(err)
	return summary, err
}

func (s *Service) runOnce(ctx context.Context) (Summary, error) {
	if s.History == nil || s.ObjectStore == nil {
		return Summary{}, fmt.Errorf("history export is not configured")
	}
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	takenAt := clock().UTC()

	entries := s.History.Entries()
	data, err := EncodeHistoryToParquet(entries)
	if err != nil {
		return Summary{}, fmt.Errorf("encode history: %w", err)
	}
	key, err := storage.BuildHistorySnapshotPath(s.Prefix, takenAt)
	if err != nil {
		return Summary{}, fmt.Errorf("build snapshot path: %w", err)
	}
	info, err := s.ObjectStore.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType})
	if err != nil {
		return Summary{}, fmt.Errorf("upload history snapshot: %w", err)
	}

	size := info.Size
	if size <= 0 {
		size = int64(len(data))
	}
	summary := Summary{
		RunID:   uuid.NewString(),
		Key:     key,
		Entries: len(entries),
		Bytes:   size,
		TakenAt: takenAt,
	}
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "history exported",
			slog.String("run_id", summary.RunID),
			slog.String("key", summary.Key),
			slog.Int("entries", summary.Entries),
			slog.Int64("bytes", summary.Bytes),
		)
	}
	return summary, nil
}

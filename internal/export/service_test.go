package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/nlsql/nlsql/internal/history"
	"github.com/nlsql/nlsql/internal/storage"
)

func TestEncodeHistoryToParquetKeepsOrder(t *testing.T) {
	entries := []history.Entry{
		{NaturalQuery: "show all sales", SQLQuery: "SELECT * FROM sales"},
		{NaturalQuery: "total revenue", SQLQuery: "SELECT SUM(amount) FROM sales"},
	}
	data, err := EncodeHistoryToParquet(entries)
	if err != nil {
		t.Fatalf("EncodeHistoryToParquet() error = %v", err)
	}

	reader := parquet.NewGenericReader[historyRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]historyRow, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if rows[0].Position != 0 || rows[1].Position != 1 {
		t.Fatalf("positions = %d, %d", rows[0].Position, rows[1].Position)
	}
	if rows[1].NaturalQuery != "total revenue" || rows[1].SQLQuery != "SELECT SUM(amount) FROM sales" {
		t.Fatalf("row = %+v", rows[1])
	}
}

func TestEncodeHistoryToParquetRejectsEmpty(t *testing.T) {
	if _, err := EncodeHistoryToParquet(nil); err == nil {
		t.Fatal("expected error for empty history")
	}
}

func TestRunOnceUploadsSnapshot(t *testing.T) {
	store, err := history.NewSeededStore()
	if err != nil {
		t.Fatalf("NewSeededStore() error = %v", err)
	}
	objects := &fakeObjectStore{}
	service := &Service{
		History:     store,
		ObjectStore: objects,
		Clock: func() time.Time {
			return time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
		},
	}

	summary, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	wantKey := "history/date=2026-03-02/history-1772438400000.parquet"
	if summary.Key != wantKey {
		t.Fatalf("Key = %q, want %q", summary.Key, wantKey)
	}
	if summary.Entries != store.Len() {
		t.Fatalf("Entries = %d, want %d", summary.Entries, store.Len())
	}
	if summary.Bytes <= 0 || summary.RunID == "" {
		t.Fatalf("summary = %+v", summary)
	}
	if len(objects.puts) != 1 || objects.puts[0].key != wantKey {
		t.Fatalf("puts = %+v", objects.puts)
	}
	if objects.puts[0].contentType != parquetContentType {
		t.Fatalf("content type = %q", objects.puts[0].contentType)
	}
	if int64(len(objects.puts[0].data)) != summary.Bytes {
		t.Fatalf("uploaded %d bytes, summary says %d", len(objects.puts[0].data), summary.Bytes)
	}
}

func TestRunOncePropagatesUploadError(t *testing.T) {
	store, _ := history.NewSeededStore()
	service := &Service{History: store, ObjectStore: &fakeObjectStore{err: errors.New("bucket gone")}}
	if _, err := service.RunOnce(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestRunOnceRequiresCollaborators(t *testing.T) {
	if _, err := (&Service{}).RunOnce(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestRunExportsOnTickAndStops(t *testing.T) {
	store, _ := history.NewSeededStore()
	objects := &fakeObjectStore{uploaded: make(chan struct{}, 1)}
	service := &Service{History: store, ObjectStore: objects, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	select {
	case <-objects.uploaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for export")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunWithZeroIntervalReturnsImmediately(t *testing.T) {
	if err := (&Service{}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

type putCall struct {
	key         string
	contentType string
	data        []byte
}

type fakeObjectStore struct {
	mu       sync.Mutex
	puts     []putCall
	err      error
	uploaded chan struct{}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if f.err != nil {
		return storage.ObjectInfo{}, f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.mu.Lock()
	f.puts = append(f.puts, putCall{key: key, contentType: opts.ContentType, data: data})
	f.mu.Unlock()
	if f.uploaded != nil {
		select {
		case f.uploaded <- struct{}{}:
		default:
		}
	}
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

package storage

import (
	"testing"
	"time"
)

func TestBuildHistorySnapshotPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 23, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := BuildHistorySnapshotPath("", ts)
	if err != nil {
		t.Fatalf("BuildHistorySnapshotPath() error = %v", err)
	}
	want := "history/date=2026-02-20/history-1771560300000.parquet"
	if key != want {
		t.Fatalf("BuildHistorySnapshotPath() = %q, want %q", key, want)
	}
}

func TestBuildHistorySnapshotPathCustomPrefix(t *testing.T) {
	ts := time.UnixMilli(1700000000123).UTC()
	key, err := BuildHistorySnapshotPath("snapshots", ts)
	if err != nil {
		t.Fatalf("BuildHistorySnapshotPath() error = %v", err)
	}
	if key != "snapshots/date=2023-11-14/history-1700000000123.parquet" {
		t.Fatalf("key = %q", key)
	}
}

func TestBuildHistorySnapshotPathRejectsInvalidPrefix(t *testing.T) {
	if _, err := BuildHistorySnapshotPath("../oops", time.Now()); err == nil {
		t.Fatal("expected invalid prefix error")
	}
}

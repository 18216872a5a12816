package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const DefaultHistoryPrefix = "history"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildHistorySnapshotPath returns the object key for a history snapshot taken
// at the given instant, partitioned by UTC date.
func BuildHistorySnapshotPath(prefix string, takenAt time.Time) (string, error) {
	if prefix == "" {
		prefix = DefaultHistoryPrefix
	}
	if !pathComponentPattern.MatchString(prefix) {
		return "", fmt.Errorf("invalid snapshot prefix: %q", prefix)
	}
	ts := takenAt.UTC()
	return path.Join(
		prefix,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("history-%d.parquet", ts.UnixMilli()),
	), nil
}

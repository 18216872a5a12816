package export

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/nlsql/nlsql/internal/history"
)

type historyRow struct {
	Position     int64  `parquet:"position"`
	NaturalQuery string `parquet:"natural_query"`
	SQLQuery     string `parquet:"sql_query"`
}

// EncodeHistoryToParquet writes entries as parquet rows, keeping their lookup
// order in the position column.
func EncodeHistoryToParquet(entries []history.Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("history entries are required")
	}

	rows := make([]historyRow, 0, len(entries))
	for i, entry := range entries {
		rows = append(rows, historyRow{
			Position:     int64(i),
			NaturalQuery: entry.NaturalQuery,
			SQLQuery:     entry.SQLQuery,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[historyRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

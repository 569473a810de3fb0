package columnar

import (
	"context"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
)

// TableStats describes a dataset, not a particular scan of it.
type TableStats struct {
	Version     uint64
	RowCount    uint64
	ColumnCount uint32
}

// StatsSource is the dataset-level metadata a TableStats is read from.
type StatsSource interface {
	Schema() *arrow.Schema
	Version() uint64
	CountRows(ctx context.Context) (uint64, error)
}

// ReadStats reads the current version, the full unfiltered row count and the
// schema field count of src.
func ReadStats(ctx context.Context, src StatsSource) (TableStats, error) {
	if src == nil {
		return TableStats{}, fmt.Errorf("stats source is required")
	}
	rows, err := src.CountRows(ctx)
	if err != nil {
		return TableStats{}, fmt.Errorf("count rows: %w", err)
	}
	var columns uint32
	if schema := src.Schema(); schema != nil {
		columns = uint32(schema.NumFields())
	}
	return TableStats{
		Version:     src.Version(),
		RowCount:    rows,
		ColumnCount: columns,
	}, nil
}

// HostRow returns the stats as signed host integers, saturating values that do
// not fit.
func (s TableStats) HostRow() (version int64, rowCount int64, columnCount int32) {
	return saturateInt64(s.Version), saturateInt64(s.RowCount), int32(min(s.ColumnCount, math.MaxInt32))
}

func saturateInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

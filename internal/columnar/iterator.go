package columnar

import "github.com/apache/arrow-go/v18/arrow"

// RowRef addresses one row of one batch.
type RowRef struct {
	Batch arrow.Record
	Row   int
}

// RowIterator walks batches in order and rows in order within each batch,
// stopping once limit rows were produced. It is single pass; empty batches are
// skipped without counting against the limit.
type RowIterator struct {
	batches []arrow.Record
	limit   int64
	bounded bool

	batch   int
	row     int
	emitted int64
	current RowRef
	done    bool
}

// NewRowIterator returns an iterator over batches. A nil limit exhausts every
// batch; a limit <= 0 produces no rows.
func NewRowIterator(batches []arrow.Record, limit *int64) *RowIterator {
	it := &RowIterator{batches: batches}
	if limit != nil {
		it.bounded = true
		it.limit = *limit
	}
	return it
}

func (it *RowIterator) Next() bool {
	if it.done {
		return false
	}
	if it.bounded && it.emitted >= it.limit {
		it.finish()
		return false
	}
	for it.batch < len(it.batches) {
		batch := it.batches[it.batch]
		if batch != nil && int64(it.row) < batch.NumRows() {
			it.current = RowRef{Batch: batch, Row: it.row}
			it.row++
			it.emitted++
			return true
		}
		it.batch++
		it.row = 0
	}
	it.finish()
	return false
}

// Row returns the row selected by the last successful Next.
func (it *RowIterator) Row() RowRef {
	return it.current
}

// Emitted is the number of rows produced so far.
func (it *RowIterator) Emitted() int64 {
	return it.emitted
}

func (it *RowIterator) finish() {
	it.done = true
	it.current = RowRef{}
}

// CountRows is the number of rows an iterator over batches with the given
// limit produces.
func CountRows(batches []arrow.Record, limit *int64) int64 {
	var total int64
	for _, batch := range batches {
		if batch != nil {
			total += batch.NumRows()
		}
	}
	if limit == nil {
		return total
	}
	if *limit <= 0 {
		return 0
	}
	return min(*limit, total)
}

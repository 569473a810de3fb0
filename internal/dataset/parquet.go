package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// parquetRowCount reads the row count recorded in the file footer.
func parquetRowCount(data []byte) (int64, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("open parquet: %w", err)
	}
	defer func() { _ = pf.Close() }()
	return pf.NumRows(), nil
}

func openParquet(data []byte, mem memory.Allocator, batchSize int) (*file.Reader, *pqarrow.FileReader, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open parquet: %w", err)
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(batchSize)}, mem)
	if err != nil {
		_ = pf.Close()
		return nil, nil, fmt.Errorf("open arrow reader: %w", err)
	}
	return pf, fr, nil
}

func readSchema(data []byte, mem memory.Allocator) (*arrow.Schema, error) {
	pf, fr, err := openParquet(data, mem, 1)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pf.Close() }()
	schema, err := fr.Schema()
	if err != nil {
		return nil, fmt.Errorf("read arrow schema: %w", err)
	}
	return schema, nil
}

// decodeRecords reads data into records of at most batchSize rows. It stops
// once maxRows rows were decoded; a negative maxRows reads the whole file.
// The caller owns the returned records.
func decodeRecords(ctx context.Context, data []byte, mem memory.Allocator, batchSize int, maxRows int64) ([]arrow.Record, error) {
	pf, fr, err := openParquet(data, mem, batchSize)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pf.Close() }()

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create record reader: %w", err)
	}
	defer rr.Release()

	var (
		records []arrow.Record
		decoded int64
	)
	for (maxRows < 0 || decoded < maxRows) && rr.Next() {
		rec := rr.Record()
		if rec.NumRows() == 0 {
			continue
		}
		rec.Retain()
		records = append(records, rec)
		decoded += rec.NumRows()
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		releaseAll(records)
		return nil, fmt.Errorf("decode parquet: %w", err)
	}
	return records, nil
}

// EncodeParquet writes records as one snappy compressed parquet file that
// carries the Arrow schema, so types such as fixed size lists and timezones
// survive a round trip.
func EncodeParquet(schema *arrow.Schema, records []arrow.Record) ([]byte, int64, error) {
	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, 0, fmt.Errorf("create parquet writer: %w", err)
	}
	var rows int64
	for _, rec := range records {
		if !rec.Schema().Equal(schema) {
			_ = fw.Close()
			return nil, 0, fmt.Errorf("record schema does not match dataset schema")
		}
		if err := fw.Write(rec); err != nil {
			_ = fw.Close()
			return nil, 0, fmt.Errorf("write record: %w", err)
		}
		rows += rec.NumRows()
	}
	if err := fw.Close(); err != nil {
		return nil, 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), rows, nil
}

func releaseAll(records []arrow.Record) {
	for _, rec := range records {
		if rec != nil {
			rec.Release()
		}
	}
}

package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/duckmesh/arrowscan/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type WriteMode int

const (
	// WriteAppend keeps the files of the previous version and adds new ones.
	WriteAppend WriteMode = iota
	// WriteOverwrite commits a version made only of the new files.
	WriteOverwrite
)

// ParquetFile is an encoded data file waiting to be committed.
type ParquetFile struct {
	Data        []byte
	RecordCount int64
}

// Writer commits new dataset versions. Data files are uploaded first and the
// manifest last, so readers never see a version whose files are missing.
type Writer struct {
	store storage.ObjectStore
	now   func() time.Time
}

func NewWriter(store storage.ObjectStore) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Writer{store: store, now: time.Now}, nil
}

func (w *Writer) WriteRecords(ctx context.Context, path string, schema *arrow.Schema, records []arrow.Record, mode WriteMode) (Manifest, error) {
	if schema == nil {
		return Manifest{}, newError("write", path, ErrInternal, fmt.Errorf("schema is required"))
	}
	data, rows, err := EncodeParquet(schema, records)
	if err != nil {
		return Manifest{}, newError("write", path, ErrInternal, err)
	}
	return w.CommitFiles(ctx, path, []ParquetFile{{Data: data, RecordCount: rows}}, mode)
}

func (w *Writer) CommitFiles(ctx context.Context, path string, files []ParquetFile, mode WriteMode) (Manifest, error) {
	cleaned, err := storage.CleanDatasetPath(path)
	if err != nil {
		return Manifest{}, newError("commit", path, ErrInternal, err)
	}
	if len(files) == 0 {
		return Manifest{}, newError("commit", cleaned, ErrInternal, fmt.Errorf("at least one file is required"))
	}
	// Stats and limit pushdown trust manifest record counts.
	for i, f := range files {
		rows, err := parquetRowCount(f.Data)
		if err != nil {
			return Manifest{}, newError("commit", cleaned, ErrInternal, fmt.Errorf("file %d: %w", i, err))
		}
		if rows != f.RecordCount {
			return Manifest{}, newError("commit", cleaned, ErrInternal,
				fmt.Errorf("file %d: record count %d does not match parquet footer row count %d", i, f.RecordCount, rows))
		}
	}

	previous, err := loadLatestManifest(ctx, w.store, cleaned)
	switch {
	case errors.Is(err, errNoVersions):
		previous = Manifest{}
	case err != nil:
		return Manifest{}, newError("commit", cleaned, ErrInternal, err)
	}

	version := previous.Version + 1
	var entries []DataFile
	if mode == WriteAppend {
		entries = append(entries, previous.Files...)
	}

	var written []string
	for i, f := range files {
		relative, err := storage.BuildDataFilePath(version, i)
		if err != nil {
			w.cleanup(ctx, written)
			return Manifest{}, newError("commit", cleaned, ErrInternal, err)
		}
		key, err := storage.ResolveDataFile(cleaned, relative)
		if err != nil {
			w.cleanup(ctx, written)
			return Manifest{}, newError("commit", cleaned, ErrInternal, err)
		}
		info, err := w.store.Put(ctx, key, bytes.NewReader(f.Data), int64(len(f.Data)), storage.PutOptions{ContentType: parquetContentType})
		if err != nil {
			w.cleanup(ctx, written)
			return Manifest{}, newError("commit", cleaned, ErrInternal, err)
		}
		written = append(written, key)
		size := info.Size
		if size == 0 {
			size = int64(len(f.Data))
		}
		entries = append(entries, DataFile{Path: relative, RecordCount: f.RecordCount, SizeBytes: size})
	}

	manifest := Manifest{Version: version, Files: entries, CreatedAt: w.now().UTC()}
	data, err := encodeManifest(manifest)
	if err != nil {
		w.cleanup(ctx, written)
		return Manifest{}, newError("commit", cleaned, ErrInternal, err)
	}
	key, err := storage.ManifestKey(cleaned, version)
	if err != nil {
		w.cleanup(ctx, written)
		return Manifest{}, newError("commit", cleaned, ErrInternal, err)
	}
	if _, err := w.store.Stat(ctx, key); err == nil {
		w.cleanup(ctx, written)
		return Manifest{}, newError("commit", cleaned, ErrConflict, fmt.Errorf("version %d", version))
	} else if !errors.Is(err, storage.ErrObjectNotFound) {
		w.cleanup(ctx, written)
		return Manifest{}, newError("commit", cleaned, ErrInternal, err)
	}
	if _, err := w.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		w.cleanup(ctx, written)
		return Manifest{}, newError("commit", cleaned, ErrInternal, err)
	}
	return manifest, nil
}

func (w *Writer) cleanup(ctx context.Context, keys []string) {
	for _, key := range keys {
		_ = w.store.Delete(ctx, key)
	}
}

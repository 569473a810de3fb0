package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/duckmesh/arrowscan/internal/storage"
)

var errNoVersions = errors.New("no committed versions")

// Manifest lists the data files that make up one dataset version, in scan
// order.
type Manifest struct {
	Version   uint64     `json:"version"`
	Files     []DataFile `json:"files"`
	CreatedAt time.Time  `json:"created_at"`
}

type DataFile struct {
	Path        string `json:"path"`
	RecordCount int64  `json:"record_count"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (m Manifest) RowCount() uint64 {
	var total uint64
	for _, f := range m.Files {
		total += uint64(f.RecordCount)
	}
	return total
}

func (m Manifest) validate(datasetPath string) error {
	if m.Version == 0 {
		return fmt.Errorf("manifest version must be >= 1")
	}
	for i, f := range m.Files {
		if f.RecordCount < 0 {
			return fmt.Errorf("file %d: record_count must be >= 0", i)
		}
		if _, err := storage.ResolveDataFile(datasetPath, f.Path); err != nil {
			return fmt.Errorf("file %d: %w", i, err)
		}
	}
	return nil
}

func decodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

func encodeManifest(m Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// latestVersion returns the highest committed version of a dataset, or
// errNoVersions.
func latestVersion(ctx context.Context, store storage.ObjectStore, datasetPath string) (uint64, error) {
	prefix, err := storage.VersionsPrefix(datasetPath)
	if err != nil {
		return 0, err
	}
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var latest uint64
	for _, object := range objects {
		if version, ok := storage.ParseManifestKey(object.Key); ok && version > latest {
			latest = version
		}
	}
	if latest == 0 {
		return 0, errNoVersions
	}
	return latest, nil
}

func loadManifest(ctx context.Context, store storage.ObjectStore, datasetPath string, version uint64) (Manifest, error) {
	key, err := storage.ManifestKey(datasetPath, version)
	if err != nil {
		return Manifest{}, err
	}
	reader, err := store.Get(ctx, key)
	if err != nil {
		return Manifest{}, fmt.Errorf("get manifest %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %q: %w", key, err)
	}
	m, err := decodeManifest(data)
	if err != nil {
		return Manifest{}, err
	}
	if m.Version != version {
		return Manifest{}, fmt.Errorf("manifest %q declares version %d", key, m.Version)
	}
	if err := m.validate(datasetPath); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func loadLatestManifest(ctx context.Context, store storage.ObjectStore, datasetPath string) (Manifest, error) {
	version, err := latestVersion(ctx, store, datasetPath)
	if err != nil {
		return Manifest{}, err
	}
	return loadManifest(ctx, store, datasetPath, version)
}

package storage

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

const (
	versionsDir    = "_versions"
	dataDir        = "data"
	manifestSuffix = ".manifest.json"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// CleanDatasetPath validates a slash separated dataset path and returns it in
// canonical form.
func CleanDatasetPath(datasetPath string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(datasetPath), "/")
	if trimmed == "" {
		return "", fmt.Errorf("dataset path is required")
	}
	for _, component := range strings.Split(trimmed, "/") {
		if err := validatePathComponent(component, "dataset path component"); err != nil {
			return "", err
		}
	}
	return trimmed, nil
}

func VersionsPrefix(datasetPath string) (string, error) {
	cleaned, err := CleanDatasetPath(datasetPath)
	if err != nil {
		return "", err
	}
	return path.Join(cleaned, versionsDir) + "/", nil
}

func ManifestKey(datasetPath string, version uint64) (string, error) {
	cleaned, err := CleanDatasetPath(datasetPath)
	if err != nil {
		return "", err
	}
	if version == 0 {
		return "", fmt.Errorf("version must be >= 1")
	}
	return path.Join(cleaned, versionsDir, fmt.Sprintf("%d%s", version, manifestSuffix)), nil
}

// ParseManifestKey returns the version encoded in a manifest key.
func ParseManifestKey(key string) (uint64, bool) {
	base := path.Base(key)
	if path.Base(path.Dir(key)) != versionsDir || !strings.HasSuffix(base, manifestSuffix) {
		return 0, false
	}
	version, err := strconv.ParseUint(strings.TrimSuffix(base, manifestSuffix), 10, 64)
	if err != nil || version == 0 {
		return 0, false
	}
	return version, true
}

// BuildDataFilePath returns the key of data file sequence within version,
// relative to the dataset path.
func BuildDataFilePath(version uint64, sequence int) (string, error) {
	if version == 0 {
		return "", fmt.Errorf("version must be >= 1")
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	return path.Join(dataDir, fmt.Sprintf("part-%d-%05d.parquet", version, sequence)), nil
}

// ResolveDataFile joins a manifest-relative file path onto the dataset path
// and rejects paths escaping the dataset.
func ResolveDataFile(datasetPath, relative string) (string, error) {
	cleaned, err := CleanDatasetPath(datasetPath)
	if err != nil {
		return "", err
	}
	rel := path.Clean(strings.TrimSpace(relative))
	if rel == "." || rel == ".." || path.IsAbs(rel) || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("invalid data file path: %q", relative)
	}
	return path.Join(cleaned, rel), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

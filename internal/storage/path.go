package storage

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	ContentTypeParquet = "application/vnd.apache.parquet"
	ContentTypeJSON    = "application/json"
)

// ObjectKind tells the two families of objects the service keeps apart.
type ObjectKind string

const (
	KindExport ObjectKind = "export"
	KindSeed   ObjectKind = "seed"
)

var ErrUnsupportedKey = errors.New("unsupported object key")

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ContentType is the media type objects of this kind are written with.
func (k ObjectKind) ContentType() string {
	switch k {
	case KindExport:
		return ContentTypeParquet
	case KindSeed:
		return ContentTypeJSON
	default:
		return "application/octet-stream"
	}
}

// ClassifyKey maps a key to its kind by extension. Exports are parquet
// files, seed datasets are JSON documents; anything else is refused.
func ClassifyKey(key string) (ObjectKind, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".parquet":
		return KindExport, nil
	case ".json":
		return KindSeed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}
}

// BuildExportKey lays exports out by UTC creation day:
// <prefix>/YYYY/MM/DD/<id>.parquet.
func BuildExportKey(prefix string, createdAt time.Time, id string) (string, error) {
	segments, err := prefixSegments(prefix)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(id, "export id"); err != nil {
		return "", err
	}

	ts := createdAt.UTC()
	segments = append(segments,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		id+".parquet",
	)
	return path.Join(segments...), nil
}

// ExportKey is a parsed <prefix>/YYYY/MM/DD/<id>.parquet key.
type ExportKey struct {
	Prefix string
	Day    time.Time
	ID     string
}

// ParseExportKey is the inverse of BuildExportKey. A key is accepted only if
// rebuilding it from its parts yields the same key.
func ParseExportKey(key string) (ExportKey, error) {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	if len(segments) < 4 {
		return ExportKey{}, fmt.Errorf("%w: export key %q needs a YYYY/MM/DD day", ErrUnsupportedKey, key)
	}
	n := len(segments)
	file := segments[n-1]
	if path.Ext(file) != ".parquet" {
		return ExportKey{}, fmt.Errorf("%w: export key %q is not a parquet file", ErrUnsupportedKey, key)
	}
	day, err := time.Parse("2006/01/02", strings.Join(segments[n-4:n-1], "/"))
	if err != nil {
		return ExportKey{}, fmt.Errorf("%w: export key %q has no valid day: %v", ErrUnsupportedKey, key, err)
	}
	parsed := ExportKey{
		Prefix: strings.Join(segments[:n-4], "/"),
		Day:    day,
		ID:     strings.TrimSuffix(file, ".parquet"),
	}
	rebuilt, err := BuildExportKey(parsed.Prefix, parsed.Day, parsed.ID)
	if err != nil {
		return ExportKey{}, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	if rebuilt != strings.Trim(key, "/") {
		return ExportKey{}, fmt.Errorf("%w: export key %q is not canonical", ErrUnsupportedKey, key)
	}
	return parsed, nil
}

func prefixSegments(prefix string) ([]string, error) {
	segments := make([]string, 0, 8)
	for _, component := range strings.Split(strings.Trim(strings.TrimSpace(prefix), "/"), "/") {
		if component == "" {
			continue
		}
		if err := validatePathComponent(component, "export prefix"); err != nil {
			return nil, err
		}
		segments = append(segments, component)
	}
	return segments, nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// Package migrations embeds the schema files of every storage backend.
//
// Files are named NNNN_name.sql and applied in version order. BigQuery files
// reference their tables as `{{PROJECT_ID}}.{{DATASET_ID}}.table`; Render
// substitutes the placeholders. Checksums are taken over the raw file, so
// applying the same file to another dataset does not look like a change.
package migrations

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed postgres/*.sql bigquery/*.sql
var files embed.FS

// Supported backends.
const (
	BackendPostgres = "postgres"
	BackendBigQuery = "bigquery"
)

// Migration is a single schema file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

var filenamePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// ParseFilename splits a migration filename into version and name.
func ParseFilename(filename string) (version int, name string, ok bool) {
	matches := filenamePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// Load returns the embedded migrations of a backend sorted by version.
func Load(backend string) ([]Migration, error) {
	switch backend {
	case BackendPostgres, BackendBigQuery:
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	return Read(files, backend)
}

// Read loads every migration file in dir of fsys. Files that do not match the
// naming scheme are ignored; duplicate versions are an error.
func Read(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := ParseFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Render replaces the project and dataset placeholders of a BigQuery file.
func Render(sql, projectID, datasetID string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)
}

// Package migrations embeds the SQL migration files for the DNS smart block
// schema. All migrations are embedded at build time using go:embed, enabling
// zero-config deployment without external file dependencies.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// Migration filename regex: 001_migration_name.up.sql or 001_migration_name.down.sql
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// FS returns the embedded file system containing all migration files.
func FS() fs.FS {
	return embeddedMigrations
}

// List returns all embedded migration files that conform to the strict naming
// standard. Only files matching 001_name.(up|down).sql are included; invalid
// filenames are rejected to enforce consistency and prevent operational
// mistakes.
func List() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && migrationFilenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	// Lexicographic sort works with the naming standard: 001 before 002.
	sort.Strings(files)

	return files, nil
}

// Validate checks that every up migration has a matching down migration and
// that sequence numbers start at 001 without gaps.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	pairs := make(map[string]map[string]bool) // 001_name -> direction -> present
	sequences := make(map[int]bool)

	for _, file := range files {
		matches := migrationFilenameRegex.FindStringSubmatch(file)

		key := matches[1] + "_" + matches[2]
		if pairs[key] == nil {
			pairs[key] = make(map[string]bool)
		}

		pairs[key][matches[3]] = true

		var seq int

		_, _ = fmt.Sscanf(matches[1], "%d", &seq)
		sequences[seq] = true
	}

	for key, directions := range pairs {
		if !directions["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !directions["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	var ordered []int
	for seq := range sequences {
		ordered = append(ordered, seq)
	}

	sort.Ints(ordered)

	if ordered[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", ordered[0])
	}

	for i := 1; i < len(ordered); i++ {
		if ordered[i] != ordered[i-1]+1 {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d", ordered[i-1]+1, ordered[i])
		}
	}

	return nil
}

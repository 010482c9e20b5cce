package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MigrationFile describes a generated up/down migration pair
type MigrationFile struct {
	Version  string
	Name     string
	UpPath   string
	DownPath string
}

// CreateMigration writes a new up/down migration pair. Versions are
// sequential six-digit numbers continuing from the highest pair already
// present, matching the files shipped under migrations/.
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	next, err := nextVersion(migrationsDir)
	if err != nil {
		return nil, err
	}

	mf := &MigrationFile{
		Version: fmt.Sprintf("%06d", next),
		Name:    sanitizeName(name),
	}
	if mf.Name == "" {
		return nil, fmt.Errorf("migration name %q contains no usable characters", name)
	}

	base := mf.Version + "_" + mf.Name
	mf.UpPath = filepath.Join(migrationsDir, base+".up.sql")
	mf.DownPath = filepath.Join(migrationsDir, base+".down.sql")

	downDesc := description
	if downDesc == "" {
		downDesc = mf.Name
	}

	created := time.Now().UTC().Format(time.RFC3339)
	up := migrationHeader(base, description, created) +
		"-- Forward migration. Monetary columns are DECIMAL(18,4), ids are UUID.\n\n"
	down := migrationHeader(base, "rollback of "+downDesc, created) +
		"-- Rollback. Must undo exactly what the up migration applied.\n\n"

	if err := os.WriteFile(mf.UpPath, []byte(up), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", mf.UpPath, err)
	}
	if err := os.WriteFile(mf.DownPath, []byte(down), 0o644); err != nil {
		// Never leave a half pair behind; migrate refuses odd directories
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to write %s: %w", mf.DownPath, err)
	}

	return mf, nil
}

func migrationHeader(base, description, created string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- %s\n", base)
	if description != "" {
		fmt.Fprintf(&b, "-- %s\n", description)
	}
	fmt.Fprintf(&b, "-- generated %s by the migrate CLI\n\n", created)
	return b.String()
}

// nextVersion scans the directory for the highest numeric version prefix
// among existing pairs and returns the one after it
func nextVersion(migrationsDir string) (int, error) {
	existing, err := ListMigrations(migrationsDir)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, base := range existing {
		prefix, _, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(prefix); err == nil && v > max {
			max = v
		}
	}
	return max + 1, nil
}

// sanitizeName lower-cases a migration name and collapses runs of
// separators into single underscores, dropping everything else
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			if s := b.String(); s != "" && !strings.HasSuffix(s, "_") {
				b.WriteByte('_')
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ListMigrations returns the base names of the migration pairs in a
// directory, sorted by version. A missing directory lists as empty.
func ListMigrations(migrationsDir string) ([]string, error) {
	ups, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	migrations := make([]string, 0, len(ups))
	for _, path := range ups {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		migrations = append(migrations, strings.TrimSuffix(filepath.Base(path), ".up.sql"))
	}
	sort.Strings(migrations)
	return migrations, nil
}

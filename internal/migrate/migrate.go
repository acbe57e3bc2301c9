// Package migrate applies versioned SQL migrations to PostgreSQL and records
// them in public.schema_migrations.
package migrate

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dvloznov/banking-analytics/internal/logger"
	"github.com/jmoiron/sqlx"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int       `db:"version"`
	Name      string    `db:"name"`
	AppliedAt time.Time `db:"applied_at"`
	Checksum  *string   `db:"checksum"`
	AppliedBy *string   `db:"applied_by"`
}

// Result summarizes a migration pass.
type Result struct {
	Applied []Migration
	Skipped int
	Drifted []Migration
}

// filenamePattern matches migration files: 0001_name.sql
var filenamePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migrator applies migrations found in an fs.FS.
type Migrator struct {
	db        *sqlx.DB
	files     fs.FS
	dir       string
	appliedBy string
}

// New creates a Migrator reading dir inside files.
func New(db *sqlx.DB, files fs.FS, dir, appliedBy string) *Migrator {
	return &Migrator{db: db, files: files, dir: dir, appliedBy: appliedBy}
}

// Up applies every pending migration in version order. Each migration runs
// in its own transaction together with its ledger row.
func (m *Migrator) Up(ctx context.Context) (Result, error) {
	log := logger.FromContext(ctx)
	var res Result

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return res, fmt.Errorf("Up: ensuring schema_migrations table: %w", err)
	}

	migrations, err := ReadMigrations(m.files, m.dir)
	if err != nil {
		return res, fmt.Errorf("Up: reading migrations: %w", err)
	}
	log.Info().Int("files", len(migrations)).Msg("Found migration files")

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return res, fmt.Errorf("Up: reading applied migrations: %w", err)
	}
	log.Info().Int("applied", len(applied)).Msg("Found already applied migrations")

	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	for _, mig := range migrations {
		if am, ok := byVersion[mig.Version]; ok {
			res.Skipped++
			if am.Checksum != nil && *am.Checksum != mig.Checksum {
				res.Drifted = append(res.Drifted, mig)
				log.Warn().
					Str("migration", mig.Filename).
					Str("recorded", *am.Checksum).
					Str("current", mig.Checksum).
					Msg("Applied migration changed on disk; not re-running")
				continue
			}
			log.Debug().Str("migration", mig.Filename).Msg("Already applied")
			continue
		}

		log.Info().Str("migration", mig.Filename).Msg("Applying migration")
		if err := m.apply(ctx, mig); err != nil {
			return res, fmt.Errorf("Up: applying %s: %w", mig.Filename, err)
		}
		res.Applied = append(res.Applied, mig)
	}

	if len(res.Applied) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("count", len(res.Applied)).Msg("Applied migrations")
	}
	return res, nil
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version     INTEGER PRIMARY KEY,
			name        TEXT NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			checksum    TEXT,
			applied_by  TEXT
		)`)
	return err
}

func (m *Migrator) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	var applied []AppliedMigration
	err := m.db.SelectContext(ctx, &applied, `
		SELECT version, name, applied_at, checksum, applied_by
		FROM public.schema_migrations
		ORDER BY version ASC`)
	return applied, err
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("executing: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO public.schema_migrations (version, name, applied_at, checksum, applied_by)
		VALUES ($1, $2, now(), $3, $4)
		ON CONFLICT (version) DO NOTHING`,
		mig.Version, mig.Name, mig.Checksum, m.appliedBy); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	return tx.Commit()
}

// ReadMigrations reads NNNN_name.sql files from dir, sorted by version.
// Files that do not match the pattern are skipped.
func ReadMigrations(files fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := ParseFilename(entry.Name())
		if !ok {
			continue
		}

		content, err := fs.ReadFile(files, dir+"/"+entry.Name())
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
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s",
				migrations[i].Version, migrations[i-1].Filename, migrations[i].Filename)
		}
	}
	return migrations, nil
}

// ParseFilename splits 0001_name.sql into its version and name.
func ParseFilename(filename string) (int, string, bool) {
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

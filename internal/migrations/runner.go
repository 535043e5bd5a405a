// Package migrations owns the invoicing schema. Embedded SQL scripts create
// the vendors, customers, invoices, payments and line_items tables; applied
// versions are recorded in invoiceql_schema_migrations.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const ledgerTable = "invoiceql_schema_migrations"

// InvoicingTables is the schema the listing, dashboard and seed paths rely
// on, parents before children.
var InvoicingTables = []string{"vendors", "customers", "invoices", "payments", "line_items"}

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

// VersionStatus describes one embedded migration.
type VersionStatus struct {
	Version int64
	Name    string
	Tables  []string
	Applied bool
}

// TableStatus reports whether an invoicing table exists and which migration
// creates it (0 when none does).
type TableStatus struct {
	Name    string
	Version int64
	Present bool
}

type plan struct {
	scripts []script
	applied []int64
}

func (p plan) isApplied(version int64) bool {
	return slices.Contains(p.applied, version)
}

func (r *Runner) load(ctx context.Context, db *sql.DB) (plan, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return plan{}, err
	}
	createLedger := `CREATE TABLE IF NOT EXISTS ` + ledgerTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return plan{}, fmt.Errorf("ensure %s: %w", ledgerTable, err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return plan{}, err
	}
	return plan{scripts: scripts, applied: applied}, nil
}

// Up applies pending migrations oldest first; steps <= 0 applies all of them.
// Each migration commits together with its ledger row.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	p, err := r.load(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, s := range p.scripts {
		if p.isApplied(s.Version) {
			continue
		}
		if steps > 0 && count == steps {
			break
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, s.Up); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", s.Version, s.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO `+ledgerTable+` (version) VALUES ($1)`, s.Version); err != nil {
				return fmt.Errorf("record migration %d: %w", s.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Down reverts applied migrations newest first; steps <= 0 reverts one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	p, err := r.load(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := len(p.applied) - 1; i >= 0 && count < steps; i-- {
		version := p.applied[i]
		idx := slices.IndexFunc(p.scripts, func(s script) bool { return s.Version == version })
		if idx < 0 {
			return count, fmt.Errorf("applied migration %d has no embedded script", version)
		}
		s := p.scripts[idx]
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, s.Down); err != nil {
				return fmt.Errorf("revert migration %d (%s): %w", s.Version, s.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+ledgerTable+` WHERE version = $1`, s.Version); err != nil {
				return fmt.Errorf("unrecord migration %d: %w", s.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]VersionStatus, error) {
	p, err := r.load(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]VersionStatus, 0, len(p.scripts))
	for _, s := range p.scripts {
		out = append(out, VersionStatus{Version: s.Version, Name: s.Name, Tables: s.Tables, Applied: p.isApplied(s.Version)})
	}
	return out, nil
}

// Tables checks the invoicing tables against the live catalog.
func (r *Runner) Tables(ctx context.Context, db *sql.DB) ([]TableStatus, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return nil, err
	}
	present, err := catalogTables(ctx, db)
	if err != nil {
		return nil, err
	}

	out := make([]TableStatus, 0, len(InvoicingTables))
	for _, table := range InvoicingTables {
		status := TableStatus{Name: table, Present: slices.Contains(present, table)}
		for _, s := range scripts {
			if slices.Contains(s.Tables, table) {
				status.Version = s.Version
				break
			}
		}
		out = append(out, status)
	}
	return out, nil
}

// MissingTables names the invoicing tables absent from the catalog.
func MissingTables(statuses []TableStatus) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Present {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

func appliedVersions(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+ledgerTable+` ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ledgerTable, err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	return versions, nil
}

func catalogTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, fmt.Errorf("list catalog tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan catalog table: %w", err)
		}
		names = append(names, strings.ToLower(name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list catalog tables: %w", err)
	}
	return names, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}
	return nil
}

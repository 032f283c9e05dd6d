package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed schema/*.sql
var warehouseSchema embed.FS

// SchemaFiles lists the embedded warehouse DDL files in apply order.
func SchemaFiles() ([]string, error) {
	entries, err := fs.ReadDir(warehouseSchema, "schema")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// ApplySchema creates the dwh schema and its tables. Each embedded file runs
// once in its own transaction and is recorded in dwh.schema_versions; files
// already recorded are skipped. It returns the files applied by this call.
func ApplySchema(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := ensureVersionsTable(ctx, db); err != nil {
		return nil, err
	}
	files, err := SchemaFiles()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range files {
		done, err := isApplied(ctx, db, name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		contents, err := fs.ReadFile(warehouseSchema, "schema/"+name)
		if err != nil {
			return applied, fmt.Errorf("read schema %s: %w", name, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin schema tx %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("execute schema %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO dwh.schema_versions(version) VALUES($1)`, name); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record schema %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit schema %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func ensureVersionsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE SCHEMA IF NOT EXISTS dwh;
		CREATE TABLE IF NOT EXISTS dwh.schema_versions (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure dwh.schema_versions: %w", err)
	}
	return nil
}

func isApplied(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM dwh.schema_versions WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %s: %w", version, err)
	}
	return exists, nil
}

// Package database stores records in sqlite, normalised into a parent table
// and one child table per list field.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/log"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/recipe"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/storage"
	_ "modernc.org/sqlite"
)

// RecipeDB is a sqlite database holding the scraped records.
type RecipeDB struct {
	db *sql.DB
}

// Open opens or creates the database at dsn.
func Open(dsn string) (*RecipeDB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time, and in-memory databases live per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &RecipeDB{db: db}, nil
}

func (r *RecipeDB) Close() error {
	return r.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordExists reports whether table has a row whose idColumn equals id. A
// table that does not exist yet has no rows.
func (r *RecipeDB) RecordExists(ctx context.Context, table, idColumn, id string) (bool, error) {
	if !identifier.MatchString(table) || !identifier.MatchString(idColumn) {
		return false, fmt.Errorf("invalid table or column name '%s.%s'", table, idColumn)
	}
	exists, err := tableExists(ctx, r.db, table)
	if err != nil || !exists {
		return false, err
	}
	var one int
	err = r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE %s = ? LIMIT 1`, quote(table), quote(idColumn)), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Persist writes records in one transaction. Parent rows are upserted by
// id and the child rows of every record are replaced.
func (r *RecipeDB) Persist(ctx context.Context, layout *Layout, records []*recipe.Record) error {
	if err := layout.Validate(); err != nil {
		return &storage.PersistenceError{Op: "layout", Path: layout.Table, Err: err}
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.PersistenceError{Op: "begin", Path: layout.Table, Err: err}
	}
	if err := persist(ctx, tx, layout, records); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &storage.PersistenceError{Op: "commit", Path: layout.Table, Err: err}
	}
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("persisted %d records to table %s", len(records), layout.Table))
	return nil
}

func persist(ctx context.Context, tx *sql.Tx, layout *Layout, records []*recipe.Record) error {
	if err := ensureSchema(ctx, tx, layout); err != nil {
		return err
	}
	parentColumns := append(layout.parentFixed(), layout.Columns...)
	upsert := upsertStatement(layout.Table, layout.IDColumn, parentColumns)
	for _, rec := range records {
		images, err := json.Marshal(rec.ImageURLs)
		if err != nil {
			return &storage.PersistenceError{Op: "encode", Path: rec.ItemID, Err: err}
		}
		args := []any{rec.ItemID, rec.ItemUUID.String(), rec.URL, string(images)}
		for _, c := range layout.Columns {
			args = append(args, rec.Text(c))
		}
		if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
			return &storage.PersistenceError{Op: "insert", Path: layout.Table, Err: err}
		}
		for _, child := range layout.Children {
			if err := replaceChildRows(ctx, tx, layout.IDColumn, child, rec); err != nil {
				return &storage.PersistenceError{Op: "insert", Path: child.Table, Err: err}
			}
		}
	}
	return nil
}

func replaceChildRows(ctx context.Context, tx *sql.Tx, idColumn string, child Child, rec *recipe.Record) error {
	del := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, quote(child.Table), quote(idColumn))
	if _, err := tx.ExecContext(ctx, del, rec.ItemID); err != nil {
		return err
	}
	columns := append([]string{idColumn, "position"}, child.Columns...)
	insert := insertStatement(child.Table, columns)
	for i, entry := range rec.List(child.Field) {
		args := []any{rec.ItemID, i}
		for _, c := range child.Columns {
			args = append(args, entry[c])
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return err
		}
	}
	return nil
}

// ensureSchema creates missing tables and indexes, and adds columns that
// are missing from existing tables.
func ensureSchema(ctx context.Context, tx *sql.Tx, layout *Layout) error {
	parentDefs := []string{quote(layout.IDColumn) + " TEXT PRIMARY KEY"}
	for _, c := range append(layout.parentFixed()[1:], layout.Columns...) {
		parentDefs = append(parentDefs, quote(c)+" TEXT")
	}
	if err := ensureTable(ctx, tx, layout.Table, parentDefs); err != nil {
		return &storage.PersistenceError{Op: "schema", Path: layout.Table, Err: err}
	}
	for _, child := range layout.Children {
		defs := []string{
			quote(layout.IDColumn) + " TEXT NOT NULL",
			`"position" INTEGER NOT NULL`,
		}
		for _, c := range child.Columns {
			defs = append(defs, quote(c)+" TEXT")
		}
		if err := ensureTable(ctx, tx, child.Table, defs); err != nil {
			return &storage.PersistenceError{Op: "schema", Path: child.Table, Err: err}
		}
		index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)`,
			quote("ix_"+child.Table+"_"+layout.IDColumn), quote(child.Table), quote(layout.IDColumn), quote(child.Index()))
		if _, err := tx.ExecContext(ctx, index); err != nil {
			return &storage.PersistenceError{Op: "schema", Path: child.Table, Err: err}
		}
	}
	return nil
}

// ensureTable creates table with the column definitions defs. If the table
// exists, columns it lacks are added.
func ensureTable(ctx context.Context, tx *sql.Tx, table string, defs []string) error {
	exists, err := tableExists(ctx, tx, table)
	if err != nil {
		return err
	}
	if !exists {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, quote(table), strings.Join(defs, ", ")))
		return err
	}
	existing, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	for _, def := range defs {
		name := strings.Trim(strings.Fields(def)[0], `"`)
		if existing[name] {
			continue
		}
		// added columns cannot carry constraints
		column := quote(name) + " " + strings.Fields(def)[1]
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, quote(table), column)); err != nil {
			return err
		}
	}
	return nil
}

func tableColumns(ctx context.Context, q querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

func insertStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quote(table), strings.Join(quoted, ", "), placeholders)
}

func upsertStatement(table, idColumn string, columns []string) string {
	updates := []string{}
	for _, c := range columns {
		if c == idColumn {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s=excluded.%s", quote(c), quote(c)))
	}
	return fmt.Sprintf(`%s ON CONFLICT(%s) DO UPDATE SET %s`,
		insertStatement(table, columns), quote(idColumn), strings.Join(updates, ", "))
}
